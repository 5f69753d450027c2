// Package version exposes build metadata for rss-r-deploy.
//
// Version, Commit and BuildTime are injected with -ldflags at build time.
package version

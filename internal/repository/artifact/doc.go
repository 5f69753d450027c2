// Package artifact reads the local build output into a deploy.FileSet.
//
// The output is either a directory or a zip archive. Every file is read and
// checksummed up front, so an unreadable or missing artifact is reported
// before anything touches the remote host.
package artifact

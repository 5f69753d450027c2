// Package deployer synchronises the local rss_r build output to the remote
// test or production directory.
//
// A run resolves and checksums every local artifact first, then connects,
// uploads only files whose remote copy differs, prunes stale entries inside
// the directories the target owns and, for production, fixes ownership and
// restarts the service. Test deployments replace the whole test directory;
// production deployments never touch anything but the executable and the
// static directory.
package deployer

// Package remote connects to the deployment host over SSH and exposes its
// filesystem through SFTP.
//
// Dial authenticates with a private key and/or the SSH agent and verifies the
// host key against known_hosts unless told otherwise. Failures are classified
// into deploy.ErrConnection and deploy.ErrAuth. The returned Client offers the
// file operations the deployer needs plus remote command execution.
package remote

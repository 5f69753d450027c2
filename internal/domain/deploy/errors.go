package deploy

import "errors"

var (
	// ErrConnection is returned when the remote host cannot be reached or the SSH handshake fails.
	ErrConnection = errors.New("connection error")
	// ErrAuth is returned when the remote host rejects every offered credential.
	ErrAuth = errors.New("authentication error")
	// ErrPathNotFound is returned when the remote target directory does not exist.
	ErrPathNotFound = errors.New("remote path not found")
	// ErrLocalArtifactMissing is returned when a required local build artifact is absent.
	ErrLocalArtifactMissing = errors.New("local artifact missing")
)

package deploy

import (
	"fmt"
	"os"
	"os/user"
)

// Actor identifies who started a deployment.
type Actor struct {
	// Hostname is the machine the deployment was started from.
	Hostname string
	// Username is the local user who started it.
	Username string
}

// DetectActor gathers host and user information for the deployment log.
func DetectActor() (*Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return &Actor{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}

// String formats the actor as user@host.
func (a *Actor) String() string {
	if a == nil {
		return "unknown"
	}

	return a.Username + "@" + a.Hostname
}

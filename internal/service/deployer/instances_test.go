package deployer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMatchesExecutable covers exact and kernel-truncated process names.
func TestMatchesExecutable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		process    string
		executable string
		want       bool
	}{
		{"rss-r-deploy", "rss-r-deploy", true},
		{"rss-r-deploy-v", "rss-r-deploy-v2", false},
		{"rss-r-deploy.ex", "rss-r-deploy.exe", true},
		{"bash", "rss-r-deploy", false},
		{"", "rss-r-deploy", false},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, matchesExecutable(tt.process, tt.executable), tt.process)
	}
}

package remote

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestShellQuote covers safe words, empty strings and embedded quotes.
func TestShellQuote(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                      "''",
		"/home/pi/rss_r":        "/home/pi/rss_r",
		"rss:rss":               "rss:rss",
		"my dir":                "'my dir'",
		"it's":                  `'it'\''s'`,
		"$(reboot)":             "'$(reboot)'",
		"/srv/static/app.v2.js": "/srv/static/app.v2.js",
	}

	for in, want := range cases {
		require.Equal(t, want, ShellQuote(in), in)
	}
}

package integration

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// splitAddr splits a listener address into host and numeric port.
func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()

	host, portText, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	port, err := strconv.Atoi(portText)
	require.NoError(t, err)

	return host, port
}

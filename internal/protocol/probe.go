package protocol

import (
	"context"
	"net"
	"strconv"

	"github.com/portico-labs/portico/internal/constants"
)

// Probe reports whether a TCP connection to host:port can be established.
// Each resolved address gets its own dial attempt with a short timeout, so a
// host with both stale and live records still probes true. A false result is
// not an error; name-resolution failures also probe false.
func Probe(ctx context.Context, host string, port int) bool {
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil || len(addrs) == 0 {
		return false
	}
	dialer := net.Dialer{Timeout: constants.ProbeTimeout}
	for _, addr := range addrs {
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
		if err != nil {
			continue
		}
		conn.Close()
		return true
	}
	return false
}

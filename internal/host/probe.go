package host

import (
	"time"

	"github.com/sirex/upkeep/pkg/sshutil"
)

// Probe checks that a target answers an SSH handshake and reports how long
// it took. The connection is closed immediately; use a Pool when you intend
// to keep it.
func Probe(target string, timeout time.Duration) (time.Duration, error) {
	start := time.Now()
	client, err := sshutil.Dial(target, timeout)
	if err != nil {
		return 0, err
	}
	latency := time.Since(start)
	client.Close()
	return latency, nil
}

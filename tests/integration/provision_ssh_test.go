package integration

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirex/upkeep/internal/remote"
)

func TestSSHExecRoundTrip(t *testing.T) {
	conn := GetSSHConnection(t)
	runner := remote.NewRunner(conn.Client)

	res, err := runner.Run("echo upkeep-integration")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "upkeep-integration", res.Out())
}

func TestSSHSudo(t *testing.T) {
	conn := GetSSHConnection(t)
	runner := remote.NewRunner(conn.Client)

	res, err := runner.Sudo("id -u")
	require.NoError(t, err)
	if res.ExitCode != 0 {
		t.Skipf("Skipping: test user has no passwordless sudo (%s)", res.Stderr)
	}
	assert.Equal(t, "0", res.Out())
}

func TestEnsureKnownHostIdempotent(t *testing.T) {
	conn := GetSSHConnection(t)
	runner := remote.NewRunner(conn.Client)

	if res, err := runner.Sudo("true"); err != nil || res.ExitCode != 0 {
		t.Skip("Skipping: test user has no passwordless sudo")
	}

	knownHosts := fmt.Sprintf("/tmp/upkeep-test-%d/known_hosts", time.Now().UnixNano())
	t.Cleanup(func() {
		runner.Sudo(fmt.Sprintf("rm -rf %q", strings.TrimSuffix(knownHosts, "/known_hosts")))
	})

	key := "example.com ssh-ed25519 AAAATESTKEY"
	require.NoError(t, runner.EnsureKnownHost(key, knownHosts))
	require.NoError(t, runner.EnsureKnownHost(key, knownHosts))

	res, err := runner.Sudo("cat " + knownHosts)
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	assert.Equal(t, 1, strings.Count(res.Stdout, "example.com"),
		"host key should appear exactly once after repeated runs")
}

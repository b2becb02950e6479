package integration

import (
	"os"
	"testing"
	"time"

	"github.com/sirex/upkeep/internal/host"
	"github.com/sirex/upkeep/internal/instance"
	"github.com/sirex/upkeep/pkg/sshutil"
)

// RequireSSH skips the test unless a real SSH server is configured through
// the environment.
func RequireSSH(t *testing.T) {
	t.Helper()
	if os.Getenv("UPKEEP_TEST_SSH_HOST") == "" {
		t.Skip("Skipping: UPKEEP_TEST_SSH_HOST not set (SSH test server not available)")
	}
	if os.Getenv("UPKEEP_TEST_SSH_KEY") == "" {
		t.Skip("Skipping: UPKEEP_TEST_SSH_KEY not set (SSH test key not available)")
	}
}

// GetTestSSHHost returns the configured test SSH target.
func GetTestSSHHost(t *testing.T) string {
	t.Helper()
	return os.Getenv("UPKEEP_TEST_SSH_HOST")
}

// GetSSHConnection establishes a real SSH connection for integration tests.
// The connection is closed automatically when the test finishes.
func GetSSHConnection(t *testing.T) *host.Connection {
	t.Helper()
	RequireSSH(t)

	// Disable strict host key checking for tests
	sshutil.StrictHostKeyChecking = false
	t.Cleanup(func() {
		sshutil.StrictHostKeyChecking = true
	})

	target := GetTestSSHHost(t)
	client, err := sshutil.Dial(target, 10*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect to test SSH server: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	return &host.Connection{
		Instance: &instance.Instance{
			Name: "test-instance",
			SSH:  []string{target},
			Dir:  "/tmp",
		},
		Target: target,
		Client: client,
	}
}

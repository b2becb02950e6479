package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirex/upkeep/internal/errors"
	"github.com/sirex/upkeep/internal/host"
	"github.com/sirex/upkeep/pkg/sshutil"
	sshtesting "github.com/sirex/upkeep/pkg/sshutil/testing"
)

const testConfig = `
version: 1
instances:
  staging:
    ssh: ["deploy@staging.example.com"]
    dir: /srv/app
  production:
    ssh: ["deploy@prod.example.com"]
    dir: /srv/app
aliases:
  prod: production
default: staging
tasks:
  ping:
    run: uptime
  fail:
    run: exit 1
  deploy:
    steps:
      - name: app user
        user: app
      - name: restart
        run: systemctl restart app
`

// useConfig points the CLI at a temp config file for the duration of a test.
func useConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".upkeep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	old := configFlag
	configFlag = path
	t.Cleanup(func() { configFlag = old })
}

// mockPool returns a pool whose dials always succeed with a MockClient, and
// a map to inspect the clients by target.
func mockPool(t *testing.T) (*host.Pool, map[string]*sshtesting.MockClient) {
	t.Helper()
	clients := make(map[string]*sshtesting.MockClient)
	p := host.NewPool()
	p.SetDial(func(target string, timeout time.Duration) (sshutil.SSHClient, error) {
		c := sshtesting.NewMockClient(target)
		clients[target] = c
		return c, nil
	})
	return p, clients
}

func TestRun(t *testing.T) {
	t.Run("task on named instance", func(t *testing.T) {
		useConfig(t, testConfig)
		pool, clients := mockPool(t)
		var stdout, stderr bytes.Buffer

		code, err := Run(RunOptions{
			Tokens: []string{"staging", "ping"},
			Pool:   pool,
			Stdout: &stdout,
			Stderr: &stderr,
		})
		require.NoError(t, err)
		assert.Equal(t, 0, code)

		mock := clients["deploy@staging.example.com"]
		require.NotNil(t, mock)
		assert.Equal(t, `cd '/srv/app' && uptime`, mock.Commands()[0])
		assert.Contains(t, stdout.String(), "staging")
		assert.Contains(t, stdout.String(), "ping")
	})

	t.Run("default instance when no instance token", func(t *testing.T) {
		useConfig(t, testConfig)
		pool, clients := mockPool(t)

		code, err := Run(RunOptions{Tokens: []string{"ping"}, Pool: pool, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
		require.NoError(t, err)
		assert.Equal(t, 0, code)
		assert.NotNil(t, clients["deploy@staging.example.com"])
		assert.Nil(t, clients["deploy@prod.example.com"])
	})

	t.Run("alias switches the instance", func(t *testing.T) {
		useConfig(t, testConfig)
		pool, clients := mockPool(t)

		code, err := Run(RunOptions{Tokens: []string{"prod", "ping"}, Pool: pool, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
		require.NoError(t, err)
		assert.Equal(t, 0, code)
		assert.NotNil(t, clients["deploy@prod.example.com"])
	})

	t.Run("instance sticks across multiple tasks", func(t *testing.T) {
		useConfig(t, testConfig)
		pool, clients := mockPool(t)

		code, err := Run(RunOptions{
			Tokens: []string{"production", "ping", "deploy"},
			Pool:   pool,
			Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{},
		})
		require.NoError(t, err)
		assert.Equal(t, 0, code)

		mock := clients["deploy@prod.example.com"]
		require.NotNil(t, mock)
		assert.True(t, mock.ExecutedMatching(`uptime`))
		assert.True(t, mock.HasUser("app"))
		assert.True(t, mock.ExecutedMatching(`systemctl restart app`))
		assert.Nil(t, clients["deploy@staging.example.com"])
	})

	t.Run("failed task sets the exit code but later tasks still run", func(t *testing.T) {
		useConfig(t, testConfig)
		pool, clients := mockPool(t)
		pool.SetDial(func(target string, timeout time.Duration) (sshutil.SSHClient, error) {
			c := sshtesting.NewMockClient(target)
			c.SetCommandResponse(`exit 1`, sshtesting.CommandResponse{ExitCode: 1})
			clients[target] = c
			return c, nil
		})

		code, err := Run(RunOptions{
			Tokens: []string{"staging", "fail", "ping"},
			Pool:   pool,
			Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, code)
		assert.True(t, clients["deploy@staging.example.com"].ExecutedMatching(`uptime`),
			"tasks after the failure should still run")
	})

	t.Run("unknown task fails before connecting", func(t *testing.T) {
		useConfig(t, testConfig)
		pool, clients := mockPool(t)

		_, err := Run(RunOptions{Tokens: []string{"staging", "ship-it"}, Pool: pool, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrTask))
		assert.Contains(t, err.Error(), "deploy, fail, ping")
		assert.Empty(t, clients, "no connection should be made for an invalid plan")
	})

	t.Run("skipped changelog is reported", func(t *testing.T) {
		useConfig(t, testConfig+`  annotate:
    run: uptime
    changelog: deployed ${INSTANCE}
`)
		pool, _ := mockPool(t)
		var stdout bytes.Buffer

		code, err := Run(RunOptions{
			Tokens: []string{"staging", "annotate"},
			Pool:   pool,
			Stdout: &stdout,
			Stderr: &bytes.Buffer{},
		})
		require.NoError(t, err)
		assert.Equal(t, 0, code)
		assert.Contains(t, stdout.String(), "annotate changelog")
		assert.Contains(t, stdout.String(), "tool not installed")
	})

	t.Run("only instance names is an error", func(t *testing.T) {
		useConfig(t, testConfig)
		pool, _ := mockPool(t)

		_, err := Run(RunOptions{Tokens: []string{"staging", "production"}, Pool: pool, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Nothing to do")
	})

	t.Run("missing config", func(t *testing.T) {
		old := configFlag
		configFlag = filepath.Join(t.TempDir(), "missing.yaml")
		t.Cleanup(func() { configFlag = old })

		_, err := Run(RunOptions{Tokens: []string{"ping"}, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrConfig))
	})
}

func TestParseTimeout(t *testing.T) {
	d, err := parseTimeout("")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), d)

	d, err = parseTimeout("5s")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	_, err = parseTimeout("soon")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

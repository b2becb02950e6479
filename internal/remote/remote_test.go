package remote

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirex/upkeep/internal/errors"
	sshtesting "github.com/sirex/upkeep/pkg/sshutil/testing"
)

func newTestRunner(t *testing.T) (*Runner, *sshtesting.MockClient) {
	t.Helper()
	mock := sshtesting.NewMockClient("server1.example.com")
	return NewRunner(mock), mock
}

func TestSudoWrapping(t *testing.T) {
	r, mock := newTestRunner(t)

	_, err := r.Sudo("apt-get update -qq")
	require.NoError(t, err)
	assert.Equal(t, "sudo -H sh -c 'apt-get update -qq'", mock.Commands()[0])

	_, err = r.SudoAs("postgres", "createuser -DRS app")
	require.NoError(t, err)
	assert.Equal(t, "sudo -H -u postgres sh -c 'createuser -DRS app'", mock.Commands()[1])
}

func TestRunnerTransportError(t *testing.T) {
	r, mock := newTestRunner(t)
	require.NoError(t, mock.Close())

	_, err := r.Sudo("true")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSSH))
}

func TestEnsureAptNotOutdated(t *testing.T) {
	t.Run("updates when lists are stale", func(t *testing.T) {
		r, mock := newTestRunner(t)
		// find prints nothing for a stale directory
		mock.SetCommandResponse(`find /var/lib/apt/lists`, sshtesting.CommandResponse{})

		require.NoError(t, r.EnsureAptNotOutdated())
		assert.True(t, mock.ExecutedMatching(`apt-get update -qq`))
	})

	t.Run("skips when lists are fresh", func(t *testing.T) {
		r, mock := newTestRunner(t)
		mock.SetCommandResponse(`find /var/lib/apt/lists`, sshtesting.CommandResponse{
			Stdout: []byte("/var/lib/apt/lists\n"),
		})

		require.NoError(t, r.EnsureAptNotOutdated())
		assert.False(t, mock.ExecutedMatching(`apt-get update`))
	})
}

func TestEnsurePackages(t *testing.T) {
	t.Run("installs only missing packages", func(t *testing.T) {
		r, mock := newTestRunner(t)
		mock.SetCommandResponse(`dpkg -s .*git`, sshtesting.CommandResponse{ExitCode: 1})
		mock.SetCommandResponse(`dpkg -s .*curl`, sshtesting.CommandResponse{ExitCode: 0})

		require.NoError(t, r.EnsurePackages("git", "curl"))
		assert.True(t, mock.ExecutedMatching(`apt-get install -qq -y .*git`))
		assert.False(t, mock.ExecutedMatching(`install.*curl`))
	})

	t.Run("no-op when everything is installed", func(t *testing.T) {
		r, mock := newTestRunner(t)

		require.NoError(t, r.EnsurePackages("git", "curl"))
		assert.False(t, mock.ExecutedMatching(`apt-get install`))
	})
}

func TestEnsureKnownHost(t *testing.T) {
	const key = "github.com ssh-rsa AAAAB3NzaC1yc2EAAAABIwAAAQEA"

	t.Run("creates directory and file on first use", func(t *testing.T) {
		r, mock := newTestRunner(t)

		require.NoError(t, r.EnsureKnownHost(key, ""))

		fs := mock.GetFS()
		assert.True(t, fs.IsDir("/root/.ssh"))
		assert.True(t, fs.IsFile(DefaultKnownHosts))
		assert.True(t, fs.ContainsLine(DefaultKnownHosts, key))
		assert.True(t, mock.ExecutedMatching(`install -d -m700 .*/root/\.ssh`))
	})

	t.Run("idempotent", func(t *testing.T) {
		r, mock := newTestRunner(t)

		require.NoError(t, r.EnsureKnownHost(key, ""))
		require.NoError(t, r.EnsureKnownHost(key, ""))

		content, err := mock.GetFS().ReadFile(DefaultKnownHosts)
		require.NoError(t, err)
		assert.Equal(t, 1, strings.Count(string(content), "github.com"),
			"key should be appended exactly once")
	})

	t.Run("leaves existing directory alone", func(t *testing.T) {
		r, mock := newTestRunner(t)
		require.NoError(t, mock.GetFS().MkdirAll("/root/.ssh"))
		require.NoError(t, mock.GetFS().WriteFile(DefaultKnownHosts, []byte("other.example.com ssh-rsa BBBB\n")))

		require.NoError(t, r.EnsureKnownHost(key, ""))

		assert.False(t, mock.ExecutedMatching(`install -d`))
		assert.False(t, mock.ExecutedMatching(`touch `))
		fs := mock.GetFS()
		assert.True(t, fs.ContainsLine(DefaultKnownHosts, "other.example.com ssh-rsa BBBB"))
		assert.True(t, fs.ContainsLine(DefaultKnownHosts, key))
	})

	t.Run("custom path", func(t *testing.T) {
		r, mock := newTestRunner(t)

		require.NoError(t, r.EnsureKnownHost(key, "/home/deploy/.ssh/known_hosts"))
		assert.True(t, mock.GetFS().ContainsLine("/home/deploy/.ssh/known_hosts", key))
	})

	t.Run("path with spaces", func(t *testing.T) {
		r, mock := newTestRunner(t)

		const path = "/home/my user/.ssh/known_hosts"
		require.NoError(t, r.EnsureKnownHost(key, path))

		fs := mock.GetFS()
		assert.True(t, fs.IsDir("/home/my user/.ssh"))
		assert.True(t, fs.ContainsLine(path, key))
	})
}

func TestEnsureUser(t *testing.T) {
	t.Run("creates missing user", func(t *testing.T) {
		r, mock := newTestRunner(t)

		created, err := r.EnsureUser("app")
		require.NoError(t, err)
		assert.True(t, created)
		assert.True(t, mock.HasUser("app"))
		assert.True(t, mock.ExecutedMatching(`adduser --system --group --disabled-password --quiet app`))
	})

	t.Run("second call is a no-op", func(t *testing.T) {
		r, mock := newTestRunner(t)

		_, err := r.EnsureUser("app")
		require.NoError(t, err)
		created, err := r.EnsureUser("app")
		require.NoError(t, err)
		assert.False(t, created)

		count := 0
		for _, cmd := range mock.Commands() {
			if strings.Contains(cmd, "adduser") {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("existing user skips adduser", func(t *testing.T) {
		r, mock := newTestRunner(t)
		mock.AddUser("postgres")

		created, err := r.EnsureUser("postgres")
		require.NoError(t, err)
		assert.False(t, created)
		assert.False(t, mock.ExecutedMatching(`adduser`))
	})
}

func TestGitClone(t *testing.T) {
	const repo = "git@github.com:example/app.git"
	const workDir = "/srv/app"

	t.Run("fresh clone", func(t *testing.T) {
		r, mock := newTestRunner(t)
		mock.SetCommandResponse(`git describe --always`, sshtesting.CommandResponse{
			Stdout: []byte("abc1234\n"),
		})

		commit, err := r.GitClone(repo, workDir, GitCloneOptions{})
		require.NoError(t, err)
		assert.Equal(t, "abc1234", commit)
		assert.True(t, mock.ExecutedMatching(`SSH_AUTH_SOCK=/tmp/ssh-mock/agent.sock git clone`),
			"clone should re-export the forwarded agent socket under sudo")
	})

	t.Run("existing checkout without force fails", func(t *testing.T) {
		r, mock := newTestRunner(t)
		require.NoError(t, mock.GetFS().MkdirAll(workDir+"/.git"))

		_, err := r.GitClone(repo, workDir, GitCloneOptions{})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrExec))
		assert.Contains(t, err.Error(), "already contains a git checkout")
		assert.False(t, mock.ExecutedMatching(`git clone`))
	})

	t.Run("existing checkout with force updates in place", func(t *testing.T) {
		r, mock := newTestRunner(t)
		require.NoError(t, mock.GetFS().MkdirAll(workDir+"/.git"))
		mock.SetCommandResponse(`git describe --always`, sshtesting.CommandResponse{
			Stdout: []byte("def5678\n"),
		})

		commit, err := r.GitClone(repo, workDir, GitCloneOptions{Force: true})
		require.NoError(t, err)
		assert.Equal(t, "def5678", commit)
		assert.True(t, mock.ExecutedMatching(`SSH_AUTH_SOCK=/tmp/ssh-mock/agent.sock git fetch`))
		assert.True(t, mock.ExecutedMatching(`git reset origin/master`))
		assert.False(t, mock.ExecutedMatching(`git clone`))
	})

	t.Run("tilde work dir stays expandable", func(t *testing.T) {
		r, mock := newTestRunner(t)
		mock.SetCommandResponse(`git describe --always`, sshtesting.CommandResponse{
			Stdout: []byte("abc1234\n"),
		})

		_, err := r.GitClone(repo, "~/apps/site", GitCloneOptions{})
		require.NoError(t, err)
		assert.True(t, mock.ExecutedMatching(`git clone .* ~/`))
		assert.False(t, mock.ExecutedMatching(`'~`),
			"a quoted tilde would never expand on the remote shell")
	})
}

func TestPostgresUser(t *testing.T) {
	t.Run("creates missing role", func(t *testing.T) {
		r, mock := newTestRunner(t)
		mock.SetCommandResponse(`pg_roles`, sshtesting.CommandResponse{})

		created, err := r.EnsurePostgresUser("app")
		require.NoError(t, err)
		assert.True(t, created)
		assert.True(t, mock.ExecutedMatching(`sudo -H -u postgres sh -c 'LC_ALL=C.UTF-8 createuser -DRS app'`))
	})

	t.Run("existing role is a no-op", func(t *testing.T) {
		r, mock := newTestRunner(t)
		mock.SetCommandResponse(`pg_roles`, sshtesting.CommandResponse{
			Stdout: []byte("1\n"),
		})

		created, err := r.EnsurePostgresUser("app")
		require.NoError(t, err)
		assert.False(t, created)
		assert.False(t, mock.ExecutedMatching(`createuser`))
	})

	t.Run("exists probe", func(t *testing.T) {
		r, mock := newTestRunner(t)
		mock.SetCommandResponse(`pg_roles`, sshtesting.CommandResponse{
			Stdout: []byte("1\n"),
		})

		exists, err := r.PostgresUserExists("app")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestPostgresDB(t *testing.T) {
	t.Run("creates missing database", func(t *testing.T) {
		r, mock := newTestRunner(t)
		mock.SetCommandResponse(`pg_database`, sshtesting.CommandResponse{})

		created, err := r.EnsurePostgresDB("app_db", "app")
		require.NoError(t, err)
		assert.True(t, created)
		assert.True(t, mock.ExecutedMatching(`createdb -E utf-8 -T template0 -O app app_db`))
	})

	t.Run("existing database is a no-op", func(t *testing.T) {
		r, mock := newTestRunner(t)
		mock.SetCommandResponse(`pg_database`, sshtesting.CommandResponse{
			Stdout: []byte("1\n"),
		})

		created, err := r.EnsurePostgresDB("app_db", "app")
		require.NoError(t, err)
		assert.False(t, created)
		assert.False(t, mock.ExecutedMatching(`createdb`))
	})
}

func TestChangelog(t *testing.T) {
	t.Run("skips when tool is missing and optional", func(t *testing.T) {
		r, mock := newTestRunner(t)

		recorded, err := r.Changelog("deployed app", ChangelogOptions{Optional: true})
		require.NoError(t, err)
		assert.False(t, recorded)
		// The existence probe mentions the tool path, so anchor on the
		// invocation itself
		assert.False(t, mock.ExecutedMatching(`sh -c 'new-changelog-entry`))
	})

	t.Run("fails when tool is missing and required", func(t *testing.T) {
		r, _ := newTestRunner(t)

		_, err := r.Changelog("deployed app", ChangelogOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "new-changelog-entry")
	})

	t.Run("records a new entry", func(t *testing.T) {
		r, mock := newTestRunner(t)
		require.NoError(t, mock.GetFS().WriteFile(changelogTool, []byte("#!/bin/sh\n")))

		recorded, err := r.Changelog("deployed app v1.2", ChangelogOptions{Optional: true})
		require.NoError(t, err)
		assert.True(t, recorded)
		assert.True(t, mock.ExecutedMatching(`new-changelog-entry .*deployed app v1\.2`))
	})

	t.Run("append flag", func(t *testing.T) {
		r, mock := newTestRunner(t)
		require.NoError(t, mock.GetFS().WriteFile(changelogTool, []byte("#!/bin/sh\n")))

		recorded, err := r.ChangelogAppend("second line")
		require.NoError(t, err)
		assert.True(t, recorded)
		assert.True(t, mock.ExecutedMatching(`new-changelog-entry -a .*second line`))
	})
}

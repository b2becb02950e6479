package testing

import (
	"bytes"
	gotesting "testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapSudo(t *gotesting.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain command", "uname -s", "uname -s"},
		{"bare sudo", "sudo apt-get update -qq", "apt-get update -qq"},
		{"sudo -H sh -c", "sudo -H sh -c 'touch /root/.ssh/known_hosts'", "touch /root/.ssh/known_hosts"},
		{"sudo -H -u user sh -c", "sudo -H -u postgres sh -c 'createuser -DRS app'", "createuser -DRS app"},
		{"escaped quotes", `sudo -H sh -c 'echo '\''hi'\'''`, "echo 'hi'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *gotesting.T) {
			assert.Equal(t, tt.want, unwrapSudo(tt.in))
		})
	}
}

func TestMockClientUsers(t *gotesting.T) {
	m := NewMockClient("testhost")

	_, _, code, err := m.Exec("id deploy")
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	_, _, code, err = m.Exec("sudo -H sh -c 'adduser --system --group --disabled-password --quiet deploy'")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.True(t, m.HasUser("deploy"))

	out, _, code, err := m.Exec("id deploy")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, string(out), "deploy")
}

func TestMockClientAppendIfMissing(t *gotesting.T) {
	m := NewMockClient("testhost")
	cmd := "sudo -H sh -c 'grep -qxF '\\''github.com ssh-rsa AAAA'\\'' /root/.ssh/known_hosts || echo '\\''github.com ssh-rsa AAAA'\\'' >> /root/.ssh/known_hosts'"

	_, _, code, err := m.Exec(cmd)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.True(t, m.GetFS().ContainsLine("/root/.ssh/known_hosts", "github.com ssh-rsa AAAA"))

	// Second run must not duplicate the line
	_, _, _, err = m.Exec(cmd)
	require.NoError(t, err)
	content, err := m.GetFS().ReadFile("/root/.ssh/known_hosts")
	require.NoError(t, err)
	assert.Equal(t, "github.com ssh-rsa AAAA\n", string(content))
}

func TestMockClientAppendIfMissingQuotedFile(t *gotesting.T) {
	m := NewMockClient("testhost")
	cmd := "sudo -H sh -c 'grep -qxF '\\''example.com ssh-rsa BBBB'\\'' '\\''/home/my user/.ssh/known_hosts'\\'' || echo '\\''example.com ssh-rsa BBBB'\\'' >> '\\''/home/my user/.ssh/known_hosts'\\'''"

	_, _, code, err := m.Exec(cmd)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.True(t, m.GetFS().ContainsLine("/home/my user/.ssh/known_hosts", "example.com ssh-rsa BBBB"))
}

func TestMockClientQuotedInstallAndTouch(t *gotesting.T) {
	m := NewMockClient("testhost")

	_, _, code, _ := m.Exec("sudo -H sh -c 'install -d -m700 '\\''/home/my user/.ssh'\\'''")
	assert.Equal(t, 0, code)
	assert.True(t, m.GetFS().IsDir("/home/my user/.ssh"))

	_, _, code, _ = m.Exec("sudo -H sh -c 'touch '\\''/home/my user/.ssh/known_hosts'\\'''")
	assert.Equal(t, 0, code)
	assert.True(t, m.GetFS().IsFile("/home/my user/.ssh/known_hosts"))
}

func TestMockClientFilesystem(t *gotesting.T) {
	m := NewMockClient("testhost")

	_, _, code, _ := m.Exec("test -e /root/.ssh/known_hosts")
	assert.Equal(t, 1, code)

	_, _, code, _ = m.Exec("sudo -H sh -c 'install -d -m700 /root/.ssh'")
	assert.Equal(t, 0, code)

	_, _, code, _ = m.Exec("sudo -H sh -c 'touch /root/.ssh/known_hosts'")
	assert.Equal(t, 0, code)

	_, _, code, _ = m.Exec("test -e /root/.ssh/known_hosts")
	assert.Equal(t, 0, code)
	assert.True(t, m.GetFS().IsDir("/root/.ssh"))
}

func TestMockClientCannedResponses(t *gotesting.T) {
	m := NewMockClient("testhost")
	m.SetCommandResponse(`psql -tAc`, CommandResponse{Stdout: []byte("1\n")})

	out, _, code, err := m.Exec(`sudo -H -u postgres sh -c 'psql -tAc "SELECT 1 FROM pg_roles WHERE rolname = '\''app'\''"'`)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "1\n", string(out))
}

func TestMockClientHistory(t *gotesting.T) {
	m := NewMockClient("testhost")
	m.Exec("uname -s")
	m.Exec("id deploy")

	assert.Len(t, m.Commands(), 2)
	assert.True(t, m.ExecutedMatching(`^id `))
	assert.False(t, m.ExecutedMatching(`apt-get`))
}

func TestMockClientExecStream(t *gotesting.T) {
	m := NewMockClient("testhost")

	var stdout, stderr bytes.Buffer
	code, err := m.ExecStream("uname -s", &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "Linux\n", stdout.String())
}

func TestMockClientClosed(t *gotesting.T) {
	m := NewMockClient("testhost")
	require.NoError(t, m.Close())

	_, _, code, err := m.Exec("uname")
	assert.Error(t, err)
	assert.Equal(t, -1, code)

	_, err = m.NewSession()
	assert.Error(t, err)
}

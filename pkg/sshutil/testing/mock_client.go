package testing

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/sirex/upkeep/pkg/sshutil"
)

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error
}

// MockClient simulates an SSH connection to an Ubuntu host for testing.
// It parses common shell commands and executes them against a virtual
// filesystem and user table. Commands wrapped in `sudo ... sh -c '...'`
// are unwrapped before parsing, so provisioning helpers can be tested
// without a real host.
type MockClient struct {
	mu       sync.Mutex
	host     string
	address  string
	fs       *MockFS
	users    map[string]struct{}
	closed   bool
	commands map[string]CommandResponse // pattern -> response
	history  []string
}

// NewMockClient creates a new mock SSH client with an empty filesystem.
func NewMockClient(host string) *MockClient {
	return &MockClient{
		host:     host,
		address:  host + ":22",
		fs:       NewMockFS(),
		users:    make(map[string]struct{}),
		commands: make(map[string]CommandResponse),
	}
}

// Exec runs a command against the virtual host.
// Canned responses registered with SetCommandResponse take precedence;
// otherwise common shell commands (mkdir, install, touch, cat, rm, test,
// grep-append, id, adduser, uname, echo) are interpreted directly.
func (m *MockClient) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, -1, errors.New("connection closed")
	}

	m.history = append(m.history, cmd)

	// Exact command matches first
	if resp, ok := m.commands[cmd]; ok {
		return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
	}

	// Then pattern matches
	for pattern, resp := range m.commands {
		if matched, _ := regexp.MatchString(pattern, cmd); matched {
			return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
		}
	}

	return m.parseAndExecute(unwrapSudo(cmd))
}

// ExecStream runs a command and writes output to the provided writers.
func (m *MockClient) ExecStream(cmd string, stdout, stderr io.Writer) (exitCode int, err error) {
	out, errOut, code, execErr := m.Exec(cmd)
	if execErr != nil {
		return -1, execErr
	}

	if stdout != nil && len(out) > 0 {
		stdout.Write(out)
	}
	if stderr != nil && len(errOut) > 0 {
		stderr.Write(errOut)
	}

	return code, nil
}

// Close marks the connection as closed.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetHost returns the host name.
func (m *MockClient) GetHost() string {
	return m.host
}

// GetAddress returns the host:port address.
func (m *MockClient) GetAddress() string {
	return m.address
}

// SetCommandResponse registers a canned response for a command pattern.
// The pattern can be an exact string or a regex pattern.
func (m *MockClient) SetCommandResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[pattern] = resp
}

// GetFS returns the mock filesystem for direct manipulation in tests.
func (m *MockClient) GetFS() *MockFS {
	return m.fs
}

// AddUser registers a user so that `id <user>` succeeds.
func (m *MockClient) AddUser(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[name] = struct{}{}
}

// HasUser reports whether a user exists on the virtual host.
func (m *MockClient) HasUser(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[name]
	return ok
}

// Commands returns all commands executed so far, in order.
func (m *MockClient) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.history))
	copy(out, m.history)
	return out
}

// ExecutedMatching reports whether any executed command matches the regex pattern.
func (m *MockClient) ExecutedMatching(pattern string) bool {
	re := regexp.MustCompile(pattern)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cmd := range m.history {
		if re.MatchString(cmd) {
			return true
		}
	}
	return false
}

// mockSession is a minimal session that just closes.
type mockSession struct{}

func (s *mockSession) Close() error { return nil }

// NewSession creates a mock session for liveness checks.
func (m *MockClient) NewSession() (sshutil.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.New("connection closed")
	}
	return &mockSession{}, nil
}

// SendRequest simulates sending a global request on the SSH connection.
// Used for lightweight connection liveness checks.
func (m *MockClient) SendRequest(name string, wantReply bool, payload []byte) (bool, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, nil, errors.New("connection closed")
	}
	return true, nil, nil
}

// unwrapSudo strips `sudo [-H] [-u user] sh -c '...'` wrappers, returning the
// inner command with shell quoting reversed. Plain sudo prefixes are stripped
// too. Non-sudo commands are returned unchanged.
func unwrapSudo(cmd string) string {
	trimmed := strings.TrimSpace(cmd)
	if !strings.HasPrefix(trimmed, "sudo ") {
		return trimmed
	}

	rest := strings.TrimPrefix(trimmed, "sudo ")
	for stripped := true; stripped; {
		stripped = false
		for _, flag := range []string{"-H ", "-n "} {
			if strings.HasPrefix(rest, flag) {
				rest = strings.TrimPrefix(rest, flag)
				stripped = true
			}
		}
		if strings.HasPrefix(rest, "-u ") {
			// Skip "-u <user> "
			rest = strings.TrimPrefix(rest, "-u ")
			if idx := strings.Index(rest, " "); idx != -1 {
				rest = rest[idx+1:]
			}
			stripped = true
		}
	}
	if strings.HasPrefix(rest, "sh -c ") {
		return unquoteShell(strings.TrimPrefix(rest, "sh -c "))
	}
	return rest
}

// unquoteShell reverses single-quote shell quoting produced by util.ShellQuote.
func unquoteShell(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "'") || !strings.HasSuffix(s, "'") || len(s) < 2 {
		return s
	}
	inner := s[1 : len(s)-1]
	return strings.ReplaceAll(inner, `'\''`, "'")
}

// appendIfMissingRe matches the append-line-if-missing idiom, with the
// target file either bare or single-quoted:
//
//	grep -qxF 'line' file || echo 'line' >> file
var appendIfMissingRe = regexp.MustCompile(`^grep -qxF '(.*)' ('[^']*'|\S+) \|\| echo '(.*)' >> ('[^']*'|\S+)$`)

// parseAndExecute handles common shell commands issued by the provisioning helpers.
func (m *MockClient) parseAndExecute(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	// Strip common redirects
	cmd = strings.TrimSuffix(cmd, " 2>/dev/null")
	cmd = strings.TrimSuffix(cmd, " 2>&1")
	cmd = strings.TrimSpace(cmd)

	if match := appendIfMissingRe.FindStringSubmatch(cmd); match != nil {
		return m.handleAppendLine(match[1], extractPath(match[2]))
	}

	switch {
	case strings.HasPrefix(cmd, "mkdir "):
		return m.handleMkdir(cmd)
	case strings.HasPrefix(cmd, "install -d "):
		return m.handleInstallDir(cmd)
	case strings.HasPrefix(cmd, "touch "):
		return m.handleTouch(cmd)
	case strings.HasPrefix(cmd, "cat "):
		return m.handleCatRead(cmd)
	case strings.HasPrefix(cmd, "rm -rf "):
		return m.handleRm(cmd)
	case strings.HasPrefix(cmd, "test -d "):
		return m.handleTest(strings.TrimPrefix(cmd, "test -d "), m.fs.IsDir)
	case strings.HasPrefix(cmd, "test -f "):
		return m.handleTest(strings.TrimPrefix(cmd, "test -f "), m.fs.IsFile)
	case strings.HasPrefix(cmd, "test -e "):
		return m.handleTest(strings.TrimPrefix(cmd, "test -e "), m.fs.Exists)
	case strings.HasPrefix(cmd, "id "):
		return m.handleID(cmd)
	case strings.HasPrefix(cmd, "adduser "):
		return m.handleAdduser(cmd)
	case strings.HasPrefix(cmd, "which "):
		return m.handleWhich(cmd)
	case strings.HasPrefix(cmd, "uname"):
		return m.handleUname(cmd)
	case cmd == "echo $SSH_AUTH_SOCK":
		return []byte("/tmp/ssh-mock/agent.sock\n"), nil, 0, nil
	}

	// Unknown command - succeed by default
	return nil, nil, 0, nil
}

func (m *MockClient) handleAppendLine(line, path string) ([]byte, []byte, int, error) {
	if m.fs.ContainsLine(path, line) {
		return nil, nil, 0, nil
	}
	_ = m.fs.AppendFile(path, line)
	return nil, nil, 0, nil
}

// handleMkdir processes: mkdir [-p] path
func (m *MockClient) handleMkdir(cmd string) ([]byte, []byte, int, error) {
	args := strings.TrimSpace(strings.TrimPrefix(cmd, "mkdir "))

	createParents := false
	if strings.HasPrefix(args, "-p ") {
		createParents = true
		args = strings.TrimSpace(strings.TrimPrefix(args, "-p "))
	}

	path := extractPath(args)
	if path == "" {
		return nil, []byte("mkdir: missing operand"), 1, nil
	}

	if createParents {
		if err := m.fs.MkdirAll(path); err != nil {
			return nil, []byte("mkdir: cannot create directory: " + err.Error()), 1, nil
		}
		return nil, nil, 0, nil
	}

	// Regular mkdir requires the parent to exist
	parent := filepath.Dir(path)
	if parent != "" && parent != "/" && parent != "." {
		if !m.fs.IsDir(parent) {
			return nil, []byte(fmt.Sprintf("mkdir: cannot create directory '%s': No such file or directory", path)), 1, nil
		}
	}

	if err := m.fs.Mkdir(path); err != nil {
		return nil, []byte("mkdir: cannot create directory: " + err.Error()), 1, nil
	}
	return nil, nil, 0, nil
}

// handleInstallDir processes: install -d [-m NNN] path
// The path may be quoted (and contain spaces), so mode flags are peeled off
// the front instead of splitting on whitespace.
func (m *MockClient) handleInstallDir(cmd string) ([]byte, []byte, int, error) {
	args := strings.TrimSpace(strings.TrimPrefix(cmd, "install -d "))
	for strings.HasPrefix(args, "-m") {
		rest := strings.TrimPrefix(args, "-m")
		rest = strings.TrimSpace(rest)
		if strings.HasPrefix(args, "-m ") {
			// Separate "-m NNN" form: drop the mode value too
			if idx := strings.Index(rest, " "); idx != -1 {
				rest = strings.TrimSpace(rest[idx+1:])
			} else {
				rest = ""
			}
		} else if idx := strings.Index(rest, " "); idx != -1 {
			// Attached "-mNNN" form
			rest = strings.TrimSpace(rest[idx+1:])
		} else {
			rest = ""
		}
		args = rest
	}
	path := extractPath(args)
	if path == "" {
		return nil, []byte("install: missing directory operand"), 1, nil
	}
	_ = m.fs.MkdirAll(path)
	return nil, nil, 0, nil
}

// handleTouch processes: touch path
func (m *MockClient) handleTouch(cmd string) ([]byte, []byte, int, error) {
	path := extractPath(strings.TrimPrefix(cmd, "touch "))
	if path == "" {
		return nil, []byte("touch: missing file operand"), 1, nil
	}
	if !m.fs.IsFile(path) {
		_ = m.fs.WriteFile(path, nil)
	}
	return nil, nil, 0, nil
}

// handleCatRead processes: cat path
func (m *MockClient) handleCatRead(cmd string) ([]byte, []byte, int, error) {
	path := extractPath(strings.TrimPrefix(cmd, "cat "))
	if path == "" {
		return nil, []byte("cat: missing file operand"), 1, nil
	}

	content, err := m.fs.ReadFile(path)
	if err != nil {
		return nil, []byte("cat: " + path + ": No such file or directory"), 1, nil
	}
	return content, nil, 0, nil
}

// handleRm processes: rm -rf path
func (m *MockClient) handleRm(cmd string) ([]byte, []byte, int, error) {
	path := extractPath(strings.TrimPrefix(cmd, "rm -rf "))
	if path == "" {
		return nil, []byte("rm: missing operand"), 1, nil
	}

	_ = m.fs.Remove(path)
	return nil, nil, 0, nil
}

// handleTest evaluates a test predicate against the virtual filesystem.
func (m *MockClient) handleTest(arg string, pred func(string) bool) ([]byte, []byte, int, error) {
	if pred(extractPath(arg)) {
		return nil, nil, 0, nil
	}
	return nil, nil, 1, nil
}

// handleID processes: id <user>
func (m *MockClient) handleID(cmd string) ([]byte, []byte, int, error) {
	user := strings.TrimSpace(strings.TrimPrefix(cmd, "id "))
	if _, ok := m.users[user]; ok {
		out := fmt.Sprintf("uid=999(%s) gid=999(%s) groups=999(%s)\n", user, user, user)
		return []byte(out), nil, 0, nil
	}
	return nil, []byte(fmt.Sprintf("id: '%s': no such user", user)), 1, nil
}

// handleAdduser processes: adduser [flags] <user>
func (m *MockClient) handleAdduser(cmd string) ([]byte, []byte, int, error) {
	fields := strings.Fields(cmd)
	if len(fields) < 2 {
		return nil, []byte("adduser: missing user name"), 1, nil
	}
	user := fields[len(fields)-1]
	if _, ok := m.users[user]; ok {
		return nil, []byte(fmt.Sprintf("adduser: The user `%s' already exists.", user)), 1, nil
	}
	m.users[user] = struct{}{}
	return nil, nil, 0, nil
}

// handleWhich processes: which <command>
func (m *MockClient) handleWhich(cmd string) ([]byte, []byte, int, error) {
	cmdName := strings.TrimSpace(strings.TrimPrefix(cmd, "which "))

	knownCommands := map[string]string{
		"bash":  "/bin/bash",
		"sh":    "/bin/sh",
		"cat":   "/bin/cat",
		"mkdir": "/bin/mkdir",
		"rm":    "/bin/rm",
		"git":   "/usr/bin/git",
	}

	if path, ok := knownCommands[cmdName]; ok {
		return []byte(path + "\n"), nil, 0, nil
	}

	return nil, nil, 1, nil
}

// handleUname processes: uname [-s|-r|-a]
func (m *MockClient) handleUname(cmd string) ([]byte, []byte, int, error) {
	if strings.Contains(cmd, "-r") {
		return []byte("5.15.0-generic\n"), nil, 0, nil
	}
	if strings.Contains(cmd, "-a") {
		return []byte("Linux mockhost 5.15.0-generic #1 SMP x86_64 GNU/Linux\n"), nil, 0, nil
	}
	return []byte("Linux\n"), nil, 0, nil
}

// extractPath extracts a path from a command argument.
// Handles both quoted and unquoted paths.
func extractPath(arg string) string {
	arg = strings.TrimSpace(arg)

	if strings.HasPrefix(arg, "\"") {
		endQuote := strings.Index(arg[1:], "\"")
		if endQuote != -1 {
			return arg[1 : endQuote+1]
		}
	}
	if strings.HasPrefix(arg, "'") {
		endQuote := strings.Index(arg[1:], "'")
		if endQuote != -1 {
			return arg[1 : endQuote+1]
		}
	}

	parts := strings.Fields(arg)
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}

// Package remote implements idempotent provisioning helpers for Ubuntu
// hosts reached over SSH. Every helper follows the same contract: check
// whether the desired state already holds, apply the change only when it
// doesn't, so running a helper twice is safe.
package remote

import (
	"fmt"
	"strings"

	"github.com/sirex/upkeep/internal/errors"
	"github.com/sirex/upkeep/internal/logger"
	"github.com/sirex/upkeep/internal/util"
	"github.com/sirex/upkeep/pkg/sshutil"
)

// Result holds the output of a remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Out returns stdout with surrounding whitespace trimmed.
func (r Result) Out() string {
	return strings.TrimSpace(r.Stdout)
}

// Ok reports whether the command exited zero.
func (r Result) Ok() bool {
	return r.ExitCode == 0
}

// Runner executes provisioning commands on one host.
type Runner struct {
	client sshutil.SSHClient
	log    logger.Logger
}

// NewRunner wraps an SSH client in a Runner.
func NewRunner(client sshutil.SSHClient) *Runner {
	return &Runner{
		client: client,
		log:    logger.Default(),
	}
}

// WithLogger returns a copy of the runner that logs through l.
func (r *Runner) WithLogger(l logger.Logger) *Runner {
	return &Runner{client: r.client, log: l}
}

// Host returns the host this runner targets.
func (r *Runner) Host() string {
	return r.client.GetHost()
}

// Run executes a command as the connecting user.
func (r *Runner) Run(cmd string) (Result, error) {
	return r.exec(cmd)
}

// Sudo executes a command as root through `sudo -H sh -c '...'`.
// The -H flag keeps HOME pointing at root's home so tools like git
// don't write into the connecting user's directory.
func (r *Runner) Sudo(cmd string) (Result, error) {
	return r.exec("sudo -H sh -c " + util.ShellQuote(cmd))
}

// SudoAs executes a command as the given user through sudo.
func (r *Runner) SudoAs(user, cmd string) (Result, error) {
	return r.exec(fmt.Sprintf("sudo -H -u %s sh -c %s", user, util.ShellQuote(cmd)))
}

func (r *Runner) exec(cmd string) (Result, error) {
	r.log.Debug("[%s] $ %s", r.client.GetHost(), cmd)

	stdout, stderr, code, err := r.client.Exec(cmd)
	if err != nil {
		return Result{ExitCode: -1}, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Failed to run command on %s", r.client.GetHost()),
			"Check that the SSH connection is still alive.")
	}

	res := Result{
		Stdout:   string(stdout),
		Stderr:   string(stderr),
		ExitCode: code,
	}
	if code != 0 {
		r.log.Debug("[%s] exit %d: %s", r.client.GetHost(), code, strings.TrimSpace(res.Stderr))
	}
	return res, nil
}

// mustSucceed turns a non-zero exit into an execution error.
func (r *Runner) mustSucceed(res Result, what string) error {
	if res.Ok() {
		return nil
	}
	detail := strings.TrimSpace(res.Stderr)
	if detail == "" {
		detail = res.Out()
	}
	msg := fmt.Sprintf("%s failed on %s (exit %d)", what, r.client.GetHost(), res.ExitCode)
	if detail != "" {
		msg += ": " + detail
	}
	return errors.New(errors.ErrExec, msg,
		"Re-run with UPKEEP_DEBUG=1 to see the commands being executed.")
}

// exists reports whether a path exists on the host, checked as root.
func (r *Runner) exists(path string) (bool, error) {
	res, err := r.Sudo("test -e " + util.ShellQuote(path))
	if err != nil {
		return false, err
	}
	return res.Ok(), nil
}

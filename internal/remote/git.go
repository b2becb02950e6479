package remote

import (
	"fmt"
	"path"

	"github.com/sirex/upkeep/internal/errors"
	"github.com/sirex/upkeep/internal/util"
)

// GitCloneOptions controls GitClone behavior.
type GitCloneOptions struct {
	// Force updates an existing checkout with fetch + reset instead of
	// refusing to touch it.
	Force bool
}

// GitClone clones repo into workDir as root and returns the checked-out
// commit (git describe --always).
//
// When workDir already holds a checkout: with Force the checkout is updated
// via `git fetch` and `git reset origin/master`, without Force the call
// fails so an unexpected existing tree is never clobbered.
//
// sudo strips SSH_AUTH_SOCK from the environment, which would break agent
// forwarding for private repositories. The socket path is read as the
// connecting user and re-exported inside the sudo shell; root can open the
// socket, so forwarding keeps working.
func (r *Runner) GitClone(repo, workDir string, opts GitCloneOptions) (string, error) {
	sockRes, err := r.Run("echo $SSH_AUTH_SOCK")
	if err != nil {
		return "", err
	}
	authSock := sockRes.Out()

	checkoutRes, err := r.Sudo("test -d " + util.ShellQuotePreserveTilde(path.Join(workDir, ".git")))
	if err != nil {
		return "", err
	}

	switch {
	case checkoutRes.Ok() && opts.Force:
		res, err := r.Sudo(fmt.Sprintf("cd %s && SSH_AUTH_SOCK=%s git fetch",
			util.ShellQuotePreserveTilde(workDir), authSock))
		if err != nil {
			return "", err
		}
		if err := r.mustSucceed(res, "git fetch in "+workDir); err != nil {
			return "", err
		}
		res, err = r.Sudo(fmt.Sprintf("cd %s && git reset origin/master", util.ShellQuotePreserveTilde(workDir)))
		if err != nil {
			return "", err
		}
		if err := r.mustSucceed(res, "git reset in "+workDir); err != nil {
			return "", err
		}

	case checkoutRes.Ok():
		return "", errors.New(errors.ErrExec,
			fmt.Sprintf("%s already contains a git checkout", workDir),
			"Pass force to update the existing checkout in place.")

	default:
		res, err := r.Sudo(fmt.Sprintf("SSH_AUTH_SOCK=%s git clone %s %s",
			authSock, util.ShellQuote(repo), util.ShellQuotePreserveTilde(workDir)))
		if err != nil {
			return "", err
		}
		if err := r.mustSucceed(res, "git clone "+repo); err != nil {
			return "", err
		}
	}

	res, err := r.Sudo(fmt.Sprintf("cd %s && git describe --always", util.ShellQuotePreserveTilde(workDir)))
	if err != nil {
		return "", err
	}
	if err := r.mustSucceed(res, "git describe in "+workDir); err != nil {
		return "", err
	}
	return res.Out(), nil
}

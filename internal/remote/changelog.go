package remote

import (
	"github.com/sirex/upkeep/internal/errors"
	"github.com/sirex/upkeep/internal/util"
)

// changelogTool is the pov-admin-tools entry point for /root/Changelog.
const changelogTool = "/usr/sbin/new-changelog-entry"

// ChangelogOptions controls Changelog behavior.
type ChangelogOptions struct {
	// Append adds to the latest entry instead of starting a new
	// timestamped one.
	Append bool

	// Optional skips silently when the changelog tool isn't installed.
	// When false, a missing tool is an error.
	Optional bool
}

// Changelog records a message in /root/Changelog via new-changelog-entry.
// Returns true when the message was recorded, false when the tool is
// missing and opts.Optional allows skipping.
func (r *Runner) Changelog(message string, opts ChangelogOptions) (bool, error) {
	installed, err := r.exists(changelogTool)
	if err != nil {
		return false, err
	}
	if !installed {
		if opts.Optional {
			r.log.Debug("[%s] %s not installed, skipping changelog entry", r.Host(), changelogTool)
			return false, nil
		}
		return false, errors.New(errors.ErrExec,
			changelogTool+" is not installed on "+r.Host(),
			"Install pov-admin-tools, or mark the changelog entry optional.")
	}

	cmd := "new-changelog-entry"
	if opts.Append {
		cmd += " -a"
	}
	cmd += " " + util.ShellQuote(message)

	res, err := r.Sudo(cmd)
	if err != nil {
		return false, err
	}
	if err := r.mustSucceed(res, "recording changelog entry"); err != nil {
		return false, err
	}
	return true, nil
}

// ChangelogAppend appends a message to the latest changelog entry.
// Shortcut for Changelog with Append and Optional set.
func (r *Runner) ChangelogAppend(message string) (bool, error) {
	return r.Changelog(message, ChangelogOptions{Append: true, Optional: true})
}

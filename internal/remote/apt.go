package remote

import (
	"strings"

	"github.com/sirex/upkeep/internal/util"
)

// EnsureAptNotOutdated refreshes the apt package lists when they are more
// than a day old. Fresh lists make the call a no-op.
func (r *Runner) EnsureAptNotOutdated() error {
	// find prints the directory only when its mtime is within the last day
	res, err := r.Sudo("find /var/lib/apt/lists -maxdepth 0 -mtime -1")
	if err != nil {
		return err
	}
	if res.Out() != "" {
		r.log.Debug("[%s] apt lists are fresh, skipping update", r.Host())
		return nil
	}

	res, err = r.Sudo("apt-get update -qq")
	if err != nil {
		return err
	}
	return r.mustSucceed(res, "apt-get update")
}

// EnsurePackages installs any of the named packages that are missing.
// Already-installed packages are left alone.
func (r *Runner) EnsurePackages(packages ...string) error {
	var missing []string
	for _, pkg := range packages {
		res, err := r.Sudo("dpkg -s " + util.ShellQuote(pkg) + " >/dev/null 2>&1")
		if err != nil {
			return err
		}
		if !res.Ok() {
			missing = append(missing, pkg)
		}
	}

	if len(missing) == 0 {
		r.log.Debug("[%s] all %d packages already installed", r.Host(), len(packages))
		return nil
	}

	res, err := r.Sudo("apt-get install -qq -y " + util.ShellQuoteAll(missing))
	if err != nil {
		return err
	}
	return r.mustSucceed(res, "apt-get install "+strings.Join(missing, " "))
}

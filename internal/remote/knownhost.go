package remote

import (
	"path"

	"github.com/sirex/upkeep/internal/util"
)

// DefaultKnownHosts is where root's SSH known hosts live.
const DefaultKnownHosts = "/root/.ssh/known_hosts"

// EnsureKnownHost makes sure hostKey is present in the known_hosts file,
// creating the file and its directory (mode 700) when missing. The key is
// appended only if no identical line exists, so repeated calls don't grow
// the file. An empty knownHosts path means DefaultKnownHosts.
func (r *Runner) EnsureKnownHost(hostKey, knownHosts string) error {
	if knownHosts == "" {
		knownHosts = DefaultKnownHosts
	}

	fileExists, err := r.exists(knownHosts)
	if err != nil {
		return err
	}
	if !fileExists {
		dir := path.Dir(knownHosts)
		dirExists, err := r.exists(dir)
		if err != nil {
			return err
		}
		if !dirExists {
			res, err := r.Sudo("install -d -m700 " + util.ShellQuote(dir))
			if err != nil {
				return err
			}
			if err := r.mustSucceed(res, "creating "+dir); err != nil {
				return err
			}
		}
		res, err := r.Sudo("touch " + util.ShellQuote(knownHosts))
		if err != nil {
			return err
		}
		if err := r.mustSucceed(res, "creating "+knownHosts); err != nil {
			return err
		}
	}

	quoted := util.ShellQuote(hostKey)
	quotedPath := util.ShellQuote(knownHosts)
	res, err := r.Sudo("grep -qxF " + quoted + " " + quotedPath + " || echo " + quoted + " >> " + quotedPath)
	if err != nil {
		return err
	}
	return r.mustSucceed(res, "appending host key to "+knownHosts)
}

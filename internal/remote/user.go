package remote

// EnsureUser creates a system user (with a matching group, no password)
// unless it already exists. Returns true when the user was created.
func (r *Runner) EnsureUser(user string) (bool, error) {
	res, err := r.Run("id " + user)
	if err != nil {
		return false, err
	}
	if res.Ok() {
		r.log.Debug("[%s] user %s already exists", r.Host(), user)
		return false, nil
	}

	res, err = r.Sudo("adduser --system --group --disabled-password --quiet " + user)
	if err != nil {
		return false, err
	}
	if err := r.mustSucceed(res, "adduser "+user); err != nil {
		return false, err
	}
	return true, nil
}

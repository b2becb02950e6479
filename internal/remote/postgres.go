package remote

import "fmt"

// PostgresUserExists checks whether a PostgreSQL role exists.
func (r *Runner) PostgresUserExists(user string) (bool, error) {
	res, err := r.SudoAs("postgres",
		fmt.Sprintf(`psql -tAc "SELECT 1 FROM pg_roles WHERE rolname = '%s'"`, user))
	if err != nil {
		return false, err
	}
	if err := r.mustSucceed(res, "querying pg_roles"); err != nil {
		return false, err
	}
	return res.Out() != "", nil
}

// EnsurePostgresUser creates a PostgreSQL role (no createdb, no createrole,
// not superuser) unless it already exists. Returns true when created.
func (r *Runner) EnsurePostgresUser(user string) (bool, error) {
	exists, err := r.PostgresUserExists(user)
	if err != nil {
		return false, err
	}
	if exists {
		r.log.Debug("[%s] postgres role %s already exists", r.Host(), user)
		return false, nil
	}

	res, err := r.SudoAs("postgres", "LC_ALL=C.UTF-8 createuser -DRS "+user)
	if err != nil {
		return false, err
	}
	if err := r.mustSucceed(res, "createuser "+user); err != nil {
		return false, err
	}
	return true, nil
}

// PostgresDBExists checks whether a PostgreSQL database exists.
func (r *Runner) PostgresDBExists(dbname string) (bool, error) {
	res, err := r.SudoAs("postgres",
		fmt.Sprintf(`psql -tAc "SELECT 1 FROM pg_database WHERE datname = '%s'"`, dbname))
	if err != nil {
		return false, err
	}
	if err := r.mustSucceed(res, "querying pg_database"); err != nil {
		return false, err
	}
	return res.Out() != "", nil
}

// EnsurePostgresDB creates a UTF-8 database owned by owner unless it
// already exists. template0 sidesteps encoding mismatches with the cluster
// default template. Returns true when created.
func (r *Runner) EnsurePostgresDB(dbname, owner string) (bool, error) {
	exists, err := r.PostgresDBExists(dbname)
	if err != nil {
		return false, err
	}
	if exists {
		r.log.Debug("[%s] postgres database %s already exists", r.Host(), dbname)
		return false, nil
	}

	res, err := r.SudoAs("postgres",
		fmt.Sprintf("LC_ALL=C.UTF-8 createdb -E utf-8 -T template0 -O %s %s", owner, dbname))
	if err != nil {
		return false, err
	}
	if err := r.mustSucceed(res, "createdb "+dbname); err != nil {
		return false, err
	}
	return true, nil
}

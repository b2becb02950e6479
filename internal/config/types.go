package config

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete .upkeep.yaml configuration file.
type Config struct {
	Version   int                       `yaml:"version" mapstructure:"version"`
	Instances map[string]InstanceConfig `yaml:"instances" mapstructure:"instances"`
	Aliases   map[string]string         `yaml:"aliases,omitempty" mapstructure:"aliases"`
	Default   string                    `yaml:"default,omitempty" mapstructure:"default"`
	Tasks     map[string]TaskConfig     `yaml:"tasks" mapstructure:"tasks"`
}

// InstanceConfig defines a deployment target and its connection settings.
type InstanceConfig struct {
	// SSH connection strings, tried in order until one succeeds.
	// Can be: hostname, user@hostname, or SSH config alias.
	SSH []string `yaml:"ssh" mapstructure:"ssh"`

	// Dir is the working directory on the target where task commands run.
	// Supports variable expansion: ${USER}, ${HOME}, ${INSTANCE}.
	Dir string `yaml:"dir,omitempty" mapstructure:"dir"`

	// Params are free-form settings tasks can reference (database name,
	// checkout branch, and the like).
	Params map[string]string `yaml:"params,omitempty" mapstructure:"params"`

	// Tags for grouping instances.
	Tags []string `yaml:"tags,omitempty" mapstructure:"tags"`
}

// TaskConfig defines a named task.
type TaskConfig struct {
	// Description shown in 'upkeep tasks'.
	Description string `yaml:"description,omitempty" mapstructure:"description"`

	// Run is the command to execute (for simple single-command tasks).
	Run string `yaml:"run,omitempty" mapstructure:"run"`

	// Steps for multi-step tasks (mutually exclusive with Run).
	Steps []TaskStep `yaml:"steps,omitempty" mapstructure:"steps"`

	// Env contains environment variables for this task's commands.
	Env map[string]string `yaml:"env,omitempty" mapstructure:"env"`

	// Changelog is a message recorded in /root/Changelog after the task
	// succeeds. Skipped silently when pov-admin-tools isn't installed.
	Changelog string `yaml:"changelog,omitempty" mapstructure:"changelog"`
}

// TaskStep is a single step in a multi-step task. Exactly one action field
// must be set per step.
type TaskStep struct {
	// Name identifies this step in output.
	Name string `yaml:"name,omitempty" mapstructure:"name"`

	// OnFail controls behavior when the step fails: "stop" (default) or
	// "continue".
	OnFail string `yaml:"on_fail,omitempty" mapstructure:"on_fail"`

	// Run executes a raw command in the instance directory.
	Run string `yaml:"run,omitempty" mapstructure:"run"`

	// AptUpdate refreshes apt lists when they are more than a day old.
	AptUpdate bool `yaml:"apt_update,omitempty" mapstructure:"apt_update"`

	// Packages installs the listed apt packages if missing.
	Packages []string `yaml:"packages,omitempty" mapstructure:"packages"`

	// User creates a system user if missing.
	User string `yaml:"user,omitempty" mapstructure:"user"`

	// KnownHost adds an SSH host key to root's known_hosts.
	KnownHost *KnownHostStep `yaml:"known_host,omitempty" mapstructure:"known_host"`

	// Git clones or updates a checkout.
	Git *GitStep `yaml:"git,omitempty" mapstructure:"git"`

	// PostgresUser creates a PostgreSQL role if missing.
	PostgresUser string `yaml:"postgres_user,omitempty" mapstructure:"postgres_user"`

	// PostgresDB creates a PostgreSQL database if missing.
	PostgresDB *PostgresDBStep `yaml:"postgres_db,omitempty" mapstructure:"postgres_db"`

	// Changelog records a message in /root/Changelog.
	Changelog string `yaml:"changelog,omitempty" mapstructure:"changelog"`
}

// KnownHostStep configures an SSH host key installation.
type KnownHostStep struct {
	// Key is the full known_hosts line ("host keytype base64key").
	Key string `yaml:"key" mapstructure:"key"`

	// Path overrides the default /root/.ssh/known_hosts.
	Path string `yaml:"path,omitempty" mapstructure:"path"`
}

// GitStep configures a repository checkout.
type GitStep struct {
	// Repo is the clone URL.
	Repo string `yaml:"repo" mapstructure:"repo"`

	// Dir is the checkout directory. Defaults to the instance dir.
	Dir string `yaml:"dir,omitempty" mapstructure:"dir"`

	// Force updates an existing checkout with fetch + reset.
	Force bool `yaml:"force,omitempty" mapstructure:"force"`
}

// PostgresDBStep configures a database creation.
type PostgresDBStep struct {
	// Name of the database.
	Name string `yaml:"name,omitempty" mapstructure:"name"`

	// Owner role. Created first when missing.
	Owner string `yaml:"owner" mapstructure:"owner"`
}

// OnFail values for task steps.
const (
	OnFailStop     = "stop"
	OnFailContinue = "continue"
)

// GetStepOnFail returns the step's on_fail behavior, defaulting to stop.
func GetStepOnFail(step TaskStep) string {
	if step.OnFail == "" {
		return OnFailStop
	}
	return step.OnFail
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version:   CurrentConfigVersion,
		Instances: make(map[string]InstanceConfig),
		Aliases:   make(map[string]string),
		Tasks:     make(map[string]TaskConfig),
	}
}

package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirex/upkeep/internal/errors"
)

// ReservedNames are command names that cannot be used as instance, alias,
// or task names, since they would be ambiguous on the command line.
var ReservedNames = map[string]bool{
	"run":        true,
	"instances":  true,
	"tasks":      true,
	"init":       true,
	"help":       true,
	"version":    true,
	"completion": true,
}

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but upkeep only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Grab the latest upkeep release.")
	}

	for name, inst := range cfg.Instances {
		if ReservedNames[name] {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Can't use '%s' as an instance name - that's a built-in command", name),
				"Pick a different name, like 'staging' or 'production'.")
		}
		if err := validateInstance(name, inst); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig, err.Error(),
				"Check the 'instances' section in .upkeep.yaml.")
		}
	}

	for alias, target := range cfg.Aliases {
		if ReservedNames[alias] {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Can't use '%s' as an alias - that's a built-in command", alias),
				"Pick a different alias.")
		}
		if _, ok := cfg.Instances[alias]; ok {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Alias '%s' shadows an instance with the same name", alias),
				"Rename the alias or the instance.")
		}
		if _, ok := cfg.Instances[target]; !ok {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Alias '%s' points to instance '%s' which doesn't exist", alias, target),
				fmt.Sprintf("Available instances: %s", instanceNames(cfg.Instances)))
		}
	}

	if cfg.Default != "" {
		_, isInstance := cfg.Instances[cfg.Default]
		_, isAlias := cfg.Aliases[cfg.Default]
		if !isInstance && !isAlias {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Default instance '%s' doesn't exist", cfg.Default),
				fmt.Sprintf("Did you rename or remove it? Available instances: %s", instanceNames(cfg.Instances)))
		}
	}

	for name := range cfg.Tasks {
		if ReservedNames[name] {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Can't use '%s' as a task name - that's a built-in command", name),
				fmt.Sprintf("Pick a different name, like 'my-%s' or 'do-%s'.", name, name))
		}
		if _, ok := cfg.Instances[name]; ok {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Task '%s' has the same name as an instance", name),
				"Instance and task names share the command line, so they must not collide.")
		}
		if _, ok := cfg.Aliases[name]; ok {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Task '%s' has the same name as an alias", name),
				"Instance and task names share the command line, so they must not collide.")
		}
		if err := validateTask(name, cfg.Tasks[name]); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig, err.Error(),
				"Check your task config in .upkeep.yaml.")
		}
	}

	return nil
}

// validateInstance checks a single instance configuration.
func validateInstance(name string, inst InstanceConfig) error {
	if len(inst.SSH) == 0 {
		return fmt.Errorf("instance '%s' needs at least one SSH connection (like 'user@hostname')", name)
	}

	for i, ssh := range inst.SSH {
		if strings.TrimSpace(ssh) == "" {
			return fmt.Errorf("instance '%s' has an empty SSH entry at position %d", name, i)
		}
	}

	// Unexpanded variables point at a typo (${INSTNACE} and friends)
	if strings.Contains(inst.Dir, "${") {
		return fmt.Errorf("instance '%s' has an unexpanded variable in dir: %s", name, inst.Dir)
	}

	return nil
}

// validateTask checks a single task configuration.
func validateTask(name string, task TaskConfig) error {
	hasRun := task.Run != ""
	hasSteps := len(task.Steps) > 0

	if !hasRun && !hasSteps {
		return fmt.Errorf("task '%s' needs either 'run' (single command) or 'steps' (multiple steps)", name)
	}

	if hasRun && hasSteps {
		return fmt.Errorf("task '%s' has both 'run' and 'steps' - pick one or the other", name)
	}

	for i, step := range task.Steps {
		if err := validateStep(name, i+1, step); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that a step carries exactly one action.
func validateStep(task string, n int, step TaskStep) error {
	actions := 0
	if step.Run != "" {
		actions++
	}
	if step.AptUpdate {
		actions++
	}
	if len(step.Packages) > 0 {
		actions++
	}
	if step.User != "" {
		actions++
	}
	if step.KnownHost != nil {
		actions++
	}
	if step.Git != nil {
		actions++
	}
	if step.PostgresUser != "" {
		actions++
	}
	if step.PostgresDB != nil {
		actions++
	}
	if step.Changelog != "" {
		actions++
	}

	if actions == 0 {
		return fmt.Errorf("task '%s' step %d has no action - set one of run, apt_update, packages, user, known_host, git, postgres_user, postgres_db, changelog", task, n)
	}
	if actions > 1 {
		return fmt.Errorf("task '%s' step %d has multiple actions - each step takes exactly one", task, n)
	}

	if step.OnFail != "" && step.OnFail != "stop" && step.OnFail != "continue" {
		return fmt.Errorf("task '%s' step %d has on_fail='%s' but it needs to be 'stop' or 'continue'", task, n, step.OnFail)
	}

	if step.KnownHost != nil && strings.TrimSpace(step.KnownHost.Key) == "" {
		return fmt.Errorf("task '%s' step %d known_host is missing the 'key'", task, n)
	}
	if step.Git != nil && strings.TrimSpace(step.Git.Repo) == "" {
		return fmt.Errorf("task '%s' step %d git is missing the 'repo'", task, n)
	}
	if step.PostgresDB != nil {
		if strings.TrimSpace(step.PostgresDB.Name) == "" {
			return fmt.Errorf("task '%s' step %d postgres_db is missing the 'name'", task, n)
		}
		if strings.TrimSpace(step.PostgresDB.Owner) == "" {
			return fmt.Errorf("task '%s' step %d postgres_db is missing the 'owner'", task, n)
		}
	}

	return nil
}

// instanceNames returns a sorted, comma-separated list of instance names.
func instanceNames(instances map[string]InstanceConfig) string {
	if len(instances) == 0 {
		return "(none)"
	}
	names := make([]string, 0, len(instances))
	for name := range instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Package task executes configured tasks against an instance connection,
// dispatching each step either to a raw remote command or to one of the
// provisioning helpers.
package task

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirex/upkeep/internal/config"
	"github.com/sirex/upkeep/internal/errors"
	"github.com/sirex/upkeep/internal/host"
	"github.com/sirex/upkeep/internal/remote"
	"github.com/sirex/upkeep/internal/util"
)

// Result contains the result of a task execution.
type Result struct {
	Task             string       // Task name
	Instance         string       // Instance the task ran on
	ExitCode         int          // Final exit code (0 if all steps passed)
	StepResults      []StepResult // Results for each step (nil for single-command tasks)
	FailedStep       int          // Index of first failed step (-1 if none)
	ChangelogSkipped bool         // Task-level changelog couldn't be recorded
}

// StepResult contains the result of a single step execution.
type StepResult struct {
	Name     string // Step name (or "run" for single-command tasks)
	ExitCode int    // Exit code from the step
	OnFail   string // The on_fail behavior for this step
	Detail   string // Short outcome note (commit hash, skip reason, ...)
	Skipped  bool   // Step did nothing because a remote tool is missing
}

// Execute runs a task on the given connection. Raw commands run in the
// instance directory with the task's environment; helper steps go through
// the provisioning helpers. The task's changelog message, if any, is
// recorded after all steps succeed.
func Execute(conn *host.Connection, name string, task *config.TaskConfig, stdout, stderr io.Writer) (*Result, error) {
	if task == nil {
		return nil, errors.New(errors.ErrTask,
			"Task is nil",
			"This is an internal error - tasks should be validated before execution")
	}

	result := &Result{
		Task:       name,
		Instance:   conn.Instance.Name,
		FailedStep: -1,
	}

	if task.Run != "" {
		exitCode, err := runCommand(conn, task.Run, task.Env, stdout, stderr)
		if err != nil {
			return nil, err
		}
		result.ExitCode = exitCode
		if exitCode != 0 {
			result.FailedStep = 0
		}
	} else {
		if err := runSteps(conn, task, result, stdout, stderr); err != nil {
			return nil, err
		}
	}

	if result.ExitCode == 0 && task.Changelog != "" {
		runner := remote.NewRunner(conn.Client)
		msg := config.ExpandForInstance(task.Changelog, conn.Instance.Name)
		recorded, err := runner.Changelog(msg, remote.ChangelogOptions{Optional: true})
		if err != nil {
			return nil, err
		}
		result.ChangelogSkipped = !recorded
	}

	return result, nil
}

// runSteps runs multi-step tasks in sequence, honoring on_fail.
func runSteps(conn *host.Connection, task *config.TaskConfig, result *Result, stdout, stderr io.Writer) error {
	result.StepResults = make([]StepResult, 0, len(task.Steps))

	for i, step := range task.Steps {
		sr := StepResult{
			Name:   step.Name,
			OnFail: config.GetStepOnFail(step),
		}
		if sr.Name == "" {
			sr.Name = fmt.Sprintf("step %d", i+1)
		}

		exitCode, detail, skipped, err := runStep(conn, step, task.Env, stdout, stderr)
		if err != nil {
			return err
		}
		sr.ExitCode = exitCode
		sr.Detail = detail
		sr.Skipped = skipped
		result.StepResults = append(result.StepResults, sr)

		if exitCode != 0 {
			if result.FailedStep == -1 {
				result.FailedStep = i
			}
			result.ExitCode = exitCode

			if sr.OnFail == config.OnFailStop {
				return nil
			}
		}
	}

	return nil
}

// runStep dispatches a step to its action. Helper failures that are plain
// execution errors become a non-zero exit so on_fail applies; transport
// errors propagate.
func runStep(conn *host.Connection, step config.TaskStep, env map[string]string, stdout, stderr io.Writer) (int, string, bool, error) {
	if step.Run != "" {
		code, err := runCommand(conn, step.Run, env, stdout, stderr)
		return code, "", false, err
	}

	runner := remote.NewRunner(conn.Client)
	inst := conn.Instance

	var detail string
	var skipped bool
	var err error
	switch {
	case step.AptUpdate:
		err = runner.EnsureAptNotOutdated()

	case len(step.Packages) > 0:
		err = runner.EnsurePackages(step.Packages...)

	case step.User != "":
		var created bool
		created, err = runner.EnsureUser(step.User)
		if err == nil && !created {
			detail = "already exists"
		}

	case step.KnownHost != nil:
		err = runner.EnsureKnownHost(step.KnownHost.Key, step.KnownHost.Path)

	case step.Git != nil:
		dir := step.Git.Dir
		if dir == "" {
			dir = inst.Dir
		}
		detail, err = runner.GitClone(step.Git.Repo, dir, remote.GitCloneOptions{Force: step.Git.Force})

	case step.PostgresUser != "":
		var created bool
		created, err = runner.EnsurePostgresUser(step.PostgresUser)
		if err == nil && !created {
			detail = "already exists"
		}

	case step.PostgresDB != nil:
		var created bool
		created, err = runner.EnsurePostgresDB(step.PostgresDB.Name, step.PostgresDB.Owner)
		if err == nil && !created {
			detail = "already exists"
		}

	case step.Changelog != "":
		var recorded bool
		msg := config.ExpandForInstance(step.Changelog, inst.Name)
		recorded, err = runner.Changelog(msg, remote.ChangelogOptions{Optional: true})
		if err == nil && !recorded {
			detail = "changelog tool not installed"
			skipped = true
		}

	default:
		return 0, "", false, errors.New(errors.ErrTask,
			"Step has no action",
			"This is an internal error - steps should be validated before execution")
	}

	if err != nil {
		if errors.IsCode(err, errors.ErrExec) {
			fmt.Fprintln(stderr, err.Error())
			return 1, detail, false, nil
		}
		return -1, detail, false, err
	}
	return 0, detail, skipped, nil
}

// runCommand runs a raw command in the instance directory with the task
// environment applied.
func runCommand(conn *host.Connection, cmd string, env map[string]string, stdout, stderr io.Writer) (int, error) {
	full := buildCommand(cmd, env, conn.Instance.Dir)
	code, err := conn.Client.ExecStream(full, stdout, stderr)
	if err != nil {
		return -1, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Failed to run command on %s", conn.Target),
			"Check that the SSH connection is still alive.")
	}
	return code, nil
}

// buildCommand constructs the remote command string with env vars and cd.
// The directory is quoted with the tilde left bare so the remote shell can
// expand it to the remote user's home.
func buildCommand(cmd string, env map[string]string, workDir string) string {
	if workDir != "" {
		return fmt.Sprintf("cd %s && %s%s", util.ShellQuotePreserveTilde(workDir), buildEnvPrefix(env), cmd)
	}
	return buildEnvPrefix(env) + cmd
}

// buildEnvPrefix creates the environment variable prefix for a command.
// Keys are sorted so the generated command is deterministic.
func buildEnvPrefix(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "export %s=%q; ", k, env[k])
	}
	return b.String()
}

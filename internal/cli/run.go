package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirex/upkeep/internal/config"
	"github.com/sirex/upkeep/internal/errors"
	"github.com/sirex/upkeep/internal/host"
	"github.com/sirex/upkeep/internal/instance"
	"github.com/sirex/upkeep/internal/task"
	"github.com/sirex/upkeep/internal/ui"
)

var runTimeoutFlag string

var runCmd = &cobra.Command{
	Use:   "run [instance] <task> [[instance] <task>]...",
	Short: "Run tasks on instances",
	Long: `Run configured tasks on deployment targets.

Arguments are scanned left to right. A token naming an instance (or
alias) switches the current instance; any other token is a task that
runs on the instance current at that point. Tasks before any instance
token run on the default instance.

Examples:
  upkeep run staging deploy
  upkeep run staging deploy migrate production deploy
  upkeep run setup`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, err := parseTimeout(runTimeoutFlag)
		if err != nil {
			return err
		}

		code, err := Run(RunOptions{
			Tokens:      args,
			DialTimeout: timeout,
			Verbose:     verboseFlag,
			Stdout:      os.Stdout,
			Stderr:      os.Stderr,
		})
		if err != nil {
			return err
		}
		exitCode = code
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runTimeoutFlag, "timeout", "", "SSH connection timeout (e.g., 5s, 2m)")
}

// RunOptions holds options for the run command.
type RunOptions struct {
	Tokens      []string      // Positional tokens: instance and task names
	DialTimeout time.Duration // Override SSH dial timeout (0 means default)
	Verbose     bool          // Show connection attempts
	Stdout      io.Writer
	Stderr      io.Writer
	Pool        *host.Pool // Override connection pool (tests)
}

// Run plans the token list and executes each (instance, task) pair over a
// pooled connection. All planned tasks run even when one fails; the return
// value is the first non-zero task exit code.
func Run(opts RunOptions) (int, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	cfg, err := loadConfig()
	if err != nil {
		return 1, err
	}

	reg, err := config.BuildRegistry(cfg)
	if err != nil {
		return 1, err
	}
	// Fresh registry per invocation: selection state never leaks between runs
	instance.SetDefaultRegistry(reg)

	plan, err := reg.Plan(opts.Tokens)
	if err != nil {
		return 1, err
	}
	if len(plan) == 0 {
		return 1, errors.New(errors.ErrTask,
			"Nothing to do: only instance names were given",
			fmt.Sprintf("Add a task after the instance name. Configured tasks: %s", joinTaskNames(cfg)))
	}

	// Check every task exists before touching any host
	for _, inv := range plan {
		if _, ok := cfg.Tasks[inv.Task]; !ok {
			return 1, errors.New(errors.ErrTask,
				fmt.Sprintf("Unknown task '%s'", inv.Task),
				fmt.Sprintf("Configured tasks: %s", joinTaskNames(cfg)))
		}
	}

	pool := opts.Pool
	if pool == nil {
		pool = host.NewPool()
	}
	defer pool.Close()

	if opts.DialTimeout > 0 {
		pool.SetTimeout(opts.DialTimeout)
	}
	if opts.Verbose {
		pool.SetEventHandler(connectionEventPrinter(opts.Stderr))
	}

	status := ui.NewStatusWriter(opts.Stdout)
	firstFailure := 0
	lastInstance := ""

	for _, inv := range plan {
		if inv.Instance.Name != lastInstance {
			status.Instance(inv.Instance.Name, firstTarget(inv.Instance))
			lastInstance = inv.Instance.Name
		}

		conn, err := pool.Get(inv.Instance)
		if err != nil {
			return 1, err
		}

		taskCfg := cfg.Tasks[inv.Task]
		start := time.Now()
		result, err := task.Execute(conn, inv.Task, &taskCfg, opts.Stdout, opts.Stderr)
		if err != nil {
			return 1, err
		}

		if result.ExitCode == 0 {
			for _, sr := range result.StepResults {
				if sr.Skipped {
					status.TaskSkipped(sr.Name, sr.Detail)
				}
			}
			if result.ChangelogSkipped {
				status.TaskSkipped(inv.Task+" changelog", "tool not installed")
			}
			status.TaskSuccess(inv.Task, time.Since(start))
		} else {
			status.TaskFailed(inv.Task, result.ExitCode)
			if firstFailure == 0 {
				firstFailure = result.ExitCode
			}
		}
	}

	return firstFailure, nil
}

// connectionEventPrinter writes connection progress for --verbose.
func connectionEventPrinter(w io.Writer) host.EventHandler {
	return func(e host.ConnectionEvent) {
		switch e.Type {
		case host.EventTrying:
			fmt.Fprintf(w, "%s connecting to %s (%s)...\n", ui.SymbolArrow, e.Instance, e.Target)
		case host.EventFailed:
			fmt.Fprintf(w, "%s %s: %v\n", ui.SymbolFail, e.Target, e.Error)
		case host.EventConnected:
			fmt.Fprintf(w, "%s connected to %s in %s\n", ui.SymbolSuccess, e.Target, e.Latency.Round(time.Millisecond))
		case host.EventCacheHit:
			fmt.Fprintf(w, "%s reusing connection to %s\n", ui.SymbolArrow, e.Target)
		}
	}
}

func firstTarget(inst *instance.Instance) string {
	if len(inst.SSH) == 0 {
		return ""
	}
	return inst.SSH[0]
}

func joinTaskNames(cfg *config.Config) string {
	names := config.TaskNames(cfg)
	if len(names) == 0 {
		return "(none)"
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// parseTimeout parses a timeout flag into a duration.
// Returns zero duration if the flag is empty.
func parseTimeout(flag string) (time.Duration, error) {
	if flag == "" {
		return 0, nil
	}

	duration, err := time.ParseDuration(flag)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("'%s' doesn't look like a valid timeout", flag),
			"Try something like 5s, 2m, or 500ms.")
	}
	return duration, nil
}

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/sirex/upkeep/internal/config"
	"github.com/sirex/upkeep/internal/errors"
	"github.com/sirex/upkeep/internal/host"
	"github.com/sirex/upkeep/internal/ui"
)

var (
	initNameFlag  string
	initSSHFlag   string
	initDirFlag   string
	initForceFlag bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .upkeep.yaml configuration",
	Long: `Initialize a new upkeep configuration file.

Creates a .upkeep.yaml in the current directory and guides you through
defining the first instance with interactive prompts. The SSH target is
probed before the file is saved.

Examples:
  upkeep init
  upkeep init --name staging --ssh deploy@staging.example.com
  upkeep init --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Init(InitOptions{
			Name:           initNameFlag,
			SSH:            initSSHFlag,
			Dir:            initDirFlag,
			Overwrite:      initForceFlag,
			NonInteractive: initSSHFlag != "",
		})
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initNameFlag, "name", "", "instance name (skips the prompt)")
	initCmd.Flags().StringVar(&initSSHFlag, "ssh", "", "SSH target; implies non-interactive mode")
	initCmd.Flags().StringVar(&initDirFlag, "dir", "", "working directory on the instance")
	initCmd.Flags().BoolVar(&initForceFlag, "force", false, "overwrite an existing config")
}

// InitOptions holds options for the init command.
type InitOptions struct {
	Name           string // Pre-specified instance name
	SSH            string // Pre-specified SSH target
	Dir            string // Pre-specified working directory
	Overwrite      bool   // Overwrite existing config without asking
	NonInteractive bool   // Skip prompts, use provided values and defaults
}

// Init creates a new .upkeep.yaml configuration file.
func Init(opts InitOptions) error {
	configPath := filepath.Join(".", config.ConfigFileName)

	if _, err := os.Stat(configPath); err == nil && !opts.Overwrite {
		if opts.NonInteractive {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Config file already exists: %s", configPath),
				"Use --force to overwrite")
		}

		var overwrite bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Config file '%s' already exists. Overwrite?", config.ConfigFileName)).
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Try running with --force to overwrite")
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	name := opts.Name
	sshTarget := opts.SSH
	fallback := ""
	dir := opts.Dir

	if opts.NonInteractive {
		if sshTarget == "" {
			return errors.New(errors.ErrConfig,
				"SSH target is required in non-interactive mode",
				"Provide --ssh, or run interactively")
		}
		if name == "" {
			name = "production"
		}
		if dir == "" {
			dir = "/srv/${INSTANCE}"
		}
	} else {
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Instance name").
					Description("How you'll refer to this target on the command line").
					Placeholder("staging").
					Value(&name).
					Validate(func(s string) error {
						s = strings.TrimSpace(s)
						if s == "" {
							return fmt.Errorf("instance name is required")
						}
						if strings.ContainsAny(s, " \t\n") {
							return fmt.Errorf("instance name cannot contain whitespace")
						}
						if config.ReservedNames[s] {
							return fmt.Errorf("'%s' is a built-in command", s)
						}
						return nil
					}),
			),
			huh.NewGroup(
				huh.NewInput().
					Title("SSH target").
					Description("Enter hostname, user@host, or SSH config alias").
					Placeholder("deploy@staging.example.com").
					Value(&sshTarget).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return fmt.Errorf("SSH target is required")
						}
						return nil
					}),
			),
			huh.NewGroup(
				huh.NewInput().
					Title("Fallback SSH target (optional)").
					Description("Tried when the primary doesn't answer").
					Placeholder("deploy@backup.example.com (leave empty to skip)").
					Value(&fallback),
			),
			huh.NewGroup(
				huh.NewInput().
					Title("Working directory").
					Description("Where task commands run on the target (supports ${INSTANCE}, ${USER}, ${HOME})").
					Placeholder("/srv/${INSTANCE}").
					Value(&dir),
			),
		)
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Check terminal compatibility, or pass --name/--ssh/--dir flags")
		}
		if dir == "" {
			dir = "/srv/${INSTANCE}"
		}
	}

	// Probe the target before saving
	fmt.Printf("Testing connection to %s...\n", sshTarget)
	latency, err := host.Probe(sshTarget, 10*time.Second)
	if err != nil {
		saveAnyway := opts.Overwrite
		if !opts.NonInteractive {
			fmt.Printf("\n%s Connection to '%s' failed: %v\n\n", ui.SymbolFail, sshTarget, err)

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewConfirm().
						Title("Save config anyway? (You can fix the connection later)").
						Value(&saveAnyway),
				),
			)
			if formErr := form.Run(); formErr != nil {
				saveAnyway = false
			}
		}
		if !saveAnyway {
			return errors.WrapWithCode(err, errors.ErrSSH,
				fmt.Sprintf("Connection to '%s' failed", sshTarget),
				"Check that the host is reachable: ssh "+sshTarget)
		}
	} else {
		fmt.Printf("%s Connected in %s\n", ui.SymbolSuccess, latency.Round(time.Millisecond))
	}

	cfg := config.DefaultConfig()
	sshList := []string{sshTarget}
	if fallback != "" {
		sshList = append(sshList, fallback)
	}
	cfg.Instances[name] = config.InstanceConfig{
		SSH: sshList,
		Dir: config.ExpandForInstance(dir, name),
	}
	cfg.Default = name
	cfg.Tasks["ping"] = config.TaskConfig{
		Description: "Check the connection and show uptime",
		Run:         "uptime",
	}

	if err := config.Save(cfg, configPath); err != nil {
		return err
	}

	fmt.Printf("%s Created %s\n\n", ui.SymbolSuccess, configPath)
	fmt.Println("Next steps:")
	fmt.Printf("  upkeep run %s ping    - check the connection\n", name)
	fmt.Println("  upkeep instances       - list configured instances")
	fmt.Println("  upkeep tasks           - list configured tasks")

	return nil
}

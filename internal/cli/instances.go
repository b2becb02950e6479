package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sirex/upkeep/internal/config"
	"github.com/sirex/upkeep/internal/ui"
)

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "List configured instances",
	Long:  `List the deployment targets from .upkeep.yaml, with their SSH chains, aliases, and the default marker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		printInstances(os.Stdout, cfg)
		return nil
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List configured tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		printTasks(os.Stdout, cfg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(instancesCmd)
	rootCmd.AddCommand(tasksCmd)
}

func printInstances(w io.Writer, cfg *config.Config) {
	if len(cfg.Instances) == 0 {
		fmt.Fprintln(w, "No instances configured. Run 'upkeep init' to add one.")
		return
	}

	names := make([]string, 0, len(cfg.Instances))
	for name := range cfg.Instances {
		names = append(names, name)
	}
	sort.Strings(names)

	// Invert the alias table for display
	aliasesFor := make(map[string][]string)
	for alias, target := range cfg.Aliases {
		aliasesFor[target] = append(aliasesFor[target], alias)
	}

	for _, name := range names {
		inst := cfg.Instances[name]

		label := ui.InstanceStyle.Render(name)
		if name == cfg.Default {
			label += ui.DimStyle.Render(" (default)")
		}
		if aliases := aliasesFor[name]; len(aliases) > 0 {
			sort.Strings(aliases)
			label += ui.DimStyle.Render(" aka " + strings.Join(aliases, ", "))
		}
		fmt.Fprintln(w, label)

		fmt.Fprintf(w, "  ssh: %s\n", strings.Join(inst.SSH, " "+ui.SymbolArrow+" "))
		if inst.Dir != "" {
			fmt.Fprintf(w, "  dir: %s\n", inst.Dir)
		}
		if len(inst.Tags) > 0 {
			fmt.Fprintf(w, "  tags: %s\n", strings.Join(inst.Tags, ", "))
		}
	}
}

func printTasks(w io.Writer, cfg *config.Config) {
	names := config.TaskNames(cfg)
	if len(names) == 0 {
		fmt.Fprintln(w, "No tasks configured. Add some under 'tasks:' in .upkeep.yaml.")
		return
	}

	width := 0
	for _, name := range names {
		if len(name) > width {
			width = len(name)
		}
	}

	for _, name := range names {
		t := cfg.Tasks[name]
		desc := t.Description
		if desc == "" {
			if t.Run != "" {
				desc = t.Run
			} else {
				desc = fmt.Sprintf("%d steps", len(t.Steps))
			}
		}
		fmt.Fprintf(w, "%-*s  %s\n", width, name, ui.DimStyle.Render(desc))
	}
}

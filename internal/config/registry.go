package config

import (
	"sort"

	"github.com/sirex/upkeep/internal/instance"
)

// BuildRegistry populates an instance registry from the config. Instances
// are defined in name order so listings are stable regardless of YAML map
// iteration.
func BuildRegistry(cfg *Config) (*instance.Registry, error) {
	reg := instance.NewRegistry()

	names := make([]string, 0, len(cfg.Instances))
	for name := range cfg.Instances {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ic := cfg.Instances[name]
		err := reg.Define(instance.Instance{
			Name:   name,
			SSH:    ic.SSH,
			Dir:    ic.Dir,
			Params: ic.Params,
			Tags:   ic.Tags,
		})
		if err != nil {
			return nil, err
		}
	}

	aliases := make([]string, 0, len(cfg.Aliases))
	for alias := range cfg.Aliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	for _, alias := range aliases {
		if err := reg.DefineAlias(alias, cfg.Aliases[alias]); err != nil {
			return nil, err
		}
	}

	if cfg.Default != "" {
		if err := reg.SetDefault(cfg.Default); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// TaskNames returns the configured task names, sorted.
func TaskNames(cfg *Config) []string {
	names := make([]string, 0, len(cfg.Tasks))
	for name := range cfg.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

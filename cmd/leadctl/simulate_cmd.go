package main

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/distribution"
	"github.com/iota-uz/leadrouter/modules/leads/services"
)

// unitsFile is the offline input for simulate --config.
type unitsFile struct {
	Units []struct {
		ID         int64   `yaml:"id"`
		Name       string  `yaml:"name"`
		Weight     float64 `yaml:"weight"`
		Active     *bool   `yaml:"active"`
		MaxPerDay  *int    `yaml:"max_per_day"`
		MaxPerWeek *int    `yaml:"max_per_week"`
	} `yaml:"units"`
}

func loadUnitsFile(path string) ([]distribution.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f unitsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	configs := make([]distribution.Config, 0, len(f.Units))
	for _, u := range f.Units {
		c := distribution.Config{
			UnitID:         u.ID,
			UnitName:       u.Name,
			Weight:         decimal.NewFromFloat(u.Weight).Round(2),
			ActiveForLeads: u.Active == nil || *u.Active,
			MaxPerDay:      u.MaxPerDay,
			MaxPerWeek:     u.MaxPerWeek,
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("unit %q: %w", u.Name, err)
		}
		configs = append(configs, c)
	}
	return configs, nil
}

func newSimulateCmd() *cobra.Command {
	var (
		leads    int
		config   string
		sequence bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay the deficit allocator over N leads with no caps",
		RunE: func(cmd *cobra.Command, args []string) error {
			if leads <= 0 {
				return fmt.Errorf("--leads must be positive")
			}
			if config != "" {
				configs, err := loadUnitsFile(config)
				if err != nil {
					return err
				}
				if !distribution.Consistent(configs) {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: active weights sum to %s, not 100\n", distribution.TotalActiveWeight(configs))
				}
				return writeJSON(cmd.OutOrStdout(), services.Simulate(configs, leads, sequence))
			}

			rt, ctx, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			dist := rt.app.Service(services.DistributionService{}).(*services.DistributionService)
			res, err := dist.Simulate(ctx, 0, leads)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().IntVar(&leads, "leads", 100, "Number of leads to simulate")
	cmd.Flags().StringVar(&config, "config", "", "YAML file with units; reads the database when empty")
	cmd.Flags().BoolVar(&sequence, "sequence", false, "Include the allocation order (offline only)")
	return cmd
}

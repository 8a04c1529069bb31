package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"veracity/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample config to %s.\n", path)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Data dir:             %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "Staging dir:          %s\n", cfg.Paths.StagingDir)
			fmt.Fprintf(out, "Log dir:              %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "API bind:             %s\n", cfg.Paths.APIBind)
			fmt.Fprintf(out, "Escalation threshold: %.2f\n", cfg.Escalation.Threshold)
			fmt.Fprintf(out, "Base weights:         prov %.2f / manip %.2f / web %.2f / identity %.2f\n",
				cfg.Fusion.ProvenanceWeight,
				cfg.Fusion.ManipulationWeight,
				cfg.Fusion.WebPresenceWeight,
				cfg.Fusion.IdentityWeight)
			fmt.Fprintf(out, "Verdict thresholds:   genuine >= %d, suspicious >= %d\n",
				cfg.Fusion.GenuineThreshold, cfg.Fusion.SuspiciousThreshold)
			fmt.Fprintf(out, "Review SLA:           %dh\n", cfg.Review.SLAHours)
			return nil
		},
	}

	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	return configCmd
}

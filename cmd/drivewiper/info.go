package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"drivewiper/internal/config"
	"drivewiper/internal/progress"
	"drivewiper/internal/system"
)

func newInfoCmd(opts *globalOptions, s streams) *cobra.Command {
	var unitFlag string

	cmd := &cobra.Command{
		Use:   "info <volume>",
		Short: "Show free and total space of a volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return errors.Wrap(err, "load configuration")
			}
			if !cmd.Flags().Changed("unit") {
				unitFlag = cfg.Wipe.Unit
			}
			unit, err := progress.ParseUnit(unitFlag)
			if err != nil {
				return err
			}

			volume, err := system.ValidatePath(args[0])
			if err != nil {
				return err
			}
			info, err := system.GetDiskInfoForPath(volume)
			if err != nil {
				return err
			}

			writable := "no"
			if info.IsWritable {
				writable = "yes"
			}
			fmt.Fprintf(s.out, "Volume:   %s\n", info.Path)
			fmt.Fprintf(s.out, "Total:    %s\n", unit.Format(info.TotalSize))
			fmt.Fprintf(s.out, "Used:     %s\n", unit.Format(info.UsedSize))
			fmt.Fprintf(s.out, "Free:     %s\n", unit.Format(info.FreeSize))
			fmt.Fprintf(s.out, "Writable: %s\n", writable)
			return nil
		},
	}
	cmd.Flags().StringVarP(&unitFlag, "unit", "u", "m", "Display unit (b, k, m, g, t)")
	return cmd
}

func newConfigCmd(s streams) *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "config <path>",
		Short: "Write the default configuration to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if profile != "" {
				if err := config.ApplyProfile(cfg, profile); err != nil {
					return err
				}
			}
			if err := config.Save(cfg, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "Configuration written to %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "Apply a profile before writing (safe, balanced, fast, paranoid)")
	return cmd
}

func newDiagnoseCmd(s streams) *cobra.Command {
	var (
		output  string
		lockDir string
	)

	cmd := &cobra.Command{
		Use:   "diagnose <volume>",
		Short: "Check that a volume can be wiped",
		Long:  "Runs pre-flight checks against a volume: path, free space, a small write and read-back, the wipe lock and the random source.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			diag, err := system.NewDiagnosticsRunner(args[0], lockDir).Run(cmd.Context())
			if err != nil {
				return err
			}

			for _, r := range diag.Results {
				fmt.Fprintf(s.out, "[%s] %-8s %s\n", r.Status, r.Test, r.Message)
			}
			fmt.Fprintf(s.out, "Overall: %s (%d passed, %d warnings, %d failed)\n",
				diag.Overall, diag.Summary.Passed, diag.Summary.Warnings, diag.Summary.Failed)

			if output != "" {
				if err := system.SaveDiagnostics(diag, output); err != nil {
					return err
				}
				fmt.Fprintf(s.out, "Diagnostics written to %s\n", output)
			}

			switch {
			case diag.Summary.Failed > 0:
				return &exitError{code: EXIT_ERROR, err: errors.Newf("%d check(s) failed", diag.Summary.Failed)}
			case diag.Summary.Warnings > 0:
				return &exitError{code: EXIT_WARNING, err: errors.Newf("%d check(s) with warnings", diag.Summary.Warnings)}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Also write the results as JSON to this file")
	cmd.Flags().StringVar(&lockDir, "lock-dir", os.TempDir(), "Directory for the per-volume lock file")
	_ = cmd.Flags().MarkHidden("lock-dir")
	return cmd
}

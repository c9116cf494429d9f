package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/benaskins/ptimeout/internal/systemd"
)

var systemdCmd = &cobra.Command{
	Use:   "systemd --name NAME --timeout TIMEOUT [flags] -- COMMAND [ARGS...]",
	Short: "Generate a systemd user service that runs a command under ptimeout",
	Long: `Render a systemd user unit whose ExecStart runs COMMAND through ptimeout in
background mode. The unit is printed to stdout unless --output or --install
is given.`,
	Example: `  ptimeout systemd --name backup --timeout 1h -- restic backup /home
  ptimeout systemd --name sync --timeout 5m --retries 2 --install --enable -- ./sync.sh`,
	RunE: runSystemd,
}

var (
	unitSpec    systemd.Service
	unitOutput  string
	unitInstall bool
	unitEnable  bool
)

func init() {
	f := systemdCmd.Flags()
	f.StringVar(&unitSpec.Name, "name", "", "Name of the service (without .service)")
	f.StringVar(&unitSpec.Timeout, "timeout", "", "Timeout for the command (e.g. 10s, 5m, 1h)")
	f.IntVar(&unitSpec.Retries, "retries", 0, "Number of retries")
	f.BoolVarP(&unitSpec.Verbose, "verbose", "v", false, "Run ptimeout with verbose output")
	f.StringVar(&unitSpec.CountDirection, "count-direction", "", "Count direction: up or down")
	f.StringVar(&unitSpec.Config, "config", "", "ptimeout config file for the service")
	f.StringVar(&unitSpec.Description, "description", "ptimeout managed service", "Unit description")
	f.StringVar(&unitSpec.After, "after", "", "Units this service starts after (e.g. network.target)")
	f.StringArrayVar(&unitSpec.Environment, "environment", nil, "Environment variable KEY=VALUE (repeatable)")
	f.StringVar(&unitSpec.WorkingDirectory, "working-directory", "", "Working directory for the service")
	f.StringVar(&unitSpec.User, "user", "", "User to run the service as")
	f.StringVar(&unitSpec.Group, "group", "", "Group to run the service as")
	f.StringVar(&unitSpec.Restart, "restart", "on-failure", "Restart policy")
	f.IntVar(&unitSpec.RestartSec, "restart-sec", 30, "Seconds to wait before restart")
	f.StringVar(&unitSpec.MemoryLimit, "memory-limit", "", "Memory limit (e.g. 512M, 2G)")
	f.StringVar(&unitSpec.CPUQuota, "cpu-quota", "", "CPU quota (e.g. 50%)")
	f.StringVar(&unitSpec.StdoutLog, "stdout-log", "", "Append service stdout to this file")
	f.StringVar(&unitSpec.StderrLog, "stderr-log", "", "Append service stderr to this file")
	f.StringVar(&unitSpec.Executable, "ptimeout-path", systemd.DefaultExecutable, "ptimeout binary used by ExecStart")
	f.StringVarP(&unitOutput, "output", "o", "", "Write the unit to this file instead of stdout")
	f.BoolVar(&unitInstall, "install", false, "Install into the user unit directory and reload systemd")
	f.BoolVar(&unitEnable, "enable", false, "Enable the unit after installing it")
	systemdCmd.MarkFlagRequired("name")
	systemdCmd.MarkFlagRequired("timeout")
	rootCmd.AddCommand(systemdCmd)
}

func runSystemd(cmd *cobra.Command, args []string) error {
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		return fmt.Errorf("missing '--' separator before the command.\nExample: ptimeout systemd --name backup --timeout 1h -- restic backup")
	}
	if dash > 0 {
		return fmt.Errorf("unexpected arguments before '--': %q", args[:dash])
	}
	if unitEnable && !unitInstall {
		return fmt.Errorf("--enable requires --install")
	}

	svc := unitSpec
	svc.Command = args[dash:]
	contents, err := svc.Render()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if unitOutput == "" && !unitInstall {
		fmt.Fprint(out, contents)
		return nil
	}

	if unitOutput != "" {
		if err := systemd.WriteFile(unitOutput, contents); err != nil {
			return err
		}
		fmt.Fprintf(out, "Service file written to: %s\n", unitOutput)
	}

	if unitInstall {
		dir, err := systemd.UserUnitDir()
		if err != nil {
			return err
		}
		path := filepath.Join(dir, svc.UnitName())
		if err := systemd.WriteFile(path, contents); err != nil {
			return err
		}
		fmt.Fprintf(out, "Service file installed to: %s\n", path)

		if err := systemd.Reload(cmd.Context(), path, unitEnable); err != nil {
			slog.Warn("systemd reload failed", "unit", path, "error", err)
			fmt.Fprintf(out, "\nsystemd could not be reloaded automatically. Run:\n  systemctl --user daemon-reload\n")
			if unitEnable {
				fmt.Fprintf(out, "  systemctl --user enable %s\n", svc.UnitName())
			}
		} else if unitEnable {
			fmt.Fprintf(out, "Enabled %s\n", svc.UnitName())
		}
		fmt.Fprintf(out, "\nTo start the service:\n  systemctl --user start %s\n", svc.UnitName())
	}
	return nil
}

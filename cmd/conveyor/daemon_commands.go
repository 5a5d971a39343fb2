package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"conveyor/internal/daemonctl"
	"conveyor/internal/daemonrun"
	"conveyor/internal/ipc"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Control the conveyor daemon",
	}

	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the conveyor daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx, startLogLevel), 10*time.Second)
			if err != nil {
				return err
			}
			printStartResult(stdout, result, "Daemon started")
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override the configured log level")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the conveyor daemon (terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			printStopResult(stdout, result)
			return nil
		},
	}

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the conveyor daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			socket := ctx.socketPath()
			stopped, err := daemonctl.StopAndTerminate(socket, ctx.configValue(), 5*time.Second)
			switch {
			case errors.Is(err, daemonctl.ErrDaemonNotRunning):
			case err != nil:
				return err
			default:
				printStopResult(stdout, stopped)
				if err := daemonctl.WaitForShutdown(socket, 5*time.Second); err != nil {
					return err
				}
			}
			result, err := daemonctl.EnsureStarted(socket, exe, daemonLaunchOptions(ctx, restartLogLevel), 10*time.Second)
			if err != nil {
				return err
			}
			printStartResult(stdout, result, "Daemon restarted")
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Override the configured log level")

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, engine and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ipc.Dial(ctx.socketPath())
			if err != nil {
				if !daemonctl.IsDaemonUnavailable(err) {
					return wrapDialError(err, ctx.socketPath())
				}
				return printOfflineStatus(cmd, ctx, statusJSON)
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, status)
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	var runLogLevel string
	var runDevelopment bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			opts := daemonrun.Options{LogLevel: runLogLevel, Development: runDevelopment}
			if ctx.socketFlag != nil {
				opts.SocketPath = strings.TrimSpace(*ctx.socketFlag)
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "", "Override the configured log level")
	runCmd.Flags().BoolVar(&runDevelopment, "development", false, "Include source locations in log output")

	daemonCmd.AddCommand(startCmd, stopCmd, restartCmd, statusCmd, runCmd)
	return daemonCmd
}

func printStartResult(w io.Writer, result daemonctl.StartResult, done string) {
	if result.Launched {
		fmt.Fprintln(w, "Daemon not running, launching...")
	}
	switch result.State {
	case daemonctl.StartStateStarted:
		fmt.Fprintln(w, done)
	case daemonctl.StartStateAlreadyRunning:
		fmt.Fprintln(w, "Daemon already running")
	case daemonctl.StartStateRequested:
		if strings.TrimSpace(result.Message) != "" {
			fmt.Fprintln(w, result.Message)
			return
		}
		fmt.Fprintln(w, "Start request sent")
	}
}

func printStopResult(w io.Writer, result daemonctl.StopResult) {
	if result.StopAcknowledged {
		fmt.Fprintln(w, "Stopping transfer engine...")
	} else {
		fmt.Fprintln(w, "Stop request sent")
	}
	if result.ForcedKill && result.PID > 0 {
		fmt.Fprintf(w, "Killed daemon process (pid %d)\n", result.PID)
	}
	fmt.Fprintln(w, "Daemon stopped")
}

func printStatus(w io.Writer, status *ipc.StatusResponse) {
	engine := status.Engine
	fmt.Fprintf(w, "Daemon:   %s (pid %d)\n", runningLabel(status.Running), status.PID)
	fmt.Fprintf(w, "Engine:   %s\n", engine.Running)
	fmt.Fprintf(w, "Errors:   %s\n", colorStatus(w, dash(engine.ErrorStatus)))
	if engine.Active != nil {
		fmt.Fprintf(w, "Active:   #%d %s %s\n", engine.Active.ID, engine.Active.Type, engine.Active.LocalPath)
	}
	if engine.LastError != "" {
		fmt.Fprintf(w, "Last:     %s\n", engine.LastError)
	}
	fmt.Fprintf(w, "Database: %s\n", status.DatabasePath)
	if status.MetricsAddr != "" {
		fmt.Fprintf(w, "Metrics:  http://%s/metrics\n", status.MetricsAddr)
	}
	fmt.Fprintf(w, "Pending:  %d of %d\n", engine.Pending, engine.Total)
	printCounts(w, engine.QueueStats)
}

func printOfflineStatus(cmd *cobra.Command, ctx *commandContext, asJSON bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	stats, err := daemonctl.OfflineStats(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	counts := make(map[string]int, len(stats.ByState))
	for state, n := range stats.ByState {
		counts[string(state)] = n
	}
	if asJSON {
		return writeJSON(cmd, map[string]any{
			"running":     false,
			"queue_stats": counts,
			"total":       stats.Total,
			"pending":     stats.Pending(),
		})
	}
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Daemon:   not running")
	fmt.Fprintf(w, "Database: %s\n", cfg.DatabasePath())
	fmt.Fprintf(w, "Pending:  %d of %d\n", stats.Pending(), stats.Total)
	printCounts(w, counts)
	return nil
}

func printCounts(w io.Writer, counts map[string]int) {
	if len(counts) == 0 {
		fmt.Fprintln(w, "Queue is empty")
		return
	}
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{key, strconv.Itoa(counts[key])})
	}
	fmt.Fprint(w, renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func runningLabel(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{LogLevel: strings.TrimSpace(logLevel)}
	if ctx.socketFlag != nil {
		opts.SocketPath = strings.TrimSpace(*ctx.socketFlag)
	}
	opts.ConfigPath = ctx.configPath()
	return opts
}

package cmd

import (
	"fmt"
	"time"

	"github.com/hargabyte/emb/internal/daemon"
	"github.com/spf13/cobra"
)

// daemonCmd represents the daemon command group
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Control the emb background daemon",
	Long: `Control the emb background daemon.

The daemon keeps the embedding model loaded in memory and serves embed
requests over a Unix socket, so commands skip model load time. It shuts
itself down after the idle timeout if no requests arrive.

Subcommands:
  start    Start the daemon
  stop     Stop the running daemon
  status   Show daemon status

Examples:
  emb daemon start --background   # Start detached
  emb daemon status               # Show status
  emb daemon stop                 # Stop the running daemon`,
}

// daemonStartCmd starts the daemon
var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	Long: `Start the emb daemon.

By default, the daemon runs in the foreground. Use --background to detach
and run as a background process.

Examples:
  emb daemon start                       # Start in foreground
  emb daemon start --background          # Start in background
  emb daemon start --idle-timeout 1h     # Custom idle timeout
  emb daemon start --model jina          # Serve a specific model`,
	RunE: runDaemonStart,
}

// daemonStopCmd stops the daemon
var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Long: `Stop the running emb daemon gracefully.

If no daemon is running, this command does nothing.`,
	RunE: runDaemonStop,
}

// daemonStatusCmd shows daemon status
var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Show the current status of the emb daemon.

Displays whether the daemon is running, its PID, the loaded model, uptime,
idle time, and time until auto-shutdown.

Examples:
  emb daemon status
  emb daemon status --format json`,
	RunE: runDaemonStatus,
}

var (
	daemonBackground      bool
	daemonForegroundChild bool
	daemonIdleTimeout     string
	daemonModel           string
)

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)

	daemonStartCmd.Flags().BoolVar(&daemonBackground, "background", false, "Run the daemon in the background")
	daemonStartCmd.Flags().BoolVar(&daemonForegroundChild, "foreground-child", false, "Run in foreground as a detached child")
	daemonStartCmd.Flags().MarkHidden("foreground-child")
	daemonStartCmd.Flags().StringVar(&daemonIdleTimeout, "idle-timeout", "", "Idle timeout before auto-shutdown (e.g. 30m, 1h; 0 disables)")
	daemonStartCmd.Flags().StringVar(&daemonModel, "model", "", "Model to load (default: config model)")
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if daemonModel != "" {
		cfg.Model = daemonModel
	}

	idleTimeout, err := resolveIdleTimeout(cfg.Daemon.IdleTimeoutMinutes)
	if err != nil {
		return err
	}

	if daemonBackground {
		if daemon.IsDaemonRunning("") {
			return fmt.Errorf("daemon already running")
		}
		client, err := daemon.StartDaemonProcess(daemon.SpawnOptions{
			IdleTimeout: idleTimeout,
			Model:       cfg.Model,
			Verbose:     verbose,
		})
		if err != nil {
			return err
		}
		resp, err := client.Health()
		if err != nil || !resp.Success {
			return fmt.Errorf("daemon started but is not healthy")
		}
		pid, _ := resp.Data["pid"].(float64)
		fmt.Printf("daemon started (pid=%d)\n", int(pid))
		return nil
	}

	// Foreground (or detached child): load the model and serve until stopped.
	engine, m, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	d, err := daemon.New(daemon.Config{
		IdleTimeout: idleTimeout,
		Engine:      engine,
		ModelName:   m.Name,
		Verbose:     verbose,
	})
	if err != nil {
		engine.Close()
		return err
	}

	return d.Run()
}

// resolveIdleTimeout combines the --idle-timeout flag with the config value.
// Flag wins; "0" disables auto-shutdown.
func resolveIdleTimeout(configMinutes int) (time.Duration, error) {
	if daemonIdleTimeout != "" {
		if daemonIdleTimeout == "0" {
			return 0, nil
		}
		d, err := time.ParseDuration(daemonIdleTimeout)
		if err != nil {
			return 0, fmt.Errorf("parse --idle-timeout: %w", err)
		}
		return d, nil
	}
	if configMinutes > 0 {
		return time.Duration(configMinutes) * time.Minute, nil
	}
	return daemon.DefaultIdleTimeout, nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	if err := daemon.StopDaemon(""); err != nil {
		return err
	}
	fmt.Println("daemon stopped")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	status, err := daemon.GetDaemonStatus("")
	if err != nil {
		return err
	}
	if status == nil {
		// Socket unreachable; the PID file may still name a live process.
		running, pid, err := daemon.IsRunning("")
		if err != nil {
			return err
		}
		if running {
			return printResult(map[string]interface{}{
				"running":    true,
				"pid":        pid,
				"responsive": false,
			})
		}
		return printResult(map[string]interface{}{"running": false})
	}
	return printResult(status)
}

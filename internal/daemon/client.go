// Package daemon client.go provides helpers for connecting to, starting,
// and stopping the background daemon process.
//
// Commands prefer a running daemon for its warm model, and fall back to
// loading the model in-process when no daemon is available.
package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// SpawnOptions configures StartDaemonProcess.
type SpawnOptions struct {
	// SocketPath is the Unix socket path for the daemon.
	// Defaults to ~/.emb/daemon.sock
	SocketPath string

	// IdleTimeout is the idle timeout passed to the spawned daemon.
	// Zero disables auto-shutdown; DefaultSpawnOptions supplies the default.
	IdleTimeout time.Duration

	// StartTimeout is how long to wait for the daemon to become ready.
	// Defaults to 30 seconds; model load dominates startup time.
	StartTimeout time.Duration

	// Model is the catalog model name the daemon should load.
	Model string

	// Verbose enables verbose logging in the spawned daemon.
	Verbose bool
}

// DefaultSpawnOptions returns options with default values.
func DefaultSpawnOptions() SpawnOptions {
	return SpawnOptions{
		SocketPath:   DefaultSocketPath(),
		IdleTimeout:  DefaultIdleTimeout,
		StartTimeout: 30 * time.Second,
	}
}

// StartDaemonProcess spawns a detached daemon process and waits for it to
// become reachable. The spawned process re-executes the current binary with
// "daemon start --foreground-child", which runs the daemon in the foreground
// of the detached child.
func StartDaemonProcess(opts SpawnOptions) (*Client, error) {
	if opts.SocketPath == "" {
		opts.SocketPath = DefaultSocketPath()
	}
	if opts.StartTimeout == 0 {
		opts.StartTimeout = 30 * time.Second
	}

	exePath, err := os.Executable()
	if err != nil {
		exePath, err = exec.LookPath("emb")
		if err != nil {
			return nil, fmt.Errorf("find emb executable: %w", err)
		}
	}

	args := []string{
		"daemon", "start",
		"--foreground-child",
		"--idle-timeout", opts.IdleTimeout.String(),
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.Verbose {
		args = append(args, "--verbose")
	}

	cmd := exec.Command(exePath, args...)

	// Detach from parent process
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	setSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start daemon process: %w", err)
	}

	// Detach - don't wait for process
	cmd.Process.Release()

	client := NewClient(opts.SocketPath)
	if err := client.WaitForDaemon(opts.StartTimeout); err != nil {
		return nil, err
	}
	return client, nil
}

// ConnectToDaemon attempts to connect to an existing daemon.
// Returns nil, error if daemon is not running or not responding.
func ConnectToDaemon(socketPath string) (*Client, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath()
	}

	client := NewClient(socketPath)

	// Verify daemon is responding
	resp, err := client.Health()
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("daemon not healthy: %s", resp.Error)
	}

	return client, nil
}

// IsDaemonRunning checks if a daemon is currently running and responding.
func IsDaemonRunning(socketPath string) bool {
	if socketPath == "" {
		socketPath = DefaultSocketPath()
	}

	client := NewClient(socketPath)
	resp, err := client.Health()
	return err == nil && resp.Success
}

// GetDaemonStatus returns the current daemon status.
// Returns nil if daemon is not running.
func GetDaemonStatus(socketPath string) (*Status, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath()
	}

	client := NewClient(socketPath)
	resp, err := client.Status()
	if err != nil {
		// Check if it's just not running
		if !client.IsConnectable() {
			return nil, nil // Not running is not an error
		}
		return nil, fmt.Errorf("get daemon status: %w", err)
	}

	if !resp.Success {
		return nil, fmt.Errorf("daemon status error: %s", resp.Error)
	}

	// The daemon marshals Status into the generic data map; reverse it.
	data, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("parse daemon status: %w", err)
	}
	status := &Status{}
	if err := json.Unmarshal(data, status); err != nil {
		return nil, fmt.Errorf("parse daemon status: %w", err)
	}
	status.SocketPath = socketPath

	return status, nil
}

// StopDaemon sends a stop request to the running daemon.
func StopDaemon(socketPath string) error {
	if socketPath == "" {
		socketPath = DefaultSocketPath()
	}

	client := NewClient(socketPath)
	resp, err := client.Stop()
	if err != nil {
		// Check if daemon is just not running
		if !client.IsConnectable() {
			return nil // Already stopped
		}
		return fmt.Errorf("stop daemon: %w", err)
	}

	if !resp.Success {
		return fmt.Errorf("daemon stop error: %s", resp.Error)
	}

	return nil
}

// Package daemon provides the emb daemon process for persistent embedding
// operations. The daemon runs in the background, keeping the model loaded
// and warm, and serves embed requests from emb commands via Unix socket
// communication.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hargabyte/emb/internal/embedder"
	"github.com/hargabyte/emb/internal/models"
)

// DefaultIdleTimeout is the default duration after which the daemon shuts down
// if no activity is detected.
const DefaultIdleTimeout = 30 * time.Minute

// DefaultSocketPath returns the default Unix socket path for the daemon.
// The socket is stored in the user's home directory under .emb/daemon.sock
func DefaultSocketPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/emb-daemon.sock"
	}
	return filepath.Join(home, ".emb", "daemon.sock")
}

// DefaultPIDPath returns the default PID file path for the daemon.
func DefaultPIDPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/emb-daemon.pid"
	}
	return filepath.Join(home, ".emb", "daemon.pid")
}

// Config holds daemon configuration options.
type Config struct {
	// SocketPath is the Unix socket path for client connections.
	// Defaults to ~/.emb/daemon.sock
	SocketPath string

	// PIDPath is the path to store the daemon's PID file.
	// Defaults to ~/.emb/daemon.pid
	PIDPath string

	// IdleTimeout is the duration after which the daemon shuts down if idle.
	// Zero disables auto-shutdown; DefaultConfig supplies DefaultIdleTimeout.
	IdleTimeout time.Duration

	// Engine is the embedding engine the daemon keeps warm. Required.
	Engine embedder.Embedder

	// ModelName is the catalog name of the loaded model, for status output.
	ModelName string

	// Verbose enables detailed logging.
	Verbose bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		SocketPath:  DefaultSocketPath(),
		PIDPath:     DefaultPIDPath(),
		IdleTimeout: DefaultIdleTimeout,
	}
}

// Status represents the daemon's current status.
type Status struct {
	// Running indicates if the daemon is currently running.
	Running bool `json:"running"`

	// PID is the daemon's process ID (0 if not running).
	PID int `json:"pid"`

	// StartedAt is when the daemon started (zero if not running).
	StartedAt time.Time `json:"started_at,omitempty"`

	// Uptime is how long the daemon has been running.
	Uptime time.Duration `json:"uptime,omitempty"`

	// LastActivity is when the last request was processed.
	LastActivity time.Time `json:"last_activity,omitempty"`

	// IdleTime is how long since the last activity.
	IdleTime time.Duration `json:"idle_time,omitempty"`

	// IdleTimeout is the configured idle timeout duration.
	IdleTimeout time.Duration `json:"idle_timeout,omitempty"`

	// TimeUntilShutdown is how long until auto-shutdown (0 if disabled).
	TimeUntilShutdown time.Duration `json:"time_until_shutdown,omitempty"`

	// SocketPath is the Unix socket path.
	SocketPath string `json:"socket_path"`

	// Model is the catalog name of the loaded model.
	Model string `json:"model,omitempty"`

	// ModelVersion identifies the loaded model weights.
	ModelVersion string `json:"model_version,omitempty"`

	// Dimensions is the output vector width of the loaded model.
	Dimensions int `json:"dimensions,omitempty"`

	// RequestsServed counts embed and embed_batch requests handled.
	RequestsServed int64 `json:"requests_served"`
}

// Daemon is the emb daemon process.
type Daemon struct {
	config Config

	// Core components
	registry *embedder.Registry
	handle   uint64
	socket   *Socket

	// Lifecycle management
	startedAt      time.Time
	lastActivity   time.Time
	requestsServed int64
	idleTimer      *time.Timer
	shutdown       chan struct{}
	shutdownOnce   sync.Once

	// Thread safety
	mu sync.RWMutex

	// Logger function (allows custom logging). Held in an atomic.Value so
	// log() never touches mu; Start/Stop log while holding the write lock.
	logFunc atomic.Value
}

// New creates a new Daemon instance with the given configuration.
func New(cfg Config) (*Daemon, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("daemon requires an engine")
	}

	// Set defaults
	if cfg.SocketPath == "" {
		cfg.SocketPath = DefaultSocketPath()
	}
	if cfg.PIDPath == "" {
		cfg.PIDPath = DefaultPIDPath()
	}

	d := &Daemon{
		config:   cfg,
		registry: embedder.NewRegistry(),
		shutdown: make(chan struct{}),
	}
	d.logFunc.Store(logFn(defaultLog))

	return d, nil
}

// logFn is the stored logger type.
type logFn func(format string, args ...interface{})

// defaultLog is the default logging function that writes to stderr.
func defaultLog(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[daemon] "+format+"\n", args...)
}

// SetLogger sets a custom logging function. A nil fn silences logging.
func (d *Daemon) SetLogger(fn func(format string, args ...interface{})) {
	if fn == nil {
		fn = func(format string, args ...interface{}) {}
	}
	d.logFunc.Store(logFn(fn))
}

// log writes a log message using the configured logger. It must not take
// d.mu: Start and Stop log with the write lock held.
func (d *Daemon) log(format string, args ...interface{}) {
	if fn, ok := d.logFunc.Load().(logFn); ok {
		fn(format, args...)
	}
}

// Start initializes and starts the daemon.
// It registers the engine, starts the socket server, and begins
// handling requests.
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Check if already running
	if d.startedAt != (time.Time{}) {
		return fmt.Errorf("daemon already running")
	}

	// Check for existing daemon via PID file
	if existingPID, err := readPIDFile(d.config.PIDPath); err == nil {
		if isProcessRunning(existingPID) {
			return fmt.Errorf("daemon already running with PID %d", existingPID)
		}
		// Stale PID file, remove it
		os.Remove(d.config.PIDPath)
	}

	// Register the warm engine
	handle, err := d.registry.Register(d.config.Engine)
	if err != nil {
		return fmt.Errorf("register engine: %w", err)
	}
	d.handle = handle

	// Write PID file
	if err := writePIDFile(d.config.PIDPath, os.Getpid()); err != nil {
		d.cleanup()
		return fmt.Errorf("write PID file: %w", err)
	}

	// Create and start socket server
	d.socket, err = NewSocket(d.config.SocketPath, d.handleRequest)
	if err != nil {
		d.cleanup()
		return fmt.Errorf("create socket: %w", err)
	}

	if err := d.socket.Start(); err != nil {
		d.cleanup()
		return fmt.Errorf("start socket: %w", err)
	}

	// Initialize timing
	d.startedAt = time.Now()
	d.lastActivity = d.startedAt

	// Start idle timer if timeout is configured
	if d.config.IdleTimeout > 0 {
		d.idleTimer = time.AfterFunc(d.config.IdleTimeout, d.onIdleTimeout)
	}

	// Setup signal handlers
	go d.handleSignals()

	d.log("started (pid=%d, socket=%s, model=%s, idle_timeout=%v)",
		os.Getpid(), d.config.SocketPath, d.config.ModelName, d.config.IdleTimeout)

	return nil
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.stopLocked()
}

// stopLocked performs the actual stop. Caller must hold the lock.
func (d *Daemon) stopLocked() error {
	// Signal shutdown (only once)
	d.shutdownOnce.Do(func() {
		close(d.shutdown)
	})

	// Stop idle timer
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	// Cleanup resources
	d.cleanup()

	d.log("stopped")
	return nil
}

// cleanup releases all resources. Caller must hold the lock.
func (d *Daemon) cleanup() {
	if d.socket != nil {
		d.socket.Stop()
		d.socket = nil
	}

	if err := d.registry.Close(); err != nil {
		d.log("close registry: %v", err)
	}

	// Remove PID file
	os.Remove(d.config.PIDPath)
}

// Wait blocks until the daemon shuts down.
func (d *Daemon) Wait() {
	<-d.shutdown
}

// Run starts the daemon and blocks until shutdown.
// This is a convenience method combining Start() and Wait().
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		return err
	}
	d.Wait()
	return nil
}

// resetIdleTimer resets the idle timeout timer.
// This should be called whenever there is activity.
func (d *Daemon) resetIdleTimer() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastActivity = time.Now()
	if d.idleTimer != nil && d.config.IdleTimeout > 0 {
		d.idleTimer.Reset(d.config.IdleTimeout)
	}
}

// onIdleTimeout is called when the idle timer expires.
func (d *Daemon) onIdleTimeout() {
	d.log("idle timeout reached after %v, shutting down", d.config.IdleTimeout)
	d.Stop()
}

// handleSignals sets up signal handlers for graceful shutdown.
func (d *Daemon) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		d.log("received signal %v, shutting down", sig)
		d.Stop()
	case <-d.shutdown:
		// Already shutting down
	}
}

// handleRequest processes an incoming request from a client.
func (d *Daemon) handleRequest(req *Request) *Response {
	// Reset idle timer on any activity
	d.resetIdleTimer()

	switch req.Type {
	case RequestTypeHealth:
		return d.handleHealthRequest()
	case RequestTypeStatus:
		return d.handleStatusRequest()
	case RequestTypeEmbed:
		return d.handleEmbedRequest(req)
	case RequestTypeEmbedBatch:
		return d.handleEmbedBatchRequest(req)
	case RequestTypeLastError:
		return d.handleLastErrorRequest()
	case RequestTypeModels:
		return d.handleModelsRequest()
	case RequestTypeStop:
		return d.handleStopRequest()
	default:
		return &Response{
			Success: false,
			Error:   fmt.Sprintf("unknown request type: %s", req.Type),
			Code:    embedder.CodeEmbeddingFailed.String(),
		}
	}
}

// errorResponse builds a failure response carrying the error's code.
func errorResponse(err error) *Response {
	return &Response{
		Success: false,
		Error:   err.Error(),
		Code:    embedder.CodeOf(err).String(),
	}
}

// handleHealthRequest returns a simple health check response.
func (d *Daemon) handleHealthRequest() *Response {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return &Response{
		Success: true,
		Data: map[string]interface{}{
			"healthy":  true,
			"pid":      os.Getpid(),
			"version":  embedder.Version,
			"uptime":   time.Since(d.startedAt).String(),
			"uptime_s": int64(time.Since(d.startedAt).Seconds()),
		},
	}
}

// handleStatusRequest returns detailed daemon status.
func (d *Daemon) handleStatusRequest() *Response {
	status := d.GetStatus()

	data, err := json.Marshal(status)
	if err != nil {
		return &Response{
			Success: false,
			Error:   fmt.Sprintf("marshal status: %v", err),
		}
	}

	var dataMap map[string]interface{}
	json.Unmarshal(data, &dataMap)

	return &Response{
		Success: true,
		Data:    dataMap,
	}
}

// handleEmbedRequest embeds a single text against the warm engine.
func (d *Daemon) handleEmbedRequest(req *Request) *Response {
	if req.Text == nil {
		return errorResponse(embedder.ErrNullPointer)
	}

	vec, err := d.registry.Embed(context.Background(), d.handle, *req.Text)
	if err != nil {
		return errorResponse(err)
	}

	d.countRequest()
	return &Response{
		Success: true,
		Data: map[string]interface{}{
			"embedding": vec,
			"dims":      len(vec),
			"model":     d.modelVersion(),
		},
	}
}

// handleEmbedBatchRequest embeds several texts in one call. The batch either
// succeeds for every text or fails as a whole.
func (d *Daemon) handleEmbedBatchRequest(req *Request) *Response {
	if req.Texts == nil {
		return errorResponse(embedder.ErrNullPointer)
	}

	vecs, err := d.registry.EmbedBatch(context.Background(), d.handle, req.Texts)
	if err != nil {
		return errorResponse(err)
	}

	d.countRequest()
	dims := 0
	if len(vecs) > 0 {
		dims = len(vecs[0])
	}
	return &Response{
		Success: true,
		Data: map[string]interface{}{
			"embeddings": vecs,
			"count":      len(vecs),
			"dims":       dims,
			"model":      d.modelVersion(),
		},
	}
}

// modelVersion reports the registered engine's model version, or "" when the
// handle has been released.
func (d *Daemon) modelVersion() string {
	engine, err := d.registry.Engine(d.handle)
	if err != nil {
		return ""
	}
	return engine.ModelVersion()
}

// handleLastErrorRequest reports the message recorded by the most recent
// failed embed call, if any.
func (d *Daemon) handleLastErrorRequest() *Response {
	msg, present, err := d.registry.LastError(d.handle)
	if err != nil {
		return errorResponse(err)
	}

	return &Response{
		Success: true,
		Data: map[string]interface{}{
			"present": present,
			"message": msg,
		},
	}
}

// handleModelsRequest lists the models in the catalog.
func (d *Daemon) handleModelsRequest() *Response {
	var list []map[string]interface{}
	for _, m := range models.All() {
		list = append(list, map[string]interface{}{
			"name":       m.Name,
			"hub_id":     m.HubID,
			"dimensions": m.Dimensions,
		})
	}

	return &Response{
		Success: true,
		Data: map[string]interface{}{
			"models":  list,
			"current": d.config.ModelName,
		},
	}
}

// handleStopRequest handles a request to stop the daemon.
func (d *Daemon) handleStopRequest() *Response {
	// Schedule stop after sending response
	go func() {
		time.Sleep(100 * time.Millisecond)
		d.Stop()
	}()

	return &Response{
		Success: true,
		Data: map[string]interface{}{
			"message": "daemon shutting down",
		},
	}
}

// countRequest bumps the served-request counter.
func (d *Daemon) countRequest() {
	d.mu.Lock()
	d.requestsServed++
	d.mu.Unlock()
}

// GetStatus returns the current daemon status.
func (d *Daemon) GetStatus() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	now := time.Now()
	status := Status{
		Running:        d.startedAt != (time.Time{}),
		PID:            os.Getpid(),
		SocketPath:     d.config.SocketPath,
		Model:          d.config.ModelName,
		IdleTimeout:    d.config.IdleTimeout,
		RequestsServed: d.requestsServed,
	}

	if d.config.Engine != nil {
		status.ModelVersion = d.config.Engine.ModelVersion()
		status.Dimensions = d.config.Engine.Dimensions()
	}

	if status.Running {
		status.StartedAt = d.startedAt
		status.Uptime = now.Sub(d.startedAt)
		status.LastActivity = d.lastActivity
		status.IdleTime = now.Sub(d.lastActivity)

		if d.config.IdleTimeout > 0 {
			remaining := d.config.IdleTimeout - status.IdleTime
			if remaining < 0 {
				remaining = 0
			}
			status.TimeUntilShutdown = remaining
		}
	}

	return status
}

// IsRunning checks if a daemon is currently running by checking the PID file.
func IsRunning(pidPath string) (bool, int, error) {
	if pidPath == "" {
		pidPath = DefaultPIDPath()
	}

	pid, err := readPIDFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}

	if isProcessRunning(pid) {
		return true, pid, nil
	}

	// PID file exists but process is not running - stale file
	os.Remove(pidPath)
	return false, 0, nil
}

// readPIDFile reads the PID from the PID file.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, fmt.Errorf("parse PID: %w", err)
	}

	return pid, nil
}

// writePIDFile writes the PID to the PID file.
func writePIDFile(path string, pid int) error {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create PID directory: %w", err)
	}

	return os.WriteFile(path, []byte(fmt.Sprintf("%d", pid)), 0644)
}

// isProcessRunning checks if a process with the given PID is running.
func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds; send signal 0 to check if process exists
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hargabyte/emb/internal/embedder"
)

// stubEngine is a minimal in-memory engine for daemon tests.
type stubEngine struct {
	dims     int
	failWith error
}

func (s *stubEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	vec := make([]float32, s.dims)
	for i := range vec {
		vec[i] = float32(len(text)%7) / 7.0
	}
	return vec, nil
}

func (s *stubEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = s.Embed(ctx, t)
	}
	return out, nil
}

func (s *stubEngine) ModelVersion() string { return "stub/v1" }
func (s *stubEngine) Dimensions() int      { return s.dims }
func (s *stubEngine) Close() error         { return nil }

func startTestDaemon(t *testing.T, engine embedder.Embedder) (*Daemon, *Client) {
	t.Helper()
	tmpDir := t.TempDir()

	d, err := New(Config{
		SocketPath:  filepath.Join(tmpDir, "d.sock"),
		PIDPath:     filepath.Join(tmpDir, "d.pid"),
		IdleTimeout: time.Minute,
		Engine:      engine,
		ModelName:   "stub",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	d.SetLogger(func(format string, args ...interface{}) {})

	if err := d.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { d.Stop() })

	return d, NewClient(d.config.SocketPath)
}

func TestDaemonStartStopLogging(t *testing.T) {
	tmpDir := t.TempDir()

	d, err := New(Config{
		SocketPath:  filepath.Join(tmpDir, "d.sock"),
		PIDPath:     filepath.Join(tmpDir, "d.pid"),
		IdleTimeout: time.Minute,
		Engine:      &stubEngine{dims: 4},
		ModelName:   "stub",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	var mu sync.Mutex
	var lines []string
	d.SetLogger(func(format string, args ...interface{}) {
		mu.Lock()
		lines = append(lines, fmt.Sprintf(format, args...))
		mu.Unlock()
	})

	// Start and Stop log while holding the daemon's lock; both must return.
	done := make(chan error, 1)
	go func() { done <- d.Start() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return")
	}

	go func() { done <- d.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "started") {
		t.Errorf("expected a started log line, got %q", joined)
	}
	if !strings.Contains(joined, "stopped") {
		t.Errorf("expected a stopped log line, got %q", joined)
	}
}

func TestDaemonZeroIdleTimeoutDisablesShutdown(t *testing.T) {
	tmpDir := t.TempDir()

	d, err := New(Config{
		SocketPath: filepath.Join(tmpDir, "d.sock"),
		PIDPath:    filepath.Join(tmpDir, "d.pid"),
		Engine:     &stubEngine{dims: 4},
		ModelName:  "stub",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	d.SetLogger(nil)

	if err := d.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { d.Stop() })

	if d.idleTimer != nil {
		t.Error("idle timer should not be armed with zero timeout")
	}

	status := d.GetStatus()
	if status.IdleTimeout != 0 {
		t.Errorf("IdleTimeout = %v, want 0", status.IdleTimeout)
	}
	if status.TimeUntilShutdown != 0 {
		t.Errorf("TimeUntilShutdown = %v, want 0", status.TimeUntilShutdown)
	}
}

func TestIsRunning(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "d.pid")

	// No PID file.
	running, _, err := IsRunning(pidPath)
	if err != nil {
		t.Fatalf("IsRunning() error: %v", err)
	}
	if running {
		t.Error("expected not running without a PID file")
	}

	// Live process.
	if err := writePIDFile(pidPath, os.Getpid()); err != nil {
		t.Fatal(err)
	}
	running, pid, err := IsRunning(pidPath)
	if err != nil {
		t.Fatalf("IsRunning() error: %v", err)
	}
	if !running || pid != os.Getpid() {
		t.Errorf("IsRunning() = (%v, %d), want (true, %d)", running, pid, os.Getpid())
	}

	// Stale PID file is detected and removed.
	if err := writePIDFile(pidPath, 999999); err != nil {
		t.Fatal(err)
	}
	running, _, err = IsRunning(pidPath)
	if err != nil {
		t.Fatalf("IsRunning() error: %v", err)
	}
	if running {
		t.Error("expected not running for a stale PID")
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("stale PID file should be removed")
	}
}

func TestDefaultPaths(t *testing.T) {
	if !strings.Contains(DefaultSocketPath(), ".emb") {
		t.Errorf("socket path should contain .emb: %s", DefaultSocketPath())
	}
	if !strings.Contains(DefaultPIDPath(), ".emb") {
		t.Errorf("pid path should contain .emb: %s", DefaultPIDPath())
	}
}

func TestNewRequiresEngine(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Error("New() without engine should fail")
	}
}

func TestPIDFileOperations(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")

	testPID := 12345
	if err := writePIDFile(pidPath, testPID); err != nil {
		t.Fatalf("write PID file: %v", err)
	}

	readPID, err := readPIDFile(pidPath)
	if err != nil {
		t.Fatalf("read PID file: %v", err)
	}
	if readPID != testPID {
		t.Errorf("expected PID %d, got %d", testPID, readPID)
	}

	if _, err := readPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid")); err == nil {
		t.Error("expected error reading non-existent PID file")
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("current process should be running")
	}
	if isProcessRunning(999999) {
		t.Error("non-existent process should not be running")
	}
}

func TestDaemonHealth(t *testing.T) {
	_, client := startTestDaemon(t, &stubEngine{dims: 4})

	resp, err := client.Health()
	if err != nil {
		t.Fatalf("Health() error: %v", err)
	}
	if !resp.Success {
		t.Fatalf("Health() not successful: %s", resp.Error)
	}
	if healthy, _ := resp.Data["healthy"].(bool); !healthy {
		t.Error("expected healthy=true")
	}
	if version, _ := resp.Data["version"].(string); version != embedder.Version {
		t.Errorf("version = %q, want %q", version, embedder.Version)
	}
}

func TestDaemonEmbed(t *testing.T) {
	_, client := startTestDaemon(t, &stubEngine{dims: 4})

	resp, err := client.Embed("hello world")
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if !resp.Success {
		t.Fatalf("Embed() not successful: %s", resp.Error)
	}

	vec, ok := resp.Data["embedding"].([]interface{})
	if !ok {
		t.Fatalf("embedding missing from response: %v", resp.Data)
	}
	if len(vec) != 4 {
		t.Errorf("embedding has %d values, want 4", len(vec))
	}
	if dims, _ := resp.Data["dims"].(float64); int(dims) != 4 {
		t.Errorf("dims = %v, want 4", resp.Data["dims"])
	}
	if model, _ := resp.Data["model"].(string); model != "stub/v1" {
		t.Errorf("model = %q, want stub/v1", model)
	}
}

func TestDaemonEmbedMissingText(t *testing.T) {
	_, client := startTestDaemon(t, &stubEngine{dims: 4})

	resp, err := client.Send(&Request{Type: RequestTypeEmbed})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if resp.Success {
		t.Fatal("embed without text should fail")
	}
	if resp.Code != "NullPointer" {
		t.Errorf("code = %q, want NullPointer", resp.Code)
	}
}

func TestDaemonEmbedBatch(t *testing.T) {
	_, client := startTestDaemon(t, &stubEngine{dims: 4})

	resp, err := client.EmbedBatch([]string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("EmbedBatch() error: %v", err)
	}
	if !resp.Success {
		t.Fatalf("EmbedBatch() not successful: %s", resp.Error)
	}
	if count, _ := resp.Data["count"].(float64); int(count) != 3 {
		t.Errorf("count = %v, want 3", resp.Data["count"])
	}
}

func TestDaemonEmbedBatchMissingTexts(t *testing.T) {
	_, client := startTestDaemon(t, &stubEngine{dims: 4})

	resp, err := client.Send(&Request{Type: RequestTypeEmbedBatch})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if resp.Success {
		t.Fatal("embed_batch without texts should fail")
	}
	if resp.Code != "NullPointer" {
		t.Errorf("code = %q, want NullPointer", resp.Code)
	}
}

func TestDaemonLastError(t *testing.T) {
	engine := &stubEngine{dims: 4}
	_, client := startTestDaemon(t, engine)

	// No failures yet.
	resp, err := client.LastError()
	if err != nil {
		t.Fatalf("LastError() error: %v", err)
	}
	if present, _ := resp.Data["present"].(bool); present {
		t.Error("expected no recorded error before any failure")
	}

	// A failed embed records its message.
	engine.failWith = embedder.ErrEmbeddingFailed
	failResp, err := client.Embed("boom")
	if err != nil {
		t.Fatalf("Embed() transport error: %v", err)
	}
	if failResp.Success {
		t.Fatal("expected embed failure")
	}
	if failResp.Code != "EmbeddingFailed" {
		t.Errorf("code = %q, want EmbeddingFailed", failResp.Code)
	}

	resp, err = client.LastError()
	if err != nil {
		t.Fatalf("LastError() error: %v", err)
	}
	if present, _ := resp.Data["present"].(bool); !present {
		t.Error("expected a recorded error after failure")
	}

	// A successful embed clears it.
	engine.failWith = nil
	if _, err := client.Embed("ok"); err != nil {
		t.Fatal(err)
	}
	resp, err = client.LastError()
	if err != nil {
		t.Fatal(err)
	}
	if present, _ := resp.Data["present"].(bool); present {
		t.Error("expected recorded error cleared after success")
	}
}

func TestDaemonModels(t *testing.T) {
	_, client := startTestDaemon(t, &stubEngine{dims: 4})

	resp, err := client.Models()
	if err != nil {
		t.Fatalf("Models() error: %v", err)
	}
	if !resp.Success {
		t.Fatalf("Models() not successful: %s", resp.Error)
	}
	list, ok := resp.Data["models"].([]interface{})
	if !ok || len(list) == 0 {
		t.Errorf("models list missing or empty: %v", resp.Data)
	}
	if current, _ := resp.Data["current"].(string); current != "stub" {
		t.Errorf("current = %q, want stub", current)
	}
}

func TestDaemonStatus(t *testing.T) {
	d, client := startTestDaemon(t, &stubEngine{dims: 4})

	if _, err := client.Embed("warm up"); err != nil {
		t.Fatal(err)
	}

	status, err := GetDaemonStatus(d.config.SocketPath)
	if err != nil {
		t.Fatalf("GetDaemonStatus() error: %v", err)
	}
	if status == nil || !status.Running {
		t.Fatal("expected running status")
	}
	if status.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", status.PID, os.Getpid())
	}
	if status.Model != "stub" {
		t.Errorf("Model = %q, want stub", status.Model)
	}
	if status.Dimensions != 4 {
		t.Errorf("Dimensions = %d, want 4", status.Dimensions)
	}
	if status.RequestsServed < 1 {
		t.Errorf("RequestsServed = %d, want >= 1", status.RequestsServed)
	}
}

func TestDaemonStatusNotRunning(t *testing.T) {
	status, err := GetDaemonStatus(filepath.Join(t.TempDir(), "none.sock"))
	if err != nil {
		t.Fatalf("GetDaemonStatus() error: %v", err)
	}
	if status != nil {
		t.Errorf("status = %+v, want nil when daemon is not running", status)
	}
}

func TestDaemonStop(t *testing.T) {
	d, client := startTestDaemon(t, &stubEngine{dims: 4})

	resp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if !resp.Success {
		t.Fatalf("Stop() not successful: %s", resp.Error)
	}

	// Daemon shuts down shortly after responding.
	select {
	case <-d.shutdown:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not shut down after stop request")
	}

	if _, err := os.Stat(d.config.PIDPath); !os.IsNotExist(err) {
		t.Error("PID file should be removed after stop")
	}
}

func TestDaemonRejectsSecondInstance(t *testing.T) {
	d, _ := startTestDaemon(t, &stubEngine{dims: 4})

	second, err := New(Config{
		SocketPath: filepath.Join(t.TempDir(), "d2.sock"),
		PIDPath:    d.config.PIDPath,
		Engine:     &stubEngine{dims: 4},
	})
	if err != nil {
		t.Fatal(err)
	}
	second.SetLogger(func(format string, args ...interface{}) {})

	if err := second.Start(); err == nil {
		second.Stop()
		t.Error("second daemon on same PID file should refuse to start")
	}
}

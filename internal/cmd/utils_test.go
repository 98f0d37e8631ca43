package cmd

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hargabyte/emb/internal/config"
	"github.com/hargabyte/emb/internal/daemon"
	"github.com/hargabyte/emb/internal/embedder"
)

func TestBuildEngineUnknownModel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model = "no-such-model"

	_, _, err := buildEngine(cfg)
	if err == nil {
		t.Fatal("expected an error for an unknown model")
	}
	if code := embedder.CodeOf(err); code != embedder.CodeInitializationFailed {
		t.Errorf("CodeOf(err) = %v, want InitializationFailed", code)
	}
}

func TestBuildEngineMissingWeightsFolder(t *testing.T) {
	cfg := config.DefaultConfig()
	t.Setenv("EMB_MINI_LM_FOLDER", filepath.Join(t.TempDir(), "missing"))

	_, _, err := buildEngine(cfg)
	if err == nil {
		t.Fatal("expected an error for a missing weights folder")
	}
	if code := embedder.CodeOf(err); code != embedder.CodeInitializationFailed {
		t.Errorf("CodeOf(err) = %v, want InitializationFailed", code)
	}
}

func TestResolveIdleTimeout(t *testing.T) {
	tests := []struct {
		name          string
		flag          string
		configMinutes int
		want          time.Duration
		wantErr       bool
	}{
		{"flag zero disables", "0", 45, 0, false},
		{"flag duration wins", "1h", 45, time.Hour, false},
		{"config minutes", "", 45, 45 * time.Minute, false},
		{"default", "", 0, daemon.DefaultIdleTimeout, false},
		{"bad flag", "soon", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := daemonIdleTimeout
			daemonIdleTimeout = tt.flag
			defer func() { daemonIdleTimeout = orig }()

			got, err := resolveIdleTimeout(tt.configMinutes)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveIdleTimeout() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("resolveIdleTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/simlink/internal/appconfig"
	"pkt.systems/simlink/internal/render"
)

func TestRootHasSubcommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"play": false, "demo-sim": false, "serve-ssh": false, "config": false, "version": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("expected root command to include %s", name)
		}
	}
	if root.PersistentFlags().Lookup("socket") == nil || root.PersistentFlags().Lookup("config") == nil {
		t.Fatalf("expected persistent config and socket flags")
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), "protocol 1") {
		t.Fatalf("expected protocol version in %q", out.String())
	}
}

func TestConfigInitWritesLoadableFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "simlink.yaml")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "init", "--config", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out.String(), path) {
		t.Fatalf("expected path in output, got %q", out.String())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file: %v", err)
	}
	opts := &rootOptions{configPath: path, socketPath: "/tmp/override.sock"}
	cfg, err := opts.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SocketPath != "/tmp/override.sock" {
		t.Fatalf("expected socket override, got %q", cfg.SocketPath)
	}

	root = newRootCmd()
	root.SetArgs([]string{"config", "init", "--config", path})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected error when config exists without --force")
	}
}

func TestDisplayOptionsFromConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Client.Renderer = "kitty"
	cfg.Client.ColorMode = "256"
	cfg.Client.KeyHoldMS = 150
	cfg.Client.ConnectBackoffMS = 20
	opt, err := displayOptions(cfg)
	if err != nil {
		t.Fatalf("display options: %v", err)
	}
	if opt.Renderer != render.KindOverlay || opt.ColorMode != render.Color256 {
		t.Fatalf("unexpected renderer %q mode %q", opt.Renderer, opt.ColorMode)
	}
	if opt.KeyHold != 150*time.Millisecond || opt.Dial.InitialBackoff != 20*time.Millisecond {
		t.Fatalf("unexpected durations %v %v", opt.KeyHold, opt.Dial.InitialBackoff)
	}
	if opt.SocketPath != cfg.SocketPath {
		t.Fatalf("expected socket %q, got %q", cfg.SocketPath, opt.SocketPath)
	}

	cfg.Client.Renderer = "sixel"
	if _, err := displayOptions(cfg); err == nil {
		t.Fatalf("expected error for unknown renderer")
	}
}

func TestReplaceLatestKeepsNewest(t *testing.T) {
	ch := make(chan int, 1)
	replaceLatest(ch, 1)
	replaceLatest(ch, 2)
	if got := <-ch; got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}

func TestSessionLoggerHoldsLinesUntilFlush(t *testing.T) {
	var stderr bytes.Buffer
	ctx, flush, err := sessionLogger(context.Background(), "", &stderr)
	if err != nil {
		t.Fatalf("session logger: %v", err)
	}
	pslog.Ctx(ctx).Info("link established")
	if stderr.Len() != 0 {
		t.Fatalf("expected nothing written while the terminal is drawn, got %q", stderr.String())
	}
	flush()
	if !strings.Contains(stderr.String(), "link established") {
		t.Fatalf("expected held line after flush, got %q", stderr.String())
	}
}

func TestSessionLoggerWritesLogFile(t *testing.T) {
	var stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "play.log")
	ctx, flush, err := sessionLogger(context.Background(), path, &stderr)
	if err != nil {
		t.Fatalf("session logger: %v", err)
	}
	pslog.Ctx(ctx).Info("renderer active")
	flush()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "renderer active") || stderr.Len() != 0 {
		t.Fatalf("expected line only in log file, file %q stderr %q", data, stderr.String())
	}
}

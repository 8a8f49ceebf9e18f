package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
guest = "game.wasm"
namespace = "wbg"
reserved = 8
log-level = "debug"

[engine]
memory-limit-pages = 256

[loader]
max-size = 1048576

[frames]
count = 5
interval = "4ms"
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Guest != "game.wasm" || cfg.Namespace != "wbg" || cfg.Reserved != 8 {
		t.Errorf("top-level = %+v", cfg)
	}
	if cfg.Engine.MemoryLimitPages != 256 || cfg.Loader.MaxSize != 1<<20 {
		t.Errorf("sections = %+v %+v", cfg.Engine, cfg.Loader)
	}
	if cfg.Frames.Count != 5 {
		t.Errorf("frames = %d", cfg.Frames.Count)
	}
	if d, err := cfg.interval(); err != nil || d != 4*time.Millisecond {
		t.Errorf("interval = %v, %v", d, err)
	}
	if _, err := cfg.logger(); err != nil {
		t.Errorf("logger: %v", err)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Frames.Count != defaultFrames || cfg.LogLevel != "warn" {
		t.Errorf("defaults = %+v", cfg)
	}
	if d, _ := cfg.interval(); d != defaultInterval {
		t.Errorf("interval = %v", d)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file accepted")
	}
	if _, err := loadConfig(writeConfig(t, "guest = ")); err == nil {
		t.Error("malformed file accepted")
	}

	tests := []struct {
		name string
		cfg  func(*config)
		fn   func(*config) error
	}{
		{"bad interval", func(c *config) { c.Frames.Interval = "soon" }, func(c *config) error { _, err := c.interval(); return err }},
		{"negative interval", func(c *config) { c.Frames.Interval = "-1s" }, func(c *config) error { _, err := c.interval(); return err }},
		{"bad level", func(c *config) { c.LogLevel = "loud" }, func(c *config) error { _, err := c.logger(); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaultConfig()
			tt.cfg(c)
			if err := tt.fn(c); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRun_Demo(t *testing.T) {
	cfg := defaultConfig()
	cfg.Demo = true
	cfg.Frames.Count = 3
	cfg.Frames.Interval = "1ms"
	cfg.LogLevel = "error"

	var out bytes.Buffer
	if err := run(cfg, false, &out); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if !strings.Contains(got, "demo started") {
		t.Errorf("console output missing: %q", got)
	}
	if !strings.Contains(got, "frames: 3") {
		t.Errorf("summary = %q", got)
	}
}

func TestRun_List(t *testing.T) {
	cfg := defaultConfig()
	cfg.Demo = true
	cfg.LogLevel = "error"

	var out bytes.Buffer
	if err := run(cfg, true, &out); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"bridge#window", "bridge#request_animation_frame", "frames", "__wbindgen_start"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("listing missing %q:\n%s", want, out.String())
		}
	}
}

func TestRun_Peek(t *testing.T) {
	cfg := defaultConfig()
	cfg.Demo = true
	cfg.Frames.Count = 1
	cfg.Frames.Interval = "1ms"
	cfg.LogLevel = "error"
	cfg.Peek = "96:12"

	var out bytes.Buffer
	if err := run(cfg, false, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "|demo started|") {
		t.Errorf("dump missing guest data:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "memory: 64 KiB") {
		t.Errorf("summary missing memory size:\n%s", out.String())
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in      string
		off, n  uint32
		wantErr bool
	}{
		{"96:12", 96, 12, false},
		{"0x10:0x4", 16, 4, false},
		{"96", 0, 0, true},
		{"x:1", 0, 0, true},
		{"1:-1", 0, 0, true},
	}
	for _, tt := range tests {
		off, n, err := parseRange(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseRange(%q) err = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && (off != tt.off || n != tt.n) {
			t.Errorf("parseRange(%q) = %d, %d", tt.in, off, n)
		}
	}
}

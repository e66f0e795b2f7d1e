package manifest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "demo"
entry = "main.pinky"

[run]
max-steps = 5000
log-level = "info"

[build]
output = "build/demo.pkbc"

[server]
addr = "127.0.0.1:9000"
max-steps = 100
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "demo" {
		t.Errorf("project name = %q, want demo", m.Project.Name)
	}
	if m.Project.Entry != "main.pinky" {
		t.Errorf("project entry = %q, want main.pinky", m.Project.Entry)
	}
	if m.Run.MaxSteps != 5000 {
		t.Errorf("run max-steps = %d, want 5000", m.Run.MaxSteps)
	}
	if m.Run.LogLevel != "info" {
		t.Errorf("run log-level = %q, want info", m.Run.LogLevel)
	}
	if m.Server.Addr != "127.0.0.1:9000" || m.Server.MaxSteps != 100 {
		t.Errorf("server = %+v", m.Server)
	}
	if got, want := m.EntryPath(), filepath.Join(m.Dir, "main.pinky"); got != want {
		t.Errorf("EntryPath() = %q, want %q", got, want)
	}
	if got, want := m.OutputPath(), filepath.Join(m.Dir, "build", "demo.pkbc"); got != want {
		t.Errorf("OutputPath() = %q, want %q", got, want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Run.MaxSteps != 0 {
		t.Errorf("run max-steps = %d, want 0", m.Run.MaxSteps)
	}
	if m.Run.LogLevel != DefaultLogLevel {
		t.Errorf("run log-level = %q, want %q", m.Run.LogLevel, DefaultLogLevel)
	}
	if m.Build.Output != "minimal.pkbc" {
		t.Errorf("build output = %q, want minimal.pkbc", m.Build.Output)
	}
	if m.Server.Addr != DefaultServerAddr {
		t.Errorf("server addr = %q", m.Server.Addr)
	}
	if m.Server.MaxSteps != DefaultServerMaxSteps {
		t.Errorf("server max-steps = %d", m.Server.MaxSteps)
	}
	if m.EntryPath() != "" {
		t.Errorf("EntryPath() = %q, want empty", m.EntryPath())
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "[project]\nname = \"x\"\nversion = \"1\"\n", "unknown keys: project.version"},
		{"unknown table", "[image]\noutput = \"x\"\n", "unknown keys: image"},
		{"bad syntax", "[project\n", "parse error"},
		{"bad log level", "[run]\nlog-level = \"loud\"\n", `unknown log level "loud"`},
		{"negative steps", "[run]\nmax-steps = -1\n", "run.max-steps must not be negative"},
		{"wrong type", "[run]\nmax-steps = \"many\"\n", "parse error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[project]\nname = \"found-project\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no pinky.toml exists")
	}
}

func TestVerbosity(t *testing.T) {
	tests := []struct {
		level string
		want  int
	}{
		{"none", -4},
		{"error", -2},
		{"warning", -1},
		{"INFO", 1},
		{"debug", 2},
	}
	for _, tt := range tests {
		got, err := Verbosity(tt.level)
		if err != nil || got != tt.want {
			t.Errorf("Verbosity(%q) = %d, %v, want %d", tt.level, got, err, tt.want)
		}
	}
	if _, err := Verbosity("chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := Default()
	m.Project = Project{Name: "fresh", Entry: "main.pinky"}
	m.Build.Output = "fresh.pkbc"

	if err := Write(dir, m); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Project != m.Project || loaded.Run != m.Run || loaded.Build != m.Build || loaded.Server != m.Server {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, m)
	}

	err = Write(dir, m)
	if !errors.Is(err, fs.ErrExist) {
		t.Errorf("second Write should fail with ErrExist, got %v", err)
	}
}

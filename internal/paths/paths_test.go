package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ///////////////////////////////////////////////
// Constant Value Tests
// ///////////////////////////////////////////////

func TestConstantValues(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"PIDFile", PIDFile, "daemon.pid"},
		{"ConfigFile", ConfigFile, "config.toml"},
		{"LogFile", LogFile, "daemon.log"},
		{"StatsFile", StatsFile, "stats.json"},
		{"DropInDir", DropInDir, "conf.d"},
		{"BinaryName", BinaryName, "sigdemo"},
		{"DataDirRel", DataDirRel, ".sigdemo"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

// ///////////////////////////////////////////////
// DataDir Method Tests
// ///////////////////////////////////////////////

func TestDataDirMethods(t *testing.T) {
	root := filepath.Join("var", "lib", "sigdemo")
	d := DataDir{Root: root}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"PID", d.PID(), filepath.Join(root, "daemon.pid")},
		{"Config", d.Config(), filepath.Join(root, "config.toml")},
		{"Log", d.Log(), filepath.Join(root, "daemon.log")},
		{"Stats", d.Stats(), filepath.Join(root, "stats.json")},
		{"DropIns", d.DropIns(), filepath.Join(root, "conf.d")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestDataDirEmptyRoot(t *testing.T) {
	d := DataDir{}
	if got := d.PID(); got != PIDFile {
		t.Errorf("PID() with empty root = %q, want %q", got, PIDFile)
	}
}

func TestDefault(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv(EnvDataDir, dir)
		d, err := Default()
		if err != nil {
			t.Fatalf("Default: %v", err)
		}
		if d.Root != dir {
			t.Errorf("Root = %q, want %q", d.Root, dir)
		}
	})

	t.Run("home", func(t *testing.T) {
		t.Setenv(EnvDataDir, "")
		home, err := os.UserHomeDir()
		if err != nil {
			t.Skipf("no home directory: %v", err)
		}
		d, err := Default()
		if err != nil {
			t.Fatalf("Default: %v", err)
		}
		if want := filepath.Join(home, DataDirRel); d.Root != want {
			t.Errorf("Root = %q, want %q", d.Root, want)
		}
	})
}

// ///////////////////////////////////////////////
// Default Config Sync
// ///////////////////////////////////////////////

// The generated config.default.toml documents file names; keep it in step
// with the constants above.
func TestDefaultConfigMentionsFileNames(t *testing.T) {
	data, err := os.ReadFile(filepath.Join(findRepoRoot(t), "config.default.toml"))
	if err != nil {
		t.Fatalf("read config.default.toml: %v", err)
	}
	for _, name := range []string{LogFile, StatsFile, ConfigFile, DropInDir + "/"} {
		if !strings.Contains(string(data), name) {
			t.Errorf("config.default.toml does not mention %q", name)
		}
	}
}

// findRepoRoot walks up from the working directory to the directory that
// holds go.mod.
func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("os.Getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find repo root (go.mod)")
		}
		dir = parent
	}
}

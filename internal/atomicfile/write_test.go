package atomicfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// tempLeftovers lists temporary files remaining in dir.
func tempLeftovers(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var left []string
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			left = append(left, e.Name())
		}
	}
	return left
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	for _, content := range []string{"version = 1\n", "version = 1\n[log]\nlevel = \"debug\"\n"} {
		if err := Write(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Write: %v", err)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if string(got) != content {
			t.Errorf("content = %q, want %q", got, content)
		}
	}
	if left := tempLeftovers(t, dir); len(left) > 0 {
		t.Errorf("temp files left behind: %v", left)
	}
}

func TestWrite_CreatesParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.d", "nested", "10-local.toml")
	if err := Write(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Stat: %v", err)
	}
}

func TestWrite_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	if err := Write(path, []byte("123"), 0o600); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	// Windows only honors the owner write bit.
	if info.Mode().Perm()&0o600 == 0 {
		t.Errorf("permissions = %o, want at least owner rw", info.Mode().Perm())
	}
}

func TestWrite_FailureLeavesTargetAndNoTemp(t *testing.T) {
	dir := t.TempDir()
	// A non-empty directory cannot be replaced by a rename.
	target := filepath.Join(dir, "stats.json")
	if err := os.MkdirAll(filepath.Join(target, "keep"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := Write(target, []byte("{}"), 0o644); err == nil {
		t.Fatal("expected rename over a directory to fail")
	}
	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		t.Error("target directory was disturbed")
	}
	if left := tempLeftovers(t, dir); len(left) > 0 {
		t.Errorf("temp files left behind: %v", left)
	}
}

func TestWrite_ConcurrentDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	const n = 16

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path := filepath.Join(dir, fmt.Sprintf("snap-%02d.json", i))
			if err := Write(path, []byte(fmt.Sprint(i)), 0o644); err != nil {
				t.Errorf("Write %d: %v", i, err)
			}
		}()
	}
	wg.Wait()

	for i := range n {
		got, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("snap-%02d.json", i)))
		if err != nil {
			t.Errorf("ReadFile %d: %v", i, err)
			continue
		}
		if string(got) != fmt.Sprint(i) {
			t.Errorf("file %d = %q", i, got)
		}
	}
	if left := tempLeftovers(t, dir); len(left) > 0 {
		t.Errorf("temp files left behind: %v", left)
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	in := map[string]float64{"routed": 3, "dropped": 1}

	if err := WriteJSON(path, in, 0o644); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasSuffix(string(data), "}\n") {
		t.Errorf("missing trailing newline: %q", data)
	}
	var out map[string]float64
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["routed"] != 3 || out["dropped"] != 1 {
		t.Errorf("decoded %v", out)
	}
}

func TestWriteJSON_Unencodable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := WriteJSON(path, map[string]any{"ch": make(chan int)}, 0o644); err == nil {
		t.Fatal("expected encode error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file created despite encode error")
	}
}

package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// ///////////////////////////////////////////////
// Line Format
// ///////////////////////////////////////////////

func TestHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, LevelInfo))

	log.Info("stop signal received", "model", "blocking")

	line := strings.TrimRight(buf.String(), "\r\n")
	for _, want := range []string{"[INFO]", "stop signal received", "| model=blocking"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if ts := strings.Split(line, " [")[0]; !strings.HasSuffix(ts, "Z") {
		t.Errorf("timestamp %q is not UTC", ts)
	}
}

func TestHandler_Attrs(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want string
		bare bool
	}{
		{"none", nil, "", true},
		{"one", []any{"category", "reload_config"}, "| category=reload_config", false},
		{"several", []any{"a", 1, "b", 2}, "a=1, b=2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			slog.New(NewHandler(&buf, LevelInfo)).Info("msg", tt.args...)
			line := strings.TrimRight(buf.String(), "\r\n")
			if tt.bare && strings.Contains(line, "|") {
				t.Errorf("expected no attribute separator, got %q", line)
			}
			if !strings.Contains(line, tt.want) {
				t.Errorf("line %q missing %q", line, tt.want)
			}
		})
	}
}

func TestHandler_MultilineValueQuoted(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, LevelInfo))

	log.Info("callback panicked", "stack", "goroutine 1\nmain.main()")

	out := buf.String()
	if n := strings.Count(strings.TrimRight(out, "\r\n"), "\n"); n != 0 {
		t.Fatalf("record spans %d extra lines: %q", n, out)
	}
	if !strings.Contains(out, `stack="goroutine 1\nmain.main()"`) {
		t.Errorf("expected quoted stack, got %q", out)
	}
}

// ///////////////////////////////////////////////
// Levels
// ///////////////////////////////////////////////

func TestHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, LevelWarn))

	log.Info("filtered")
	log.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "filtered") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn record should pass at warn level")
	}
}

func TestHandler_LevelVar(t *testing.T) {
	var buf bytes.Buffer
	var lv slog.LevelVar
	lv.Set(LevelWarn)
	log := slog.New(NewHandler(&buf, &lv))

	log.Debug("before")
	lv.Set(LevelDebug)
	log.Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Error("debug record logged while level was warn")
	}
	if !strings.Contains(out, "after") {
		t.Error("debug record dropped after lowering the level")
	}
}

func TestHandler_NilLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, nil)
	if h.Enabled(t.Context(), LevelDebug) {
		t.Error("debug enabled with nil level")
	}
	if !h.Enabled(t.Context(), LevelInfo) {
		t.Error("info disabled with nil level")
	}
}

func TestHandler_CustomLevels(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, LevelTrace))

	Trace(log, "routing detail")
	Fail(log, "callback panicked")

	out := buf.String()
	if !strings.Contains(out, "[TRACE] routing detail") {
		t.Errorf("expected trace record, got %q", out)
	}
	if !strings.Contains(out, "[FAIL] callback panicked") {
		t.Errorf("expected fail record, got %q", out)
	}
}

func TestLevelName(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{LevelTrace, "TRACE"},
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LevelFail, "FAIL"},
		{LevelFail + 4, "FAIL"},
	}
	for _, tt := range tests {
		if got := levelName(tt.level); got != tt.want {
			t.Errorf("levelName(%d) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", LevelDebug},
		{" info ", LevelInfo},
		{"Warn", LevelWarn},
		{"error", LevelError},
		{"fail", LevelFail},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Derived Handlers
// ///////////////////////////////////////////////

func TestHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo)
	log := slog.New(h.WithAttrs([]slog.Attr{slog.String("component", "sigdemo")}))

	log.Info("started", "pid", 42)

	line := strings.TrimRight(buf.String(), "\r\n")
	if !strings.Contains(line, "component=sigdemo, pid=42") {
		t.Errorf("expected pre-applied attr before record attrs, got %q", line)
	}
}

func TestHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo)

	slog.New(h.WithGroup("dispatch").WithGroup("worker")).Info("joined", "outcome", "completed")

	line := strings.TrimRight(buf.String(), "\r\n")
	if !strings.Contains(line, "dispatch.worker.outcome=completed") {
		t.Errorf("expected nested group prefix, got %q", line)
	}
	if h.WithGroup("") != h {
		t.Error("WithGroup(\"\") should return the same handler")
	}
}

func TestHandler_DerivedShareMutex(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo)
	h2 := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).(*Handler)
	h3 := h.WithGroup("g").(*Handler)

	if h.mu != h2.mu || h.mu != h3.mu {
		t.Fatal("derived handlers must share the write mutex")
	}

	var wg sync.WaitGroup
	for _, hh := range []slog.Handler{h, h2, h3} {
		log := slog.New(hh)
		for range 30 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				log.Info("concurrent")
			}()
		}
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(buf.String(), "\r\n"), "\n")
	if len(lines) != 90 {
		t.Fatalf("got %d lines, want 90", len(lines))
	}
	for _, l := range lines {
		if !strings.Contains(l, "[INFO] concurrent") {
			t.Errorf("interleaved line: %q", l)
		}
	}
}

// ///////////////////////////////////////////////
// Constructor
// ///////////////////////////////////////////////

func TestNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sigdemo.log")
	var mirror bytes.Buffer

	log, out, err := New(Options{Path: path, Level: LevelInfo, MaxSizeMB: 1, Mirror: &mirror})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("written")
	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "written") {
		t.Errorf("log file missing record: %q", data)
	}
	if !strings.Contains(mirror.String(), "written") {
		t.Errorf("mirror missing record: %q", mirror.String())
	}
}

func TestNew_EmptyPath(t *testing.T) {
	if _, _, err := New(Options{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOutput_Rotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sigdemo.log")

	log, out, err := New(Options{Path: path, Level: LevelInfo, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer out.Close()

	log.Info("first file")
	if err := out.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	log.Info("second file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if strings.Contains(string(data), "first file") {
		t.Error("rotated record still in current file")
	}
	if !strings.Contains(string(data), "second file") {
		t.Error("current file missing post-rotation record")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d files after rotation, want 2", len(entries))
	}
}

// ///////////////////////////////////////////////
// ReadTail
// ///////////////////////////////////////////////

func TestReadTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tail.log")
	if err := os.WriteFile(path, []byte("l1\nl2\nl3\nl4\nl5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{2, "l4\nl5"},
		{5, "l1\nl2\nl3\nl4\nl5"},
		{9, "l1\nl2\nl3\nl4\nl5"},
	}
	for _, tt := range tests {
		got, err := ReadTail(path, tt.n)
		if err != nil {
			t.Fatalf("ReadTail(%d): %v", tt.n, err)
		}
		if got != tt.want {
			t.Errorf("ReadTail(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestReadTail_MissingFile(t *testing.T) {
	if _, err := ReadTail(filepath.Join(t.TempDir(), "absent.log"), 3); err == nil {
		t.Fatal("expected error for missing file")
	}
}

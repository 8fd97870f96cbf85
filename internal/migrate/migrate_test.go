package migrate

import (
	"errors"
	"strings"
	"testing"
)

// appendStep returns a migration to v that appends suffix to the document.
func appendStep(v int, suffix string) Migration {
	return Migration{Version: v, Description: "append " + suffix, Upgrade: func(d []byte) ([]byte, error) {
		return append(d, suffix...), nil
	}}
}

// ///////////////////////////////////////////////
// Run
// ///////////////////////////////////////////////

func TestRun(t *testing.T) {
	tests := []struct {
		name        string
		from        int
		migrations  []Migration
		wantData    string
		wantVersion int
	}{
		{
			name:        "none registered",
			from:        1,
			wantData:    "doc",
			wantVersion: 1,
		},
		{
			name:        "already applied",
			from:        2,
			migrations:  []Migration{appendStep(2, "-v2")},
			wantData:    "doc",
			wantVersion: 2,
		},
		{
			name:        "applies in version order",
			from:        1,
			migrations:  []Migration{appendStep(3, "-v3"), appendStep(2, "-v2")},
			wantData:    "doc-v2-v3",
			wantVersion: 3,
		},
		{
			name:        "starts after from",
			from:        2,
			migrations:  []Migration{appendStep(2, "-v2"), appendStep(3, "-v3")},
			wantData:    "doc-v3",
			wantVersion: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, version, err := Run([]byte("doc"), tt.from, tt.migrations)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if string(out) != tt.wantData || version != tt.wantVersion {
				t.Errorf("Run = %q v%d, want %q v%d", out, version, tt.wantData, tt.wantVersion)
			}
		})
	}
}

func TestRun_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	migrations := []Migration{
		appendStep(2, "-v2"),
		{Version: 3, Description: "fails", Upgrade: func([]byte) ([]byte, error) { return nil, boom }},
		appendStep(4, "-v4"),
	}
	_, version, err := Run([]byte("doc"), 1, migrations)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if !strings.Contains(err.Error(), "migration to v3 failed") {
		t.Errorf("err = %q", err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
}

func TestRun_DoesNotReorderInput(t *testing.T) {
	migrations := []Migration{appendStep(3, "-v3"), appendStep(2, "-v2")}
	if _, _, err := Run(nil, 1, migrations); err != nil {
		t.Fatal(err)
	}
	if migrations[0].Version != 3 {
		t.Error("Run sorted the caller's slice")
	}
}

// ///////////////////////////////////////////////
// NeedsMigration
// ///////////////////////////////////////////////

func TestNeedsMigration(t *testing.T) {
	tests := []struct {
		name       string
		file       int
		current    int
		migrations []Migration
		want       bool
	}{
		{"older file", 1, 2, nil, true},
		{"up to date", 2, 2, nil, false},
		{"newer file", 3, 2, nil, false},
		{"pending migration", 2, 2, []Migration{{Version: 3}}, true},
		{"applied migration", 2, 2, []Migration{{Version: 2}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsMigration(tt.file, tt.current, tt.migrations); got != tt.want {
				t.Errorf("NeedsMigration(%d, %d) = %v, want %v", tt.file, tt.current, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Registry
// ///////////////////////////////////////////////

func TestRegistry(t *testing.T) {
	r := &Registry{CurrentVersion: 3}
	r.Register(appendStep(2, "-v2"))
	r.Register(appendStep(3, "-v3"))

	if !r.NeedsMigration(1) || r.NeedsMigration(3) {
		t.Error("NeedsMigration disagrees with registered versions")
	}
	out, version, err := r.Run([]byte("doc"), 1)
	if err != nil || string(out) != "doc-v2-v3" || version != 3 {
		t.Errorf("Run = %q v%d, %v", out, version, err)
	}
}

func TestRegistry_RegisterPanics(t *testing.T) {
	tests := []struct {
		name string
		m    Migration
	}{
		{"duplicate", appendStep(2, "again")},
		{"beyond current", appendStep(5, "future")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Registry{CurrentVersion: 3}
			r.Register(appendStep(2, "-v2"))
			defer func() {
				if recover() == nil {
					t.Error("Register did not panic")
				}
			}()
			r.Register(tt.m)
		})
	}
}

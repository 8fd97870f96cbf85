package main

import (
	"reflect"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"

	"tools.zach/dev/sigdispatch/internal/config"
)

// ///////////////////////////////////////////////
// render
// ///////////////////////////////////////////////

func TestRender_DecodesToExample(t *testing.T) {
	out, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	got := &config.Config{}
	if _, err := toml.Decode(out, got); err != nil {
		t.Fatalf("rendered file does not parse: %v\n%s", err, out)
	}
	if !reflect.DeepEqual(got, config.ExampleConfig()) {
		t.Errorf("decoded %+v, want %+v", got, config.ExampleConfig())
	}
}

func TestRender_Annotations(t *testing.T) {
	out, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		"# sigdemo Configuration",
		"# ///// Dispatch /////",
		"# Per-category queue bound. 0 = unbounded.",
		`# level = "trace"`,
		// notify.url is omitempty and unset, so only its docs appear.
		`# url = "http://127.0.0.1:9000/hooks/sigdemo"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, "\nurl =") {
		t.Error("unset notify.url rendered as an active key")
	}
	if !strings.HasSuffix(out, "\n") || strings.HasSuffix(out, "\n\n") {
		t.Error("output should end with exactly one newline")
	}
}

func TestRender_OmittedKeysStayInSection(t *testing.T) {
	docs := map[string]config.FieldDoc{
		"notify.url":       {Comment: "endpoint"},
		"notify.unknown.x": {Comment: "nested, never injected"},
	}
	out, err := render(config.DefaultConfig(), docs)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	notify := strings.Index(out, "[notify]")
	endpoint := strings.Index(out, "# endpoint")
	if notify < 0 || endpoint < notify {
		t.Errorf("omitted key docs not placed under [notify]:\n%s", out)
	}
	if strings.Contains(out, "nested, never injected") {
		t.Error("nested doc key injected into parent section")
	}
}

// ///////////////////////////////////////////////
// Section Helpers
// ///////////////////////////////////////////////

func TestParseSectionPath(t *testing.T) {
	tests := []struct {
		section string
		want    []string
	}{
		{"log", []string{"log"}},
		{"dispatch.limits", []string{"dispatch", "limits"}},
	}
	for _, tt := range tests {
		if got := parseSectionPath(tt.section); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseSectionPath(%q) = %v, want %v", tt.section, got, tt.want)
		}
	}
}

func TestSectionName(t *testing.T) {
	tests := map[string]string{
		"log":             "Log",
		"dispatch.limits": "Limits",
		"a":               "A",
		"":                "",
	}
	for in, want := range tests {
		if got := sectionName(in); got != want {
			t.Errorf("sectionName(%q) = %q, want %q", in, got, want)
		}
	}
}

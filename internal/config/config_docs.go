package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "dispatch.event_capacity")
// to their [FieldDoc] entries. Section keys ("log", "dispatch") annotate the
// table header.
var ConfigDocs = map[string]FieldDoc{
	// ── Root ──────────────────────────────────────────────────────
	"version": {
		Comment: "Config schema version. Do not edit.",
	},
	"include": {
		Comment: "Drop-in files layered on top of this one, in sorted order.\nGlob patterns relative to the data directory; ** matches nested directories.",
		Alternatives: []string{
			`include = ["conf.d/**/*.toml", "local.toml"]`,
		},
	},

	// ── Log ──────────────────────────────────────────────────────
	"log": {
		Comment: "Logging configuration. A reload re-reads the level and rotates the file.",
	},
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\"\n  trace logs every routed, dropped and debounced event.",
		Alternatives: []string{
			`level = "debug"`,
			`level = "trace"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Maximum log file size in megabytes before rotation.",
	},
	"log.max_backups": {
		Comment: "Rotated log files kept next to daemon.log.",
	},

	// ── Listen ───────────────────────────────────────────────────
	"listen": {
		Comment: "TCP echo listener. Connections are accepted only after startup completes.",
	},
	"listen.address": {
		Comment: "host:port to bind. Empty disables the listener.",
		Alternatives: []string{
			`address = ""`,
			`address = "0.0.0.0:7007"`,
		},
	},

	// ── Dispatch ─────────────────────────────────────────────────
	"dispatch": {
		Comment: "Signal dispatcher tuning. Changes apply on restart.",
	},
	"dispatch.event_capacity": {
		Comment: "Signals buffered between delivery and routing. Extra deliveries are dropped.",
	},
	"dispatch.queue_capacity": {
		Comment: "Per-category queue bound. 0 = unbounded.",
	},
	"dispatch.poll_interval_ms": {
		Comment: "Wake period of the routing loop in the blocking model.",
	},
	"dispatch.async": {
		Comment: "Run callbacks cooperatively instead of on dedicated OS threads.\nSame as the -async flag.",
	},

	// ── Reload ───────────────────────────────────────────────────
	"reload": {
		Comment: "SIGHUP handling.",
	},
	"reload.simulated_work_ms": {
		Comment: "How long each reload pretends to work. Signals arriving meanwhile\ncollapse into at most one extra reload.",
	},
	"reload.watch_config": {
		Comment: "Raise SIGHUP when config.toml or a drop-in changes on disk.",
	},

	// ── Stats ────────────────────────────────────────────────────
	"stats": {
		Comment: "SIGUSR1 handling.",
	},
	"stats.write_snapshot": {
		Comment: "Write dispatcher counters to stats.json on every SIGUSR1.",
	},

	// ── Notify ───────────────────────────────────────────────────
	"notify": {
		Comment: "Lifecycle webhook: started, reload and stop events are POSTed as JSON.",
	},
	"notify.url": {
		Comment: "http(s) endpoint. Unset disables notifications.",
		Alternatives: []string{
			`url = "http://127.0.0.1:9000/hooks/sigdemo"`,
		},
	},
	"notify.retry_max": {
		Comment: "Retries after the first attempt, with exponential backoff.",
	},
	"notify.timeout_seconds": {
		Comment: "Timeout for each attempt.",
	},
}

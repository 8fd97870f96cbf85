package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"tools.zach/dev/sigdispatch/callback"
	"tools.zach/dev/sigdispatch/handler"
	"tools.zach/dev/sigdispatch/internal/atomicfile"
	"tools.zach/dev/sigdispatch/internal/config"
	"tools.zach/dev/sigdispatch/internal/echo"
	"tools.zach/dev/sigdispatch/internal/logger"
	"tools.zach/dev/sigdispatch/internal/notify"
	"tools.zach/dev/sigdispatch/internal/paths"
)

// ///////////////////////////////////////////////
// Daemon State
// ///////////////////////////////////////////////

// daemon holds everything the signal callbacks touch. Reload runs on the
// ReloadConfig worker while stats run on the PrintStats worker, so fields
// replaced at runtime are atomic.
type daemon struct {
	paths   DataPaths
	version string
	started time.Time

	// cfg is the most recently loaded configuration.
	cfg atomic.Pointer[config.Config]

	// notifier is rebuilt on reload when the [notify] section changes.
	notifier atomic.Pointer[notify.Notifier]

	// level backs the logger so a reload can change verbosity in place.
	level *slog.LevelVar

	// logOut is the rotating log file; nil when logging to a plain writer.
	logOut *logger.Output

	log     *slog.Logger
	echo    *echo.Server
	metrics *prometheus.Registry

	// stdout receives operator hints.
	stdout io.Writer

	reloads atomic.Uint64
}

// newDaemon wires a daemon around an already loaded config. The echo
// listener is bound here but stays closed until Initialized runs.
func newDaemon(dp DataPaths, cfg *config.Config, log *slog.Logger, level *slog.LevelVar, out *logger.Output) (*daemon, error) {
	srv, err := echo.Listen(cfg.Listen.Address, log.With("component", "echo"))
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Listen.Address, err)
	}

	d := &daemon{
		paths:   dp,
		version: resolveVersion(),
		started: time.Now(),
		level:   level,
		logOut:  out,
		log:     log,
		echo:    srv,
		metrics: prometheus.NewRegistry(),
		stdout:  os.Stdout,
	}
	d.cfg.Store(cfg)
	d.notifier.Store(d.newNotifier(cfg))
	return d, nil
}

func (d *daemon) newNotifier(cfg *config.Config) *notify.Notifier {
	return notify.New(notify.Options{
		URL:      cfg.Notify.URL,
		RetryMax: cfg.Notify.RetryMax,
		Timeout:  cfg.NotifyTimeout(),
		Logger:   d.log.With("component", "notify"),
	})
}

// ///////////////////////////////////////////////
// Handler Wiring
// ///////////////////////////////////////////////

// builder returns a [handler.Builder] with every daemon callback bound.
// Cooperative builds bind the context variants so slow callbacks observe
// cancellation.
func (d *daemon) builder(async bool) *handler.Builder {
	cfg := d.cfg.Load()
	b := handler.NewBuilder().
		Logger(d.log.With("component", "dispatch")).
		Registerer(d.metrics).
		EventCapacity(cfg.Dispatch.EventCapacity).
		QueueCapacity(cfg.Dispatch.QueueCapacity).
		PollInterval(cfg.PollInterval())

	if async {
		b.InitializedContext(d.initialized).
			WaitForStopContext(d.waitForStop)
	} else {
		b.Initialized(background(d.initialized)).
			WaitForStop(background(d.waitForStop))
	}
	bindWorkers(b, d, async)
	return b
}

// background adapts a context-aware callback for the blocking model.
func background(fn func(context.Context, callback.Info)) func(callback.Info) {
	return func(info callback.Info) { fn(context.Background(), info) }
}

// ///////////////////////////////////////////////
// Callbacks
// ///////////////////////////////////////////////

// initialized opens the echo listener and tells the operator how to drive
// the daemon.
func (d *daemon) initialized(ctx context.Context, info callback.Info) {
	d.echo.Open()
	pid := os.Getpid()
	d.log.Info("sigdemo ready", "pid", pid, "addr", d.echo.Addr().String(), "at", info.Time())

	fmt.Fprintf(d.stdout, "sigdemo %s running as pid %d, echoing on %s\n", d.version, pid, d.echo.Addr())
	for _, hint := range operatorHints(pid) {
		fmt.Fprintln(d.stdout, "  "+hint)
	}

	d.send(ctx, notify.Started, map[string]any{
		"version": d.version,
		"addr":    d.echo.Addr().String(),
	})
}

// reload re-reads the config, applies what can change at runtime, rotates
// the log, and then performs the configured simulated work. A config that
// fails to load leaves the previous one in effect.
func (d *daemon) reload(ctx context.Context, info callback.Info) {
	n := d.reloads.Add(1)
	log := d.log.With("reload", n)
	log.Info("reloading config", "requested_at", info.Time())

	cfg, err := config.Load(d.paths.Root)
	if err != nil {
		log.Warn("config reload failed, keeping previous config", "error", err)
		d.send(ctx, notify.Reload, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	prev := d.cfg.Swap(cfg)
	d.level.Set(logger.ParseLevel(cfg.Log.Level))
	if prev.Notify != cfg.Notify {
		d.notifier.Store(d.newNotifier(cfg))
		log.Info("notify settings changed")
	}
	if prev.Dispatch != cfg.Dispatch || prev.Listen != cfg.Listen {
		log.Warn("dispatch and listen settings apply on restart")
	}
	if d.logOut != nil {
		if err := d.logOut.Rotate(); err != nil {
			log.Warn("log rotation failed", "error", err)
		}
	}

	if work := cfg.SimulatedWork(); work > 0 {
		logger.Trace(log, "simulating reload work", "duration", work)
		t := time.NewTimer(work)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			log.Info("reload interrupted", "error", ctx.Err())
			return
		}
	}

	log.Info("config reloaded", "level", cfg.Log.Level)
	d.send(ctx, notify.Reload, map[string]any{"ok": true, "reload": n})
}

// printStats logs a snapshot of uptime, echo counters and dispatch metrics
// and writes it to stats.json when enabled.
func (d *daemon) printStats(ctx context.Context, info callback.Info) {
	snap, err := d.snapshot(info.Time())
	if err != nil {
		d.log.Warn("gather metrics failed", "error", err)
		return
	}

	d.log.Info("stats",
		"uptime", snap.Uptime,
		"reloads", snap.Reloads,
		"echo_accepted", snap.Echo.Accepted,
		"echo_active", snap.Echo.Active,
		"echo_bytes", snap.Echo.Bytes,
	)
	for _, key := range sortedKeys(snap.Metrics) {
		d.log.Debug("metric", "name", key, "value", snap.Metrics[key])
	}

	if d.cfg.Load().Stats.WriteSnapshot {
		if err := atomicfile.WriteJSON(d.paths.Stats(), snap, 0o644); err != nil {
			d.log.Warn("write stats snapshot failed", "error", err)
		}
	}
	d.send(ctx, notify.Stats, map[string]any{"uptime": snap.Uptime})
}

// waitForStop closes the echo listener and announces the shutdown. Queued
// reload and stats work still drains after it returns.
func (d *daemon) waitForStop(ctx context.Context, info callback.Info) {
	d.log.Info("stopping", "requested_at", info.Time())
	if err := d.echo.Close(); err != nil {
		d.log.Debug("echo close", "error", err)
	}
	d.send(ctx, notify.Stop, nil)
}

// send delivers a lifecycle event, bounded by the notify timeout. Failures
// are logged and never interrupt dispatch.
func (d *daemon) send(ctx context.Context, kind notify.Kind, detail map[string]any) {
	n := d.notifier.Load()
	if !n.Enabled() {
		return
	}
	cfg := d.cfg.Load()
	ctx, cancel := context.WithTimeout(ctx, cfg.NotifyTimeout()*time.Duration(cfg.Notify.RetryMax+1))
	defer cancel()

	ev := notify.NewEvent(kind)
	ev.Detail = detail
	if err := n.Send(ctx, ev); err != nil {
		d.log.Warn("notify failed", "event", kind, "error", err)
	}
}

// ///////////////////////////////////////////////
// Stats Snapshot
// ///////////////////////////////////////////////

// statsSnapshot is the document written to stats.json.
type statsSnapshot struct {
	Time    time.Time          `json:"time"`
	PID     int                `json:"pid"`
	Version string             `json:"version"`
	Uptime  string             `json:"uptime"`
	Reloads uint64             `json:"reloads"`
	Echo    echo.Stats         `json:"echo"`
	Metrics map[string]float64 `json:"metrics"`
}

func (d *daemon) snapshot(at time.Time) (*statsSnapshot, error) {
	mfs, err := d.metrics.Gather()
	if err != nil {
		return nil, err
	}
	return &statsSnapshot{
		Time:    at.UTC(),
		PID:     os.Getpid(),
		Version: d.version,
		Uptime:  time.Since(d.started).Round(time.Second).String(),
		Reloads: d.reloads.Load(),
		Echo:    d.echo.Stats(),
		Metrics: flattenMetrics(mfs),
	}, nil
}

// flattenMetrics turns counters and histograms into "name{k=v,...}" keys.
// Histograms contribute their sample count and sum.
func flattenMetrics(mfs []*dto.MetricFamily) map[string]float64 {
	out := make(map[string]float64)
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			key := mf.GetName() + labelSuffix(m.GetLabel())
			switch {
			case m.Counter != nil:
				out[key] = m.GetCounter().GetValue()
			case m.Gauge != nil:
				out[key] = m.GetGauge().GetValue()
			case m.Histogram != nil:
				h := m.GetHistogram()
				out[mf.GetName()+"_count"+labelSuffix(m.GetLabel())] = float64(h.GetSampleCount())
				out[mf.GetName()+"_sum"+labelSuffix(m.GetLabel())] = h.GetSampleSum()
			}
		}
	}
	return out
}

func labelSuffix(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.GetName() + "=" + p.GetValue()
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ///////////////////////////////////////////////
// Config Watching
// ///////////////////////////////////////////////

// configMatcher reports whether a changed path is the main config file or a
// drop-in selected by the include patterns.
func configMatcher(root string, include []string) func(string) bool {
	return func(path string) bool {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return false
		}
		rel = filepath.ToSlash(rel)
		if rel == paths.ConfigFile {
			return true
		}
		for _, pattern := range include {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				return true
			}
		}
		return false
	}
}

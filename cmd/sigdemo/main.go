// Package main implements sigdemo, a small daemon that drives the signal
// dispatcher: it echoes TCP traffic once initialized, reloads its config on
// SIGHUP, reports stats on SIGUSR1, and drains on SIGINT, SIGTERM or SIGQUIT.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"

	rootpkg "tools.zach/dev/sigdispatch"
	"tools.zach/dev/sigdispatch/internal/config"
	"tools.zach/dev/sigdispatch/internal/logger"
	"tools.zach/dev/sigdispatch/internal/paths"
	"tools.zach/dev/sigdispatch/internal/watch"
	"tools.zach/dev/sigdispatch/register"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags (-X main.version=...). Bare
// builds fall back to the VCS info embedded by the toolchain.
var version = "dev"

// resolveVersion returns [version] when set, otherwise "dev+<hash>" with a
// ".dirty" suffix for modified trees.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// PID Management
// ///////////////////////////////////////////////

// pidToken returns a random 16-character hex token proving ownership of the
// PID file, so [removePID] only deletes a file this instance wrote.
func pidToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// writePID opens the PID file, locks it and writes "PID:TOKEN". The handle
// holds the lock and must stay open until [removePID].
func writePID(dp DataPaths, token string) (*os.File, error) {
	f, err := os.OpenFile(dp.PID(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock PID file: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d:%s", os.Getpid(), token); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return f, nil
}

// removePID unlocks and closes f, then deletes the PID file if it still
// carries token.
func removePID(dp DataPaths, token string, f *os.File) {
	if f != nil {
		_ = unlockFile(f)
		f.Close()
	}
	data, err := os.ReadFile(dp.PID())
	if err != nil {
		return
	}
	parts := strings.SplitN(string(data), ":", 2)
	if len(parts) == 2 && parts[1] == token {
		os.Remove(dp.PID())
	}
}

// checkStalePID reports whether another daemon holds the PID file lock. A
// file nobody holds is stale and is removed.
func checkStalePID(dp DataPaths) (alive bool, pid int) {
	f, err := os.OpenFile(dp.PID(), os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}

	if lockErr := lockFile(f); lockErr != nil {
		data, _ := os.ReadFile(dp.PID())
		f.Close()
		parts := strings.SplitN(string(data), ":", 2)
		if p, convErr := strconv.Atoi(parts[0]); convErr == nil {
			return true, p
		}
		return true, 0
	}

	_ = unlockFile(f)
	f.Close()
	os.Remove(dp.PID())
	return false, 0
}

// ///////////////////////////////////////////////
// Bootstrap
// ///////////////////////////////////////////////

// ensureConfig writes the embedded default config when none exists yet.
func ensureConfig(dp DataPaths) (bool, error) {
	if _, err := os.Stat(dp.Config()); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err := os.WriteFile(dp.Config(), rootpkg.DefaultConfigTOML, 0o644); err != nil {
		return false, fmt.Errorf("write default config: %w", err)
	}
	return true, nil
}

// defaultDataDir returns $SIGDEMO_DATA_DIR or ~/.sigdemo, falling back to
// ./.sigdemo when the home directory is unknown.
func defaultDataDir() string {
	dp, err := paths.Default()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return dp.Root
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	os.Exit(daemonMain(os.Args[1:], os.Stderr))
}

// daemonMain parses args, runs the daemon to completion and returns the
// process exit code.
func daemonMain(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet(paths.BinaryName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataDir := fs.String("data-dir", defaultDataDir(), "Data directory for config, logs and stats")
	async := fs.Bool("async", false, "Use the cooperative dispatch model (overrides dispatch.async)")
	tail := fs.Int("tail", 0, "Print the last N log lines and exit")
	showVersion := fs.Bool("version", false, "Print the version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	dp := DataPaths{Root: *dataDir}

	if *showVersion {
		fmt.Fprintln(stderr, paths.BinaryName, resolveVersion())
		return 0
	}
	if *tail > 0 {
		out, err := logger.ReadTail(dp.Log(), *tail)
		if err != nil {
			fmt.Fprintf(stderr, "read log: %v\n", err)
			return 1
		}
		fmt.Fprint(os.Stdout, out)
		return 0
	}

	if err := os.MkdirAll(dp.Root, 0o755); err != nil {
		fmt.Fprintf(stderr, "fatal: create data dir: %v\n", err)
		return 1
	}
	if alive, pid := checkStalePID(dp); alive {
		fmt.Fprintf(stderr, "daemon already running (pid %d)\n", pid)
		return 1
	}
	if _, err := ensureConfig(dp); err != nil {
		fmt.Fprintf(stderr, "warning: %v\n", err)
	}

	cfg, err := config.Load(dp.Root)
	if err != nil {
		fmt.Fprintf(stderr, "fatal: load config: %v\n", err)
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(logger.ParseLevel(cfg.Log.Level))
	log, logOut, err := logger.New(logger.Options{
		Path:       dp.Log(),
		Level:      level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Mirror:     stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "fatal: init logger: %v\n", err)
		return 1
	}
	defer logOut.Close()
	slog.SetDefault(log)

	token := pidToken()
	pidFile, err := writePID(dp, token)
	if err != nil {
		slog.Error("failed to write PID file", "error", err)
		return 1
	}
	defer removePID(dp, token, pidFile)

	d, err := newDaemon(dp, cfg, log, level, logOut)
	if err != nil {
		slog.Error("failed to start daemon", "error", err)
		return 1
	}

	useAsync := *async || cfg.Dispatch.Async
	slog.Info("sigdemo starting", "version", d.version, "data_dir", dp.Root, "async", useAsync)

	if err := run(d, useAsync); err != nil {
		slog.Error("dispatch failed", "error", err)
		return 1
	}
	slog.Info("sigdemo stopped")
	return 0
}

// ///////////////////////////////////////////////
// Run
// ///////////////////////////////////////////////

// run serves echo traffic and watches the config while the handler
// dispatches signals. It returns once a stop signal has been handled and
// every callback has drained.
func run(d *daemon, async bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() { serveDone <- d.echo.Serve(ctx) }()
	defer func() {
		d.echo.Close()
		if err := <-serveDone; err != nil {
			d.log.Warn("echo server stopped with error", "error", err)
		}
	}()

	cfg := d.cfg.Load()
	if cfg.Reload.WatchConfig && register.ReloadConfig.Available() {
		w, err := watch.New(watch.Options{
			Dirs:   []string{d.paths.Root, d.paths.DropIns()},
			Match:  configMatcher(d.paths.Root, cfg.Include),
			Logger: d.log.With("component", "watch"),
		})
		if err != nil {
			d.log.Warn("config watching disabled", "error", err)
		} else {
			defer w.Close()
			if w.Polling() {
				d.log.Info("using polling mode for config watching")
			}
			go w.Run(ctx, func() {
				if err := raiseReload(); err != nil {
					d.log.Warn("raise reload signal failed", "error", err)
				}
			})
		}
	}

	h := d.builder(async).Build()
	if async {
		return h.HandleAsync(ctx)
	}
	return h.Handle()
}

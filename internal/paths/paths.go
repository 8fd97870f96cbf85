// Package paths centralizes file and directory names used by the sigdemo
// daemon. All data directory file names are defined here.
package paths

import (
	"os"
	"path/filepath"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile    = "daemon.pid"
	ConfigFile = "config.toml"
	LogFile    = "daemon.log"
	StatsFile  = "stats.json"
	DropInDir  = "conf.d"
)

const (
	BinaryName = "sigdemo"
	DataDirRel = ".sigdemo" // relative to $HOME
	// EnvDataDir overrides the data directory.
	EnvDataDir = "SIGDEMO_DATA_DIR"
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// Default returns the data directory named by $SIGDEMO_DATA_DIR, falling
// back to ~/.sigdemo.
func Default() (DataDir, error) {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return DataDir{Root: dir}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DataDir{}, err
	}
	return DataDir{Root: filepath.Join(home, DataDirRel)}, nil
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// Stats returns the full path to the stats snapshot.
func (d DataDir) Stats() string { return filepath.Join(d.Root, StatsFile) }

// DropIns returns the full path to the conventional drop-in directory.
func (d DataDir) DropIns() string { return filepath.Join(d.Root, DropInDir) }

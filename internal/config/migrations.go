package config

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"

	"tools.zach/dev/sigdispatch/internal/migrate"
)

// ///////////////////////////////////////////////
// Schema Migrations
// ///////////////////////////////////////////////

// migrations upgrades config.toml files written by older builds.
var migrations = &migrate.Registry{CurrentVersion: CurrentVersion}

func init() {
	migrations.Register(migrate.Migration{
		Version:     2,
		Description: "dispatch poll interval in milliseconds",
		Upgrade:     pollIntervalMillis,
	})
}

// pollIntervalMillis replaces v1's dispatch.poll_interval_seconds with
// poll_interval_ms. An explicit poll_interval_ms wins over the old key.
func pollIntervalMillis(data []byte) ([]byte, error) {
	doc := map[string]any{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if dispatch, ok := doc["dispatch"].(map[string]any); ok {
		if old, ok := dispatch["poll_interval_seconds"]; ok {
			delete(dispatch, "poll_interval_seconds")
			if _, set := dispatch["poll_interval_ms"]; !set {
				secs, ok := old.(int64)
				if !ok {
					return nil, fmt.Errorf("dispatch.poll_interval_seconds: want an integer, got %T", old)
				}
				dispatch["poll_interval_ms"] = secs * 1000
			}
		}
	}
	doc["version"] = int64(2)

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

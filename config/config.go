// Package config loads engine configuration from a .env file and
// environment variables, the same viper-backed convention this codebase's
// sibling services use for their own configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EngineConfig mirrors the knobs an operator tunes when standing up an
// Engine: buffer pool sizing, WAL/metadata paths, lock-manager timing, and
// ticket-pool admission limits (spec.md §4.2, §6).
type EngineConfig struct {
	Path                  string `mapstructure:"path"`
	BufferPoolSize        int    `mapstructure:"buffer_pool_size"`
	WALPath               string `mapstructure:"wal_path"`
	MetadataPath          string `mapstructure:"metadata_path"`
	DeadlockIntervalMs    int    `mapstructure:"deadlock_interval_ms"`
	ReaderTicketPoolSize  int    `mapstructure:"reader_ticket_pool_size"`
	WriterTicketPoolSize  int    `mapstructure:"writer_ticket_pool_size"`
	LogLevel              string `mapstructure:"log_level"`
	LogFormat             string `mapstructure:"log_format"`
}

// DefaultEngineConfig returns the defaults named throughout spec.md:
// 500ms deadlock-detection interval (§4.1) and 128-ticket reader/writer
// pools (§4.2).
func DefaultEngineConfig(path string) *EngineConfig {
	return &EngineConfig{
		Path:                 path,
		BufferPoolSize:       1000,
		WALPath:              path + "/wal",
		MetadataPath:         path + "/system_catalog.json",
		DeadlockIntervalMs:   500,
		ReaderTicketPoolSize: 128,
		WriterTicketPoolSize: 128,
		LogLevel:             "INFO",
		LogFormat:            "json",
	}
}

// Load loads configuration from a .env file (optional) and environment
// variables prefixed with prefix (e.g. "BUNDOC_") into target, which must
// be a pointer to a struct with `mapstructure` tags.
func Load(prefix string, target interface{}) error {
	v := viper.New()

	v.SetConfigFile(".env")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// A malformed .env is non-fatal; environment variables and
			// defaults still apply, matching the optional-file contract.
		}
	}

	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		if len(pair) != 2 {
			continue
		}
		key, value := pair[0], pair[1]

		if strings.HasPrefix(key, prefixUpper) {
			propKey := strings.ToLower(strings.TrimPrefix(key, prefixUpper))
			propKey = strings.TrimPrefix(propKey, "_")
			v.Set(propKey, value)
		}
	}

	if err := v.Unmarshal(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

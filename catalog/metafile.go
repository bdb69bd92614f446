package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/kartikbazzad/bundoc-core/internal/util"
)

// metadataFileName is the single, fixed-name document under the data
// directory recording engine identity and startup options (spec.md §6
// "Persisted metadata file").
const metadataFileName = "_bundoc.metadata"

// EngineMetadata is the on-disk {engine, options} document. Options is
// intentionally a generic map so that an unrecognized key can be detected
// and rejected at startup rather than silently ignored.
type EngineMetadata struct {
	Engine  string                 `json:"engine"`
	Options map[string]interface{} `json:"options"`
}

// knownOptions lists every option key this build understands; anything
// else present in an on-disk metadata file causes startup refusal.
var knownOptions = map[string]struct{}{
	"bufferPoolSize": {},
	"walPath":        {},
	"deadlockIntervalMs": {},
}

// WriteMetadata durably persists meta at dataDir via write-to-temp-then-
// rename, fsyncing both the temp file and the parent directory so a
// crash mid-write can never leave a half-written metadata file in place
// (spec.md §6).
func WriteMetadata(dataDir string, meta EngineMetadata) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return util.Wrap(util.KindOperationFailed, "catalog.WriteMetadata", "failed to create data directory", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return util.Wrap(util.KindInternalError, "catalog.WriteMetadata", "failed to marshal metadata", err)
	}

	finalPath := filepath.Join(dataDir, metadataFileName)
	tmpPath := finalPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return util.Wrap(util.KindOperationFailed, "catalog.WriteMetadata", "failed to open temp metadata file", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return util.Wrap(util.KindOperationFailed, "catalog.WriteMetadata", "failed to write temp metadata file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return util.Wrap(util.KindOperationFailed, "catalog.WriteMetadata", "failed to fsync temp metadata file", err)
	}
	if err := f.Close(); err != nil {
		return util.Wrap(util.KindOperationFailed, "catalog.WriteMetadata", "failed to close temp metadata file", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return util.Wrap(util.KindOperationFailed, "catalog.WriteMetadata", "failed to rename metadata file into place", err)
	}

	dir, err := os.Open(dataDir)
	if err != nil {
		return util.Wrap(util.KindOperationFailed, "catalog.WriteMetadata", "failed to open data directory for fsync", err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return util.Wrap(util.KindOperationFailed, "catalog.WriteMetadata", "failed to fsync data directory", err)
	}
	return nil
}

// ReadMetadata loads and validates the metadata file at dataDir. A
// missing file is not an error (first startup); an unknown option key is
// (spec.md §6 "Unknown options cause startup refusal").
func ReadMetadata(dataDir string) (*EngineMetadata, error) {
	path := filepath.Join(dataDir, metadataFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, util.Wrap(util.KindOperationFailed, "catalog.ReadMetadata", "failed to read metadata file", err)
	}

	var meta EngineMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, util.Wrap(util.KindInternalError, "catalog.ReadMetadata", "corrupt metadata file", err)
	}

	for key := range meta.Options {
		if _, ok := knownOptions[key]; !ok {
			return nil, util.New(util.KindInvalidOptions, "catalog.ReadMetadata", "unknown metadata option: "+key)
		}
	}
	return &meta, nil
}

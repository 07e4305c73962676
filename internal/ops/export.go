package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hpungsan/draftkeep/internal/draft"
	"github.com/hpungsan/draftkeep/internal/errors"
)

// ExportSchemaVersion is written into every export header.
const ExportSchemaVersion = "1"

// ExportHeader is the first line of a JSONL backup.
type ExportHeader struct {
	DraftkeepExport bool   `json:"_draftkeep_export"`
	SchemaVersion   string `json:"schema_version"`
	Prefix          string `json:"prefix"`
	ExportedAt      int64  `json:"exported_at"` // epoch ms
}

// ExportRecord is one draft in a JSONL backup.
type ExportRecord struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path string // optional, default: <exports dir>/<prefix>-<timestamp>.jsonl
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	Skipped    int    `json:"skipped"` // corrupt envelopes left out
	ExportedAt int64  `json:"exported_at"`
}

// Export writes every readable draft to a JSONL file. The file is written to a
// temp name and renamed into place, so an existing backup survives a failure.
func Export(ctx context.Context, store *draft.Store, policy PathPolicy, input ExportInput) (*ExportOutput, error) {
	now := store.Clock().Now()

	exportPath := input.Path
	if exportPath == "" {
		name := fmt.Sprintf("%s-%s.jsonl", SanitizeForFilename(store.Prefix()), now.UTC().Format("2006-01-02T150405"))
		exportPath = filepath.Join(policy.ExportsDir, name)
		if err := os.MkdirAll(policy.ExportsDir, 0700); err != nil {
			return nil, errors.NewInternal(fmt.Errorf("failed to create exports directory: %w", err))
		}
	}
	if err := policy.Check(exportPath, PathCheckWrite); err != nil {
		return nil, err
	}

	entries, err := store.List()
	if err != nil {
		return nil, err
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := createNoFollow(tempPath)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	if err := enc.Encode(ExportHeader{
		DraftkeepExport: true,
		SchemaVersion:   ExportSchemaVersion,
		Prefix:          store.Prefix(),
		ExportedAt:      now.UnixMilli(),
	}); err != nil {
		return nil, errors.NewInternal(err)
	}

	out := &ExportOutput{Path: exportPath, ExportedAt: now.UnixMilli()}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled("export")
		}
		if e.Corrupt {
			out.Skipped++
			continue
		}
		if err := enc.Encode(ExportRecord{Key: e.Key, Data: e.Envelope.Data, Timestamp: e.Envelope.Timestamp}); err != nil {
			return nil, errors.NewInternal(err)
		}
		out.Count++
	}

	if err := w.Flush(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	if isSymlink(exportPath) {
		return nil, errors.NewInvalidRequest("export path is a symlink")
	}
	if err := os.Rename(tempPath, exportPath); err != nil {
		// Windows refuses to rename over an existing file; keep the old backup.
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return out, nil
}

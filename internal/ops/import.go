package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hpungsan/draftkeep/internal/draft"
	"github.com/hpungsan/draftkeep/internal/errors"
)

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on any collision, writing nothing
	ImportModeReplace ImportMode = "replace" // overwrite existing drafts
	ImportModeSkip    ImportMode = "skip"    // keep existing drafts
)

// maxImportLine bounds one JSONL line; envelopes are capped well below this.
const maxImportLine = 16 * 1024 * 1024

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes one line that could not be imported.
type ImportError struct {
	Line    int    `json:"line"`
	Key     string `json:"key,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type importLine struct {
	line int
	rec  ExportRecord
}

// Import restores drafts from a JSONL backup, keeping each envelope's original
// timestamp so staleness carries over.
func Import(ctx context.Context, store *draft.Store, policy PathPolicy, input ImportInput) (*ImportOutput, error) {
	mode := input.Mode
	if mode == "" {
		mode = ImportModeError
	}
	if mode != ImportModeError && mode != ImportModeReplace && mode != ImportModeSkip {
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, skip")
	}
	if err := policy.Check(input.Path, PathCheckRead); err != nil {
		return nil, err
	}

	file, err := openNoFollow(input.Path)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) || errors.Is(err, errors.ErrInvalidRequest) {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	records, importErrors := parseExport(file)
	out := &ImportOutput{Errors: importErrors}
	if mode == ImportModeError && len(importErrors) > 0 {
		return out, nil
	}

	// Collisions are checked up front so mode:error writes nothing on conflict.
	exists := make(map[string]bool, len(records))
	for _, r := range records {
		env, o := store.Peek(r.rec.Key)
		if o.Err != nil && !errors.Is(o.Err, errors.ErrCorruptEnvelope) {
			return nil, o.Err
		}
		exists[r.rec.Key] = env != nil
		if env != nil && mode == ImportModeError {
			out.Errors = append(out.Errors, ImportError{
				Line:    r.line,
				Key:     r.rec.Key,
				Code:    string(errors.ErrConflict),
				Message: fmt.Sprintf("draft %q already exists", r.rec.Key),
			})
		}
	}
	if mode == ImportModeError && len(out.Errors) > 0 {
		return out, nil
	}

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled("import")
		}
		if exists[r.rec.Key] && mode == ImportModeSkip {
			out.Skipped++
			continue
		}
		o := store.Put(r.rec.Key, draft.Envelope{Data: r.rec.Data, Timestamp: r.rec.Timestamp})
		if o.Err != nil {
			code := string(errors.ErrInternal)
			if dErr, ok := o.Err.(*errors.DraftError); ok {
				code = string(dErr.Code)
			}
			out.Errors = append(out.Errors, ImportError{Line: r.line, Key: r.rec.Key, Code: code, Message: o.Err.Error()})
			continue
		}
		out.Imported++
	}

	return out, nil
}

// parseExport reads every record line, skipping the header.
func parseExport(r io.Reader) ([]importLine, []ImportError) {
	var (
		records []importLine
		errs    []ImportError
		seen    = make(map[string]int)
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLine)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var head struct {
			Header bool `json:"_draftkeep_export"`
		}
		if err := json.Unmarshal(line, &head); err != nil {
			errs = append(errs, ImportError{Line: lineNum, Code: "PARSE_ERROR", Message: fmt.Sprintf("invalid JSON: %v", err)})
			continue
		}
		if head.Header {
			continue
		}

		var rec ExportRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			errs = append(errs, ImportError{Line: lineNum, Code: "PARSE_ERROR", Message: fmt.Sprintf("invalid record: %v", err)})
			continue
		}
		key, err := ValidateKey(rec.Key)
		if err != nil {
			errs = append(errs, ImportError{Line: lineNum, Code: "INVALID_RECORD", Message: err.Error()})
			continue
		}
		rec.Key = key
		if len(rec.Data) == 0 || rec.Timestamp <= 0 {
			errs = append(errs, ImportError{Line: lineNum, Key: key, Code: "INVALID_RECORD", Message: "record needs data and a positive timestamp"})
			continue
		}
		if first, dup := seen[key]; dup {
			errs = append(errs, ImportError{Line: lineNum, Key: key, Code: "DUPLICATE_KEY", Message: fmt.Sprintf("key also on line %d", first)})
			continue
		}
		seen[key] = lineNum

		records = append(records, importLine{line: lineNum, rec: rec})
	}

	if err := scanner.Err(); err != nil {
		errs = append(errs, ImportError{Line: lineNum, Code: "READ_ERROR", Message: fmt.Sprintf("failed to read file: %v", err)})
	}
	return records, errs
}

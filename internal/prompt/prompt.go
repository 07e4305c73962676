// Package prompt is the recovery dialog offered when a stored draft is found.
//
// A Prompt holds nothing beyond what the host passes in: whether it is open,
// when the draft was saved, and the callbacks for each choice. It never reads
// or writes storage; ForController is the usual way to build one.
package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/hpungsan/draftkeep/internal/draft"
)

// TimestampLayout renders e.g. "Wednesday 14 October 2026 at 09:30".
const TimestampLayout = "Monday 2 January 2006 at 15:04"

// Preview limits.
const (
	MaxPreviewFields = 4
	MaxPreviewValue  = 40 // runes
)

// PreviewField is one line of the draft preview.
type PreviewField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Prompt is the resume-or-start-fresh choice.
type Prompt struct {
	IsOpen         bool
	DraftTimestamp int64 // epoch ms
	FormLabel      string
	Preview        []PreviewField

	OnClose     func()
	OnLoadDraft func()
	OnStartNew  func()
}

// SavedAt returns DraftTimestamp as a time.
func (p Prompt) SavedAt() time.Time {
	return time.UnixMilli(p.DraftTimestamp)
}

// FormattedTimestamp renders the save time in loc (UTC if nil).
func (p Prompt) FormattedTimestamp(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return p.SavedAt().In(loc).Format(TimestampLayout)
}

// Relative renders the save time relative to now, e.g. "3 minutes ago".
func (p Prompt) Relative(now time.Time) string {
	return humanize.RelTime(p.SavedAt(), now, "ago", "from now")
}

// Resume loads the draft into the form and closes the prompt.
func (p Prompt) Resume() {
	if p.OnLoadDraft != nil {
		p.OnLoadDraft()
	}
	p.Close()
}

// StartNew discards the draft and closes the prompt.
func (p Prompt) StartNew() {
	if p.OnStartNew != nil {
		p.OnStartNew()
	}
	p.Close()
}

// Close dismisses the prompt without choosing.
func (p Prompt) Close() {
	if p.OnClose != nil {
		p.OnClose()
	}
}

// ForController builds the prompt for c's current state.
// Resume accepts the recovery and hands the payload to onLoad; start fresh
// dismisses it. The prompt is closed unless c is offering a recovery.
func ForController[T any](c *draft.Controller[T], formLabel string, onLoad func(T)) Prompt {
	snap := c.Snapshot()
	p := Prompt{
		IsOpen:    snap.Status == draft.StatusRecovered && snap.RecoveredData != nil,
		FormLabel: formLabel,
		OnLoadDraft: func() {
			if data, ok := c.AcceptRecovery(); ok && onLoad != nil {
				onLoad(data)
			}
		},
		OnStartNew: c.DismissRecovery,
	}
	if !p.IsOpen {
		return p
	}

	p.DraftTimestamp = snap.RecoveredAt
	if raw, err := json.Marshal(snap.RecoveredData); err == nil {
		p.Preview = PreviewFromJSON(raw, MaxPreviewFields)
	}
	return p
}

// PreviewFromJSON picks up to limit non-empty top-level scalar fields of a
// JSON object, in key order. Anything other than an object yields nothing.
func PreviewFromJSON(raw json.RawMessage, limit int) []PreviewField {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var fields []PreviewField
	for _, k := range keys {
		if limit > 0 && len(fields) >= limit {
			break
		}
		v, ok := previewValue(obj[k])
		if !ok {
			continue
		}
		fields = append(fields, PreviewField{Label: labelFor(k), Value: v})
	}
	return fields
}

func previewValue(raw json.RawMessage) (string, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	switch x := v.(type) {
	case string:
		x = strings.TrimSpace(x)
		if x == "" {
			return "", false
		}
		return truncate(x, MaxPreviewValue), true
	case float64:
		return humanize.Ftoa(x), true
	case bool:
		if x {
			return "yes", true
		}
		return "no", true
	case []any:
		if len(x) == 0 {
			return "", false
		}
		return fmt.Sprintf("%d %s", len(x), plural(len(x), "item", "items")), true
	default:
		// null and nested objects
		return "", false
	}
}

// labelFor turns "clientName" or "client_name" into "Client name".
func labelFor(key string) string {
	var b strings.Builder
	for i, r := range key {
		switch {
		case r == '_' || r == '-':
			b.WriteByte(' ')
		case i > 0 && r >= 'A' && r <= 'Z':
			b.WriteByte(' ')
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	s := strings.TrimSpace(b.String())
	if s == "" {
		return key
	}
	first, size := utf8.DecodeRuneInString(s)
	return strings.ToUpper(string(first)) + s[size:]
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

package ops

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/draftkeep/internal/config"
	"github.com/hpungsan/draftkeep/internal/draft"
	"github.com/hpungsan/draftkeep/internal/errors"
	"github.com/hpungsan/draftkeep/internal/storage"
)

// TestFullWorkflow exercises the admin lifecycle against the sqlite medium:
// write → list → read → export → remove → import → age out → purge
func TestFullWorkflow(t *testing.T) {
	baseDir := t.TempDir()
	cfg := config.DefaultConfig()

	medium, err := storage.OpenSQLite(baseDir, cfg)
	require.NoError(t, err)
	defer medium.Close()

	clock := clockwork.NewFakeClockAt(testNow)
	store := draft.NewStore(medium, draft.StoreOptions{Clock: clock, MaxEnvelopeBytes: cfg.MaxEnvelopeBytes})
	policy := NewPathPolicy(cfg, baseDir)

	// 1. Write two drafts
	_, err = Write(store, WriteInput{Key: "permit-draft", Data: json.RawMessage(`{"field":"a"}`)})
	require.NoError(t, err)
	_, err = Write(store, WriteInput{Key: "rams", Data: json.RawMessage(`{"hazards":["live"]}`)})
	require.NoError(t, err)

	// 2. List
	listOut, err := List(store, ListInput{})
	require.NoError(t, err)
	require.Len(t, listOut.Items, 2)
	require.Equal(t, "permit-draft", listOut.Items[0].Key)
	require.False(t, listOut.Items[0].Stale)

	// 3. Read
	readOut, err := Read(store, ReadInput{Key: "permit-draft"})
	require.NoError(t, err)
	require.JSONEq(t, `{"field":"a"}`, string(readOut.Data))

	// 4. Export
	exportOut, err := Export(context.Background(), store, policy, ExportInput{})
	require.NoError(t, err)
	require.Equal(t, 2, exportOut.Count)
	require.Equal(t, policy.ExportsDir, filepath.Dir(exportOut.Path))

	// 5. Remove
	removeOut, err := Remove(store, RemoveInput{Key: "permit-draft"})
	require.NoError(t, err)
	require.True(t, removeOut.Removed)
	_, err = Read(store, ReadInput{Key: "permit-draft"})
	require.True(t, errors.Is(err, errors.ErrNotFound))

	// 6. Import restores it, skipping the one still there
	importOut, err := Import(context.Background(), store, policy, ImportInput{Path: exportOut.Path, Mode: ImportModeSkip})
	require.NoError(t, err)
	require.Equal(t, 1, importOut.Imported)
	require.Equal(t, 1, importOut.Skipped)

	// 7. A controller mounted now recovers the restored draft
	c := draft.New(store, map[string]string{}, draft.Options{Key: "permit-draft"})
	require.Equal(t, draft.StatusRecovered, c.Status())
	c.Close()

	// 8. Age everything out and purge
	clock.Advance(cfg.MaxAge() + time.Minute)
	purgeOut, err := Purge(store, PurgeInput{MaxAge: cfg.MaxAge()})
	require.NoError(t, err)
	require.Equal(t, 2, purgeOut.Purged)

	listOut, err = List(store, ListInput{})
	require.NoError(t, err)
	require.Empty(t, listOut.Items)
}

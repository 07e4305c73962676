package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/draftkeep/internal/config"
	"github.com/hpungsan/draftkeep/internal/draft"
	"github.com/hpungsan/draftkeep/internal/ops"
	"github.com/hpungsan/draftkeep/internal/storage"
)

var testNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

type testApp struct {
	env   *appEnv
	mem   *storage.Memory
	clock clockwork.FakeClock
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	mem := storage.NewMemory(0)
	clock := clockwork.NewFakeClockAt(testNow)
	cfg := config.DefaultConfig()
	store := draft.NewStore(mem, draft.StoreOptions{Clock: clock, Prefix: cfg.KeyPrefix})
	return &testApp{
		env:   &appEnv{store: store, cfg: cfg, baseDir: t.TempDir(), log: zerolog.Nop()},
		mem:   mem,
		clock: clock,
	}
}

// run executes args with stdin, returning stdout and stderr.
func (a *testApp) run(stdin string, args ...string) (string, string, error) {
	app := newCLIApp(a.env)
	var stdout, stderr bytes.Buffer
	app.Reader = strings.NewReader(stdin)
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append([]string{"draftkeep"}, args...))
	return stdout.String(), stderr.String(), err
}

func decodeJSON[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, s)
	}
	return v
}

func TestCLIWriteRead(t *testing.T) {
	a := setupTestApp(t)

	out, _, err := a.run(`{"site":"Unit 4"}`, "write", "permit-draft")
	if err != nil {
		t.Fatalf("write command failed: %v", err)
	}
	written := decodeJSON[ops.WriteOutput](t, out)
	if written.StorageKey != "draft-permit-draft" || written.Timestamp != testNow.UnixMilli() {
		t.Errorf("write output = %+v", written)
	}

	out, _, err = a.run("", "read", "permit-draft")
	if err != nil {
		t.Fatalf("read command failed: %v", err)
	}
	read := decodeJSON[ops.ReadOutput](t, out)
	require.JSONEq(t, `{"site":"Unit 4"}`, string(read.Data))
	if read.Stale {
		t.Errorf("read output = %+v", read)
	}

	a.clock.Advance(2 * time.Hour)
	out, _, _ = a.run("", "read", "--max-age=1h", "permit-draft")
	if read := decodeJSON[ops.ReadOutput](t, out); !read.Stale {
		t.Error("expected stale with --max-age=1h")
	}
}

func TestCLIListRemovePurge(t *testing.T) {
	a := setupTestApp(t)
	for _, k := range []string{"b", "a"} {
		if _, _, err := a.run(`{"k":1}`, "write", k); err != nil {
			t.Fatalf("write %s: %v", k, err)
		}
	}

	out, _, err := a.run("", "list", "--limit=1")
	if err != nil {
		t.Fatalf("list command failed: %v", err)
	}
	list := decodeJSON[ops.ListOutput](t, out)
	if len(list.Items) != 1 || list.Items[0].Key != "a" || !list.Pagination.HasMore {
		t.Errorf("list output = %+v", list)
	}

	out, _, err = a.run("", "remove", "a")
	if err != nil {
		t.Fatalf("remove command failed: %v", err)
	}
	if removed := decodeJSON[ops.RemoveOutput](t, out); !removed.Removed {
		t.Error("expected removed=true")
	}

	a.clock.Advance(25 * time.Hour)
	_ = a.mem.Set("draft-junk", "junk")
	out, _, err = a.run("", "purge", "--corrupt")
	if err != nil {
		t.Fatalf("purge command failed: %v", err)
	}
	purged := decodeJSON[ops.PurgeOutput](t, out)
	if purged.Purged != 2 || purged.Stale != 1 || purged.Corrupt != 1 {
		t.Errorf("purge output = %+v", purged)
	}
	if a.mem.Len() != 0 {
		t.Errorf("Len() = %d after purge", a.mem.Len())
	}
}

func TestCLIExportImport(t *testing.T) {
	a := setupTestApp(t)
	if _, _, err := a.run(`{"circuits":12}`, "write", "eicr"); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, _, err := a.run("", "export")
	if err != nil {
		t.Fatalf("export command failed: %v", err)
	}
	exported := decodeJSON[ops.ExportOutput](t, out)
	if exported.Count != 1 {
		t.Errorf("export count = %d", exported.Count)
	}
	if filepath.Dir(exported.Path) != filepath.Join(a.env.baseDir, ops.ExportsDirName) {
		t.Errorf("export path = %s", exported.Path)
	}

	b := setupTestApp(t)
	b.env.baseDir = a.env.baseDir
	out, _, err = b.run("", "import", "--path", exported.Path)
	if err != nil {
		t.Fatalf("import command failed: %v", err)
	}
	if imported := decodeJSON[ops.ImportOutput](t, out); imported.Imported != 1 {
		t.Errorf("import output = %+v", imported)
	}

	if _, _, err := b.run("", "import", "--path", exported.Path, "--mode", "rename"); err == nil {
		t.Error("expected error for unknown import mode")
	}
	if _, _, err := b.run("", "export", "--path", filepath.Join(t.TempDir(), "out.jsonl")); err == nil {
		t.Error("expected error for export outside allowed directories")
	}
}

func TestCLIRecover(t *testing.T) {
	seed := func(a *testApp) {
		if _, _, err := a.run(`{"siteName":"Unit 4"}`, "write", "permit-draft"); err != nil {
			t.Fatalf("write: %v", err)
		}
		a.clock.Advance(3 * time.Minute)
	}

	t.Run("resume interactively", func(t *testing.T) {
		a := setupTestApp(t)
		seed(a)

		out, stderr, err := a.run("r\n", "recover", "--label=permit", "--tz=UTC", "permit-draft")
		if err != nil {
			t.Fatalf("recover command failed: %v", err)
		}
		for _, want := range []string{"Unsaved permit draft found", "Wednesday 14 October 2026 at 09:30", "3 minutes ago", "Site name: Unit 4", "[r]"} {
			if !strings.Contains(stderr, want) {
				t.Errorf("prompt missing %q:\n%s", want, stderr)
			}
		}
		res := decodeJSON[recoverResult](t, out)
		if res.Choice != "resume" {
			t.Errorf("recover output = %+v", res)
		}
		require.JSONEq(t, `{"siteName":"Unit 4"}`, string(res.Data))
		if _, ok, _ := a.mem.Get("draft-permit-draft"); !ok {
			t.Error("resume must leave the stored draft in place")
		}
	})

	t.Run("start new with flag", func(t *testing.T) {
		a := setupTestApp(t)
		seed(a)

		out, stderr, err := a.run("", "recover", "--choice=n", "permit-draft")
		if err != nil {
			t.Fatalf("recover command failed: %v", err)
		}
		if stderr != "" {
			t.Errorf("non-interactive recover printed a prompt: %s", stderr)
		}
		if res := decodeJSON[recoverResult](t, out); res.Choice != "start_new" || res.Data != nil {
			t.Errorf("recover output = %+v", res)
		}
		if a.mem.Len() != 0 {
			t.Error("start new must remove the stored draft")
		}
	})

	t.Run("nothing to recover", func(t *testing.T) {
		a := setupTestApp(t)
		out, stderr, err := a.run("", "recover", "permit-draft")
		if err != nil {
			t.Fatalf("recover command failed: %v", err)
		}
		if !strings.Contains(stderr, "No recoverable draft") {
			t.Errorf("stderr = %q", stderr)
		}
		if res := decodeJSON[recoverResult](t, out); res.Choice != "none" {
			t.Errorf("recover output = %+v", res)
		}
	})

	t.Run("unknown answer", func(t *testing.T) {
		a := setupTestApp(t)
		seed(a)
		if _, _, err := a.run("maybe\n", "recover", "permit-draft"); err == nil {
			t.Error("expected error for unknown answer")
		}
		if a.mem.Len() != 1 {
			t.Error("an unknown answer must not touch the stored draft")
		}
	})
}

func TestCLITrack(t *testing.T) {
	t.Run("end of input flushes the last snapshot", func(t *testing.T) {
		a := setupTestApp(t)

		input := strings.Join([]string{`{"name":"J"}`, `{"name":"Jo"}`, `not json`, ``, `{"name":"Joe"}`}, "\n") + "\n"
		out, _, err := a.run(input, "track", "tender")
		if err != nil {
			t.Fatalf("track command failed: %v", err)
		}
		res := decodeJSON[trackResult](t, out)
		if res.Updates != 3 || res.Skipped != 1 || res.Status != draft.StatusSaved || res.Recovered {
			t.Errorf("track output = %+v", res)
		}

		raw, ok, _ := a.mem.Get("draft-tender")
		if !ok || !strings.Contains(raw, `"data":{"name":"Joe"}`) {
			t.Errorf("stored = %q", raw)
		}
	})

	t.Run("resume prints the stored draft first", func(t *testing.T) {
		a := setupTestApp(t)
		if _, _, err := a.run(`{"name":"Old"}`, "write", "tender"); err != nil {
			t.Fatalf("write: %v", err)
		}

		out, _, err := a.run("", "track", "tender")
		if err != nil {
			t.Fatalf("track command failed: %v", err)
		}
		first, rest, _ := strings.Cut(out, "\n")
		if first != `{"name":"Old"}` {
			t.Errorf("first line = %q", first)
		}
		if res := decodeJSON[trackResult](t, rest); !res.Recovered || res.Updates != 0 {
			t.Errorf("track output = %+v", res)
		}
		if a.mem.Len() != 1 {
			t.Error("accepted draft should stay in storage")
		}
	})

	t.Run("discard removes the stored draft", func(t *testing.T) {
		a := setupTestApp(t)
		if _, _, err := a.run(`{"name":"Old"}`, "write", "tender"); err != nil {
			t.Fatalf("write: %v", err)
		}

		out, _, err := a.run("", "track", "--recovery=discard", "tender")
		if err != nil {
			t.Fatalf("track command failed: %v", err)
		}
		if res := decodeJSON[trackResult](t, out); !res.Recovered || res.Status != draft.StatusIdle {
			t.Errorf("track output = %+v", res)
		}
		if a.mem.Len() != 0 {
			t.Error("discarded draft still in storage")
		}
	})

	t.Run("invalid recovery mode", func(t *testing.T) {
		a := setupTestApp(t)
		if _, _, err := a.run("", "track", "--recovery=ask", "tender"); err == nil {
			t.Error("expected error for invalid recovery mode")
		}
	})
}

func TestCLIErrorHandling(t *testing.T) {
	a := setupTestApp(t)

	t.Run("read not found returns error", func(t *testing.T) {
		_, _, err := a.run("", "read", "nonexistent")
		if err == nil || !strings.Contains(err.Error(), "[NOT_FOUND]") {
			t.Errorf("error = %v, want [NOT_FOUND]", err)
		}
	})

	t.Run("write without key returns error", func(t *testing.T) {
		_, _, err := a.run(`{}`, "write")
		if err == nil || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
			t.Errorf("error = %v, want [INVALID_REQUEST]", err)
		}
	})

	t.Run("write invalid JSON returns error", func(t *testing.T) {
		if _, _, err := a.run(`{"a":`, "write", "k"); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("invalid max-age returns error", func(t *testing.T) {
		if _, _, err := a.run("", "purge", "--max-age=soon"); err == nil {
			t.Error("expected error, got nil")
		}
	})
}

func TestOpenStore_FallsBackToUnavailable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend = "floppy"

	store, closeFn := openStore(cfg, t.TempDir(), zerolog.Nop())
	defer closeFn()

	if out := store.Write("k", map[string]string{"a": "b"}); out.OK() {
		t.Error("expected writes to fail on the fallback medium")
	}
}

func TestOpenStore_SQLite(t *testing.T) {
	cfg := config.DefaultConfig()
	baseDir := t.TempDir()

	store, closeFn := openStore(cfg, baseDir, zerolog.Nop())
	defer closeFn()

	if out := store.Write("k", map[string]string{"a": "b"}); !out.OK() {
		t.Fatalf("write failed: %v", out.Err)
	}
	if env, out := store.Read("k"); env == nil || !out.OK() {
		t.Errorf("read back = %v, %v", env, out.Err)
	}
}

// TestIsCLIMode tests the isCLIMode function.
func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{"no args", []string{"draftkeep"}, false},
		{"write command", []string{"draftkeep", "write"}, true},
		{"track command", []string{"draftkeep", "track"}, true},
		{"serve command", []string{"draftkeep", "serve"}, true},
		{"help flag", []string{"draftkeep", "--help"}, true},
		{"version flag", []string{"draftkeep", "--version"}, true},
		{"short help flag", []string{"draftkeep", "-h"}, true},
		{"short version flag", []string{"draftkeep", "-v"}, true},
		{"unknown arg defaults to MCP", []string{"draftkeep", "--unknown"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isCLIMode(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestIsHelpOrVersion tests the isHelpOrVersion function.
func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{"no args", []string{"draftkeep"}, false},
		{"help flag", []string{"draftkeep", "--help"}, true},
		{"short version flag", []string{"draftkeep", "-v"}, true},
		{"help subcommand", []string{"draftkeep", "help"}, true},
		{"write command is not help", []string{"draftkeep", "write"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isHelpOrVersion(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestReadStdinWithLimit tests the readStdin function respects size limits.
func TestReadStdinWithLimit(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		result, err := readStdin(strings.NewReader("  small content \n"), 1000)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if result != "small content" {
			t.Errorf("expected %q, got %q", "small content", result)
		}
	})

	t.Run("exceeds limit", func(t *testing.T) {
		if _, err := readStdin(strings.NewReader(strings.Repeat("x", 100)), 50); err == nil {
			t.Error("expected error for content exceeding limit, got nil")
		}
	})

	t.Run("terminal detection on pipes", func(t *testing.T) {
		r, w, err := os.Pipe()
		if err != nil {
			t.Fatalf("Failed to create pipe: %v", err)
		}
		defer r.Close()
		w.Close()
		if !stdinHasData(r) {
			t.Error("a pipe should count as piped data")
		}
	})
}

package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/hpungsan/draftkeep/internal/config"
	"github.com/hpungsan/draftkeep/internal/draft"
	"github.com/hpungsan/draftkeep/internal/storage"
)

var testNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	srv      *http.Server
	sessions *Sessions
	store    *draft.Store
	mem      *storage.Memory
	clock    clockwork.FakeClock
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	mem := storage.NewMemory(0)
	clock := clockwork.NewFakeClockAt(testNow)
	cfg := config.DefaultConfig()
	store := draft.NewStore(mem, draft.StoreOptions{Clock: clock, Prefix: cfg.KeyPrefix})
	sessions := NewSessions(store, cfg, zerolog.Nop())
	t.Cleanup(sessions.Shutdown)

	return &testEnv{
		srv:      NewServer(sessions, store, cfg, zerolog.Nop(), "127.0.0.1", 0),
		sessions: sessions,
		store:    store,
		mem:      mem,
		clock:    clock,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Accept", "application/json")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) open(t *testing.T, body string) SessionView {
	t.Helper()
	w := e.do(t, "POST", "/sessions", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("open status = %d, body %s", w.Code, w.Body.String())
	}
	return decodeView(t, w)
}

func (e *testEnv) seed(t *testing.T, key, data string) {
	t.Helper()
	if out := e.store.Put(key, draft.Envelope{Data: json.RawMessage(data), Timestamp: e.clock.Now().UnixMilli()}); !out.OK() {
		t.Fatalf("seed %q: %v", key, out.Err)
	}
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) SessionView {
	t.Helper()
	var v SessionView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode view: %v (%s)", err, w.Body.String())
	}
	return v
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
	}
	return body.Error.Code
}

func waitForEnvelope(t *testing.T, mem *storage.Memory, key string) string {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if raw, ok, _ := mem.Get(key); ok {
			return raw
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no envelope at %q", key)
	return ""
}

func TestOpen_Fresh(t *testing.T) {
	e := setupTest(t)

	v := e.open(t, `{"key":"permit-draft","label":"permit","data":{"site":""}}`)
	if v.ID == "" || v.Key != "permit-draft" || v.Status != draft.StatusIdle || !v.Enabled {
		t.Errorf("view = %+v", v)
	}
	if v.RecoveredData != nil {
		t.Errorf("RecoveredData = %s, want nil", *v.RecoveredData)
	}
	if e.mem.Len() != 0 {
		t.Error("opening a session must not write")
	}
}

func TestOpen_Invalid(t *testing.T) {
	e := setupTest(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing key", `{"data":{}}`},
		{"bad json", `{"key":`},
		{"unknown field", `{"key":"k","ttl":3}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := e.do(t, "POST", "/sessions", tc.body)
			if w.Code != http.StatusBadRequest || errorCode(t, w) != "INVALID_REQUEST" {
				t.Errorf("status = %d, body %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestOpen_RecoversStoredDraft(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "permit-draft", `{"site":"Unit 4"}`)

	v := e.open(t, `{"key":"permit-draft"}`)
	if v.Status != draft.StatusRecovered {
		t.Fatalf("Status = %q, want recovered", v.Status)
	}
	if v.RecoveredData == nil || string(*v.RecoveredData) != `{"site":"Unit 4"}` {
		t.Errorf("RecoveredData = %v", v.RecoveredData)
	}
	if v.RecoveredAt != testNow.UnixMilli() {
		t.Errorf("RecoveredAt = %d", v.RecoveredAt)
	}
}

func TestUpdate_DebouncedWrite(t *testing.T) {
	e := setupTest(t)
	v := e.open(t, `{"key":"eicr"}`)

	w := e.do(t, "PUT", "/sessions/"+v.ID+"/data", `{"circuits":12}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("update status = %d", w.Code)
	}
	if e.mem.Len() != 0 {
		t.Fatal("update wrote before the debounce elapsed")
	}

	e.clock.Advance(draft.DefaultDebounce)
	raw := waitForEnvelope(t, e.mem, "draft-eicr")
	if !strings.Contains(raw, `"data":{"circuits":12}`) {
		t.Errorf("envelope = %s", raw)
	}

	w = e.do(t, "PUT", "/sessions/"+v.ID+"/data", `{"circuits":`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid body status = %d", w.Code)
	}
}

func TestSaveAndBeacon(t *testing.T) {
	e := setupTest(t)
	v := e.open(t, `{"key":"rams"}`)

	e.do(t, "PUT", "/sessions/"+v.ID+"/data", `{"hazards":["live"]}`)
	w := e.do(t, "POST", "/sessions/"+v.ID+"/beacon", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("beacon status = %d", w.Code)
	}
	if _, ok, _ := e.mem.Get("draft-rams"); !ok {
		t.Fatal("beacon did not flush the pending draft")
	}

	e.do(t, "PUT", "/sessions/"+v.ID+"/data", `{"hazards":["live","height"]}`)
	w = e.do(t, "POST", "/sessions/"+v.ID+"/save", "")
	if got := decodeView(t, w); got.Status != draft.StatusSaved {
		t.Errorf("Status after save = %q", got.Status)
	}
	raw, _, _ := e.mem.Get("draft-rams")
	if !strings.Contains(raw, "height") {
		t.Errorf("save did not write latest data: %s", raw)
	}
}

func TestAcceptAndDismiss(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "permit-draft", `{"site":"Unit 4"}`)

	v := e.open(t, `{"key":"permit-draft"}`)
	w := e.do(t, "POST", "/sessions/"+v.ID+"/accept", "")
	if w.Code != http.StatusOK {
		t.Fatalf("accept status = %d, body %s", w.Code, w.Body.String())
	}
	var accepted struct {
		Session SessionView     `json:"session"`
		Draft   json.RawMessage `json:"draft"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(accepted.Draft) != `{"site":"Unit 4"}` || accepted.Session.Status != draft.StatusIdle {
		t.Errorf("accepted = %+v", accepted)
	}
	if _, ok, _ := e.mem.Get("draft-permit-draft"); !ok {
		t.Error("accept must leave the stored draft in place")
	}
	e.do(t, "POST", "/sessions/"+v.ID+"/beacon", "")
	if raw, _, _ := e.mem.Get("draft-permit-draft"); !strings.Contains(raw, `"data":{"site":"Unit 4"}`) {
		t.Errorf("flush after accept must keep the recovered draft: %s", raw)
	}

	w = e.do(t, "POST", "/sessions/"+v.ID+"/accept", "")
	if w.Code != http.StatusConflict || errorCode(t, w) != "CONFLICT" {
		t.Errorf("second accept status = %d", w.Code)
	}

	v2 := e.open(t, `{"key":"permit-draft"}`)
	w = e.do(t, "POST", "/sessions/"+v2.ID+"/dismiss", "")
	if got := decodeView(t, w); got.Status != draft.StatusIdle {
		t.Errorf("Status after dismiss = %q", got.Status)
	}
	if _, ok, _ := e.mem.Get("draft-permit-draft"); ok {
		t.Error("dismiss must remove the stored draft")
	}
}

func TestDismiss_FormPostRedirects(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "k", `{}`)
	v := e.open(t, `{"key":"k"}`)

	req := httptest.NewRequest("POST", "/sessions/"+v.ID+"/dismiss", nil)
	w := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/sessions/"+v.ID+"/prompt" {
		t.Errorf("Location = %q", loc)
	}
}

func TestClearDraft(t *testing.T) {
	e := setupTest(t)
	v := e.open(t, `{"key":"tender"}`)
	e.do(t, "PUT", "/sessions/"+v.ID+"/data", `{"name":"x"}`)
	e.do(t, "POST", "/sessions/"+v.ID+"/save", "")

	w := e.do(t, "DELETE", "/sessions/"+v.ID+"/draft", "")
	if got := decodeView(t, w); got.Status != draft.StatusIdle {
		t.Errorf("Status = %q", got.Status)
	}
	if e.mem.Len() != 0 {
		t.Error("clear left the envelope behind")
	}

	// The page unloading after submit must not bring the draft back
	if w := e.do(t, "POST", "/sessions/"+v.ID+"/beacon", ""); w.Code != http.StatusNoContent {
		t.Fatalf("beacon status = %d", w.Code)
	}
	e.sessions.Shutdown()
	if e.mem.Len() != 0 {
		t.Error("unload after clear rewrote the envelope")
	}
}

func TestEnabledToggle(t *testing.T) {
	e := setupTest(t)
	v := e.open(t, `{"key":"k","enabled":false}`)
	if v.Enabled {
		t.Fatal("Enabled = true, want false")
	}

	e.do(t, "PUT", "/sessions/"+v.ID+"/data", `{"a":1}`)
	e.do(t, "POST", "/sessions/"+v.ID+"/save", "")
	if e.mem.Len() != 0 {
		t.Fatal("disabled session wrote to storage")
	}

	w := e.do(t, "PUT", "/sessions/"+v.ID+"/enabled", `{"enabled":true}`)
	if got := decodeView(t, w); !got.Enabled {
		t.Error("Enabled = false after toggle")
	}
	e.do(t, "POST", "/sessions/"+v.ID+"/save", "")
	if e.mem.Len() != 1 {
		t.Error("enabled session did not write")
	}

	w = e.do(t, "PUT", "/sessions/"+v.ID+"/enabled", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing enabled status = %d", w.Code)
	}
}

func TestPrompt(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "permit-draft", `{"siteName":"Unit <4>","isolated":true}`)
	e.clock.Advance(3 * time.Minute)
	v := e.open(t, `{"key":"permit-draft","label":"permit"}`)

	w := e.do(t, "GET", "/sessions/"+v.ID+"/prompt?tz=Europe/London", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{
		"Unsaved permit draft found",
		"Wednesday 14 October 2026 at 10:30",
		"3 minutes ago",
		`action="/sessions/` + v.ID + `/accept"`,
		"Unit &lt;4&gt;",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("prompt missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, " hidden") {
		t.Error("prompt with a draft on offer must not be hidden")
	}

	w = e.do(t, "GET", "/sessions/"+v.ID+"/prompt?tz=Mars/Olympus", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad tz status = %d", w.Code)
	}
}

func TestCloseSession(t *testing.T) {
	e := setupTest(t)
	v := e.open(t, `{"key":"k"}`)
	e.do(t, "PUT", "/sessions/"+v.ID+"/data", `{"a":1}`)

	w := e.do(t, "DELETE", "/sessions/"+v.ID, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("close status = %d", w.Code)
	}
	e.clock.Advance(draft.DefaultDebounce)
	time.Sleep(20 * time.Millisecond)
	if e.mem.Len() != 0 {
		t.Error("closed session still wrote its pending draft")
	}

	w = e.do(t, "GET", "/sessions/"+v.ID, "")
	if w.Code != http.StatusNotFound || errorCode(t, w) != "NOT_FOUND" {
		t.Errorf("get after close status = %d", w.Code)
	}
	if w := e.do(t, "DELETE", "/sessions/"+v.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("second close status = %d", w.Code)
	}
}

func TestShutdownFlushesSessions(t *testing.T) {
	e := setupTest(t)
	a := e.open(t, `{"key":"a"}`)
	b := e.open(t, `{"key":"b"}`)
	e.do(t, "PUT", "/sessions/"+a.ID+"/data", `{"v":1}`)
	e.do(t, "PUT", "/sessions/"+b.ID+"/data", `{"v":2}`)

	blank := e.open(t, `{"key":"blank","data":{"v":0}}`)
	e.do(t, "POST", "/sessions/"+blank.ID+"/beacon", "")

	e.sessions.Shutdown()

	if e.mem.Len() != 2 {
		t.Errorf("Len() = %d after shutdown, want 2", e.mem.Len())
	}
	if _, ok, _ := e.mem.Get("draft-blank"); ok {
		t.Error("an untouched form must not be saved on unload")
	}
	if views := e.sessions.List(); len(views) != 0 {
		t.Errorf("sessions after shutdown = %d", len(views))
	}
}

func TestListSessions(t *testing.T) {
	e := setupTest(t)
	e.open(t, `{"key":"a"}`)
	e.open(t, `{"key":"b"}`)

	w := e.do(t, "GET", "/sessions", "")
	var body struct {
		Sessions []SessionView `json:"sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Sessions) != 2 || body.Sessions[0].ID >= body.Sessions[1].ID {
		t.Errorf("sessions = %+v", body.Sessions)
	}
}

func TestDraftsAdmin(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "old", `1`)
	e.clock.Advance(25 * time.Hour)
	e.seed(t, "fresh", `2`)

	w := e.do(t, "GET", "/drafts?limit=1", "")
	var list struct {
		Items []struct {
			Key   string `json:"key"`
			Stale bool   `json:"stale"`
		} `json:"items"`
		Pagination struct {
			HasMore bool `json:"has_more"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Key != "fresh" || !list.Pagination.HasMore {
		t.Errorf("list = %+v", list)
	}

	w = e.do(t, "GET", "/drafts/old", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"stale":true`) {
		t.Errorf("read old = %d %s", w.Code, w.Body.String())
	}
	if w := e.do(t, "GET", "/drafts/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("read missing = %d", w.Code)
	}

	if w := e.do(t, "DELETE", "/drafts/fresh", ""); !strings.Contains(w.Body.String(), `"removed":true`) {
		t.Errorf("remove = %s", w.Body.String())
	}
}

func TestHandlePurge(t *testing.T) {
	e := setupTest(t)
	e.seed(t, "old", `1`)
	e.clock.Advance(25 * time.Hour)

	purge := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/drafts/purge", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		e.srv.Handler.ServeHTTP(w, req)
		return w
	}

	if w := purge(url.Values{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing confirm status = %d", w.Code)
	}
	if w := purge(url.Values{"confirm": {"true"}, "max_age_hours": {"soon"}}); w.Code != http.StatusBadRequest {
		t.Errorf("bad max_age_hours status = %d", w.Code)
	}

	w := purge(url.Values{"confirm": {"true"}})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"purged":1`) {
		t.Errorf("purge = %d %s", w.Code, w.Body.String())
	}
	if e.mem.Len() != 0 {
		t.Error("purge left the stale draft")
	}
}

func TestSecurityHeaders(t *testing.T) {
	e := setupTest(t)
	w := e.do(t, "GET", "/sessions", "")
	if w.Header().Get("X-Frame-Options") != "DENY" || w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("headers = %v", w.Header())
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=abc", 20},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/drafts?"+tt.query, nil)
		if got := parseIntParam(req, "limit", 20); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

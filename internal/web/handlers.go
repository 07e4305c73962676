package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/draftkeep/internal/config"
	"github.com/hpungsan/draftkeep/internal/draft"
	"github.com/hpungsan/draftkeep/internal/errors"
	"github.com/hpungsan/draftkeep/internal/ops"
	"github.com/hpungsan/draftkeep/internal/prompt"
)

// defaultMaxBody caps request bodies when no envelope limit is configured.
const defaultMaxBody = 16 << 20

// Handlers contains the HTTP route handlers.
type Handlers struct {
	sessions *Sessions
	store    *draft.Store
	cfg      *config.Config
	log      zerolog.Logger
}

// NewHandlers creates handlers over sessions and the shared store.
func NewHandlers(sessions *Sessions, store *draft.Store, cfg *config.Config, log zerolog.Logger) *Handlers {
	return &Handlers{sessions: sessions, store: store, cfg: cfg, log: log}
}

// HandleOpen handles POST /sessions: mount a form page.
func (h *Handlers) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var input OpenInput
	if err := h.decodeBody(w, r, &input); err != nil {
		renderError(w, h.log, err)
		return
	}

	sess, err := h.sessions.Open(input)
	if err != nil {
		renderError(w, h.log, err)
		return
	}
	renderJSON(w, http.StatusCreated, sess.View())
}

// HandleList handles GET /sessions.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{"sessions": h.sessions.List()})
}

// HandleGet handles GET /sessions/{id}.
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	renderJSON(w, http.StatusOK, sess.View())
}

// HandleUpdate handles PUT /sessions/{id}/data: the body is the new form payload.
func (h *Handlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	body, err := h.readBody(w, r)
	if err != nil {
		renderError(w, h.log, err)
		return
	}
	if !json.Valid(body) {
		renderError(w, h.log, errors.NewInvalidRequest("body must be valid JSON"))
		return
	}

	sess.ctl.Update(json.RawMessage(body))
	renderJSON(w, http.StatusAccepted, sess.View())
}

// HandleSave handles POST /sessions/{id}/save: write now, bypassing the debounce.
func (h *Handlers) HandleSave(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.ctl.SaveNow()
	renderJSON(w, http.StatusOK, sess.View())
}

// HandleBeacon handles POST /sessions/{id}/beacon, sent by the page on
// pagehide. It flushes the pending draft like an unload would.
func (h *Handlers) HandleBeacon(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.ctl.Flush()
	w.WriteHeader(http.StatusNoContent)
}

// HandleAccept handles POST /sessions/{id}/accept: resume the offered draft.
func (h *Handlers) HandleAccept(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var loaded json.RawMessage
	p := prompt.ForController(sess.ctl, sess.Label, func(data json.RawMessage) { loaded = data })
	if !p.IsOpen {
		renderError(w, h.log, errors.NewConflict("no draft is on offer for this session"))
		return
	}
	p.Resume()
	if loaded == nil {
		renderError(w, h.log, errors.NewConflict("draft offer was already answered"))
		return
	}
	// The form now holds the recovered draft; later flushes must keep it.
	sess.ctl.Update(loaded)

	if !wantsJSON(r) {
		http.Redirect(w, r, "/sessions/"+sess.ID+"/prompt", http.StatusSeeOther)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"session": sess.View(),
		"draft":   loaded,
	})
}

// HandleDismiss handles POST /sessions/{id}/dismiss: start new, discarding the draft.
func (h *Handlers) HandleDismiss(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	prompt.ForController(sess.ctl, sess.Label, nil).StartNew()

	if !wantsJSON(r) {
		http.Redirect(w, r, "/sessions/"+sess.ID+"/prompt", http.StatusSeeOther)
		return
	}
	renderJSON(w, http.StatusOK, sess.View())
}

// HandleClear handles DELETE /sessions/{id}/draft, called after a successful submit.
func (h *Handlers) HandleClear(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.ctl.ClearDraft()
	renderJSON(w, http.StatusOK, sess.View())
}

// HandleEnabled handles PUT /sessions/{id}/enabled with body {"enabled": bool}.
func (h *Handlers) HandleEnabled(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var input struct {
		Enabled *bool `json:"enabled"`
	}
	if err := h.decodeBody(w, r, &input); err != nil {
		renderError(w, h.log, err)
		return
	}
	if input.Enabled == nil {
		renderError(w, h.log, errors.NewInvalidRequest("enabled is required"))
		return
	}

	sess.ctl.SetEnabled(*input.Enabled)
	renderJSON(w, http.StatusOK, sess.View())
}

// HandlePrompt handles GET /sessions/{id}/prompt: the resume dialog fragment.
// The optional tz query parameter is an IANA zone for the saved-at time.
func (h *Handlers) HandlePrompt(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	loc := time.UTC
	if tz := r.URL.Query().Get("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			renderError(w, h.log, errors.NewInvalidRequest("unknown time zone: "+tz))
			return
		}
		loc = l
	}

	p := prompt.ForController(sess.ctl, sess.Label, nil)
	var buf bytes.Buffer
	err := p.RenderHTML(&buf, h.store.Clock().Now(), loc, prompt.Actions{
		Resume:   "/sessions/" + sess.ID + "/accept",
		StartNew: "/sessions/" + sess.ID + "/dismiss",
	})
	if err != nil {
		renderError(w, h.log, errors.NewInternal(err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// HandleClose handles DELETE /sessions/{id}: the page unmounted.
func (h *Handlers) HandleClose(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(r.PathValue("id")); err != nil {
		renderError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDrafts handles GET /drafts: every stored draft, paginated.
func (h *Handlers) HandleDrafts(w http.ResponseWriter, r *http.Request) {
	result, err := ops.List(h.store, ops.ListInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
		MaxAge: h.cfg.MaxAge(),
	})
	if err != nil {
		renderError(w, h.log, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleDraft handles GET /drafts/{key}.
func (h *Handlers) HandleDraft(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Read(h.store, ops.ReadInput{Key: r.PathValue("key"), MaxAge: h.cfg.MaxAge()})
	if err != nil {
		renderError(w, h.log, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleRemoveDraft handles DELETE /drafts/{key}.
func (h *Handlers) HandleRemoveDraft(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Remove(h.store, ops.RemoveInput{Key: r.PathValue("key")})
	if err != nil {
		renderError(w, h.log, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandlePurge handles POST /drafts/purge: permanently delete stale drafts.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		renderError(w, h.log, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if r.FormValue("confirm") != "true" {
		renderError(w, h.log, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	input := ops.PurgeInput{
		MaxAge:         h.cfg.MaxAge(),
		IncludeCorrupt: r.FormValue("include_corrupt") == "true",
	}
	if hours := r.FormValue("max_age_hours"); hours != "" {
		v, err := strconv.ParseFloat(hours, 64)
		if err != nil || v <= 0 {
			renderError(w, h.log, errors.NewInvalidRequest("max_age_hours must be a positive number"))
			return
		}
		input.MaxAge = time.Duration(v * float64(time.Hour))
	}

	result, err := ops.Purge(h.store, input)
	if err != nil {
		renderError(w, h.log, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// session resolves the {id} path value, writing a 404 if it is unknown.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		renderError(w, h.log, err)
		return nil, false
	}
	return sess, true
}

func (h *Handlers) maxBody() int64 {
	if h.cfg.MaxEnvelopeBytes > 0 {
		return int64(h.cfg.MaxEnvelopeBytes) * 2
	}
	return defaultMaxBody
}

func (h *Handlers) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody()))
	if err != nil {
		return nil, errors.NewInvalidRequest("request body too large or unreadable")
	}
	return body, nil
}

func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := h.readBody(w, r)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

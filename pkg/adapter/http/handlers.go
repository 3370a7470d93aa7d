package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/registry"
	"github.com/marmos91/dittobox/pkg/store/metadata"
)

// maxJSONBody caps JSON request bodies. Uploads are multipart and bounded
// by the catalog instead.
const maxJSONBody = 64 << 10

// handler serves the API on top of the registry's services.
type handler struct {
	reg       *registry.Registry
	sessions  *sessions
	publicURL string
}

// ============================================================================
// Views
// ============================================================================

// fileView is the API representation of a file record. The blob ref is an
// internal detail and never leaves the server.
type fileView struct {
	ID          int64     `json:"id"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	ContentType string    `json:"content_type"`
	IsPrivate   bool      `json:"is_private"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newFileView(rec *metadata.FileRecord) fileView {
	return fileView{
		ID:          rec.ID,
		Filename:    rec.Filename,
		Size:        rec.Size,
		Checksum:    rec.Checksum,
		ContentType: rec.ContentType,
		IsPrivate:   rec.IsPrivate,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

type userView struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserView(u *metadata.User) userView {
	return userView{ID: u.ID, Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}
}

// ============================================================================
// Auth
// ============================================================================

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.reg.Auth().Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger.Info("http: registered user %q (id=%d)", req.Username, id)
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "username": req.Username})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      userView  `json:"user"`
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.reg.Auth().Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, expires, err := h.sessions.issue(user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires, User: newUserView(user)})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)

	user, err := h.reg.Auth().User(r.Context(), session.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user))
}

// ============================================================================
// Files
// ============================================================================

func (h *handler) listFiles(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)

	var (
		files []*metadata.FileRecord
		err   error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		files, err = h.reg.Catalog().Search(r.Context(), session.Username, q)
	} else {
		files, err = h.reg.Catalog().List(r.Context(), session.Username)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	views := make([]fileView, 0, len(files))
	for _, f := range files {
		views = append(views, newFileView(f))
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": views})
}

// uploadFile streams the multipart part named "file" straight into the
// catalog without buffering it on disk or in memory.
func (h *handler) uploadFile(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)

	mr, err := r.MultipartReader()
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidInput, "expected multipart/form-data body")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeErrorCode(w, http.StatusBadRequest, codeInvalidInput, `missing "file" form field`)
			return
		}
		if err != nil {
			writeErrorCode(w, http.StatusBadRequest, codeInvalidInput, "malformed multipart body")
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		rec, err := h.reg.Catalog().Upload(r.Context(), session.Username, partFileName(part), part)
		_ = part.Close()
		if err != nil {
			writeError(w, r, err)
			return
		}

		w.Header().Set("Location", "/api/v1/files/"+strconv.FormatInt(rec.ID, 10))
		writeJSON(w, http.StatusCreated, newFileView(rec))
		return
	}
}

// partFileName returns the filename parameter exactly as the client sent
// it. Part.FileName strips directories, which would let "../x.txt" through
// as "x.txt"; the catalog rejects such names, the same as on rename.
func partFileName(part *multipart.Part) string {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return ""
	}
	return params["filename"]
}

func (h *handler) getFile(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	id, ok := fileID(w, r)
	if !ok {
		return
	}

	rec, err := h.reg.Catalog().Get(r.Context(), session.Username, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFileView(rec))
}

func (h *handler) downloadFile(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	id, ok := fileID(w, r)
	if !ok {
		return
	}

	rc, rec, err := h.reg.Catalog().Download(r.Context(), session.Username, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer func() { _ = rc.Close() }()

	streamContent(w, r, rc, rec.Filename, rec.ContentType, rec.Size)
}

type renameRequest struct {
	Filename string `json:"filename"`
}

func (h *handler) renameFile(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	id, ok := fileID(w, r)
	if !ok {
		return
	}

	var req renameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	catalog := h.reg.Catalog()
	if err := catalog.Rename(r.Context(), session.Username, id, req.Filename); err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := catalog.Get(r.Context(), session.Username, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFileView(rec))
}

func (h *handler) deleteFile(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	id, ok := fileID(w, r)
	if !ok {
		return
	}

	if err := h.reg.Catalog().Delete(r.Context(), session.Username, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) togglePrivacy(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	id, ok := fileID(w, r)
	if !ok {
		return
	}

	private, err := h.reg.Catalog().TogglePrivacy(r.Context(), session.Username, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_private": private})
}

// ============================================================================
// Shares
// ============================================================================

type issueShareRequest struct {
	// TTL is a Go duration string ("1h", "90m"). Empty selects the default.
	TTL string `json:"ttl"`
}

type shareView struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	FileID    int64     `json:"file_id"`
	Filename  string    `json:"filename"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *handler) issueShare(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	id, ok := fileID(w, r)
	if !ok {
		return
	}

	var req issueShareRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	var ttl time.Duration
	if req.TTL != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil || parsed <= 0 {
			writeErrorCode(w, http.StatusBadRequest, codeInvalidInput, "ttl must be a positive duration such as \"1h\"")
			return
		}
		ttl = parsed
	}

	share, err := h.reg.Shares().Issue(r.Context(), session.Username, id, ttl)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, shareView{
		Token:     share.Token,
		URL:       h.shareURL(share.Token),
		FileID:    share.FileID,
		Filename:  share.Filename,
		ExpiresAt: share.ExpiresAt,
	})
}

func (h *handler) revokeShare(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)

	if err := h.reg.Shares().Revoke(r.Context(), session.Username, chi.URLParam(r, "token")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolveShare describes the file behind a share token without streaming it.
func (h *handler) resolveShare(w http.ResponseWriter, r *http.Request) {
	shared, err := h.reg.Shares().Resolve(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shared)
}

// openShare streams a shared file to an anonymous caller.
func (h *handler) openShare(w http.ResponseWriter, r *http.Request) {
	rc, shared, err := h.reg.Shares().Open(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer func() { _ = rc.Close() }()

	streamContent(w, r, rc, shared.Filename, shared.ContentType, shared.Size)
}

func (h *handler) shareURL(token string) string {
	return strings.TrimRight(h.publicURL, "/") + "/s/" + token
}

// ============================================================================
// Health
// ============================================================================

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	result := h.reg.Healthcheck(r.Context())

	checks := make(map[string]string, len(result.Checks))
	for name, err := range result.Checks {
		if err != nil {
			logger.Warn("http: health check %s failed: %v", name, err)
			checks[name] = "unavailable"
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !result.Healthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

// ============================================================================
// Helpers
// ============================================================================

func mustSession(r *http.Request) Session {
	s, ok := SessionFromContext(r.Context())
	if !ok {
		// Routes calling this are mounted behind requireSession.
		panic("http: session missing from request context")
	}
	return s
}

// fileID parses the {id} URL parameter. Malformed IDs answer 404 like any
// other unknown file.
func fileID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeErrorCode(w, http.StatusNotFound, codeNotFound, "not found")
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, false)
}

// decodeOptionalJSON accepts an empty body and leaves v untouched.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		writeErrorCode(w, http.StatusBadRequest, codeInvalidInput, "invalid JSON body")
		return false
	}
	return true
}

// streamContent writes a blob as an attachment download.
func streamContent(w http.ResponseWriter, r *http.Request, rc io.Reader, filename, contentType string, size int64) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	if disposition == "" {
		disposition = "attachment"
	}

	header := w.Header()
	header.Set("Content-Type", contentType)
	header.Set("Content-Disposition", disposition)
	header.Set("Content-Length", strconv.FormatInt(size, 10))
	header.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		// Headers are gone; the client sees a short body.
		logger.Warn("http: %s %s: stream aborted: %v", r.Method, r.URL.Path, err)
	}
}

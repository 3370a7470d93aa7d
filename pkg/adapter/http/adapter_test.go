package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittobox/pkg/registry"
	"github.com/marmos91/dittobox/pkg/service"
	blobmemory "github.com/marmos91/dittobox/pkg/store/blob/memory"
	"github.com/marmos91/dittobox/pkg/store/metadata"
	metamemory "github.com/marmos91/dittobox/pkg/store/metadata/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	blobs := blobmemory.NewMemoryBlobStore()
	meta := metamemory.NewMemoryMetadataStore()
	auth, err := service.NewAuthService(meta, service.AuthConfig{BcryptCost: 4}, nil)
	require.NoError(t, err)

	reg, err := registry.New(blobs, meta, registry.Services{
		Catalog: service.NewCatalogService(blobs, meta, service.CatalogConfig{}, nil),
		Shares:  service.NewShareManager(blobs, meta, service.SharingConfig{}, nil),
		Auth:    auth,
	})
	require.NoError(t, err)
	return reg
}

func newTestAdapter(t *testing.T) *HTTPAdapter {
	t.Helper()
	a := New(HTTPConfig{Enabled: true, SessionSecret: testSecret, PublicURL: "https://box.example.com/"}, nil)
	a.SetRegistry(newRegistry(t))
	return a
}

// client drives the API of one test server.
type client struct {
	t     *testing.T
	base  string
	token string
}

func newClient(t *testing.T) *client {
	t.Helper()
	srv := httptest.NewServer(newTestAdapter(t).Handler())
	t.Cleanup(srv.Close)
	return &client{t: t, base: srv.URL}
}

func (c *client) as(token string) *client {
	return &client{t: c.t, base: c.base, token: token}
}

func (c *client) do(method, path, contentType string, body io.Reader) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, body)
	require.NoError(c.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (c *client) json(method, path string, body any) *http.Response {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(data)
	}
	return c.do(method, path, "application/json", r)
}

func (c *client) upload(name string, content []byte) *http.Response {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(c.t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(c.t, err)
	_, err = fw.Write(content)
	require.NoError(c.t, err)
	require.NoError(c.t, mw.Close())
	return c.do(http.MethodPost, "/api/v1/files", mw.FormDataContentType(), &buf)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

// signup registers and logs in a user, returning a client carrying the
// session token.
func (c *client) signup(username string) *client {
	c.t.Helper()
	resp := c.json(http.MethodPost, "/api/v1/auth/register", registerRequest{
		Username: username, Email: username + "@example.com", Password: "pw-" + username,
	})
	require.Equal(c.t, http.StatusCreated, resp.StatusCode)

	resp = c.json(http.MethodPost, "/api/v1/auth/login", loginRequest{Username: username, Password: "pw-" + username})
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
	login := decode[loginResponse](c.t, resp)
	require.NotEmpty(c.t, login.Token)
	return c.as(login.Token)
}

func TestAuthFlow(t *testing.T) {
	c := newClient(t)
	alice := c.signup("alice")

	resp := alice.do(http.MethodGet, "/api/v1/auth/me", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[userView](t, resp)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, "alice@example.com", me.Email)

	resp = c.json(http.MethodPost, "/api/v1/auth/register", registerRequest{
		Username: "alice", Email: "other@example.com", Password: "x",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = c.json(http.MethodPost, "/api/v1/auth/login", loginRequest{Username: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = c.json(http.MethodPost, "/api/v1/auth/register", map[string]string{"username": "x", "bogus": "y"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionRequired(t *testing.T) {
	c := newClient(t)

	resp := c.do(http.MethodGet, "/api/v1/files", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = c.as("not-a-jwt").do(http.MethodGet, "/api/v1/files", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFileLifecycle(t *testing.T) {
	alice := newClient(t).signup("alice")
	content := []byte("%PDF-1.4 quarterly report")

	resp := alice.upload("report.pdf", content)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[fileView](t, resp)
	assert.Equal(t, "report.pdf", created.Filename)
	assert.Equal(t, int64(len(content)), created.Size)
	assert.True(t, created.IsPrivate)
	assert.Equal(t, "application/pdf", created.ContentType)
	assert.Equal(t, fmt.Sprintf("/api/v1/files/%d", created.ID), resp.Header.Get("Location"))

	path := fmt.Sprintf("/api/v1/files/%d", created.ID)

	// Download
	resp = alice.do(http.MethodGet, path+"/content", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(content), readBody(t, resp))
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename=report.pdf`)

	// Duplicate name under the default reject policy
	resp = alice.upload("report.pdf", []byte("again"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Rename
	resp = alice.json(http.MethodPatch, path, renameRequest{Filename: "q3.pdf"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "q3.pdf", decode[fileView](t, resp).Filename)

	resp = alice.do(http.MethodGet, path+"/content", "", nil)
	assert.Equal(t, string(content), readBody(t, resp))

	// Search
	alice.upload("notes.txt", []byte("hello"))
	resp = alice.do(http.MethodGet, "/api/v1/files?q=Q3", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[struct {
		Files []fileView `json:"files"`
	}](t, resp)
	require.Len(t, list.Files, 1)
	assert.Equal(t, "q3.pdf", list.Files[0].Filename)

	resp = alice.do(http.MethodGet, "/api/v1/files", "", nil)
	assert.Contains(t, readBody(t, resp), "notes.txt")

	// Toggle privacy twice
	resp = alice.do(http.MethodPost, path+"/privacy", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, decode[map[string]any](t, resp)["is_private"])
	resp = alice.do(http.MethodPost, path+"/privacy", "", nil)
	assert.Equal(t, true, decode[map[string]any](t, resp)["is_private"])

	// Delete
	resp = alice.do(http.MethodDelete, path, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = alice.do(http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpload_BadRequests(t *testing.T) {
	alice := newClient(t).signup("alice")

	resp := alice.json(http.MethodPost, "/api/v1/files", map[string]string{"file": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())
	resp = alice.do(http.MethodPost, "/api/v1/files", mw.FormDataContentType(), &buf)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), `"file"`)
}

func TestUpload_PathInFilenameRejected(t *testing.T) {
	alice := newClient(t).signup("alice")

	for _, name := range []string{"../x.txt", "dir/x.txt", `dir\x.txt`} {
		resp := alice.upload(name, []byte("x"))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
		assert.Contains(t, readBody(t, resp), codeInvalidInput, name)
	}

	resp := alice.do(http.MethodGet, "/api/v1/files", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[struct {
		Files []fileView `json:"files"`
	}](t, resp).Files)
}

func TestForeignFileLooksMissing(t *testing.T) {
	c := newClient(t)
	alice := c.signup("alice")
	bob := c.signup("bob")

	resp := alice.upload("secret.txt", []byte("alice only"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decode[fileView](t, resp).ID

	foreign := bob.do(http.MethodGet, fmt.Sprintf("/api/v1/files/%d", id), "", nil)
	missing := bob.do(http.MethodGet, "/api/v1/files/999999", "", nil)
	malformed := bob.do(http.MethodGet, "/api/v1/files/abc", "", nil)

	assert.Equal(t, http.StatusNotFound, foreign.StatusCode)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	assert.Equal(t, http.StatusNotFound, malformed.StatusCode)
	foreignBody := readBody(t, foreign)
	assert.Equal(t, readBody(t, missing), foreignBody)
	assert.Equal(t, readBody(t, malformed), foreignBody)

	for _, req := range []struct{ method, suffix string }{
		{http.MethodGet, "/content"},
		{http.MethodDelete, ""},
		{http.MethodPost, "/privacy"},
		{http.MethodPost, "/shares"},
	} {
		resp := bob.do(req.method, fmt.Sprintf("/api/v1/files/%d%s", id, req.suffix), "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "%s %s", req.method, req.suffix)
	}
}

func TestShareLinks(t *testing.T) {
	c := newClient(t)
	alice := c.signup("alice")
	bob := c.signup("bob")

	resp := alice.upload("photo.txt", []byte("holiday"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	path := fmt.Sprintf("/api/v1/files/%d", decode[fileView](t, resp).ID)

	// Private files cannot be shared.
	resp = alice.json(http.MethodPost, path+"/shares", issueShareRequest{TTL: "1h"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	alice.do(http.MethodPost, path+"/privacy", "", nil)

	resp = alice.json(http.MethodPost, path+"/shares", issueShareRequest{TTL: "nonsense"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = alice.json(http.MethodPost, path+"/shares", issueShareRequest{TTL: "1h"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	share := decode[shareView](t, resp)
	assert.Equal(t, "https://box.example.com/s/"+share.Token, share.URL)
	assert.Equal(t, "photo.txt", share.Filename)

	// Empty body selects the default TTL.
	resp = alice.do(http.MethodPost, path+"/shares", "", nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Anyone can follow the link.
	resp = c.do(http.MethodGet, "/s/"+share.Token, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "holiday", readBody(t, resp))

	resp = c.do(http.MethodGet, "/api/v1/shares/"+share.Token, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decode[map[string]any](t, resp)
	assert.Equal(t, "photo.txt", info["filename"])
	assert.NotContains(t, info, "content_ref")

	// Going private again makes the link stop working.
	alice.do(http.MethodPost, path+"/privacy", "", nil)
	resp = c.do(http.MethodGet, "/s/"+share.Token, "", nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	alice.do(http.MethodPost, path+"/privacy", "", nil)

	// Only the owner can revoke.
	resp = bob.do(http.MethodDelete, "/api/v1/shares/"+share.Token, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = alice.do(http.MethodDelete, "/api/v1/shares/"+share.Token, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = c.do(http.MethodGet, "/s/"+share.Token, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = c.do(http.MethodGet, "/s/garbage", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	c := newClient(t)

	resp := c.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestUnknownRoute(t *testing.T) {
	c := newClient(t)

	resp := c.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{service.ErrInvalidInput, http.StatusBadRequest},
		{service.ErrDuplicateFilename, http.StatusConflict},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrForbidden, http.StatusNotFound},
		{service.ErrInvalidToken, http.StatusNotFound},
		{service.ErrExpired, http.StatusGone},
		{service.ErrFileNoLongerShareable, http.StatusGone},
		{service.ErrRateLimited, http.StatusTooManyRequests},
		{service.ErrStorageFailure, http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestSessions_Expiry(t *testing.T) {
	s := newSessions(testSecret, time.Hour)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	token, expires, err := s.issue(&metadata.User{ID: 7, Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expires)

	session, err := s.verify(token)
	require.NoError(t, err)
	assert.Equal(t, Session{UserID: 7, Username: "alice"}, session)

	now = now.Add(2 * time.Hour)
	_, err = s.verify(token)
	assert.Error(t, err)

	other := newSessions(strings.Repeat("x", 32), time.Hour)
	_, err = other.verify(token)
	assert.Error(t, err, "wrong secret")
}

func TestNew_InvalidConfigPanics(t *testing.T) {
	assert.Panics(t, func() { New(HTTPConfig{SessionSecret: "short"}, nil) })
	assert.NoError(t, HTTPConfig{SessionSecret: testSecret}.Validate())
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestServeAndStop(t *testing.T) {
	a := New(HTTPConfig{Enabled: true, Port: freePort(t), SessionSecret: testSecret}, nil)
	a.SetRegistry(newRegistry(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	require.Eventually(t, func() bool { return a.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/healthz", a.Port()))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	assert.NoError(t, a.Stop(context.Background()), "second stop is a no-op")
}

func TestStop_BeforeServe(t *testing.T) {
	a := New(HTTPConfig{Enabled: true, Port: freePort(t), SessionSecret: testSecret}, nil)
	a.SetRegistry(newRegistry(t))

	require.NoError(t, a.Stop(context.Background()))
	assert.NoError(t, a.Serve(context.Background()))
}

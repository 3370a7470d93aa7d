package framework

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"testing"
	"time"
)

// Client drives the DittoBox JSON API as one user.
type Client struct {
	t       testing.TB
	baseURL string
	http    *http.Client
	token   string
}

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// JSON decodes the body into v and fails the test on malformed JSON.
func (r *Response) JSON(t testing.TB, v any) {
	t.Helper()
	if err := json.Unmarshal(r.Body, v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", r.Body, err)
	}
}

// ErrorCode returns the machine-readable code of an error body.
func (r *Response) ErrorCode(t testing.TB) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	r.JSON(t, &body)
	return body.Error.Code
}

// File mirrors the file representation returned by the API.
type File struct {
	ID          int64     `json:"id"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	ContentType string    `json:"content_type"`
	IsPrivate   bool      `json:"is_private"`
	CreatedAt   time.Time `json:"created_at"`
}

// Share mirrors a share link returned by the API.
type Share struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	FileID    int64     `json:"file_id"`
	Filename  string    `json:"filename"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewClient creates an anonymous client for the server.
func (ts *TestServer) NewClient() *Client {
	return &Client{
		t:       ts.t,
		baseURL: ts.BaseURL(),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Do sends a request and reads the whole response.
func (c *Client) Do(method, path string, body io.Reader, contentType string) *Response {
	c.t.Helper()

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		c.t.Fatalf("Failed to build request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("Failed to read %s %s response: %v", method, path, err)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}
}

// JSON sends v as a JSON body.
func (c *Client) JSON(method, path string, v any) *Response {
	c.t.Helper()

	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			c.t.Fatalf("Failed to encode request: %v", err)
		}
		body = bytes.NewReader(data)
	}
	return c.Do(method, path, body, "application/json")
}

// Signup registers username and logs in, keeping the session token.
func (c *Client) Signup(username, password string) {
	c.t.Helper()

	resp := c.JSON(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
	})
	if resp.Status != http.StatusCreated {
		c.t.Fatalf("Register %s: expected 201, got %d: %s", username, resp.Status, resp.Body)
	}
	c.Login(username, password)
}

// Login authenticates and keeps the session token.
func (c *Client) Login(username, password string) *Response {
	c.t.Helper()

	resp := c.JSON(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	if resp.Status == http.StatusOK {
		var body struct {
			Token string `json:"token"`
		}
		resp.JSON(c.t, &body)
		c.token = body.Token
	}
	return resp
}

// Upload sends content as a multipart upload.
func (c *Client) Upload(filename string, content []byte) *Response {
	c.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		c.t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		c.t.Fatalf("Failed to write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		c.t.Fatalf("Failed to close multipart writer: %v", err)
	}
	return c.Do(http.MethodPost, "/api/v1/files", &buf, mw.FormDataContentType())
}

// MustUpload uploads and returns the created file.
func (c *Client) MustUpload(filename string, content []byte) File {
	c.t.Helper()

	resp := c.Upload(filename, content)
	if resp.Status != http.StatusCreated {
		c.t.Fatalf("Upload %s: expected 201, got %d: %s", filename, resp.Status, resp.Body)
	}
	var f File
	resp.JSON(c.t, &f)
	return f
}

// List returns the caller's files, filtered by query when not empty.
func (c *Client) List(query string) []File {
	c.t.Helper()

	path := "/api/v1/files"
	if query != "" {
		path += "?q=" + query
	}
	resp := c.Do(http.MethodGet, path, nil, "")
	if resp.Status != http.StatusOK {
		c.t.Fatalf("List: expected 200, got %d: %s", resp.Status, resp.Body)
	}
	var body struct {
		Files []File `json:"files"`
	}
	resp.JSON(c.t, &body)
	return body.Files
}

// FilePath returns the API path of a file sub-resource.
func FilePath(id int64, suffix string) string {
	return fmt.Sprintf("/api/v1/files/%d%s", id, suffix)
}

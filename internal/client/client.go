// Package client uploads local files to a running qrdrop server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"qrdrop/internal/core"
)

// Result is the server's JSON answer to an upload.
type Result struct {
	Kind     string   `json:"kind"`
	Filename string   `json:"filename"`
	URL      string   `json:"url"`
	QRCode   string   `json:"qr_code"`
	Size     int64    `json:"size"`
	Checksum string   `json:"checksum"`
	Files    []string `json:"files,omitempty"`
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to one qrdrop server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at baseURL. A nil httpClient uses
// a client without an overall timeout, since uploads can be large.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Upload sends files as one form submission. More than one file makes the
// server bundle them into a zip named after name (or its default).
// The body is streamed from disk.
func (c *Client) Upload(ctx context.Context, files []core.ParsedPath, name string) (*Result, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeForm(mw, files, name))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	return &result, nil
}

func writeForm(mw *multipart.Writer, files []core.ParsedPath, name string) error {
	for _, f := range files {
		if err := writeFile(mw, f); err != nil {
			return err
		}
	}
	if err := mw.WriteField("filename", name); err != nil {
		return err
	}
	return mw.Close()
}

func writeFile(mw *multipart.Writer, f core.ParsedPath) error {
	src, err := os.Open(f.FullPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.FullPath, err)
	}
	defer src.Close()

	part, err := mw.CreateFormFile("files", f.Name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("failed to send %s: %w", f.FullPath, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

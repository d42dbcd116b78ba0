package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
	Kind    string
}

func (e *StatusError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("api %d (%s): %s", e.Code, e.Kind, e.Message)
	}
	return fmt.Sprintf("api %d: %s", e.Code, e.Message)
}

// Client talks to the daemon HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the daemon listening on bind (host:port or
// a full URL).
func NewClient(bind string, httpClient *http.Client) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{base: base, http: httpClient}
}

// Dial returns a client after confirming the daemon answers.
func Dial(ctx context.Context, bind string) (*Client, error) {
	client := NewClient(bind, nil)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.Status(pingCtx); err != nil {
		return nil, err
	}
	return client, nil
}

// Close is a no-op kept so callers can treat every session the same way.
func (c *Client) Close() error { return nil }

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.getJSON(ctx, "/api/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListQueue returns every job in insertion order.
func (c *Client) ListQueue(ctx context.Context) ([]Job, error) {
	var resp QueueListResponse
	if err := c.getJSON(ctx, "/api/queue", &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Job returns one job.
func (c *Client) Job(ctx context.Context, id string) (*Job, error) {
	var resp JobResponse
	if err := c.getJSON(ctx, "/api/queue/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

// Enqueue uploads files for conversion to target.
func (c *Client) Enqueue(ctx context.Context, target string, paths ...string) (*EnqueueResponse, error) {
	body, contentType, err := multipartBody(target, paths)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/queue", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	var resp EnqueueResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoveJob removes a job, halting it when it is converting.
func (c *Client) RemoveJob(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/queue/"+url.PathEscape(id))
}

// ClearQueue aborts the active job and empties the queue.
func (c *Client) ClearQueue(ctx context.Context) error {
	return c.delete(ctx, "/api/queue")
}

// DownloadResult streams a completed job's output into w.
func (c *Client) DownloadResult(ctx context.Context, id string, w io.Writer) (string, error) {
	return c.download(ctx, "/api/queue/"+url.PathEscape(id)+"/result", w)
}

// ListHistory returns history entries, newest first.
func (c *Client) ListHistory(ctx context.Context) ([]HistoryEntry, error) {
	var resp HistoryListResponse
	if err := c.getJSON(ctx, "/api/history", &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// ClearHistory empties both history tiers.
func (c *Client) ClearHistory(ctx context.Context) error {
	return c.delete(ctx, "/api/history")
}

// DownloadHistory streams a history entry's converted file into w.
func (c *Client) DownloadHistory(ctx context.Context, id string, w io.Writer) (string, error) {
	return c.download(ctx, "/api/history/"+url.PathEscape(id)+"/file", w)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// download copies the body into w and returns the served filename.
func (c *Client) download(ctx context.Context, path string, w io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", err
	}
	return attachmentName(resp.Header.Get("Content-Disposition")), nil
}

func decodeError(resp *http.Response) error {
	var payload ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(data))
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
	}
	return &StatusError{Code: resp.StatusCode, Message: payload.Error, Kind: payload.Kind}
}

func attachmentName(header string) string {
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func multipartBody(target string, paths []string) (io.Reader, string, error) {
	if len(paths) == 0 {
		return nil, "", errors.New("no files to upload")
	}
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("target", target); err != nil {
		return nil, "", err
	}
	for _, path := range paths {
		if err := addFilePart(writer, path); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func addFilePart(writer *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"vconv/internal/api"
	"vconv/internal/handles"
	"vconv/internal/logging"
	"vconv/internal/queue"
	"vconv/internal/testsupport"
)

type apiHarness struct {
	daemon *Daemon
	server *httptest.Server
	client *api.Client
	dir    string
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	engines := testsupport.NewEngineRecorder(func(int) *testsupport.FakeEngine {
		return testsupport.NewFakeEngine(map[string][]byte{
			"output.mp4":    []byte("converted-mp4"),
			"thumbnail.jpg": {0xff, 0xd8, 0xff},
		})
	})
	d, err := New(context.Background(), cfg, logging.NewNop(), Options{EngineFactory: engines.Factory()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(d.api.routes())
	t.Cleanup(func() {
		srv.Close()
		_ = d.Close()
	})
	return &apiHarness{
		daemon: d,
		server: srv,
		client: api.NewClient(srv.URL, srv.Client()),
		dir:    testsupport.BaseDir(cfg),
	}
}

func (h *apiHarness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.daemon.scheduler.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func TestEnqueueConvertsAndRecordsHistory(t *testing.T) {
	h := newAPIHarness(t)
	ctx := context.Background()
	path := testsupport.WriteVideo(t, h.dir, "holiday.avi")

	resp, err := h.client.Enqueue(ctx, "mp4", path)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(resp.Jobs) != 1 || len(resp.Rejected) != 0 {
		t.Fatalf("unexpected enqueue response: %+v", resp)
	}
	job := resp.Jobs[0]
	if job.SourceFormat != "avi" || job.TargetFormat != "mp4" {
		t.Fatalf("unexpected formats: %+v", job)
	}
	h.drain(t)

	got, err := h.client.Job(ctx, job.ID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if got.Status != string(queue.StatusCompleted) || got.Progress != 100 {
		t.Fatalf("job not completed: %+v", got)
	}
	if got.ResultFilename != "holiday.mp4" {
		t.Fatalf("result filename = %q", got.ResultFilename)
	}

	var buf bytes.Buffer
	name, err := h.client.DownloadResult(ctx, job.ID, &buf)
	if err != nil {
		t.Fatalf("DownloadResult: %v", err)
	}
	if name != "holiday.mp4" || buf.String() != "converted-mp4" {
		t.Fatalf("download = %q %q", name, buf.String())
	}

	entries, err := h.client.ListHistory(ctx)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one history entry, got %d", len(entries))
	}
	if entries[0].OriginalFilename != "holiday.avi" || entries[0].OutputFormat != "mp4" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
	if entries[0].ThumbnailURL == handles.Placeholder {
		t.Fatal("expected a materialized thumbnail handle")
	}

	thumb, err := h.server.Client().Get(h.server.URL + entries[0].ThumbnailURL)
	if err != nil {
		t.Fatalf("get thumbnail: %v", err)
	}
	thumb.Body.Close()
	if thumb.StatusCode != http.StatusOK || thumb.Header.Get("Content-Type") != "image/jpeg" {
		t.Fatalf("thumbnail handle status=%d type=%q", thumb.StatusCode, thumb.Header.Get("Content-Type"))
	}

	buf.Reset()
	name, err = h.client.DownloadHistory(ctx, entries[0].ID, &buf)
	if err != nil {
		t.Fatalf("DownloadHistory: %v", err)
	}
	if name != "holiday.mp4" || buf.String() != "converted-mp4" {
		t.Fatalf("history download = %q %q", name, buf.String())
	}

	// The staged upload is removed once the job finishes.
	staged, _ := os.ReadDir(h.daemon.cfg.Paths.StagingDir)
	if len(staged) != 0 {
		t.Fatalf("expected staging dir to be empty, found %d entries", len(staged))
	}
}

func TestEnqueueRejectsInvalidUploads(t *testing.T) {
	h := newAPIHarness(t)
	ctx := context.Background()

	_, err := h.client.Enqueue(ctx, "mp4", testsupport.WriteVideo(t, h.dir, "clip.mov"))
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected status error, got %v", err)
	}
	if statusErr.Code != http.StatusBadRequest || statusErr.Kind != "unsupportedFormat" {
		t.Fatalf("unexpected rejection: %+v", statusErr)
	}

	_, err = h.client.Enqueue(ctx, "mp4", testsupport.WriteVideo(t, h.dir, "already.mp4"))
	if !errors.As(err, &statusErr) || statusErr.Kind != "sameFormat" {
		t.Fatalf("expected sameFormat rejection, got %v", err)
	}

	resp, err := h.client.Enqueue(ctx, "mp4",
		testsupport.WriteVideo(t, h.dir, "good.mkv"),
		testsupport.WriteVideo(t, h.dir, "bad.flv"),
	)
	if err != nil {
		t.Fatalf("mixed Enqueue: %v", err)
	}
	if len(resp.Jobs) != 1 || len(resp.Rejected) != 1 {
		t.Fatalf("expected one job and one rejection, got %+v", resp)
	}
	if resp.Rejected[0].Name != "bad.flv" || resp.Rejected[0].Kind != "unsupportedFormat" {
		t.Fatalf("unexpected rejection: %+v", resp.Rejected[0])
	}
	h.drain(t)

	jobs, err := h.client.ListQueue(ctx)
	if err != nil {
		t.Fatalf("ListQueue: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("rejected uploads must not create jobs, got %d", len(jobs))
	}
}

func TestEnqueueUsesDefaultTarget(t *testing.T) {
	h := newAPIHarness(t)
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "clip.webm")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write([]byte("webm-bytes"))
	_ = writer.Close()

	resp, err := h.server.Client().Post(h.server.URL+"/api/queue", writer.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out api.EnqueueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Jobs) != 1 || out.Jobs[0].TargetFormat != h.daemon.cfg.Conversion.DefaultTarget {
		t.Fatalf("unexpected jobs: %+v", out.Jobs)
	}
	h.drain(t)
}

func multipartUpload(t *testing.T, target string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := writer.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	// Target after the files: the handler must not depend on field order.
	if target != "" {
		if err := writer.WriteField("target", target); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestEnqueueRejectsOversizedFileWithoutKeepingIt(t *testing.T) {
	h := newAPIHarness(t)
	h.daemon.cfg.Conversion.MaxInputMiB = 1
	body, contentType := multipartUpload(t, "mp4", map[string][]byte{
		"big.avi":   bytes.Repeat([]byte{1}, 1<<20+10),
		"small.avi": []byte("small"),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/queue", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.daemon.api.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var out api.EnqueueResponse
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Jobs) != 1 || out.Jobs[0].SourceName != "small.avi" || out.Jobs[0].TargetFormat != "mp4" {
		t.Fatalf("unexpected jobs: %+v", out.Jobs)
	}
	if len(out.Rejected) != 1 || out.Rejected[0].Name != "big.avi" || out.Rejected[0].Kind != "fileTooLarge" {
		t.Fatalf("unexpected rejections: %+v", out.Rejected)
	}
	h.drain(t)

	staged, err := os.ReadDir(h.daemon.cfg.Paths.StagingDir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(staged) != 0 {
		t.Fatalf("oversized upload left %d staged files", len(staged))
	}
}

func TestEnqueueRefusesOversizedRequestBody(t *testing.T) {
	h := newAPIHarness(t)
	h.daemon.cfg.Conversion.MaxInputMiB = 1
	limit := maxRequestBytes(h.daemon.cfg.MaxInputBytes())
	body, contentType := multipartUpload(t, "mp4", map[string][]byte{
		"huge.avi": bytes.Repeat([]byte{1}, int(limit)+1),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/queue", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.daemon.api.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if jobs := h.daemon.scheduler.Jobs(); len(jobs) != 0 {
		t.Fatalf("no job should be created, got %d", len(jobs))
	}
	staged, _ := os.ReadDir(h.daemon.cfg.Paths.StagingDir)
	if len(staged) != 0 {
		t.Fatalf("refused request left %d staged files", len(staged))
	}
}

func TestMaxRequestBytes(t *testing.T) {
	if got, want := maxRequestBytes(10), int64(maxUploadFiles*11+multipartOverhead); got != want {
		t.Fatalf("maxRequestBytes(10) = %d, want %d", got, want)
	}
	if maxRequestBytes(0) <= maxRequestBytes(10) {
		t.Fatal("zero cap should fall back to the default")
	}
}

func TestQueueRemoveAndClear(t *testing.T) {
	h := newAPIHarness(t)
	ctx := context.Background()

	if err := h.client.RemoveJob(ctx, "missing"); err == nil {
		t.Fatal("expected error removing unknown job")
	}

	resp, err := h.client.Enqueue(ctx, "mp4", testsupport.WriteVideo(t, h.dir, "a.mkv"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	h.drain(t)
	if err := h.client.RemoveJob(ctx, resp.Jobs[0].ID); err != nil {
		t.Fatalf("RemoveJob: %v", err)
	}
	if _, err := h.client.Job(ctx, resp.Jobs[0].ID); err == nil {
		t.Fatal("expected removed job to be gone")
	}

	if _, err := h.client.Enqueue(ctx, "mp4", testsupport.WriteVideo(t, h.dir, "b.mkv")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := h.client.ClearQueue(ctx); err != nil {
		t.Fatalf("ClearQueue: %v", err)
	}
	jobs, err := h.client.ListQueue(ctx)
	if err != nil {
		t.Fatalf("ListQueue: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected empty queue, got %d", len(jobs))
	}
	if h.daemon.scheduler.Mode() != queue.ModeIdle {
		t.Fatalf("expected idle after clear")
	}
}

func TestHistoryClearAndMissingFile(t *testing.T) {
	h := newAPIHarness(t)
	ctx := context.Background()

	var buf bytes.Buffer
	_, err := h.client.DownloadHistory(ctx, "missing", &buf)
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}

	if _, err := h.client.Enqueue(ctx, "mp4", testsupport.WriteVideo(t, h.dir, "c.avi")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	h.drain(t)
	if err := h.client.ClearHistory(ctx); err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	entries, err := h.client.ListHistory(ctx)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty history, got %d", len(entries))
	}
}

func TestHandlesAndPlaceholder(t *testing.T) {
	h := newAPIHarness(t)
	client := h.server.Client()

	resp, err := client.Get(h.server.URL + handles.Placeholder)
	if err != nil {
		t.Fatalf("get placeholder: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/svg+xml" {
		t.Fatalf("placeholder status=%d type=%q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp, err = client.Get(h.server.URL + "/api/handles/unknown")
	if err != nil {
		t.Fatalf("get handle: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown handle status = %d", resp.StatusCode)
	}
}

func TestSplitItemPath(t *testing.T) {
	cases := []struct {
		path    string
		id, sub string
		ok      bool
	}{
		{"/api/queue/abc", "abc", "", true},
		{"/api/queue/abc/result", "abc", "result", true},
		{"/api/queue/", "", "", false},
		{"/api/queue/abc/result/extra", "", "", false},
		{"/other/abc", "", "", false},
	}
	for _, tc := range cases {
		id, sub, ok := splitItemPath(tc.path, "/api/queue/")
		if id != tc.id || sub != tc.sub || ok != tc.ok {
			t.Errorf("splitItemPath(%q) = %q %q %v", tc.path, id, sub, ok)
		}
	}
}

package encoding_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"vconv/internal/encoding"
	"vconv/internal/engine"
	"vconv/internal/logging"
	"vconv/internal/services"
	"vconv/internal/testsupport"
)

func opener(data string) encoding.Opener {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewBufferString(data)), nil
	}
}

func TestRunAviToMP4(t *testing.T) {
	rec := testsupport.NewEngineRecorder(func(int) *testsupport.FakeEngine {
		eng := testsupport.NewFakeEngine(map[string][]byte{"output.mp4": []byte("mp4-bytes")})
		eng.Lines = []string{
			"Duration: 00:00:10.00, start: 0.000000",
			"frame=10 time=00:00:05.00 bitrate=1k",
			"frame=20 time=00:00:10.00 bitrate=1k",
		}
		return eng
	})
	exec := encoding.NewExecutor(rec.Factory(), engine.LoadConfig{Binary: "ffmpeg"}, logging.NewNop())

	var progress []int
	out, err := exec.Run(context.Background(), encoding.Request{
		JobID:        "job-1",
		SourceName:   "clip.avi",
		SourceFormat: "avi",
		TargetFormat: "mp4",
		Open:         opener("avi-bytes"),
	}, func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if string(out.Data) != "mp4-bytes" || out.MediaType != "video/mp4" || out.Filename != "clip.mp4" {
		t.Fatalf("unexpected output: %+v", out)
	}
	if !reflect.DeepEqual(progress, []int{50, 100}) {
		t.Fatalf("progress = %v, want [50 100]", progress)
	}

	engines := rec.Engines()
	if len(engines) != 1 {
		t.Fatalf("expected one engine, got %d", len(engines))
	}
	eng := engines[0]
	if input, ok := eng.Input("input.avi"); !ok || string(input) != "avi-bytes" {
		t.Fatalf("input not staged: %q %v", input, ok)
	}
	want := []string{"-i", "input.avi", "-c:v", "libx264", "-c:a", "aac", "output.mp4"}
	if got := eng.Args(); len(got) != 1 || !reflect.DeepEqual(got[0], want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
	if !eng.Terminated() {
		t.Fatal("expected engine terminated after success")
	}
	if _, active := exec.Active(); active {
		t.Fatal("expected no active engine after Run")
	}
}

func TestRunMKVUsesMatroskaMediaType(t *testing.T) {
	rec := testsupport.NewEngineRecorder(func(int) *testsupport.FakeEngine {
		return testsupport.NewFakeEngine(map[string][]byte{"output.mkv": []byte("mkv")})
	})
	exec := encoding.NewExecutor(rec.Factory(), engine.LoadConfig{}, nil)
	out, err := exec.Run(context.Background(), encoding.Request{
		JobID: "j", SourceName: "a.mp4", SourceFormat: "mp4", TargetFormat: "mkv", Open: opener("x"),
	}, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out.MediaType != "video/x-matroska" {
		t.Fatalf("media type = %q", out.MediaType)
	}
	if args := rec.Engines()[0].Args()[0]; !reflect.DeepEqual(args[2:6], []string{"-c:v", "copy", "-c:a", "copy"}) {
		t.Fatalf("expected stream copy recipe, got %v", args)
	}
}

func TestRunFailuresTerminateEngine(t *testing.T) {
	cases := []struct {
		name   string
		build  func() *testsupport.FakeEngine
		marker error
	}{
		{"load", func() *testsupport.FakeEngine {
			eng := testsupport.NewFakeEngine(nil)
			eng.LoadErr = errors.New("core unavailable")
			return eng
		}, services.ErrExternalTool},
		{"execute", func() *testsupport.FakeEngine {
			eng := testsupport.NewFakeEngine(nil)
			eng.ExecErr = errors.New("exit status 1")
			return eng
		}, services.ErrExternalTool},
		{"no output", func() *testsupport.FakeEngine {
			return testsupport.NewFakeEngine(nil)
		}, services.ErrExternalTool},
		{"empty output", func() *testsupport.FakeEngine {
			return testsupport.NewFakeEngine(map[string][]byte{"output.mp4": {}})
		}, services.ErrExternalTool},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := testsupport.NewEngineRecorder(func(int) *testsupport.FakeEngine { return tc.build() })
			exec := encoding.NewExecutor(rec.Factory(), engine.LoadConfig{}, logging.NewNop())
			_, err := exec.Run(context.Background(), encoding.Request{
				JobID: "j", SourceName: "a.avi", SourceFormat: "avi", TargetFormat: "mp4", Open: opener("x"),
			}, nil)
			if !errors.Is(err, tc.marker) {
				t.Fatalf("expected %v marker, got %v", tc.marker, err)
			}
			if services.FailureMessage(err) != "conversion failed" {
				t.Fatalf("unexpected failure message %q", services.FailureMessage(err))
			}
			if !rec.Engines()[0].Terminated() {
				t.Fatal("expected engine terminated after failure")
			}
		})
	}
}

func TestHaltStopsMatchingJobOnly(t *testing.T) {
	rec := testsupport.NewEngineRecorder(func(int) *testsupport.FakeEngine {
		eng := testsupport.NewFakeEngine(map[string][]byte{"output.webm": []byte("w")})
		eng.Block = make(chan struct{})
		return eng
	})
	exec := encoding.NewExecutor(rec.Factory(), engine.LoadConfig{}, logging.NewNop())

	var wg sync.WaitGroup
	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, runErr = exec.Run(context.Background(), encoding.Request{
			JobID: "running", SourceName: "a.mp4", SourceFormat: "mp4", TargetFormat: "webm", Open: opener("x"),
		}, nil)
	}()

	var eng *testsupport.FakeEngine
	select {
	case eng = <-rec.Created():
	case <-time.After(5 * time.Second):
		t.Fatal("engine never created")
	}
	<-eng.Started()

	if exec.Halt("someone-else") {
		t.Fatal("Halt should ignore other job ids")
	}
	if eng.Terminated() {
		t.Fatal("engine terminated by unrelated Halt")
	}
	if !exec.Halt("running") {
		t.Fatal("Halt should stop the running job")
	}
	wg.Wait()

	if !errors.Is(runErr, services.ErrCanceled) {
		t.Fatalf("expected canceled marker, got %v", runErr)
	}
	if services.FailureMessage(runErr) != "conversion canceled" {
		t.Fatalf("unexpected message %q", services.FailureMessage(runErr))
	}
}

func TestRunRequiresSource(t *testing.T) {
	exec := encoding.NewExecutor(testsupport.NewEngineRecorder(nil).Factory(), engine.LoadConfig{}, nil)
	if _, err := exec.Run(context.Background(), encoding.Request{JobID: "j"}, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
}

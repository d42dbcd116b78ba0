package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// DefaultVideoSize is the size of uploads written by WriteVideo.
const DefaultVideoSize = 4096

// WriteVideo writes a fake upload named name under dir and returns its path.
func WriteVideo(t testing.TB, dir, name string) string {
	t.Helper()
	return WriteVideoSize(t, dir, name, DefaultVideoSize)
}

// WriteVideoSize writes size bytes to dir/name. The content repeats the file
// name, so uploads with different names never share bytes. A size <= 0
// writes one byte.
func WriteVideoSize(t testing.TB, dir, name string, size int64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	size = max(size, 1)
	pattern := []byte(name + "\n")
	data := bytes.Repeat(pattern, int(size)/len(pattern)+1)[:size]
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

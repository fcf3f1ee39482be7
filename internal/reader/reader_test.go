package reader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

const sample = "[GC 8968K->8230K(10912K), 0.0037192 secs]\r\n[Full GC 8230K->4000K(10912K), 0.0500000 secs]\nlast"

func gzipped(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(text)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func readAll(t *testing.T, s *Source) []string {
	t.Helper()
	var lines []string
	for {
		line, err := s.ReadLine()
		if errors.Is(err, io.EOF) {
			return lines
		}
		if err != nil {
			t.Fatalf("ReadLine() error = %v", err)
		}
		lines = append(lines, line)
	}
}

func TestSource_ReadLine(t *testing.T) {
	s := FromString("mem", sample)
	lines := readAll(t, s)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0] != "[GC 8968K->8230K(10912K), 0.0037192 secs]" {
		t.Errorf("carriage return not stripped: %q", lines[0])
	}
	if lines[2] != "last" {
		t.Errorf("last line = %q, want %q", lines[2], "last")
	}
	if s.LineNumber() != 3 {
		t.Errorf("LineNumber() = %d, want 3", s.LineNumber())
	}
}

func TestSource_UnreadLine(t *testing.T) {
	s := FromString("mem", "a\nb\n")
	first, _ := s.ReadLine()
	s.UnreadLine(first)
	if s.LineNumber() != 0 {
		t.Errorf("LineNumber() = %d after pushback, want 0", s.LineNumber())
	}
	again, _ := s.ReadLine()
	if again != "a" {
		t.Errorf("ReadLine() after UnreadLine = %q, want %q", again, "a")
	}
	second, _ := s.ReadLine()
	if second != "b" {
		t.Errorf("ReadLine() = %q, want %q", second, "b")
	}
}

func TestSource_PeekDoesNotConsume(t *testing.T) {
	s := FromString("mem", "hello\nworld\n")
	b, err := s.Peek(8)
	if err != nil {
		t.Fatalf("Peek() error = %v", err)
	}
	if string(b) != "hello\nwo" {
		t.Errorf("Peek() = %q", b)
	}
	line, _ := s.ReadLine()
	if line != "hello" {
		t.Errorf("ReadLine() = %q, want hello", line)
	}

	s.UnreadLine(line)
	b, _ = s.Peek(100)
	if string(b) != "hello\nworld\n" {
		t.Errorf("Peek() with pushback = %q", b)
	}
}

func TestSource_Gzip(t *testing.T) {
	s, err := FromReader("mem.gz", bytes.NewReader(gzipped(t, sample)))
	if err != nil {
		t.Fatalf("FromReader() error = %v", err)
	}
	defer s.Close()
	if lines := readAll(t, s); len(lines) != 3 {
		t.Errorf("got %d lines from gzip, want 3", len(lines))
	}
}

func TestSource_BrokenGzip(t *testing.T) {
	_, err := FromReader("bad.gz", bytes.NewReader([]byte{0x1f, 0x8b, 0x00}))
	var rerr *ResourceError
	if !errors.As(err, &rerr) {
		t.Fatalf("error = %v, want *ResourceError", err)
	}
}

func TestOpen_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gc.log.gz")
	if err := os.WriteFile(path, gzipped(t, sample), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Open(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()
	if lines := readAll(t, s); len(lines) != 3 {
		t.Errorf("got %d lines, want 3", len(lines))
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope.log"), Options{})
	var rerr *ResourceError
	if !errors.As(err, &rerr) {
		t.Fatalf("error = %v, want *ResourceError", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error should wrap os.ErrNotExist")
	}
}

func TestOpen_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gc.log":
			w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
			if r.Method == http.MethodHead {
				w.Header().Set("Content-Length", "42")
				return
			}
			_, _ = w.Write([]byte(sample))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s, err := Open(context.Background(), srv.URL+"/gc.log", Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if lines := readAll(t, s); len(lines) != 3 {
		t.Errorf("got %d lines, want 3", len(lines))
	}
	s.Close()

	if _, err := Open(context.Background(), srv.URL+"/missing", Options{}); err == nil {
		t.Error("expected error for 404")
	}

	fp, err := Stat(context.Background(), srv.URL+"/gc.log", nil)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if fp.Size != 42 {
		t.Errorf("Size = %d, want 42", fp.Size)
	}
	if fp.ModTime.Year() != 2006 {
		t.Errorf("ModTime = %v, want 2006", fp.ModTime)
	}
}

func TestStat_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gc.log")
	if err := os.WriteFile(path, []byte("abc"), 0o600); err != nil {
		t.Fatal(err)
	}
	fp, err := Stat(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if fp.Size != 3 {
		t.Errorf("Size = %d, want 3", fp.Size)
	}
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"gc.log", "gc.log.1.gz", "app.log", "gc.tmp"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "gc.dir.log"), 0o700); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		include []string
		exclude []string
		want    []string
	}{
		{"all", nil, nil, []string{"app.log", "gc.log", "gc.log.1.gz", "gc.tmp"}},
		{"include", []string{"gc.log*"}, nil, []string{"gc.log", "gc.log.1.gz"}},
		{"exclude", []string{"*"}, []string{"*.gz", "*.tmp"}, []string{"app.log", "gc.log"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(dir, tt.include, tt.exclude)
			if err != nil {
				t.Fatalf("Expand() error = %v", err)
			}
			var names []string
			for _, p := range got {
				names = append(names, filepath.Base(p))
			}
			if strings.Join(names, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Expand() = %v, want %v", names, tt.want)
			}
		})
	}

	if _, err := Expand(dir, []string{"[unclosed"}, nil); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

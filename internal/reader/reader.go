// Package reader provides line-at-a-time access to local or remote GC logs,
// unwrapping gzip framing transparently.
package reader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// BufferSize is the read buffer of a Source. Peek cannot look further ahead.
const BufferSize = 64 * 1024

// HTTPTimeout bounds remote resource requests.
const HTTPTimeout = 60 * time.Second

var gzipMagic = []byte{0x1f, 0x8b}

// ResourceError reports a resource that could not be opened or decoded.
type ResourceError struct {
	Resource string
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource %s: %v", e.Resource, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// Options configures Open.
type Options struct {
	// Client is used for http and https resources. Defaults to a client
	// with HTTPTimeout.
	Client *http.Client
}

// Source is a pushback-capable line stream over one resource.
type Source struct {
	name    string
	br      *bufio.Reader
	closers []io.Closer

	line     int
	pushed   string
	hasPush  bool
	atEOF    bool
	closeErr error
	closed   bool
}

// IsRemote reports whether resource names an http or https URL.
func IsRemote(resource string) bool {
	return strings.HasPrefix(resource, "http://") || strings.HasPrefix(resource, "https://")
}

// Open opens resource, a file path or an http(s) URL. Any failure is
// returned as *ResourceError with every opened stream already closed.
func Open(ctx context.Context, resource string, opts Options) (*Source, error) {
	var rc io.ReadCloser
	var err error
	if IsRemote(resource) {
		rc, err = openRemote(ctx, resource, opts.Client)
	} else {
		rc, err = os.Open(resource)
	}
	if err != nil {
		return nil, &ResourceError{Resource: resource, Err: err}
	}

	src, err := newSource(resource, rc, rc)
	if err != nil {
		return nil, &ResourceError{Resource: resource, Err: err}
	}
	return src, nil
}

// FromReader wraps r, which is not closed by Close unless it implements
// io.Closer.
func FromReader(name string, r io.Reader) (*Source, error) {
	var c io.Closer
	if rc, ok := r.(io.Closer); ok {
		c = rc
	}
	src, err := newSource(name, r, c)
	if err != nil {
		return nil, &ResourceError{Resource: name, Err: err}
	}
	return src, nil
}

// FromString is a convenience for literal log fragments.
func FromString(name, text string) *Source {
	src, _ := FromReader(name, strings.NewReader(text))
	return src
}

func newSource(name string, r io.Reader, c io.Closer) (*Source, error) {
	s := &Source{name: name}
	if c != nil {
		s.closers = append(s.closers, c)
	}

	br := bufio.NewReaderSize(r, BufferSize)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		s.Close()
		return nil, fmt.Errorf("peeking header: %w", err)
	}
	if bytes.Equal(head, gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		s.closers = append([]io.Closer{zr}, s.closers...)
		br = bufio.NewReaderSize(zr, BufferSize)
	}
	s.br = br
	return s, nil
}

func openRemote(ctx context.Context, url string, client *http.Client) (io.ReadCloser, error) {
	if client == nil {
		client = &http.Client{Timeout: HTTPTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// Name returns the resource name.
func (s *Source) Name() string {
	return s.name
}

// LineNumber returns the number of the line most recently returned by
// ReadLine.
func (s *Source) LineNumber() int {
	return s.line
}

// ReadLine returns the next line without its terminator. It returns io.EOF
// once the stream is drained. A final line without terminator is returned
// before io.EOF.
func (s *Source) ReadLine() (string, error) {
	if s.hasPush {
		s.hasPush = false
		s.line++
		return s.pushed, nil
	}
	if s.atEOF {
		return "", io.EOF
	}
	text, err := s.br.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading %s: %w", s.name, err)
		}
		s.atEOF = true
		if text == "" {
			return "", io.EOF
		}
	}
	s.line++
	text = strings.TrimSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\r")
	return text, nil
}

// UnreadLine pushes line back so the next ReadLine returns it. Only one line
// can be pushed back at a time.
func (s *Source) UnreadLine(line string) {
	if s.hasPush {
		panic("reader: UnreadLine called twice")
	}
	s.pushed = line
	s.hasPush = true
	s.line--
}

// Peek returns up to n bytes ahead of the read position without consuming
// them. A pushed back line is included. n is capped at BufferSize.
func (s *Source) Peek(n int) ([]byte, error) {
	if n > BufferSize {
		n = BufferSize
	}
	var prefix []byte
	if s.hasPush {
		prefix = []byte(s.pushed + "\n")
		if len(prefix) >= n {
			return prefix[:n], nil
		}
		n -= len(prefix)
	}
	b, err := s.br.Peek(n)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("peeking %s: %w", s.name, err)
	}
	if prefix == nil {
		return b, nil
	}
	return append(prefix, b...), nil
}

// Remaining returns a reader over the unread input, including a pushed back
// line. Line numbers are no longer tracked once it is used.
func (s *Source) Remaining() io.Reader {
	if s.hasPush {
		s.hasPush = false
		return io.MultiReader(strings.NewReader(s.pushed+"\n"), s.br)
	}
	return s.br
}

// Close closes the underlying streams. It is safe to call more than once.
func (s *Source) Close() error {
	if s.closed {
		return s.closeErr
	}
	s.closed = true
	for _, c := range s.closers {
		if err := c.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	}
	return s.closeErr
}

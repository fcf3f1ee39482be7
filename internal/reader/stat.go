package reader

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gobwas/glob"
)

// Fingerprint identifies one version of a resource. Two equal fingerprints
// mean the resource has not changed.
type Fingerprint struct {
	Size    int64
	ModTime time.Time
}

// Stat returns the current fingerprint of resource. Remote resources are
// checked with a HEAD request using Content-Length and Last-Modified.
func Stat(ctx context.Context, resource string, client *http.Client) (Fingerprint, error) {
	if !IsRemote(resource) {
		fi, err := os.Stat(resource)
		if err != nil {
			return Fingerprint{}, &ResourceError{Resource: resource, Err: err}
		}
		return Fingerprint{Size: fi.Size(), ModTime: fi.ModTime()}, nil
	}

	if client == nil {
		client = &http.Client{Timeout: HTTPTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, resource, nil)
	if err != nil {
		return Fingerprint{}, &ResourceError{Resource: resource, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Fingerprint{}, &ResourceError{Resource: resource, Err: err}
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Fingerprint{}, &ResourceError{Resource: resource, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	fp := Fingerprint{Size: resp.ContentLength}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			fp.ModTime = t
		}
	}
	return fp, nil
}

// Expand lists the regular files directly in dir whose base names match at
// least one include pattern and no exclude pattern. An empty include list
// matches every file. Results are sorted.
func Expand(dir string, include, exclude []string) ([]string, error) {
	inc, err := compileAll(include)
	if err != nil {
		return nil, err
	}
	exc, err := compileAll(exclude)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if len(inc) > 0 && !matchAny(inc, name) {
			continue
		}
		if matchAny(exc, name) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func matchAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

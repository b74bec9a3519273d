package policy

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Bundle is a policy bundle held in memory: rego modules keyed by their
// bundle-relative name, plus optional static data from a data.json at the
// bundle root. Data is exposed to policies as input.data.
type Bundle struct {
	Modules map[string]string
	Data    map[string]any
}

const maxBundleBytes = 25 << 20 // 25 MiB

// LoadBundle resolves a policy reference: a directory of .rego files, a
// single .rego file, a local tarball, or an http(s) URL serving a tarball
// (optionally gzipped).
func LoadBundle(ctx context.Context, ref string) (*Bundle, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("policy ref is required")
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		payload, err := fetchBundle(ctx, ref)
		if err != nil {
			return nil, err
		}
		return bundleFromTar(payload)
	}
	info, err := os.Stat(ref)
	if err != nil {
		return nil, fmt.Errorf("stat policy ref: %w", err)
	}
	if info.IsDir() {
		return bundleFromDir(ref)
	}
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".rego":
		raw, err := os.ReadFile(ref)
		if err != nil {
			return nil, err
		}
		return &Bundle{Modules: map[string]string{filepath.Base(ref): string(raw)}}, nil
	case ".tar", ".tgz", ".gz":
		raw, err := os.ReadFile(ref)
		if err != nil {
			return nil, err
		}
		return bundleFromTar(raw)
	default:
		return nil, fmt.Errorf("unsupported policy ref %s (want directory, .rego file, or tarball)", ref)
	}
}

func bundleFromDir(dir string) (*Bundle, error) {
	b := &Bundle{Modules: map[string]string{}}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".rego") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		name, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		b.Modules[filepath.ToSlash(name)] = string(raw)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(b.Modules) == 0 {
		return nil, fmt.Errorf("no .rego modules found under %s", dir)
	}
	data, err := readBundleData(filepath.Join(dir, "data.json"))
	if err != nil {
		return nil, err
	}
	b.Data = data
	return b, nil
}

func fetchBundle(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch policy bundle: %s", resp.Status)
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBundleBytes+1))
	if err != nil {
		return nil, err
	}
	if len(payload) > maxBundleBytes {
		return nil, fmt.Errorf("policy bundle too large (>%d bytes)", maxBundleBytes)
	}
	return payload, nil
}

// bundleFromTar reads .rego entries and data.json straight out of the
// archive; nothing is written to disk.
func bundleFromTar(payload []byte) (*Bundle, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, errors.New("empty policy bundle")
	}
	var r io.Reader = bytes.NewReader(payload)
	if bytes.HasPrefix(payload, []byte{0x1f, 0x8b}) {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	b := &Bundle{Modules: map[string]string{}}
	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if h.Typeflag != tar.TypeReg {
			continue
		}
		name := filepath.ToSlash(filepath.Clean(strings.TrimPrefix(h.Name, "/")))
		raw, err := io.ReadAll(io.LimitReader(tr, maxBundleBytes))
		if err != nil {
			return nil, err
		}
		switch {
		case strings.HasSuffix(strings.ToLower(name), ".rego"):
			b.Modules[name] = string(raw)
		case name == "data.json" || strings.HasSuffix(name, "/data.json"):
			var data map[string]any
			if err := json.Unmarshal(raw, &data); err != nil {
				return nil, fmt.Errorf("parse data.json: %w", err)
			}
			b.Data = data
		}
	}
	if len(b.Modules) == 0 {
		return nil, errors.New("no .rego modules in policy bundle")
	}
	return b, nil
}

func readBundleData(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse data.json: %w", err)
	}
	return out, nil
}

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/specialistvlad/backplane/internal/ctxlog"
	"github.com/specialistvlad/backplane/internal/fsutil"
)

// Loader reads one configuration file into a plain value tree.
type Loader interface {
	// Extensions lists the file extensions the loader handles, with the
	// leading dot.
	Extensions() []string
	// LoadFile parses the file at path.
	LoadFile(ctx context.Context, path string) (map[string]any, error)
}

// MultiLoader dispatches files to format-specific loaders by extension.
type MultiLoader struct {
	byExt map[string]Loader
}

// NewMultiLoader registers loaders. A later loader wins an extension claimed
// by an earlier one.
func NewMultiLoader(loaders ...Loader) *MultiLoader {
	m := &MultiLoader{byExt: make(map[string]Loader)}
	for _, l := range loaders {
		for _, ext := range l.Extensions() {
			m.byExt[strings.ToLower(ext)] = l
		}
	}
	return m
}

// Load reads every path in order and merges the results. Directories are
// walked for files with a known extension, in lexical order. Missing paths
// are skipped.
func (m *MultiLoader) Load(ctx context.Context, paths ...string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Config loader started.", "path_count", len(paths))

	files, err := m.collect(paths)
	if err != nil {
		return nil, err
	}

	cfg := Empty()
	for _, file := range files {
		l := m.byExt[strings.ToLower(filepath.Ext(file))]
		data, err := l.LoadFile(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", file, err)
		}
		cfg = cfg.Merge(New(data))
		logger.Debug("Config file merged.", "file", file, "keys", len(data))
	}

	logger.Debug("Config loading complete.", "files", len(files))
	return cfg, nil
}

func (m *MultiLoader) collect(paths []string) ([]string, error) {
	exts := make([]string, 0, len(m.byExt))
	for ext := range m.byExt {
		exts = append(exts, ext)
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			if _, ok := m.byExt[strings.ToLower(filepath.Ext(path))]; !ok {
				return nil, fmt.Errorf("no config loader for file %s", path)
			}
			add(path)
			continue
		}
		found, err := fsutil.FindFilesByExtension(path, exts...)
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		for _, f := range found {
			add(f)
		}
	}
	return out, nil
}

// Package yamlconfig loads configuration files written in YAML. String
// values may reference environment variables as ${NAME}; unknown names
// expand to the empty string. Any other "$" is literal, and $${NAME}
// yields the text ${NAME}.
package yamlconfig

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/specialistvlad/backplane/internal/ctxlog"
	"gopkg.in/yaml.v3"
)

var varPattern = regexp.MustCompile(`\$?\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Loader implements config.Loader for .yaml and .yml files.
type Loader struct {
	lookup func(string) (string, bool)
}

// NewLoader creates a loader that expands variables from the process
// environment.
func NewLoader() *Loader {
	return &Loader{lookup: os.LookupEnv}
}

// WithLookup replaces the variable source.
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	return &Loader{lookup: lookup}
}

// Extensions implements config.Loader.
func (l *Loader) Extensions() []string { return []string{".yaml", ".yml"} }

// LoadFile implements config.Loader.
func (l *Loader) LoadFile(ctx context.Context, path string) (map[string]any, error) {
	ctxlog.FromContext(ctx).Debug("Parsing YAML config file.", "file", path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML file %s: %w", path, err)
	}
	if doc == nil {
		return map[string]any{}, nil
	}

	out, err := l.normalize(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode YAML file %s: %w", path, err)
	}
	return out.(map[string]any), nil
}

func (l *Loader) normalize(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			n, err := l.normalize(e)
			if err != nil {
				return nil, err
			}
			if n != nil {
				out[k] = n
			}
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			n, err := l.normalize(e)
			if err != nil {
				return nil, err
			}
			if n != nil {
				out[ks] = n
			}
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			n, err := l.normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case string:
		return l.expand(t), nil
	default:
		return v, nil
	}
}

func (l *Loader) expand(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(m string) string {
		if m[1] == '$' {
			return m[1:]
		}
		val, _ := l.lookup(varPattern.FindStringSubmatch(m)[1])
		return val
	})
}

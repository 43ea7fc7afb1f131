package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Config is an immutable tree of configuration values. Nested objects are
// map[string]any; leaves are strings, bools, numbers or []any.
type Config struct {
	data map[string]any
}

// New wraps data. The map is deep-copied.
func New(data map[string]any) *Config {
	return &Config{data: deepCopy(data)}
}

// Empty returns a config with no keys.
func Empty() *Config {
	return &Config{data: map[string]any{}}
}

// Raw returns a deep copy of the underlying tree.
func (c *Config) Raw() map[string]any {
	if c == nil {
		return map[string]any{}
	}
	return deepCopy(c.data)
}

// Get returns the value at path.
func (c *Config) Get(path string) (any, bool) {
	if c == nil {
		return nil, false
	}
	var cur any = c.data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Has reports whether path is set.
func (c *Config) Has(path string) bool {
	_, ok := c.Get(path)
	return ok
}

// Sub returns the subtree at path, or an empty config if path is missing or
// not an object.
func (c *Config) Sub(path string) *Config {
	v, ok := c.Get(path)
	if !ok {
		return Empty()
	}
	m, ok := v.(map[string]any)
	if !ok {
		return Empty()
	}
	return New(m)
}

// Keys returns the sorted top-level keys.
func (c *Config) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the value at path as a string. Numbers and bools are
// formatted; objects and lists are an error.
func (c *Config) String(path string) (string, bool, error) {
	v, ok := c.Get(path)
	if !ok {
		return "", false, nil
	}
	switch t := v.(type) {
	case string:
		return t, true, nil
	case bool:
		return strconv.FormatBool(t), true, nil
	case int, int64, float64:
		return fmt.Sprint(t), true, nil
	default:
		return "", true, fmt.Errorf("config %s: expected a string, got %T", path, v)
	}
}

// StringOr returns the string at path or def when it is missing or invalid.
func (c *Config) StringOr(path, def string) string {
	s, ok, err := c.String(path)
	if !ok || err != nil {
		return def
	}
	return s
}

// Int returns the value at path as an int. Numeric strings are accepted.
func (c *Config) Int(path string) (int, bool, error) {
	v, ok := c.Get(path)
	if !ok {
		return 0, false, nil
	}
	switch t := v.(type) {
	case int:
		return t, true, nil
	case int64:
		return int(t), true, nil
	case float64:
		if t != float64(int(t)) {
			return 0, true, fmt.Errorf("config %s: %v is not an integer", path, t)
		}
		return int(t), true, nil
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, true, fmt.Errorf("config %s: %w", path, err)
		}
		return n, true, nil
	default:
		return 0, true, fmt.Errorf("config %s: expected an integer, got %T", path, v)
	}
}

// Bool returns the value at path as a bool. "true" and "false" strings are
// accepted.
func (c *Config) Bool(path string) (bool, bool, error) {
	v, ok := c.Get(path)
	if !ok {
		return false, false, nil
	}
	switch t := v.(type) {
	case bool:
		return t, true, nil
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return false, true, fmt.Errorf("config %s: %w", path, err)
		}
		return b, true, nil
	default:
		return false, true, fmt.Errorf("config %s: expected a bool, got %T", path, v)
	}
}

// Merge returns a new config with other's values layered over c. Objects are
// merged recursively; any other value replaces the existing one.
func (c *Config) Merge(other *Config) *Config {
	out := c.Raw()
	if other != nil {
		mergeInto(out, other.data)
	}
	return &Config{data: out}
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeInto(dstMap, srcMap)
			continue
		}
		dst[k] = deepCopyValue(v)
	}
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopy(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

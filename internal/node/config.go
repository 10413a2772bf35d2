package node

import (
	"fmt"
	"math"
	"strconv"
)

// Config is the opaque configuration of a node declaration with typed
// accessors. Decoders produce different Go types for the same literal
// (JSON gives float64, YAML gives int), so numbers are coerced.
type Config map[string]any

// String returns key as a string, or def when absent.
func (c Config) String(key, def string) (string, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("config %q: expected string, got %T", key, v)
	}
	return s, nil
}

// RequiredString is String without a default.
func (c Config) RequiredString(key string) (string, error) {
	s, err := c.String(key, "")
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("config %q is required", key)
	}
	return s, nil
}

// Int returns key as an int, or def when absent.
func (c Config) Int(key string, def int) (int, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("config %q: %v is not an integer", key, n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("config %q: %w", key, err)
		}
		return i, nil
	}
	return 0, fmt.Errorf("config %q: expected integer, got %T", key, v)
}

// Bool returns key as a bool, or def when absent.
func (c Config) Bool(key string, def bool) (bool, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("config %q: %w", key, err)
		}
		return parsed, nil
	}
	return false, fmt.Errorf("config %q: expected bool, got %T", key, v)
}

// Strings returns key as a list of strings.
func (c Config) Strings(key string) ([]string, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch l := v.(type) {
	case []string:
		return l, nil
	case []any:
		out := make([]string, len(l))
		for i, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("config %q[%d]: expected string, got %T", key, i, item)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("config %q: expected list of strings, got %T", key, v)
}

// List returns key as a list of arbitrary values.
func (c Config) List(key string) ([]any, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch l := v.(type) {
	case []any:
		return l, nil
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("config %q: expected list, got %T", key, v)
}

// StringMap returns key as a map of strings.
func (c Config) StringMap(key string) (map[string]string, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch m := v.(type) {
	case map[string]string:
		return m, nil
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, item := range m {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("config %q.%s: expected string, got %T", key, k, item)
			}
			out[k] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("config %q: expected map of strings, got %T", key, v)
}

// Map returns key as a nested configuration object.
func (c Config) Map(key string) (map[string]any, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config %q: expected object, got %T", key, v)
	}
	return m, nil
}

// Package rtcfg is the runtime's options store: a read-only key->string
// map populated once from a TOML config file, with typed accessors. It
// plays the role of the original shaco_env: every other component reads
// its tunables through here rather than touching the file directly.
package rtcfg

import (
	"strconv"
	"time"

	"github.com/pelletier/go-toml"
)

// Store is a read-only, already-flattened view over a TOML document:
// every leaf value is stringified at Load time so accessors stay
// allocation-free on the hot path (module load, harbor attach).
type Store struct {
	vals map[string]string
}

// Load parses the TOML file at path into a flat key->string map. Values
// inside nested tables are flattened (see flatten), since the options
// this runtime consumes (spec.md §6) are a flat set of scalars.
func Load(path string) (*Store, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, err
	}
	s := &Store{vals: make(map[string]string, 32)}
	flatten("", tree.ToMap(), s.vals)
	return s, nil
}

// flatten stores every leaf value of a nested table (e.g. one under a
// "[scripting]" section) twice: under its dotted, section-qualified key
// and under its bare key. When two sections hold the same bare key, the
// bare entry keeps whichever value was visited last.
func flatten(prefix string, m map[string]any, out map[string]string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]any:
			flatten(key, t, out)
		default:
			out[key] = stringify(v)
			out[k] = stringify(v) // also reachable unqualified
		}
	}
}

// New builds a Store directly from a map, for tests and for callers that
// already have their options (e.g. from flags) rather than a file.
func New(vals map[string]string) *Store {
	cp := make(map[string]string, len(vals))
	for k, v := range vals {
		cp[k] = v
	}
	return &Store{vals: cp}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func (s *Store) String(key, dflt string) string {
	if v, ok := s.vals[key]; ok {
		return v
	}
	return dflt
}

func (s *Store) Int(key string, dflt int) int {
	v, ok := s.vals[key]
	if !ok {
		return dflt
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return dflt
	}
	return n
}

func (s *Store) Bool(key string, dflt bool) bool {
	v, ok := s.vals[key]
	if !ok {
		return dflt
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return dflt
	}
	return b
}

func (s *Store) Duration(key string, dflt time.Duration) time.Duration {
	v, ok := s.vals[key]
	if !ok {
		return dflt
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return dflt
	}
	return d
}

// RequireInt is for options that are fatal when absent or zero —
// e.g. harbor's slaveid (spec.md §6).
func (s *Store) RequireInt(key string) (int, bool) {
	n := s.Int(key, 0)
	return n, n != 0
}

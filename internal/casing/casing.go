// Package casing is the single normalization boundary between the backend's
// snake_case payloads and the camelCase shapes the rest of the client uses.
package casing

import (
	"bytes"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// ToCamel rewrites every object key in v from snake_case to camelCase.
// v should be the result of decoding JSON into interface{}. Arrays are mapped
// element-wise; primitives and nil pass through untouched.
func ToCamel(v any) any {
	return walk(v, CamelKey)
}

// ToSnake is the outbound inverse of ToCamel.
func ToSnake(v any) any {
	return walk(v, SnakeKey)
}

func walk(v any, key func(string) string) any {
	switch t := v.(type) {
	case map[string]any:
		// When two keys convert to the same name, a key already in the target
		// form wins, then the lexically last one.
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			ci, cj := key(keys[i]) == keys[i], key(keys[j]) == keys[j]
			if ci != cj {
				return cj
			}
			return keys[i] < keys[j]
		})
		out := make(map[string]any, len(t))
		for _, k := range keys {
			out[key(k)] = walk(t[k], key)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = walk(child, key)
		}
		return out
	default:
		return v
	}
}

// CamelKey converts one key. Leading underscores are kept so private markers
// such as "_skip" survive the boundary.
func CamelKey(s string) string {
	if strings.IndexByte(s, '_') < 0 {
		return s
	}
	lead := leadingUnderscores(s)
	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(s[:lead])
	for i := lead; i < len(s); i++ {
		c := s[i]
		if c == '_' && i+1 < len(s) && i > lead && isLowerOrDigit(s[i+1]) {
			i++
			b.WriteByte(toUpper(s[i]))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// SnakeKey converts one key. Acronym runs collapse into a single word:
// "scenarioID" becomes "scenario_id".
func SnakeKey(s string) string {
	if !hasUpper(s) {
		return s
	}
	lead := leadingUnderscores(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	b.WriteString(s[:lead])
	for i := lead; i < len(s); i++ {
		c := s[i]
		if !isUpper(c) {
			b.WriteByte(c)
			continue
		}
		if i > lead {
			prev := s[i-1]
			nextLower := i+1 < len(s) && isLowerOrDigit(s[i+1])
			if prev != '_' && (!isUpper(prev) || nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteByte(c + ('a' - 'A'))
	}
	return b.String()
}

// Decode parses a backend response, camelizes its keys and decodes the result
// into out. Numbers keep their literal precision through the round trip.
func Decode(raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	v, err := decodeGeneric(raw)
	if err != nil {
		return err
	}
	b, err := json.Marshal(ToCamel(v))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// Encode marshals v and rewrites its keys to snake_case for the backend.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	generic, err := decodeGeneric(b)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ToSnake(generic))
}

func decodeGeneric(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func leadingUnderscores(s string) int {
	n := 0
	for n < len(s) && s[n] == '_' {
		n++
	}
	return n
}

func hasUpper(s string) bool {
	for i := 0; i < len(s); i++ {
		if isUpper(s[i]) {
			return true
		}
	}
	return false
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

func isLowerOrDigit(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') }

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

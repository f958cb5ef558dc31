package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Fields is a decoded JSON object with keys folded to lower case and
// separators removed, so accountId, account_id and accountid are one key.
type Fields map[string]any

func NewFields(obj map[string]any) Fields {
	f := make(Fields, len(obj))
	for k, v := range obj {
		f[foldKey(k)] = v
	}
	return f
}

func foldKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	if !strings.ContainsAny(k, "_-") {
		return k
	}
	return strings.NewReplacer("_", "", "-", "").Replace(k)
}

func (f Fields) lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := f[foldKey(k)]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (f Fields) Has(keys ...string) bool {
	_, ok := f.lookup(keys...)
	return ok
}

// String returns the first non-empty value among keys.
func (f Fields) String(keys ...string) string {
	for _, k := range keys {
		v, ok := f[foldKey(k)]
		if !ok || v == nil {
			continue
		}
		var s string
		switch tv := v.(type) {
		case string:
			s = tv
		case json.Number:
			s = tv.String()
		case float64:
			s = strconv.FormatFloat(tv, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(tv)
		default:
			s = fmt.Sprint(tv)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func (f Fields) Float(keys ...string) (float64, bool, error) {
	v, ok := f.lookup(keys...)
	if !ok {
		return 0, false, nil
	}
	out, err := toFloat(v)
	if err != nil {
		return 0, true, fmt.Errorf("field %s: %w", keys[0], err)
	}
	return out, true, nil
}

func (f Fields) Int(keys ...string) (int64, bool, error) {
	v, ok, err := f.Float(keys...)
	if !ok || err != nil {
		return 0, ok, err
	}
	return int64(math.Trunc(v)), true, nil
}

func (f Fields) Sub(keys ...string) Fields {
	v, ok := f.lookup(keys...)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return NewFields(m)
}

func (f Fields) List(keys ...string) ([]Fields, bool) {
	v, ok := f.lookup(keys...)
	if !ok {
		return nil, false
	}
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]Fields, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, NewFields(m))
		}
	}
	return out, true
}

// Counts reads a name→count object, keeping the sender's names as sent.
func (f Fields) Counts(keys ...string) map[string]int {
	v, ok := f.lookup(keys...)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]int, len(m))
	for name, raw := range m {
		if n, err := toFloat(raw); err == nil {
			out[name] = int(n)
		}
	}
	return out
}

// Numbers reads a name→number object, skipping non-numeric values.
func (f Fields) Numbers(keys ...string) map[string]float64 {
	v, ok := f.lookup(keys...)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]float64, len(m))
	for name, raw := range m {
		if n, err := toFloat(raw); err == nil {
			out[name] = n
		}
	}
	return out
}

func toFloat(v any) (float64, error) {
	switch tv := v.(type) {
	case float64:
		return tv, nil
	case json.Number:
		return tv.Float64()
	case int:
		return float64(tv), nil
	case int64:
		return float64(tv), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(tv), 64)
	case bool:
		if tv {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

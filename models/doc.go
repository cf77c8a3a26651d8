package models

import "time"

// Document values arrive either as the Go types the pipelines wrote or
// as their JSON round-trip shapes (float64 numbers, RFC 3339 strings,
// map[string]any). The helpers below accept both.

func docString(doc map[string]any, key string) string {
	if s, ok := doc[key].(string); ok {
		return s
	}
	return ""
}

func docBool(doc map[string]any, key string) bool {
	if b, ok := doc[key].(bool); ok {
		return b
	}
	return false
}

func docInt(doc map[string]any, key string) (int, bool) {
	switch v := doc[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func docFloat(doc map[string]any, key string) (float64, bool) {
	switch v := doc[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func docIntPtr(doc map[string]any, key string) *int {
	if n, ok := docInt(doc, key); ok {
		return &n
	}
	return nil
}

func docFloatPtr(doc map[string]any, key string) *float64 {
	if f, ok := docFloat(doc, key); ok {
		return &f
	}
	return nil
}

func docTime(doc map[string]any, key string) (time.Time, bool) {
	switch v := doc[key].(type) {
	case time.Time:
		return v, true
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func docFloatMap(doc map[string]any, key string) map[string]float64 {
	switch v := doc[key].(type) {
	case map[string]float64:
		out := make(map[string]float64, len(v))
		for k, f := range v {
			out[k] = f
		}
		return out
	case map[string]any:
		out := make(map[string]float64, len(v))
		for k, raw := range v {
			switch f := raw.(type) {
			case float64:
				out[k] = f
			case int:
				out[k] = float64(f)
			}
		}
		return out
	}
	return nil
}

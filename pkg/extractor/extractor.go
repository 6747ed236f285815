// Package extractor resolves field references against record data. Field
// rules reference values with dot notation ("address.city") and optional
// array indexing ("emails[0]").
package extractor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Extract resolves a path against record data. Missing segments return nil
// without error; an error means the path crossed a non-container value.
func Extract(data any, path string) (any, error) {
	if path == "" {
		return data, nil
	}

	current := data
	for _, part := range parsePath(path) {
		var err error
		current, err = extractPart(current, part)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, nil
		}
	}

	return current, nil
}

// ExtractString resolves a path and renders the value as a string. Nil and
// missing values render as "".
func ExtractString(data any, path string) (string, error) {
	value, err := Extract(data, path)
	if err != nil {
		return "", err
	}
	return ToString(value), nil
}

// ToString renders a record value as a comparison string. Complex values
// are JSON encoded.
func ToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

type pathPart struct {
	key        string
	isArray    bool
	arrayIndex int
}

func parsePath(path string) []pathPart {
	var parts []pathPart
	for _, seg := range strings.Split(path, ".") {
		part := pathPart{key: seg}

		if open := strings.Index(seg, "["); open != -1 && strings.HasSuffix(seg, "]") {
			if i, err := strconv.Atoi(seg[open+1 : len(seg)-1]); err == nil {
				part.key = seg[:open]
				part.isArray = true
				part.arrayIndex = i
			}
		}

		parts = append(parts, part)
	}
	return parts
}

func extractPart(data any, part pathPart) (any, error) {
	value := data

	if part.key != "" {
		switch v := data.(type) {
		case map[string]any:
			value = v[part.key]
		case map[string]string:
			value = v[part.key]
		default:
			return nil, fmt.Errorf("cannot extract key %q from type %T", part.key, data)
		}
	}

	if part.isArray {
		arr, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array for index access, got %T", value)
		}
		if part.arrayIndex < 0 || part.arrayIndex >= len(arr) {
			return nil, nil
		}
		return arr[part.arrayIndex], nil
	}

	return value, nil
}

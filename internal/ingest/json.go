package ingest

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"

	"tickguard/internal/model"
)

// ParseBody decodes a JSON object or an array of objects. Array elements
// that are not objects decode as nil maps and fail normalization later.
func ParseBody(data []byte) ([]map[string]any, error) {
	trim := bytes.TrimSpace(data)
	if len(trim) == 0 {
		return nil, fmt.Errorf("%w: empty body", model.ErrValidation)
	}
	if trim[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trim, &raw); err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrValidation, err)
		}
		list := make([]map[string]any, 0, len(raw))
		for _, item := range raw {
			var obj map[string]any
			_ = json.Unmarshal(item, &obj)
			list = append(list, obj)
		}
		return list, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(trim, &obj); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	return []map[string]any{obj}, nil
}

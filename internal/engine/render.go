package engine

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// PlaceholderOutput replaces values that cannot be rendered as text.
const PlaceholderOutput = "Non-serializable tool output"

// RenderText renders an arbitrary engine value as text. It never fails: values
// that cannot be rendered, including ones whose String method panics, become
// PlaceholderOutput.
func RenderText(v any) (out string) {
	defer func() {
		if recover() != nil {
			out = PlaceholderOutput
		}
	}()

	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		if !utf8.Valid(x) {
			return PlaceholderOutput
		}
		return string(x)
	case json.RawMessage:
		return string(x)
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(x)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return PlaceholderOutput
	}
	return string(raw)
}

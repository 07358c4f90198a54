package tooldispatch

import "encoding/json"

// encodeParams serialises a tool call's parameters into the opaque JSON
// text store.ToolCall.Input expects. Marshal failures fall back to an
// empty object rather than losing the whole tool call over a cosmetic
// logging detail.
func encodeParams(params map[string]any) string {
	b, err := json.Marshal(params)
	if err != nil {
		return "{}"
	}
	return string(b)
}

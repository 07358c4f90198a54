package tooldispatch

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// validateParams checks params against a tool's declared JSON Schema,
// narrowed from pkg/toolexecutor/evaluator.go's allow/deny policy gate to
// schema validation alone (the approval/policy engine itself is out of
// scope here). A nil or empty schema admits anything.
func validateParams(schema map[string]any, params map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(params))
	if err != nil {
		return fmt.Errorf("compile parameter schema: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("parameters do not match schema: %s", strings.Join(msgs, "; "))
}

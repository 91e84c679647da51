package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mattjoyce/mcpserve/internal/protocol"
)

// AddTool returns the reference tool: the sum of two numbers.
func AddTool() Tool {
	return Tool{
		Descriptor: protocol.Tool{
			Name:        "add",
			Description: "Add two numbers",
			InputSchema: protocol.InputSchema{
				Type: "object",
				Properties: map[string]protocol.Property{
					"a": {Type: "number"},
					"b": {Type: "number"},
				},
				Required: []string{"a", "b"},
			},
		},
		Handler: add,
	}
}

func add(_ context.Context, args map[string]any) (*protocol.CallToolResult, error) {
	a, err := numberArg(args, "a")
	if err != nil {
		return nil, err
	}
	b, err := numberArg(args, "b")
	if err != nil {
		return nil, err
	}
	return protocol.TextResult(FormatNumber(a + b)), nil
}

func numberArg(args map[string]any, name string) (float64, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return 0, fmt.Errorf("missing required argument %q", name)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", name, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("argument %q must be a number, got %T", name, v)
	}
}

// FormatNumber renders v as the shortest decimal that round-trips, with
// integral values printed without a fraction and negative zero as "0".
func FormatNumber(v float64) string {
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

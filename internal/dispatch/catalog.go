package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattjoyce/mcpserve/internal/protocol"
)

// Handler executes a tool. A returned error is reported to the caller as an
// isError result, not as a protocol failure.
type Handler func(ctx context.Context, args map[string]any) (*protocol.CallToolResult, error)

// Tool pairs a descriptor with its implementation.
type Tool struct {
	Descriptor protocol.Tool
	Handler    Handler
}

// Catalog is an immutable, ordered set of tools with unique names.
type Catalog struct {
	tools []Tool
	index map[string]int
}

// NewCatalog builds a catalog in the given order.
func NewCatalog(tools ...Tool) (*Catalog, error) {
	if len(tools) == 0 {
		return nil, errors.New("catalog must contain at least one tool")
	}
	c := &Catalog{
		tools: make([]Tool, 0, len(tools)),
		index: make(map[string]int, len(tools)),
	}
	for _, t := range tools {
		name := t.Descriptor.Name
		if name == "" {
			return nil, errors.New("tool name is required")
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("tool %q has no handler", name)
		}
		if _, dup := c.index[name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}
		c.index[name] = len(c.tools)
		c.tools = append(c.tools, t)
	}
	return c, nil
}

// DefaultCatalog returns the built-in add tool followed by extra.
func DefaultCatalog(extra ...Tool) (*Catalog, error) {
	return NewCatalog(append([]Tool{AddTool()}, extra...)...)
}

// List returns the descriptors in catalog order.
func (c *Catalog) List() []protocol.Tool {
	out := make([]protocol.Tool, len(c.tools))
	for i, t := range c.tools {
		out[i] = t.Descriptor
	}
	return out
}

// Lookup returns the tool registered under name.
func (c *Catalog) Lookup(name string) (Tool, bool) {
	i, ok := c.index[name]
	if !ok {
		return Tool{}, false
	}
	return c.tools[i], true
}

// Len returns the number of tools.
func (c *Catalog) Len() int {
	return len(c.tools)
}

package dispatch

import (
	"context"
	"math"
	"testing"

	"github.com/mattjoyce/mcpserve/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Tool {
	return Tool{
		Descriptor: protocol.Tool{Name: name, Description: "echo", InputSchema: protocol.InputSchema{Type: "object"}},
		Handler: func(context.Context, map[string]any) (*protocol.CallToolResult, error) {
			return protocol.TextResult(name), nil
		},
	}
}

func TestNewCatalog(t *testing.T) {
	c, err := NewCatalog(echoTool("one"), echoTool("two"))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	names := []string{}
	for _, d := range c.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"one", "two"}, names)

	_, ok := c.Lookup("two")
	assert.True(t, ok)
	_, ok = c.Lookup("three")
	assert.False(t, ok)
}

func TestNewCatalogRejects(t *testing.T) {
	tests := []struct {
		name  string
		tools []Tool
	}{
		{"empty", nil},
		{"duplicate", []Tool{echoTool("x"), echoTool("x")}},
		{"unnamed", []Tool{echoTool("")}},
		{"no handler", []Tool{{Descriptor: protocol.Tool{Name: "bare"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.tools...)
			assert.Error(t, err)
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	tools := c.List()
	require.NotEmpty(t, tools)
	assert.Equal(t, "add", tools[0].Name)
	assert.Equal(t, "Add two numbers", tools[0].Description)
	assert.Equal(t, "object", tools[0].InputSchema.Type)
	assert.Equal(t, []string{"a", "b"}, tools[0].InputSchema.Required)
	assert.Equal(t, "number", tools[0].InputSchema.Properties["a"].Type)
	assert.Equal(t, "number", tools[0].InputSchema.Properties["b"].Type)

	_, err = DefaultCatalog(AddTool())
	assert.Error(t, err, "a second add must be rejected")

	c, err = DefaultCatalog(echoTool("extra"))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestListIsCopy(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	tools := c.List()
	tools[0].Name = "mutated"
	assert.Equal(t, "add", c.List()[0].Name)
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{5, "5"},
		{0, "0"},
		{math.Copysign(0, -1), "0"},
		{0.5, "0.5"},
		{-2.5, "-2.5"},
		{1e21, "1000000000000000000000"},
		{123456789, "123456789"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatNumber(tt.in), "FormatNumber(%v)", tt.in)
	}
}

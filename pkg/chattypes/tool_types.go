// Package chattypes defines the backend-agnostic types shared by every part of neurochat.
// This file contains the canonical tool declaration model and tool call/result types.
package chattypes

import (
	"encoding/json"
	"sort"
)

// ClarificationToolName is the reserved tool a model calls to ask the user a question.
// It is part of the catalog but is never forwarded to the external tool backend.
const ClarificationToolName = "request_clarification"

// ParameterKind is the canonical type of a tool parameter.
type ParameterKind string

// Canonical parameter kinds understood by every schema adapter.
const (
	KindString  ParameterKind = "string"
	KindNumber  ParameterKind = "number"
	KindInteger ParameterKind = "integer"
	KindBoolean ParameterKind = "boolean"
	KindObject  ParameterKind = "object"
	KindArray   ParameterKind = "array"
)

// PropertySchema describes a single named parameter.
type PropertySchema struct {
	Kind        ParameterKind `json:"type"`
	Description string        `json:"description,omitempty"`
}

// ParameterSchema is the object schema of a tool's arguments.
// An empty Required list means every property is optional.
type ParameterSchema struct {
	Kind       ParameterKind             `json:"type"`
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// PropertyNames returns the property names in sorted order.
func (p ParameterSchema) PropertyNames() []string {
	names := make([]string, 0, len(p.Properties))
	for name := range p.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToolDeclaration is one entry of the canonical tool catalog.
type ToolDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// ToolCall is a model's request to run a tool.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"arguments"`
}

// IsClarification reports whether the call targets the reserved clarification tool.
func (c ToolCall) IsClarification() bool {
	return c.Name == ClarificationToolName
}

// Question extracts the question argument of a clarification call.
func (c ToolCall) Question() string {
	if q, ok := c.Args["question"].(string); ok {
		return q
	}
	return ""
}

// ToolResult is the outcome of a tool execution. Exactly one of Payload or Error is meaningful.
// Failures are carried as data so the tool loop can hand them back to the model.
type ToolResult struct {
	Name    string `json:"name"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// IsError reports whether the result represents a failed execution.
func (r ToolResult) IsError() bool {
	return r.Error != ""
}

// AsMap renders the result as a JSON object, the shape function-response parts expect.
func (r ToolResult) AsMap() map[string]any {
	if r.IsError() {
		return map[string]any{"error": r.Error}
	}
	if m, ok := r.Payload.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": r.Payload}
}

// JSON renders the result as the text content of a tool-role message.
func (r ToolResult) JSON() string {
	data, err := json.Marshal(r.AsMap())
	if err != nil {
		return `{"error":"result could not be encoded"}`
	}
	return string(data)
}

// ErrorResult builds a failed ToolResult.
func ErrorResult(name, message string) ToolResult {
	return ToolResult{Name: name, Error: message}
}

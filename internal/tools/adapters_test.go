package tools

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"neurochat/pkg/chattypes"
)

func catalogNames(decls []chattypes.ToolDeclaration) []string {
	names := make([]string, 0, len(decls))
	for _, d := range decls {
		names = append(names, d.Name)
	}
	return names
}

func fromGemini(decls []*genai.FunctionDeclaration) []chattypes.ToolDeclaration {
	out := make([]chattypes.ToolDeclaration, 0, len(decls))
	for _, d := range decls {
		props := map[string]chattypes.PropertySchema{}
		for name, s := range d.Parameters.Properties {
			props[name] = chattypes.PropertySchema{
				Kind:        chattypes.ParameterKind(strings.ToLower(string(s.Type))),
				Description: s.Description,
			}
		}
		out = append(out, chattypes.ToolDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters: chattypes.ParameterSchema{
				Kind:       chattypes.ParameterKind(strings.ToLower(string(d.Parameters.Type))),
				Properties: props,
				Required:   d.Parameters.Required,
			},
		})
	}
	return out
}

func fromLocal(specs []LocalFunctionSpec) []chattypes.ToolDeclaration {
	out := make([]chattypes.ToolDeclaration, 0, len(specs))
	for _, s := range specs {
		props := map[string]chattypes.PropertySchema{}
		for name, p := range s.Params.Properties {
			props[name] = chattypes.PropertySchema{Kind: chattypes.ParameterKind(p.Type), Description: p.Description}
		}
		out = append(out, chattypes.ToolDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters: chattypes.ParameterSchema{
				Kind:       chattypes.ParameterKind(s.Params.Type),
				Properties: props,
				Required:   s.Params.Required,
			},
		})
	}
	return out
}

func fromOllama(tools []OllamaTool) []chattypes.ToolDeclaration {
	out := make([]chattypes.ToolDeclaration, 0, len(tools))
	for _, t := range tools {
		props := map[string]chattypes.PropertySchema{}
		for name, p := range t.Function.Parameters.Properties {
			props[name] = chattypes.PropertySchema{Kind: chattypes.ParameterKind(p.Type), Description: p.Description}
		}
		out = append(out, chattypes.ToolDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters: chattypes.ParameterSchema{
				Kind:       chattypes.ParameterKind(t.Function.Parameters.Type),
				Properties: props,
				Required:   t.Function.Parameters.Required,
			},
		})
	}
	return out
}

func TestAdapters_PreserveNamesAndOrder(t *testing.T) {
	decls := Catalog()
	expected := catalogNames(decls)

	assert.Equal(t, expected, catalogNames(fromGemini(ToGemini(decls))))
	assert.Equal(t, expected, catalogNames(fromLocal(ToLocal(decls))))
	assert.Equal(t, expected, catalogNames(fromOllama(ToOllama(decls))))

	reversed := make([]chattypes.ToolDeclaration, len(decls))
	for i := range decls {
		reversed[len(decls)-1-i] = decls[i]
	}
	assert.Equal(t, catalogNames(reversed), catalogNames(fromOllama(ToOllama(reversed))))
}

func TestAdapters_SingleToolRoundTrip(t *testing.T) {
	decl, ok := Lookup(ListThreadsTool)
	require.True(t, ok)
	single := []chattypes.ToolDeclaration{decl}

	tests := []struct {
		name string
		got  []chattypes.ToolDeclaration
	}{
		{name: "gemini", got: fromGemini(ToGemini(single))},
		{name: "local", got: fromLocal(ToLocal(single))},
		{name: "ollama", got: fromOllama(ToOllama(single))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, single, tt.got)
		})
	}
}

func TestAdapters_OmitEmptyRequired(t *testing.T) {
	decl, ok := Lookup(ListThreadsTool)
	require.True(t, ok)
	single := []chattypes.ToolDeclaration{decl}

	gemini := ToGemini(single)
	assert.Nil(t, gemini[0].Parameters.Required)

	localJSON, err := json.Marshal(ToLocal(single))
	require.NoError(t, err)
	assert.NotContains(t, string(localJSON), `"required"`)
	assert.NotContains(t, ToLocal(single)[0].Params.AsMap(), "required")

	ollamaJSON, err := json.Marshal(ToOllama(single))
	require.NoError(t, err)
	assert.NotContains(t, string(ollamaJSON), `"required"`)
}

func TestAdapters_RequiredListEmittedWhenPresent(t *testing.T) {
	decl, ok := Lookup(DeleteThreadTool)
	require.True(t, ok)
	single := []chattypes.ToolDeclaration{decl}

	assert.Equal(t, []string{"filename"}, ToGemini(single)[0].Parameters.Required)
	assert.Equal(t, []string{"filename"}, ToLocal(single)[0].Params.Required)
	assert.Equal(t, []string{"filename"}, ToOllama(single)[0].Function.Parameters.Required)
}

func TestAdapters_Idempotent(t *testing.T) {
	decls := Catalog()

	assert.Equal(t, ToGemini(decls), ToGemini(decls))
	assert.Equal(t, ToLocal(decls), ToLocal(decls))

	first, err := json.Marshal(ToOllama(decls))
	require.NoError(t, err)
	second, err := json.Marshal(ToOllama(decls))
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestAdapters_TypeMapping(t *testing.T) {
	decl := chattypes.ToolDeclaration{
		Name:        "typed",
		Description: "every kind",
		Parameters: chattypes.ParameterSchema{
			Kind: chattypes.KindObject,
			Properties: map[string]chattypes.PropertySchema{
				"s": {Kind: chattypes.KindString},
				"n": {Kind: chattypes.KindNumber},
				"i": {Kind: chattypes.KindInteger},
				"b": {Kind: chattypes.KindBoolean},
				"o": {Kind: chattypes.KindObject},
				"a": {Kind: chattypes.KindArray},
				"x": {Kind: chattypes.ParameterKind("date")},
			},
		},
	}
	single := []chattypes.ToolDeclaration{decl}

	expected := map[string]string{
		"s": "string", "n": "number", "i": "integer", "b": "boolean",
		"o": "object", "a": "array", "x": "string",
	}

	gemini := ToGemini(single)[0].Parameters.Properties
	local := ToLocal(single)[0].Params.Properties
	ollama := ToOllama(single)[0].Function.Parameters.Properties
	for name, kind := range expected {
		assert.Equal(t, kind, strings.ToLower(string(gemini[name].Type)), "gemini %s", name)
		assert.Equal(t, kind, local[name].Type, "local %s", name)
		assert.Equal(t, kind, ollama[name].Type, "ollama %s", name)
	}
	assert.NotNil(t, gemini["a"].Items)
}

func TestOllamaWireShape(t *testing.T) {
	decl, ok := Lookup(GetThreadDataTool)
	require.True(t, ok)

	data, err := json.Marshal(ToOllama([]chattypes.ToolDeclaration{decl}))
	require.NoError(t, err)

	assert.JSONEq(t, `[{
		"type": "function",
		"function": {
			"name": "get_thread_data",
			"description": "Read the metadata and messages of a saved conversation thread.",
			"parameters": {
				"type": "object",
				"required": ["filename"],
				"properties": {
					"filename": {"type": "string", "description": "File name of the thread, for example session_abc.json"}
				}
			}
		}
	}]`, string(data))
}

func TestCatalog_ReturnsCopy(t *testing.T) {
	first := Catalog()
	first[0].Name = "mutated"

	assert.Equal(t, ListThreadsTool, Catalog()[0].Name)
	_, ok := Lookup(chattypes.ClarificationToolName)
	assert.True(t, ok)
	_, ok = Lookup("nope")
	assert.False(t, ok)
}

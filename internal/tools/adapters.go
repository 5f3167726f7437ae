package tools

import (
	"neurochat/pkg/chattypes"

	"google.golang.org/genai"
)

// nativeKind maps a canonical kind to the lowercase JSON-schema name used by the local
// and REST backends. Unknown kinds fall back to string.
func nativeKind(kind chattypes.ParameterKind) string {
	switch kind {
	case chattypes.KindString, chattypes.KindNumber, chattypes.KindInteger,
		chattypes.KindBoolean, chattypes.KindObject, chattypes.KindArray:
		return string(kind)
	default:
		return string(chattypes.KindString)
	}
}

// geminiType maps a canonical kind to a genai schema type. Unknown kinds fall back to string.
func geminiType(kind chattypes.ParameterKind) genai.Type {
	switch kind {
	case chattypes.KindNumber:
		return genai.TypeNumber
	case chattypes.KindInteger:
		return genai.TypeInteger
	case chattypes.KindBoolean:
		return genai.TypeBoolean
	case chattypes.KindObject:
		return genai.TypeObject
	case chattypes.KindArray:
		return genai.TypeArray
	default:
		return genai.TypeString
	}
}

func requiredList(required []string) []string {
	if len(required) == 0 {
		return nil
	}
	out := make([]string, len(required))
	copy(out, required)
	return out
}

// ToGemini converts the catalog into genai function declarations.
func ToGemini(decls []chattypes.ToolDeclaration) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, decl := range decls {
		params := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(decl.Parameters.Properties)),
			Required:   requiredList(decl.Parameters.Required),
		}
		for _, name := range decl.Parameters.PropertyNames() {
			prop := decl.Parameters.Properties[name]
			schema := &genai.Schema{
				Type:        geminiType(prop.Kind),
				Description: prop.Description,
			}
			// Gemini rejects array schemas without an item type.
			if schema.Type == genai.TypeArray {
				schema.Items = &genai.Schema{Type: genai.TypeString}
			}
			params.Properties[name] = schema
		}
		out = append(out, &genai.FunctionDeclaration{
			Name:        decl.Name,
			Description: decl.Description,
			Parameters:  params,
		})
	}
	return out
}

// LocalProperty is a parameter in the local runtime's grammar-constrained function schema.
// It only carries a type and a description.
type LocalProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// LocalParams is the nested parameter object of a local function.
type LocalParams struct {
	Type       string                   `json:"type"`
	Properties map[string]LocalProperty `json:"properties"`
	Required   []string                 `json:"required,omitempty"`
}

// LocalFunctionSpec is one function exposed to the local runtime.
type LocalFunctionSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      LocalParams `json:"params"`
}

// ToLocal converts the catalog into the local runtime's function specs.
func ToLocal(decls []chattypes.ToolDeclaration) []LocalFunctionSpec {
	out := make([]LocalFunctionSpec, 0, len(decls))
	for _, decl := range decls {
		params := LocalParams{
			Type:       "object",
			Properties: make(map[string]LocalProperty, len(decl.Parameters.Properties)),
			Required:   requiredList(decl.Parameters.Required),
		}
		for name, prop := range decl.Parameters.Properties {
			params.Properties[name] = LocalProperty{Type: nativeKind(prop.Kind), Description: prop.Description}
		}
		out = append(out, LocalFunctionSpec{Name: decl.Name, Description: decl.Description, Params: params})
	}
	return out
}

// AsMap renders the parameter object as a generic JSON-schema map.
func (p LocalParams) AsMap() map[string]any {
	props := make(map[string]any, len(p.Properties))
	for name, prop := range p.Properties {
		entry := map[string]any{"type": prop.Type}
		if prop.Description != "" {
			entry["description"] = prop.Description
		}
		props[name] = entry
	}
	out := map[string]any{"type": p.Type, "properties": props}
	if len(p.Required) > 0 {
		out["required"] = p.Required
	}
	return out
}

// OllamaProperty is a parameter in the REST server's tool format.
type OllamaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// OllamaParameters is the parameter object of a REST tool definition.
type OllamaParameters struct {
	Type       string                    `json:"type"`
	Required   []string                  `json:"required,omitempty"`
	Properties map[string]OllamaProperty `json:"properties"`
}

// OllamaFunction is the function part of a REST tool definition.
type OllamaFunction struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  OllamaParameters `json:"parameters"`
}

// OllamaTool is one element of the REST server's top-level tools array.
type OllamaTool struct {
	Type     string         `json:"type"`
	Function OllamaFunction `json:"function"`
}

// ToOllama converts the catalog into the REST server's tools array.
func ToOllama(decls []chattypes.ToolDeclaration) []OllamaTool {
	out := make([]OllamaTool, 0, len(decls))
	for _, decl := range decls {
		params := OllamaParameters{
			Type:       "object",
			Required:   requiredList(decl.Parameters.Required),
			Properties: make(map[string]OllamaProperty, len(decl.Parameters.Properties)),
		}
		for name, prop := range decl.Parameters.Properties {
			params.Properties[name] = OllamaProperty{Type: nativeKind(prop.Kind), Description: prop.Description}
		}
		out = append(out, OllamaTool{
			Type: "function",
			Function: OllamaFunction{
				Name:        decl.Name,
				Description: decl.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

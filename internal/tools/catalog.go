// Package tools holds the canonical tool catalog and the pure adapters that convert it
// into each backend's native tool format.
package tools

import "neurochat/pkg/chattypes"

// Names of the tools served by the external tool backend.
const (
	ListThreadsTool   = "list_threads"
	DeleteThreadTool  = "delete_thread"
	GetThreadDataTool = "get_thread_data"
)

var catalog = []chattypes.ToolDeclaration{
	{
		Name:        ListThreadsTool,
		Description: "List the saved conversation threads with their last update time.",
		Parameters: chattypes.ParameterSchema{
			Kind:       chattypes.KindObject,
			Properties: map[string]chattypes.PropertySchema{},
		},
	},
	{
		Name:        DeleteThreadTool,
		Description: "Delete a saved conversation thread by its file name. Confirm with the user before calling.",
		Parameters: chattypes.ParameterSchema{
			Kind: chattypes.KindObject,
			Properties: map[string]chattypes.PropertySchema{
				"filename": {Kind: chattypes.KindString, Description: "File name of the thread, for example session_abc.json"},
			},
			Required: []string{"filename"},
		},
	},
	{
		Name:        GetThreadDataTool,
		Description: "Read the metadata and messages of a saved conversation thread.",
		Parameters: chattypes.ParameterSchema{
			Kind: chattypes.KindObject,
			Properties: map[string]chattypes.PropertySchema{
				"filename": {Kind: chattypes.KindString, Description: "File name of the thread, for example session_abc.json"},
			},
			Required: []string{"filename"},
		},
	},
	{
		Name:        chattypes.ClarificationToolName,
		Description: "Ask the user a clarifying question when the request is ambiguous. The turn pauses until the user answers.",
		Parameters: chattypes.ParameterSchema{
			Kind: chattypes.KindObject,
			Properties: map[string]chattypes.PropertySchema{
				"question": {Kind: chattypes.KindString, Description: "The question to show the user"},
			},
			Required: []string{"question"},
		},
	},
}

// Catalog returns a copy of the canonical tool catalog.
func Catalog() []chattypes.ToolDeclaration {
	out := make([]chattypes.ToolDeclaration, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a declaration by name.
func Lookup(name string) (chattypes.ToolDeclaration, bool) {
	for _, decl := range catalog {
		if decl.Name == name {
			return decl, true
		}
	}
	return chattypes.ToolDeclaration{}, false
}

package services

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"neurochat/internal/data/embedded"
	"neurochat/internal/logger"
	"neurochat/pkg/chattypes"
)

// personaFile is the layout of the persona catalog YAML.
type personaFile struct {
	Default  string              `yaml:"default"`
	Personas []chattypes.Persona `yaml:"personas"`
}

// PersonaService serves the persona catalog.
type PersonaService struct {
	initialized bool
	data        []byte
	defaultID   string
	personas    map[string]chattypes.Persona
}

// NewPersonaService creates a service backed by the embedded catalog.
func NewPersonaService() *PersonaService {
	return NewPersonaServiceFromData(embedded.PersonasData)
}

// NewPersonaServiceFromData creates a service backed by the given YAML catalog.
func NewPersonaServiceFromData(data []byte) *PersonaService {
	return &PersonaService{data: data}
}

// Name returns the service name "persona" for registration.
func (p *PersonaService) Name() string {
	return "persona"
}

// Initialize parses and validates the catalog.
func (p *PersonaService) Initialize() error {
	var file personaFile
	if err := yaml.Unmarshal(p.data, &file); err != nil {
		return fmt.Errorf("failed to parse persona catalog: %w", err)
	}
	if len(file.Personas) == 0 {
		return fmt.Errorf("persona catalog is empty")
	}

	personas := make(map[string]chattypes.Persona, len(file.Personas))
	for _, persona := range file.Personas {
		id := strings.TrimSpace(persona.ID)
		if id == "" {
			return fmt.Errorf("persona without id in catalog")
		}
		if _, exists := personas[id]; exists {
			return fmt.Errorf("duplicate persona id '%s'", id)
		}
		persona.ID = id
		persona.SystemInstruction = strings.TrimSpace(persona.SystemInstruction)
		personas[id] = persona
	}

	defaultID := file.Default
	if defaultID == "" {
		defaultID = file.Personas[0].ID
	}
	if _, ok := personas[defaultID]; !ok {
		return fmt.Errorf("default persona '%s' is not in the catalog", defaultID)
	}

	p.personas = personas
	p.defaultID = defaultID
	p.initialized = true
	logger.Debug("Persona catalog loaded", "count", len(personas), "default", defaultID)
	return nil
}

// Get returns the persona with the given id.
func (p *PersonaService) Get(id string) (chattypes.Persona, error) {
	if !p.initialized {
		return chattypes.Persona{}, fmt.Errorf("persona service not initialized")
	}
	persona, ok := p.personas[id]
	if !ok {
		return chattypes.Persona{}, fmt.Errorf("unknown persona '%s'. Available: %s", id, strings.Join(p.ids(), ", "))
	}
	return persona, nil
}

// Default returns the catalog's default persona.
func (p *PersonaService) Default() (chattypes.Persona, error) {
	return p.Get(p.defaultID)
}

// List returns all personas sorted by id.
func (p *PersonaService) List() []chattypes.Persona {
	list := make([]chattypes.Persona, 0, len(p.personas))
	for _, id := range p.ids() {
		list = append(list, p.personas[id])
	}
	return list
}

func (p *PersonaService) ids() []string {
	ids := make([]string, 0, len(p.personas))
	for id := range p.personas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

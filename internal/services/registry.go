package services

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"neurochat/pkg/chattypes"
)

// Registry owns the lifecycle of neurochat services: ordered initialization and reverse-order close.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	services map[string]chattypes.Service
}

// NewRegistry creates a new service registry with an empty service map.
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[string]chattypes.Service),
	}
}

// RegisterService adds a service to the registry, returning an error if already registered.
func (r *Registry) RegisterService(service chattypes.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := service.Name()
	if _, exists := r.services[name]; exists {
		return fmt.Errorf("service %s already registered", name)
	}

	r.services[name] = service
	r.order = append(r.order, name)
	return nil
}

// InitializeAll initializes services in registration order so later services may rely on earlier ones.
func (r *Registry) InitializeAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if err := r.services[name].Initialize(); err != nil {
			return fmt.Errorf("failed to initialize service %s: %w", name, err)
		}
	}

	return nil
}

// CloseAll closes every service that holds resources, in reverse registration order.
func (r *Registry) CloseAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for i := len(r.order) - 1; i >= 0; i-- {
		if closer, ok := r.services[r.order[i]].(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close service %s: %w", r.order[i], err))
			}
		}
	}
	return errors.Join(errs...)
}

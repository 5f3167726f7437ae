// Package chattypes defines the service contract shared by neurochat services.
package chattypes

// Service is implemented by every component registered in the service registry.
type Service interface {
	Name() string
	Initialize() error
}

// Package embedded provides access to data files compiled into the binary.
package embedded

import _ "embed"

// PersonasData contains the embedded persona catalog YAML data.
//
//go:embed personas.yaml
var PersonasData []byte

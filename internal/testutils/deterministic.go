// Package testutils provides id and clock sources that are deterministic in test mode.
// Saved sessions keep the production format either way.
package testutils

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	mu          sync.Mutex
	idCounter   uint64
	timeCounter int64
)

// GenerateUUID returns a random UUID, or 00000001-0000-4000-8000-000000000001 style ids in test mode.
func GenerateUUID(testMode bool) string {
	if !testMode {
		return uuid.New().String()
	}
	mu.Lock()
	defer mu.Unlock()
	idCounter++
	return fmt.Sprintf("%08x-0000-4000-8000-%012x", idCounter, idCounter)
}

// GetCurrentTime returns time.Now, or a clock that advances one second per call from
// 2025-01-01T00:00:00Z in test mode.
func GetCurrentTime(testMode bool) time.Time {
	if !testMode {
		return time.Now()
	}
	mu.Lock()
	defer mu.Unlock()
	timeCounter++
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(timeCounter) * time.Second)
}

// ResetTestCounters restarts the deterministic sequences.
func ResetTestCounters() {
	mu.Lock()
	defer mu.Unlock()
	idCounter = 0
	timeCounter = 0
}

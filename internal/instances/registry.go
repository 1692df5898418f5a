package instances

import (
	"context"
	"fmt"
	"log"
	"sync"
)

var (
	current Controller
	mu      sync.RWMutex
)

// Init selects a controller backend. backend is "auto", "docker" or "none".
func Init(ctx context.Context, backend, dockerHost string) error {
	switch backend {
	case "none":
		log.Println("[instances] instance management disabled")
		return nil
	case "auto", "docker", "":
	default:
		return fmt.Errorf("unknown instance backend %q", backend)
	}

	docker := &DockerController{Host: dockerHost}
	if err := docker.Initialize(ctx); err != nil {
		log.Printf("[instances] docker backend unavailable: %v", err)
		if backend == "docker" {
			return fmt.Errorf("docker backend: %w", err)
		}
		return nil
	}
	Set(docker)
	log.Println("[instances] using docker backend")
	return nil
}

// Get returns the active controller, or nil if none is configured.
func Get() Controller {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Set replaces the active controller. Tests use it to install mocks.
func Set(c Controller) {
	mu.Lock()
	defer mu.Unlock()
	current = c
}

package instances

import (
	"context"
	"testing"
)

func TestContainerStatus(t *testing.T) {
	tests := []struct {
		state, health, want string
	}{
		{"running", "", "running"},
		{"running", "healthy", "running"},
		{"running", "starting", "starting"},
		{"running", "unhealthy", "error"},
		{"created", "", "starting"},
		{"restarting", "", "starting"},
		{"paused", "", "paused"},
		{"exited", "", "stopped"},
		{"dead", "", "stopped"},
		{"removing", "", "removing"},
	}
	for _, tt := range tests {
		if got := containerStatus(tt.state, tt.health); got != tt.want {
			t.Errorf("containerStatus(%q, %q) = %q, want %q", tt.state, tt.health, got, tt.want)
		}
	}
}

func TestInit_NoneLeavesControllerUnset(t *testing.T) {
	Set(nil)
	if err := Init(context.Background(), "none", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Get() != nil {
		t.Error("expected no controller for backend none")
	}
}

func TestInit_UnknownBackend(t *testing.T) {
	if err := Init(context.Background(), "kubernetes", ""); err == nil {
		t.Error("expected error for unsupported backend")
	}
}

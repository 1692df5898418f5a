package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8000"`
	DataPath     string `envconfig:"DATA_PATH" default:"/app/data"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"/app/data/console.db"`
	LogPath      string `envconfig:"LOG_PATH" default:"/app/data/console.log"`

	// Instance inventory and lifecycle
	InventoryFile       string `envconfig:"INVENTORY_FILE" default:""`
	OrchestratorBackend string `envconfig:"ORCHESTRATOR_BACKEND" default:"auto"`
	DockerHost          string `envconfig:"DOCKER_HOST" default:""`

	// Terminal settings
	BridgeURL         string        `envconfig:"BRIDGE_URL" default:""`
	BridgeToken       string        `envconfig:"BRIDGE_TOKEN" default:""`
	DefaultMode       string        `envconfig:"TERMINAL_DEFAULT_MODE" default:"simulated"`
	PingInterval      time.Duration `envconfig:"TERMINAL_PING_INTERVAL" default:"15s"`
	TerminalRecording bool          `envconfig:"TERMINAL_RECORDING" default:"false"`
	RecordingLimit    int           `envconfig:"TERMINAL_RECORDING_LIMIT" default:"10000"`
	SessionRetention  time.Duration `envconfig:"TERMINAL_SESSION_RETENTION" default:"10m"`
	AuditRetention    time.Duration `envconfig:"TERMINAL_AUDIT_RETENTION" default:"720h"`
	ConsoleInputRate  float64       `envconfig:"CONSOLE_INPUT_RATE" default:"20"`
	ConsoleInputBurst int           `envconfig:"CONSOLE_INPUT_BURST" default:"40"`
}

var Cfg Settings

func Load() {
	if err := load(&Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}

func load(s *Settings) error {
	if err := envconfig.Process("CLAWORC", s); err != nil {
		return err
	}
	switch s.DefaultMode {
	case "simulated", "live":
	default:
		return fmt.Errorf("TERMINAL_DEFAULT_MODE must be simulated or live, got %q", s.DefaultMode)
	}
	if s.PingInterval < 0 {
		return fmt.Errorf("TERMINAL_PING_INTERVAL must not be negative")
	}
	if s.RecordingLimit <= 0 {
		return fmt.Errorf("TERMINAL_RECORDING_LIMIT must be positive, got %d", s.RecordingLimit)
	}
	return nil
}

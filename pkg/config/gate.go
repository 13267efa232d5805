package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
)

// GateSettings are the gate thresholds as read from file and environment.
type GateSettings struct {
	EmailGateThreshold  int  `yaml:"emailGateThreshold" env:"GATE_EMAIL_THRESHOLD"`
	BrokerGateThreshold int  `yaml:"brokerGateThreshold" env:"GATE_BROKER_THRESHOLD"`
	EmailGateBlocking   bool `yaml:"emailGateBlocking" env:"GATE_EMAIL_BLOCKING"`
	BrokerGateBlocking  bool `yaml:"brokerGateBlocking" env:"GATE_BROKER_BLOCKING"`
}

// LoadGateConfig layers built-in defaults, the optional YAML file at path and
// GATE_* environment variables, then validates the result.
func LoadGateConfig(path string) (gate.Config, error) {
	def := gate.DefaultConfig()
	settings := GateSettings{
		EmailGateThreshold:  def.EmailGateThreshold,
		BrokerGateThreshold: def.BrokerGateThreshold,
		EmailGateBlocking:   def.EmailGateBlocking,
		BrokerGateBlocking:  def.BrokerGateBlocking,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			return gate.Config{}, fmt.Errorf("gate config file %s not found", path)
		case err != nil:
			return gate.Config{}, fmt.Errorf("read gate config: %w", err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return gate.Config{}, fmt.Errorf("parse gate config %s: %w", path, err)
		}
	}

	if err := env.Parse(&settings); err != nil {
		return gate.Config{}, fmt.Errorf("parse gate env: %w", err)
	}

	cfg := gate.Config{
		EmailGateThreshold:  settings.EmailGateThreshold,
		BrokerGateThreshold: settings.BrokerGateThreshold,
		EmailGateBlocking:   settings.EmailGateBlocking,
		BrokerGateBlocking:  settings.BrokerGateBlocking,
	}
	if err := cfg.Validate(); err != nil {
		return gate.Config{}, err
	}
	return cfg, nil
}

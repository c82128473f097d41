package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/goccy/go-yaml"
)

// ReminderSourceConfig describes one collaborator endpoint that supplies
// candidate reminder items to the batch presentation lane. Collaborators
// own the CRUD data (payments, access expiry, CRM follow-ups); pulse owns
// nothing of their logic beyond this list contract.
type ReminderSourceConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Validate checks a reminder source entry.
func (c *ReminderSourceConfig) Validate() error {
	if c.Name == "" {
		return errors.New("reminder source requires a name")
	}
	if c.URL == "" {
		return fmt.Errorf("reminder source %q requires a url", c.Name)
	}
	if _, err := url.ParseRequestURI(c.URL); err != nil {
		return fmt.Errorf("reminder source %q has a bad url: %w", c.Name, err)
	}
	return nil
}

// RoomsConfig holds chat room behavior configuration.
type RoomsConfig struct {
	// AutoJoinParticipantTypes lists the participant types whose freshly
	// created rooms this consumer joins automatically on the room-created
	// broadcast. Empty means never auto-join.
	AutoJoinParticipantTypes []string `yaml:"autojoin_participant_types"`
}

// RemindersConfig holds the reminder source list.
type RemindersConfig struct {
	Sources []ReminderSourceConfig `yaml:"sources"`
}

// FeedsConfig is the YAML-backed configuration for reminder collaborators
// and room auto-join filters.
type FeedsConfig struct {
	Reminders RemindersConfig `yaml:"reminders"`
	Rooms     RoomsConfig     `yaml:"rooms"`
}

// Validate performs validation of a FeedsConfig value:
// - Each reminder source must carry a name and a parseable URL
// - Source names must be unique
func (cfg *FeedsConfig) Validate() error {
	seen := make(map[string]struct{}, len(cfg.Reminders.Sources))
	for i := range cfg.Reminders.Sources {
		src := &cfg.Reminders.Sources[i]
		if err := src.Validate(); err != nil {
			return err
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("duplicate reminder source name %q", src.Name)
		}
		seen[src.Name] = struct{}{}
	}
	return nil
}

// LoadFeedsConfig reads and validates the feeds YAML file.
func LoadFeedsConfig(path string) (*FeedsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds config: %w", err)
	}

	var cfg FeedsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse feeds config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feeds config: %w", err)
	}

	return &cfg, nil
}

// Package maintenance owns the persisted maintenance flag consumed by
// the live service to refuse writes during a restore window.
package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/shopvault/internal/model"
)

// StateFileName is the flag record inside the state directory.
const StateFileName = "maintenance.json"

// Coordinator transitions the maintenance flag between inactive and
// active, and runs a warn-only health check when maintenance ends.
type Coordinator struct {
	logger    zerolog.Logger
	path      string
	healthURL string
	client    *http.Client
}

func NewCoordinator(logger zerolog.Logger, stateDir, healthURL string) *Coordinator {
	return &Coordinator{
		logger:    logger.With().Str("component", "maintenance").Logger(),
		path:      filepath.Join(stateDir, StateFileName),
		healthURL: healthURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// State reads the current flag. A missing record means inactive.
func (c *Coordinator) State() (model.MaintenanceState, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.MaintenanceState{}, nil
		}
		return model.MaintenanceState{}, fmt.Errorf("read maintenance state: %w", err)
	}
	var st model.MaintenanceState
	if err := json.Unmarshal(data, &st); err != nil {
		return model.MaintenanceState{}, fmt.Errorf("parse maintenance state: %w", err)
	}
	return st, nil
}

// Enter activates maintenance. Entering while already active just updates
// the reason and timestamp.
func (c *Coordinator) Enter(reason string) (model.MaintenanceState, error) {
	current, err := c.State()
	if err != nil {
		return model.MaintenanceState{}, err
	}
	if current.Active {
		c.logger.Info().Str("reason", reason).Msg("maintenance already active, updating reason")
	}

	now := time.Now().UTC()
	st := model.MaintenanceState{Active: true, Since: &now, Reason: reason}
	if err := c.write(st); err != nil {
		return model.MaintenanceState{}, err
	}

	c.logger.Info().Str("reason", reason).Msg("maintenance mode entered")
	return st, nil
}

// Exit clears the flag. Exiting while already inactive is a warn-level
// no-op. After clearing, dependent services get a health check; a
// negative result is surfaced but does not fail the exit, because the
// flag itself is already correct.
func (c *Coordinator) Exit(ctx context.Context) (model.MaintenanceState, error) {
	current, err := c.State()
	if err != nil {
		return model.MaintenanceState{}, err
	}
	if !current.Active {
		c.logger.Warn().Msg("maintenance already inactive, nothing to exit")
		return current, nil
	}

	st := model.MaintenanceState{}
	if err := c.write(st); err != nil {
		return model.MaintenanceState{}, err
	}
	c.logger.Info().Msg("maintenance mode exited")

	c.healthCheck(ctx)
	return st, nil
}

func (c *Coordinator) healthCheck(ctx context.Context) {
	if c.healthURL == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthURL, nil)
	if err != nil {
		c.logger.Warn().Err(err).Msg("health check request could not be built")
		return
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", c.healthURL).Msg("service health check failed after maintenance exit")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn().Int("status", resp.StatusCode).Str("url", c.healthURL).Msg("service reported unhealthy after maintenance exit")
		return
	}
	c.logger.Info().Str("url", c.healthURL).Msg("service healthy after maintenance exit")
}

// write persists the flag atomically so readers never observe a partial
// record.
func (c *Coordinator) write(st model.MaintenanceState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode maintenance state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write maintenance state: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("write maintenance state: %w", err)
	}
	return nil
}

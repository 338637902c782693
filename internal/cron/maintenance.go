package cron

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/burstlab/burstd/internal/batch"
	"github.com/burstlab/burstd/internal/history"
)

// Maintenance runs the daemon's periodic housekeeping: pruning scope state
// that only ever saw typing signals (the processor tears state down at batch
// completion, so typing-only scopes would leak) and persisting history
// metadata.
type Maintenance struct {
	cron    *cron.Cron
	engine  *batch.Engine
	history *history.Store

	// PruneAfter is how stale a typing-only scope must be before removal.
	PruneAfter time.Duration
}

func NewMaintenance(engine *batch.Engine, hist *history.Store) *Maintenance {
	return &Maintenance{
		cron:       cron.New(),
		engine:     engine,
		history:    hist,
		PruneAfter: 5 * time.Minute,
	}
}

// Start registers the fixed jobs and begins the scheduler.
func (m *Maintenance) Start() error {
	if _, err := m.cron.AddFunc("* * * * *", m.pruneScopes); err != nil {
		return err
	}
	if _, err := m.cron.AddFunc("*/5 * * * *", m.persistHistory); err != nil {
		return err
	}
	m.cron.Start()
	slog.Info("maintenance scheduler started")
	return nil
}

// Stop gracefully stops the scheduler.
func (m *Maintenance) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

func (m *Maintenance) pruneScopes() {
	if n := m.engine.PruneIdle(m.PruneAfter); n > 0 {
		slog.Info("pruned idle typing scopes", "count", n)
	}
}

func (m *Maintenance) persistHistory() {
	if m.history == nil {
		return
	}
	if err := m.history.Save(); err != nil {
		slog.Warn("history meta save failed", "error", err)
	}
}

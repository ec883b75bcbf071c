package ui

import (
	"time"

	"github.com/rovshanmuradov/yieldscope/internal/aggregator"
)

// Tea message types for dashboard updates

// SnapshotMsg carries a finished refresh.
type SnapshotMsg struct {
	Snapshot aggregator.Snapshot
}

// ErrorMsg represents a failed refresh.
type ErrorMsg struct {
	Err error
}

// TickMsg drives periodic refreshes.
type TickMsg time.Time

package service

import (
	"go-seedvault/internal/config"

	"github.com/google/uuid"
)

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	ID           uuid.UUID
	Name         string
	Capabilities []string
}

func (a Actor) Can(capability string) bool {
	for _, c := range a.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

func (a Actor) auditID() string {
	return a.ID.String()
}

// Policy holds the tunable allocation rules.
type Policy struct {
	SafetyMargin             float64
	AlternativesLimit        int
	AdjacencyRadius          int
	RequireDistinctConfirmer bool
	StrictSafetyMargin       bool
}

func DefaultPolicy() Policy {
	return Policy{
		SafetyMargin:             0.05,
		AlternativesLimit:        3,
		AdjacencyRadius:          1,
		RequireDistinctConfirmer: true,
	}
}

func PolicyFromConfig(cfg config.AllocationConfig) Policy {
	return Policy{
		SafetyMargin:             cfg.SafetyMargin,
		AlternativesLimit:        cfg.AlternativesLimit,
		AdjacencyRadius:          cfg.AdjacencyRadius,
		RequireDistinctConfirmer: cfg.RequireDistinctConfirmer,
		StrictSafetyMargin:       cfg.StrictSafetyMargin,
	}
}

// Options carries the per-call knobs shared by lifecycle operations.
type Options struct {
	// ExpectedVersion, when set, must equal the stored product version.
	ExpectedVersion *int64
	// Force suppresses the safety-margin warning on moves.
	Force  bool
	Reason string
	Notes  string
}

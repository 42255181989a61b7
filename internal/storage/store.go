package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"search-agent/internal/models"
)

var (
	ErrNotFound      = errors.New("result not found or expired")
	ErrNotExportable = errors.New("only successful results with records are stored")
)

// ResultStore keeps completed outcomes so their full record set can be downloaded later.
type ResultStore interface {
	Save(ctx context.Context, outcome *models.Outcome) (string, error)
	Get(ctx context.Context, id string) (*models.Outcome, error)
	Ping(ctx context.Context) error
}

// stored is the persisted form. Outcome hides Records from JSON, so they travel separately.
type stored struct {
	Outcome models.Outcome            `json:"outcome"`
	Records []models.NormalizedRecord `json:"records"`
}

func prepare(outcome *models.Outcome) (string, error) {
	if outcome == nil || !outcome.Exportable() {
		return "", ErrNotExportable
	}
	if outcome.ID == "" {
		outcome.ID = uuid.NewString()
	}
	return outcome.ID, nil
}

func snapshot(outcome *models.Outcome) stored {
	records := make([]models.NormalizedRecord, len(outcome.Records))
	copy(records, outcome.Records)
	return stored{Outcome: *outcome, Records: records}
}

func (s stored) restore() *models.Outcome {
	outcome := s.Outcome
	outcome.Records = make([]models.NormalizedRecord, len(s.Records))
	copy(outcome.Records, s.Records)
	return &outcome
}

func validID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

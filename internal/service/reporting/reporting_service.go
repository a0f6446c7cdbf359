// Package reporting computes per-stage totals over the aggregated review rows.
package reporting

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/provisioning/internal/domain/models"
)

// Aggregator produces the rows of a stage.
type Aggregator interface {
	Aggregate(ctx context.Context, stage models.Stage, f models.Filters) ([]models.AggregatedRow, error)
}

// StageTotals summarizes one stage.
type StageTotals struct {
	Stage           models.Stage    `json:"stage"`
	Rows            int             `json:"rows"`
	RawRows         int             `json:"raw_rows"`
	ProposalRows    int             `json:"proposal_rows"`
	Schools         int             `json:"schools"`
	Quantity        decimal.Decimal `json:"quantity_total"`
	QuantityGeneric decimal.Decimal `json:"quantity_generic_total"`
}

// Summary is the progress of a week through the approval workflow. Quantity is
// the origin-unit total over both stages; every pending or proposed need is
// counted exactly once.
type Summary struct {
	SupplyWeek string          `json:"supply_week,omitempty"`
	Stages     []StageTotals   `json:"stages"`
	Quantity   decimal.Decimal `json:"quantity_total"`
}

// Service exposes lightweight totals for the review screens.
type Service struct {
	aggregator Aggregator
	logger     *zap.Logger
}

// NewService wires a new reporting service instance.
func NewService(aggregator Aggregator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{aggregator: aggregator, logger: logger}
}

// Summarize totals both stages for the given filters.
func (s *Service) Summarize(ctx context.Context, f models.Filters) (Summary, error) {
	summary := Summary{SupplyWeek: f.SupplyWeek, Quantity: decimal.Zero}

	for _, stage := range []models.Stage{models.StageNutritionist, models.StageCoordination} {
		rows, err := s.aggregator.Aggregate(ctx, stage, f)
		if err != nil {
			return Summary{}, fmt.Errorf("aggregate %s stage: %w", stage, err)
		}
		totals := stageTotals(stage, rows)
		summary.Stages = append(summary.Stages, totals)
		summary.Quantity = summary.Quantity.Add(totals.Quantity)
	}

	s.logger.Debug("summary computed",
		zap.String("supply_week", f.SupplyWeek),
		zap.String("quantity_total", summary.Quantity.String()))
	return summary, nil
}

func stageTotals(stage models.Stage, rows []models.AggregatedRow) StageTotals {
	totals := StageTotals{
		Stage:           stage,
		Rows:            len(rows),
		Quantity:        decimal.Zero,
		QuantityGeneric: decimal.Zero,
	}

	schools := make(map[int64]struct{})
	for _, row := range rows {
		switch row.Source {
		case models.SourceNeed:
			totals.RawRows++
		case models.SourceProposal:
			totals.ProposalRows++
		}
		totals.Quantity = totals.Quantity.Add(row.Quantity)
		totals.QuantityGeneric = totals.QuantityGeneric.Add(row.QuantityGeneric)
		for _, id := range row.SchoolIDs() {
			schools[id] = struct{}{}
		}
	}
	totals.Schools = len(schools)
	return totals
}

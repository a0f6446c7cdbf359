package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Stage is a step of the two-stage approval workflow.
type Stage string

const (
	StageNutritionist Stage = "nutritionist"
	StageCoordination Stage = "coordination"
)

// ParseStage normalizes a user supplied stage name.
func ParseStage(raw string) (Stage, error) {
	switch Stage(strings.ToLower(strings.TrimSpace(raw))) {
	case StageNutritionist, "review":
		return StageNutritionist, nil
	case StageCoordination:
		return StageCoordination, nil
	default:
		return "", fmt.Errorf("unknown stage %q", raw)
	}
}

// SourceKind tags where an aggregated row's quantities come from.
type SourceKind string

const (
	SourceNeed     SourceKind = "need"
	SourceProposal SourceKind = "proposal"
)

// SchoolLine is the per-school contribution to an aggregated row.
type SchoolLine struct {
	NeedID     int64           `json:"need_id,omitempty"`
	ProposalID int64           `json:"proposal_id,omitempty"`
	SchoolID   int64           `json:"school_id"`
	SchoolName string          `json:"school_name"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// ProposalSummary exposes an existing proposal's substitution status for one school.
type ProposalSummary struct {
	ID              int64           `json:"id"`
	SchoolID        int64           `json:"school_id"`
	Status          ProposalStatus  `json:"status"`
	Quantity        decimal.Decimal `json:"quantity"`
	QuantityGeneric decimal.Decimal `json:"quantity_generic"`
}

// AggregatedRow is one consolidated requirement returned to the review screens.
type AggregatedRow struct {
	Source            SourceKind          `json:"source"`
	OriginProduct     ProductRef          `json:"origin_product"`
	TradedProduct     *ProductRef         `json:"traded_product,omitempty"`
	GenericProduct    *GenericProductRef  `json:"generic_product,omitempty"`
	SupplyWeek        string              `json:"supply_week"`
	ConsumptionWeek   string              `json:"consumption_week"`
	Group             string              `json:"group"`
	GroupID           int64               `json:"group_id"`
	Quantity          decimal.Decimal     `json:"quantity_total"`
	QuantityGeneric   decimal.Decimal     `json:"quantity_generic_total"`
	Schools           []SchoolLine        `json:"schools"`
	Proposals         []ProposalSummary   `json:"proposals"`
	DefaultSubstitute *GenericProductRef  `json:"default_substitute,omitempty"`
	Candidates        []GenericProductRef `json:"candidates"`
}

// SchoolIDs lists the contributing schools in line order.
func (r AggregatedRow) SchoolIDs() []int64 {
	ids := make([]int64, 0, len(r.Schools))
	seen := make(map[int64]struct{}, len(r.Schools))
	for _, line := range r.Schools {
		if _, ok := seen[line.SchoolID]; ok {
			continue
		}
		seen[line.SchoolID] = struct{}{}
		ids = append(ids, line.SchoolID)
	}
	return ids
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProposalStatus tracks how far a substitution proposal went through the approval workflow.
type ProposalStatus string

const (
	// ProposalConfirmed is set when the nutritionist picks a generic product.
	ProposalConfirmed ProposalStatus = "conf"
	// ProposalLogged is set once coordination validated the proposal for purchasing.
	ProposalLogged ProposalStatus = "conf log"
)

// Valid reports whether s is a known status.
func (s ProposalStatus) Valid() bool {
	return s == ProposalConfirmed || s == ProposalLogged
}

// SubstitutionProposal pairs a need with the generic product chosen to cover it.
type SubstitutionProposal struct {
	ID              int64             `json:"id"`
	NeedID          int64             `json:"need_id"`
	OriginProduct   ProductRef        `json:"origin_product"`
	TradedProduct   *ProductRef       `json:"traded_product,omitempty"`
	GenericProduct  GenericProductRef `json:"generic_product"`
	SchoolID        int64             `json:"school_id"`
	SchoolName      string            `json:"school_name"`
	Quantity        decimal.Decimal   `json:"quantity"`
	QuantityGeneric decimal.Decimal   `json:"quantity_generic"`
	Status          ProposalStatus    `json:"status"`
	Active          bool              `json:"active"`
	SupplyWeek      string            `json:"supply_week"`
	ConsumptionWeek string            `json:"consumption_week"`
	Group           string            `json:"group"`
	GroupID         int64             `json:"group_id"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// ProposalKey is the identity under which at most one active proposal may exist.
type ProposalKey struct {
	OriginProductID  int64
	GenericProductID int64
	SchoolID         int64
	SupplyWeek       string
}

// Key returns the uniqueness key of the proposal.
func (p SubstitutionProposal) Key() ProposalKey {
	return ProposalKey{
		OriginProductID:  p.OriginProduct.ID,
		GenericProductID: p.GenericProduct.ID,
		SchoolID:         p.SchoolID,
		SupplyWeek:       p.SupplyWeek,
	}
}

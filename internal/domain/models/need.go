package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NeedStatus is the upstream computation status of a need.
type NeedStatus string

const (
	NeedStatusPending   NeedStatus = "PENDING"
	NeedStatusConfirmed NeedStatus = "CONF"
)

// ProductRef identifies a concrete product together with its display data.
type ProductRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// Need is a school's computed requirement for an origin product in a supply/consumption week.
// Needs are produced upstream; this service only flips SubstitutionProcessed.
type Need struct {
	ID                    int64           `json:"id"`
	SchoolID              int64           `json:"school_id"`
	SchoolName            string          `json:"school_name"`
	OriginProduct         ProductRef      `json:"origin_product"`
	GenericProductID      int64           `json:"generic_product_id,omitempty"`
	Quantity              decimal.Decimal `json:"quantity"`
	Group                 string          `json:"group"`
	GroupID               int64           `json:"group_id"`
	SupplyWeek            string          `json:"supply_week"`
	ConsumptionWeek       string          `json:"consumption_week"`
	Status                NeedStatus      `json:"status"`
	SubstitutionProcessed bool            `json:"substitution_processed"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Pending reports whether the need is still waiting for a substitution decision.
func (n Need) Pending() bool {
	return n.Status == NeedStatusConfirmed && !n.SubstitutionProcessed
}

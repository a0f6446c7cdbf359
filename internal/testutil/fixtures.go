package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/provisioning/internal/domain/models"
)

var testNeedIDCounter atomic.Int64

// Catalog entries shared by the service tests.
var (
	Rice        = models.ProductRef{ID: 1, Name: "Rice", Unit: "kg"}
	Pasta       = models.ProductRef{ID: 2, Name: "Pasta", Unit: "kg"}
	GenericRice = models.GenericProductRef{ID: 10, Code: "GEN-RICE", Name: "Generic rice", Unit: "kg", GroupID: 4}
	GenericOats = models.GenericProductRef{ID: 11, Code: "GEN-OATS", Name: "Rolled oats", Unit: "kg", GroupID: 4}
	Cereals     = models.Group{ID: 4, Name: "Cereals"}
)

// Qty parses a decimal literal and panics on bad input.
func Qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Need options
type NeedOption func(*models.Need)

func WithNeedProduct(p models.ProductRef) NeedOption {
	return func(n *models.Need) {
		n.OriginProduct = p
	}
}

func WithNeedGeneric(id int64) NeedOption {
	return func(n *models.Need) {
		n.GenericProductID = id
	}
}

func WithNeedQuantity(q string) NeedOption {
	return func(n *models.Need) {
		n.Quantity = Qty(q)
	}
}

func WithNeedWeeks(supply, consumption string) NeedOption {
	return func(n *models.Need) {
		n.SupplyWeek = supply
		n.ConsumptionWeek = consumption
	}
}

func WithNeedGroup(g models.Group) NeedOption {
	return func(n *models.Need) {
		n.Group = g.Name
		n.GroupID = g.ID
	}
}

func WithNeedStatus(s models.NeedStatus) NeedOption {
	return func(n *models.Need) {
		n.Status = s
	}
}

func WithNeedProcessed() NeedOption {
	return func(n *models.Need) {
		n.SubstitutionProcessed = true
	}
}

// NewTestNeed returns a confirmed, unprocessed rice need of school schoolID.
func NewTestNeed(schoolID int64, opts ...NeedOption) models.Need {
	now := time.Now().UTC()
	n := models.Need{
		ID:               testNeedIDCounter.Add(1),
		SchoolID:         schoolID,
		SchoolName:       fmt.Sprintf("School %d", schoolID),
		OriginProduct:    Rice,
		GenericProductID: GenericRice.ID,
		Quantity:         Qty("10"),
		Group:            Cereals.Name,
		GroupID:          Cereals.ID,
		SupplyWeek:       "2025-W10",
		ConsumptionWeek:  "2025-W11",
		Status:           models.NeedStatusConfirmed,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, opt := range opts {
		opt(&n)
	}
	return n
}

// Proposal options
type ProposalOption func(*models.SubstitutionProposal)

func WithProposalStatus(s models.ProposalStatus) ProposalOption {
	return func(p *models.SubstitutionProposal) {
		p.Status = s
	}
}

func WithProposalGeneric(g models.GenericProductRef) ProposalOption {
	return func(p *models.SubstitutionProposal) {
		p.GenericProduct = g
	}
}

func WithProposalTraded(t models.ProductRef) ProposalOption {
	return func(p *models.SubstitutionProposal) {
		p.TradedProduct = &t
	}
}

func WithProposalQuantities(origin, generic string) ProposalOption {
	return func(p *models.SubstitutionProposal) {
		p.Quantity = Qty(origin)
		p.QuantityGeneric = Qty(generic)
	}
}

// WithProposalNeed links the proposal to needID; zero leaves it unlinked.
func WithProposalNeed(needID int64) ProposalOption {
	return func(p *models.SubstitutionProposal) {
		p.NeedID = needID
	}
}

func WithProposalInactive() ProposalOption {
	return func(p *models.SubstitutionProposal) {
		p.Active = false
	}
}

// NewTestProposal builds an active conf proposal that substitutes need with GenericRice.
func NewTestProposal(need models.Need, opts ...ProposalOption) models.SubstitutionProposal {
	now := time.Now().UTC()
	p := models.SubstitutionProposal{
		NeedID:          need.ID,
		OriginProduct:   need.OriginProduct,
		GenericProduct:  GenericRice,
		SchoolID:        need.SchoolID,
		SchoolName:      need.SchoolName,
		Quantity:        need.Quantity,
		QuantityGeneric: need.Quantity,
		Status:          models.ProposalConfirmed,
		Active:          true,
		SupplyWeek:      need.SupplyWeek,
		ConsumptionWeek: need.ConsumptionWeek,
		Group:           need.Group,
		GroupID:         need.GroupID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Package repository declares the storage ports of the substitution engine.
// internal/repository/postgres is the production implementation and
// internal/repository/memory backs the tests.
package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/provisioning/internal/domain/models"
)

// NeedRepository reads raw needs and latches their processed flag.
type NeedRepository interface {
	// ListPending returns CONF needs not yet processed that fall inside scope.
	ListPending(ctx context.Context, scope models.Scope) ([]models.Need, error)
	GetNeed(ctx context.Context, id int64) (models.Need, error)
	// MarkProcessed sets substitution_processed to true. It never clears it.
	MarkProcessed(ctx context.Context, id int64) error
	// ConsumptionWeek returns the consumption week scheduled for a supply week.
	ConsumptionWeek(ctx context.Context, supplyWeek string) (string, error)
}

// ProposalQuery filters proposals. Zero values mean "any".
type ProposalQuery struct {
	Status           models.ProposalStatus
	ActiveOnly       bool
	Scope            models.Scope
	NeedID           int64
	OriginProductID  int64
	GenericProductID int64
	SchoolIDs        []int64
}

// CreateProposalParams carries the data of a new proposal.
type CreateProposalParams struct {
	NeedID          int64
	OriginProduct   models.ProductRef
	TradedProduct   *models.ProductRef
	GenericProduct  models.GenericProductRef
	SchoolID        int64
	SchoolName      string
	Quantity        decimal.Decimal
	QuantityGeneric decimal.Decimal
	SupplyWeek      string
	ConsumptionWeek string
	Group           string
	GroupID         int64
}

// ProposalRepository reads and writes substitution proposals.
type ProposalRepository interface {
	ListProposals(ctx context.Context, q ProposalQuery) ([]models.SubstitutionProposal, error)
	GetProposal(ctx context.Context, id int64) (models.SubstitutionProposal, error)
	// HasActive reports whether an active proposal already holds key.
	HasActive(ctx context.Context, key models.ProposalKey) (bool, error)
	// CreateProposal inserts an active proposal with status conf. A concurrent
	// duplicate surfaces as an apperr Conflict.
	CreateProposal(ctx context.Context, params CreateProposalParams) (models.SubstitutionProposal, error)
	// Promote moves an active conf proposal to conf log and reports whether a row changed.
	Promote(ctx context.Context, id int64) (bool, error)
	// Deactivate clears the active flag and reports whether a row changed.
	Deactivate(ctx context.Context, id int64) (bool, error)
}

// LogisticsRepository reads the school/route/route-type taxonomy.
type LogisticsRepository interface {
	GetRoute(ctx context.Context, id int64) (models.Route, error)
	SchoolIDsByRoute(ctx context.Context, routeID int64) ([]int64, error)
	SchoolIDsByRouteType(ctx context.Context, routeTypeID int64) ([]int64, error)
	// SchoolRoutes returns every route membership of the given schools.
	SchoolRoutes(ctx context.Context, schoolIDs []int64) ([]models.SchoolRoute, error)
	// PermittedGroups returns the groups a route type may carry.
	PermittedGroups(ctx context.Context, routeTypeID int64) ([]models.Group, error)
}

// Package substitution owns the proposal lifecycle: create, promote, deactivate.
package substitution

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/provisioning/internal/domain/models"
	"github.com/mamadbah2/provisioning/internal/repository"
	"github.com/mamadbah2/provisioning/pkg/apperr"
)

// GenericResolver loads generic products from the catalog.
type GenericResolver interface {
	ResolveGenericProduct(ctx context.Context, id int64) (models.GenericProductRef, error)
}

// CreateInput carries a nutritionist's substitution decision for one need.
type CreateInput struct {
	NeedID           int64
	GenericProductID int64
	TradedProduct    *models.ProductRef
	// QuantityGeneric defaults to the need quantity when nil.
	QuantityGeneric *decimal.Decimal
}

// Service applies state transitions to proposals and needs.
type Service struct {
	needs     repository.NeedRepository
	proposals repository.ProposalRepository
	catalog   GenericResolver
	logger    *zap.Logger
}

// NewService constructs the transition manager.
func NewService(needs repository.NeedRepository, proposals repository.ProposalRepository, catalog GenericResolver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{needs: needs, proposals: proposals, catalog: catalog, logger: logger}
}

// Create records a conf proposal for a need and then latches the need as
// processed. Any other active conf proposal of the need is superseded. If the
// latch fails the proposal stays and the error is returned; the need is hidden
// from the raw branch by its linked proposal, and repeating the call with the
// same generic product latches it and returns the existing proposal.
func (s *Service) Create(ctx context.Context, in CreateInput) (models.SubstitutionProposal, error) {
	if in.NeedID <= 0 {
		return models.SubstitutionProposal{}, apperr.Validation("needId must be positive")
	}
	if in.GenericProductID <= 0 {
		return models.SubstitutionProposal{}, apperr.Validation("genericProductId must be positive")
	}
	if in.QuantityGeneric != nil && in.QuantityGeneric.IsNegative() {
		return models.SubstitutionProposal{}, apperr.Validation("quantityGeneric must not be negative")
	}
	if in.TradedProduct != nil && in.TradedProduct.ID <= 0 {
		return models.SubstitutionProposal{}, apperr.Validation("tradedProduct.id must be positive")
	}

	need, err := s.needs.GetNeed(ctx, in.NeedID)
	if err != nil {
		return models.SubstitutionProposal{}, err
	}
	if need.Status != models.NeedStatusConfirmed {
		return models.SubstitutionProposal{}, apperr.Conflict("need %d is not confirmed (status %s)", need.ID, need.Status)
	}

	generic, err := s.catalog.ResolveGenericProduct(ctx, in.GenericProductID)
	if err != nil {
		return models.SubstitutionProposal{}, err
	}

	key := models.ProposalKey{
		OriginProductID:  need.OriginProduct.ID,
		GenericProductID: generic.ID,
		SchoolID:         need.SchoolID,
		SupplyWeek:       need.SupplyWeek,
	}

	linked, err := s.proposals.ListProposals(ctx, repository.ProposalQuery{NeedID: need.ID, ActiveOnly: true})
	if err != nil {
		return models.SubstitutionProposal{}, apperr.Wrap(apperr.KindInternal, "load proposals of need", err)
	}
	var (
		proposal   models.SubstitutionProposal
		found      bool
		superseded []models.SubstitutionProposal
	)
	for _, p := range linked {
		switch {
		case p.Key() == key && !found:
			proposal, found = p, true
		case p.Status == models.ProposalLogged:
			return models.SubstitutionProposal{}, apperr.Conflict("need %d is already in coordination with proposal %d", need.ID, p.ID)
		default:
			superseded = append(superseded, p)
		}
	}

	if !found {
		proposal, err = s.insert(ctx, need, generic, key, in)
		if err != nil {
			return models.SubstitutionProposal{}, err
		}
	}

	for _, old := range superseded {
		if _, err := s.proposals.Deactivate(ctx, old.ID); err != nil {
			s.logger.Error("superseded proposal not deactivated",
				zap.Int64("proposal_id", old.ID),
				zap.Int64("need_id", need.ID),
				zap.Error(err))
			return proposal, apperr.Wrap(apperr.KindInternal, "deactivate superseded proposal", err)
		}
		s.logger.Info("substitution proposal superseded",
			zap.Int64("proposal_id", old.ID),
			zap.Int64("replaced_by", proposal.ID))
	}

	if err := s.needs.MarkProcessed(ctx, need.ID); err != nil {
		s.logger.Error("proposal created but need not marked processed",
			zap.Int64("proposal_id", proposal.ID),
			zap.Int64("need_id", need.ID),
			zap.Error(err))
		return proposal, apperr.Wrap(apperr.KindInternal, "mark need processed", err)
	}

	if found {
		s.logger.Info("substitution proposal already recorded",
			zap.Int64("proposal_id", proposal.ID),
			zap.Int64("need_id", need.ID))
		return proposal, nil
	}
	s.logger.Info("substitution proposal created",
		zap.Int64("proposal_id", proposal.ID),
		zap.Int64("need_id", need.ID),
		zap.Int64("generic_product_id", generic.ID))
	return proposal, nil
}

// insert stores a new proposal unless another need's proposal holds key.
func (s *Service) insert(ctx context.Context, need models.Need, generic models.GenericProductRef, key models.ProposalKey, in CreateInput) (models.SubstitutionProposal, error) {
	exists, err := s.proposals.HasActive(ctx, key)
	if err != nil {
		return models.SubstitutionProposal{}, apperr.Wrap(apperr.KindInternal, "check active proposals", err)
	}
	if exists {
		return models.SubstitutionProposal{}, apperr.Conflict("an active proposal already substitutes product %d with %d for school %d in %s",
			key.OriginProductID, key.GenericProductID, key.SchoolID, key.SupplyWeek)
	}

	quantityGeneric := need.Quantity
	if in.QuantityGeneric != nil {
		quantityGeneric = *in.QuantityGeneric
	}

	proposal, err := s.proposals.CreateProposal(ctx, repository.CreateProposalParams{
		NeedID:          need.ID,
		OriginProduct:   need.OriginProduct,
		TradedProduct:   in.TradedProduct,
		GenericProduct:  generic,
		SchoolID:        need.SchoolID,
		SchoolName:      need.SchoolName,
		Quantity:        need.Quantity,
		QuantityGeneric: quantityGeneric,
		SupplyWeek:      need.SupplyWeek,
		ConsumptionWeek: need.ConsumptionWeek,
		Group:           need.Group,
		GroupID:         need.GroupID,
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnknown {
			return models.SubstitutionProposal{}, err
		}
		return models.SubstitutionProposal{}, apperr.Wrap(apperr.KindInternal, "create proposal", err)
	}
	return proposal, nil
}

// Get loads a proposal.
func (s *Service) Get(ctx context.Context, id int64) (models.SubstitutionProposal, error) {
	if id <= 0 {
		return models.SubstitutionProposal{}, apperr.Validation("proposal id must be positive")
	}
	return s.proposals.GetProposal(ctx, id)
}

// Promote moves a proposal from conf to conf log. Promoting an already logged
// proposal is a no-op.
func (s *Service) Promote(ctx context.Context, id int64) (models.SubstitutionProposal, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return models.SubstitutionProposal{}, err
	}
	if !current.Active {
		return models.SubstitutionProposal{}, apperr.Conflict("proposal %d is deactivated", id)
	}
	if current.Status == models.ProposalLogged {
		return current, nil
	}

	ok, err := s.proposals.Promote(ctx, id)
	if err != nil {
		return models.SubstitutionProposal{}, apperr.Wrap(apperr.KindInternal, "promote proposal", err)
	}

	updated, err := s.proposals.GetProposal(ctx, id)
	if err != nil {
		return models.SubstitutionProposal{}, err
	}
	if !ok {
		// Lost a race: another request promoted or deactivated it first.
		if updated.Active && updated.Status == models.ProposalLogged {
			return updated, nil
		}
		return models.SubstitutionProposal{}, apperr.Conflict("proposal %d can no longer be promoted", id)
	}

	s.logger.Info("substitution proposal promoted", zap.Int64("proposal_id", id))
	return updated, nil
}

// Deactivate withdraws an active proposal.
func (s *Service) Deactivate(ctx context.Context, id int64) (models.SubstitutionProposal, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return models.SubstitutionProposal{}, err
	}
	if !current.Active {
		return models.SubstitutionProposal{}, apperr.Conflict("proposal %d is already deactivated", id)
	}

	ok, err := s.proposals.Deactivate(ctx, id)
	if err != nil {
		return models.SubstitutionProposal{}, apperr.Wrap(apperr.KindInternal, "deactivate proposal", err)
	}
	if !ok {
		return models.SubstitutionProposal{}, apperr.Conflict("proposal %d is already deactivated", id)
	}

	updated, err := s.proposals.GetProposal(ctx, id)
	if err != nil {
		return models.SubstitutionProposal{}, err
	}
	s.logger.Info("substitution proposal deactivated", zap.Int64("proposal_id", id))
	return updated, nil
}

package aggregation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/provisioning/internal/domain/models"
	"github.com/mamadbah2/provisioning/internal/repository"
	"github.com/mamadbah2/provisioning/pkg/apperr"
)

// ScopeResolver resolves review filters to a scope.
type ScopeResolver interface {
	Resolve(ctx context.Context, f models.Filters) (models.Scope, error)
}

// Enricher supplies catalog data for aggregated rows. Implementations never fail;
// an unavailable catalog yields nil / empty results.
type Enricher interface {
	ResolveDefaultSubstitute(ctx context.Context, originProductID int64) *models.GenericProductRef
	ResolveGroupCandidates(ctx context.Context, key models.GroupKey) []models.GenericProductRef
}

// Service aggregates needs and proposals for the review screens.
type Service struct {
	needs       repository.NeedRepository
	proposals   repository.ProposalRepository
	logistics   repository.LogisticsRepository
	resolver    ScopeResolver
	enricher    Enricher
	concurrency int
	logger      *zap.Logger
}

// NewService wires the aggregator. concurrency bounds the per-row enrichment fan-out.
func NewService(
	needs repository.NeedRepository,
	proposals repository.ProposalRepository,
	logistics repository.LogisticsRepository,
	resolver ScopeResolver,
	enricher Enricher,
	concurrency int,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		needs:       needs,
		proposals:   proposals,
		logistics:   logistics,
		resolver:    resolver,
		enricher:    enricher,
		concurrency: concurrency,
		logger:      logger,
	}
}

// sourceRow is one input of the union: either a raw need or a proposal.
type sourceRow struct {
	kind     models.SourceKind
	need     models.Need
	proposal models.SubstitutionProposal
}

type groupKey struct {
	kind            models.SourceKind
	originID        int64
	tradedID        int64
	genericID       int64
	supplyWeek      string
	consumptionWeek string
	group           string
}

// Aggregate returns the consolidated rows of a stage. Filters referencing an
// unknown route produce an empty list rather than an error.
func (s *Service) Aggregate(ctx context.Context, stage models.Stage, f models.Filters) ([]models.AggregatedRow, error) {
	scope, err := s.scope(ctx, f)
	if err != nil {
		return nil, err
	}

	sources, err := s.collect(ctx, stage, scope)
	if err != nil {
		return nil, err
	}

	rows := groupRows(sources)
	s.enrich(ctx, rows)
	sortRows(rows, stage)

	out := make([]models.AggregatedRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out, nil
}

// scope resolves filters; a dangling reference degrades to an empty scope.
func (s *Service) scope(ctx context.Context, f models.Filters) (models.Scope, error) {
	scope, err := s.resolver.Resolve(ctx, f)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			s.logger.Info("filter references unknown entity, returning empty result", zap.Error(err))
			return models.Scope{Empty: true}, nil
		}
		return models.Scope{}, err
	}
	return scope, nil
}

// collect reads the stage's sources independently and merges them.
func (s *Service) collect(ctx context.Context, stage models.Stage, scope models.Scope) ([]sourceRow, error) {
	if stage != models.StageNutritionist && stage != models.StageCoordination {
		return nil, apperr.Validation("unknown stage %q", stage)
	}
	if scope.Empty {
		return nil, nil
	}

	switch stage {
	case models.StageCoordination:
		logged, err := s.proposals.ListProposals(ctx, repository.ProposalQuery{
			Status:     models.ProposalLogged,
			ActiveOnly: true,
			Scope:      scope,
		})
		if err != nil {
			return nil, fmt.Errorf("load logged proposals: %w", err)
		}
		return s.validProposals(logged), nil

	case models.StageNutritionist:
		confirmed, err := s.proposals.ListProposals(ctx, repository.ProposalQuery{
			Status:     models.ProposalConfirmed,
			ActiveOnly: true,
			Scope:      scope,
		})
		if err != nil {
			return nil, fmt.Errorf("load confirmed proposals: %w", err)
		}
		pending, err := s.needs.ListPending(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("load pending needs: %w", err)
		}

		rows := s.validProposals(confirmed)
		for _, n := range excludeCovered(pending, confirmed) {
			if err := validateNeed(n); err != nil {
				s.logger.Warn("skipping malformed need", zap.Int64("need_id", n.ID), zap.Error(err))
				continue
			}
			rows = append(rows, sourceRow{kind: models.SourceNeed, need: n})
		}
		return rows, nil

	default:
		return nil, apperr.Validation("unknown stage %q", stage)
	}
}

func (s *Service) validProposals(proposals []models.SubstitutionProposal) []sourceRow {
	rows := make([]sourceRow, 0, len(proposals))
	for _, p := range proposals {
		if err := validateProposal(p); err != nil {
			s.logger.Warn("skipping malformed proposal", zap.Int64("proposal_id", p.ID), zap.Error(err))
			continue
		}
		rows = append(rows, sourceRow{kind: models.SourceProposal, proposal: p})
	}
	return rows
}

// excludeCovered drops needs already represented by an active conf proposal.
// A proposal linked to the need covers it whatever generic product it names.
// An unlinked proposal covers needs on the same (origin product, generic
// product, school, supply week); one for a different generic does not.
func excludeCovered(needs []models.Need, confirmed []models.SubstitutionProposal) []models.Need {
	covered := make(map[models.ProposalKey]struct{}, len(confirmed))
	linked := make(map[int64]struct{}, len(confirmed))
	for _, p := range confirmed {
		if !p.Active || p.Status != models.ProposalConfirmed {
			continue
		}
		covered[p.Key()] = struct{}{}
		if p.NeedID != 0 {
			linked[p.NeedID] = struct{}{}
		}
	}

	out := make([]models.Need, 0, len(needs))
	for _, n := range needs {
		if _, ok := linked[n.ID]; ok {
			continue
		}
		key := models.ProposalKey{
			OriginProductID:  n.OriginProduct.ID,
			GenericProductID: n.GenericProductID,
			SchoolID:         n.SchoolID,
			SupplyWeek:       n.SupplyWeek,
		}
		if _, ok := covered[key]; ok {
			continue
		}
		out = append(out, n)
	}
	return out
}

var (
	errNoOriginProduct = errors.New("missing origin product")
	errNoSchool        = errors.New("missing school")
	errNoSupplyWeek    = errors.New("missing supply week")
	errNegativeQty     = errors.New("negative quantity")
	errNoGeneric       = errors.New("missing generic product")
)

func validateNeed(n models.Need) error {
	switch {
	case n.OriginProduct.ID == 0:
		return errNoOriginProduct
	case n.SchoolID == 0:
		return errNoSchool
	case n.SupplyWeek == "":
		return errNoSupplyWeek
	case n.Quantity.IsNegative():
		return errNegativeQty
	}
	return nil
}

func validateProposal(p models.SubstitutionProposal) error {
	switch {
	case p.OriginProduct.ID == 0:
		return errNoOriginProduct
	case p.GenericProduct.ID == 0:
		return errNoGeneric
	case p.SchoolID == 0:
		return errNoSchool
	case p.SupplyWeek == "":
		return errNoSupplyWeek
	case p.Quantity.IsNegative() || p.QuantityGeneric.IsNegative():
		return errNegativeQty
	}
	return nil
}

func groupRows(sources []sourceRow) []*models.AggregatedRow {
	index := make(map[groupKey]*models.AggregatedRow)
	rows := make([]*models.AggregatedRow, 0)

	for _, src := range sources {
		var key groupKey
		var line models.SchoolLine

		switch src.kind {
		case models.SourceNeed:
			n := src.need
			key = groupKey{
				kind:            models.SourceNeed,
				originID:        n.OriginProduct.ID,
				supplyWeek:      n.SupplyWeek,
				consumptionWeek: n.ConsumptionWeek,
				group:           n.Group,
			}
			line = models.SchoolLine{NeedID: n.ID, SchoolID: n.SchoolID, SchoolName: n.SchoolName, Quantity: n.Quantity}
		case models.SourceProposal:
			p := src.proposal
			key = groupKey{
				kind:            models.SourceProposal,
				originID:        p.OriginProduct.ID,
				genericID:       p.GenericProduct.ID,
				supplyWeek:      p.SupplyWeek,
				consumptionWeek: p.ConsumptionWeek,
				group:           p.Group,
			}
			if p.TradedProduct != nil {
				key.tradedID = p.TradedProduct.ID
			}
			line = models.SchoolLine{NeedID: p.NeedID, ProposalID: p.ID, SchoolID: p.SchoolID, SchoolName: p.SchoolName, Quantity: p.Quantity}
		}

		row, ok := index[key]
		if !ok {
			row = newRow(src)
			index[key] = row
			rows = append(rows, row)
		}
		row.Quantity = row.Quantity.Add(line.Quantity)
		if src.kind == models.SourceProposal {
			row.QuantityGeneric = row.QuantityGeneric.Add(src.proposal.QuantityGeneric)
		}
		row.Schools = append(row.Schools, line)
	}

	for _, row := range rows {
		sort.SliceStable(row.Schools, func(i, j int) bool {
			a, b := row.Schools[i], row.Schools[j]
			if a.SchoolName != b.SchoolName {
				return a.SchoolName < b.SchoolName
			}
			return a.SchoolID < b.SchoolID
		})
	}
	return rows
}

func newRow(src sourceRow) *models.AggregatedRow {
	row := &models.AggregatedRow{
		Source:          src.kind,
		Quantity:        decimal.Zero,
		QuantityGeneric: decimal.Zero,
		Schools:         make([]models.SchoolLine, 0, 1),
		Proposals:       []models.ProposalSummary{},
		Candidates:      []models.GenericProductRef{},
	}
	switch src.kind {
	case models.SourceNeed:
		n := src.need
		row.OriginProduct = n.OriginProduct
		row.SupplyWeek = n.SupplyWeek
		row.ConsumptionWeek = n.ConsumptionWeek
		row.Group = n.Group
		row.GroupID = n.GroupID
	case models.SourceProposal:
		p := src.proposal
		row.OriginProduct = p.OriginProduct
		if p.TradedProduct != nil {
			traded := *p.TradedProduct
			row.TradedProduct = &traded
		}
		generic := p.GenericProduct
		row.GenericProduct = &generic
		row.SupplyWeek = p.SupplyWeek
		row.ConsumptionWeek = p.ConsumptionWeek
		row.Group = p.Group
		row.GroupID = p.GroupID
	}
	return row
}

// enrich attaches catalog data and existing proposals to each row concurrently.
// Nothing here can fail the aggregation.
func (s *Service) enrich(ctx context.Context, rows []*models.AggregatedRow) {
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, row := range rows {
		row := row
		g.Go(func() error {
			row.DefaultSubstitute = s.enricher.ResolveDefaultSubstitute(ctx, row.OriginProduct.ID)
			if candidates := s.enricher.ResolveGroupCandidates(ctx, models.GroupKey{ID: row.GroupID, Name: row.Group}); candidates != nil {
				row.Candidates = candidates
			}

			generic := row.GenericProduct
			if generic == nil {
				generic = row.DefaultSubstitute
			}
			if generic == nil {
				return nil
			}

			existing, err := s.proposals.ListProposals(ctx, repository.ProposalQuery{
				ActiveOnly:       true,
				OriginProductID:  row.OriginProduct.ID,
				GenericProductID: generic.ID,
				SchoolIDs:        row.SchoolIDs(),
				Scope:            models.Scope{SupplyWeek: row.SupplyWeek},
			})
			if err != nil {
				s.logger.Warn("existing proposals unavailable",
					zap.Int64("origin_product_id", row.OriginProduct.ID),
					zap.Int64("generic_product_id", generic.ID),
					zap.Error(err))
				return nil
			}
			for _, p := range existing {
				row.Proposals = append(row.Proposals, models.ProposalSummary{
					ID:              p.ID,
					SchoolID:        p.SchoolID,
					Status:          p.Status,
					Quantity:        p.Quantity,
					QuantityGeneric: p.QuantityGeneric,
				})
			}
			return nil
		})
	}
	_ = g.Wait()
}

func sortRows(rows []*models.AggregatedRow, stage models.Stage) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if c := compareFold(a.OriginProduct.Name, b.OriginProduct.Name); c != 0 {
			return c < 0
		}
		if stage == models.StageCoordination {
			if c := compareFold(genericName(a), genericName(b)); c != 0 {
				return c < 0
			}
		} else if a.SupplyWeek != b.SupplyWeek {
			return a.SupplyWeek < b.SupplyWeek
		}
		if a.OriginProduct.ID != b.OriginProduct.ID {
			return a.OriginProduct.ID < b.OriginProduct.ID
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if c := compareFold(genericName(a), genericName(b)); c != 0 {
			return c < 0
		}
		if genericID(a) != genericID(b) {
			return genericID(a) < genericID(b)
		}
		if tradedID(a) != tradedID(b) {
			return tradedID(a) < tradedID(b)
		}
		if a.SupplyWeek != b.SupplyWeek {
			return a.SupplyWeek < b.SupplyWeek
		}
		if a.ConsumptionWeek != b.ConsumptionWeek {
			return a.ConsumptionWeek < b.ConsumptionWeek
		}
		return a.Group < b.Group
	})
}

func compareFold(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func genericName(r *models.AggregatedRow) string {
	if r.GenericProduct == nil {
		return ""
	}
	return r.GenericProduct.Name
}

func genericID(r *models.AggregatedRow) int64 {
	if r.GenericProduct == nil {
		return 0
	}
	return r.GenericProduct.ID
}

func tradedID(r *models.AggregatedRow) int64 {
	if r.TradedProduct == nil {
		return 0
	}
	return r.TradedProduct.ID
}

// Package memory provides in-process implementations of the repository ports.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mamadbah2/provisioning/internal/domain/models"
	"github.com/mamadbah2/provisioning/internal/repository"
	"github.com/mamadbah2/provisioning/pkg/apperr"
)

// Store keeps needs, proposals and the logistics taxonomy in maps.
type Store struct {
	mu sync.RWMutex

	needs      map[int64]models.Need
	proposals  map[int64]models.SubstitutionProposal
	nextID     int64
	routes     map[int64]models.Route
	routeTypes map[int64]models.RouteType
	// school id -> route ids
	memberships map[int64][]int64
	permitted   map[int64][]models.Group

	// MarkProcessedErr, when set, is returned by MarkProcessed.
	MarkProcessedErr error

	now func() time.Time
}

var (
	_ repository.NeedRepository      = (*Store)(nil)
	_ repository.ProposalRepository  = (*Store)(nil)
	_ repository.LogisticsRepository = (*Store)(nil)
)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		needs:       make(map[int64]models.Need),
		proposals:   make(map[int64]models.SubstitutionProposal),
		routes:      make(map[int64]models.Route),
		routeTypes:  make(map[int64]models.RouteType),
		memberships: make(map[int64][]int64),
		permitted:   make(map[int64][]models.Group),
		now:         time.Now,
	}
}

// PutNeed inserts or replaces a need.
func (s *Store) PutNeed(n models.Need) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.needs[n.ID] = n
}

// PutProposal inserts or replaces a proposal, assigning an id when missing.
func (s *Store) PutProposal(p models.SubstitutionProposal) models.SubstitutionProposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextID++
		p.ID = s.nextID
	} else if p.ID > s.nextID {
		s.nextID = p.ID
	}
	s.proposals[p.ID] = p
	return p
}

// PutRouteType registers a route type with its permitted groups.
func (s *Store) PutRouteType(rt models.RouteType, groups ...models.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routeTypes[rt.ID] = rt
	s.permitted[rt.ID] = append([]models.Group(nil), groups...)
}

// PutRoute registers a route and attaches the given schools to it.
func (s *Store) PutRoute(r models.Route, schoolIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[r.ID] = r
	for _, id := range schoolIDs {
		s.memberships[id] = append(s.memberships[id], r.ID)
	}
}

func (s *Store) ListPending(_ context.Context, scope models.Scope) ([]models.Need, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Need, 0)
	for _, n := range s.needs {
		if n.Pending() && scope.MatchesNeed(n) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetNeed(_ context.Context, id int64) (models.Need, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.needs[id]
	if !ok {
		return models.Need{}, apperr.NotFound("need %d not found", id)
	}
	return n, nil
}

func (s *Store) MarkProcessed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.MarkProcessedErr != nil {
		return s.MarkProcessedErr
	}
	n, ok := s.needs[id]
	if !ok {
		return apperr.NotFound("need %d not found", id)
	}
	n.SubstitutionProcessed = true
	n.UpdatedAt = s.now()
	s.needs[id] = n
	return nil
}

func (s *Store) ConsumptionWeek(_ context.Context, supplyWeek string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	weeks := make([]string, 0, 1)
	for _, n := range s.needs {
		if n.SupplyWeek == supplyWeek && n.ConsumptionWeek != "" {
			weeks = append(weeks, n.ConsumptionWeek)
		}
	}
	if len(weeks) == 0 {
		return "", apperr.NotFound("no consumption week for supply week %s", supplyWeek)
	}
	sort.Strings(weeks)
	return weeks[0], nil
}

func (s *Store) ListProposals(_ context.Context, q repository.ProposalQuery) ([]models.SubstitutionProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schools := make(map[int64]struct{}, len(q.SchoolIDs))
	for _, id := range q.SchoolIDs {
		schools[id] = struct{}{}
	}

	out := make([]models.SubstitutionProposal, 0)
	for _, p := range s.proposals {
		switch {
		case q.Status != "" && p.Status != q.Status:
			continue
		case q.ActiveOnly && !p.Active:
			continue
		case q.NeedID != 0 && p.NeedID != q.NeedID:
			continue
		case q.OriginProductID != 0 && p.OriginProduct.ID != q.OriginProductID:
			continue
		case q.GenericProductID != 0 && p.GenericProduct.ID != q.GenericProductID:
			continue
		case !q.Scope.MatchesProposal(p):
			continue
		}
		if len(q.SchoolIDs) > 0 {
			if _, ok := schools[p.SchoolID]; !ok {
				continue
			}
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetProposal(_ context.Context, id int64) (models.SubstitutionProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return models.SubstitutionProposal{}, apperr.NotFound("proposal %d not found", id)
	}
	return p, nil
}

func (s *Store) HasActive(_ context.Context, key models.ProposalKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasActiveLocked(key), nil
}

func (s *Store) hasActiveLocked(key models.ProposalKey) bool {
	for _, p := range s.proposals {
		if p.Active && p.Key() == key {
			return true
		}
	}
	return false
}

func (s *Store) CreateProposal(_ context.Context, params repository.CreateProposalParams) (models.SubstitutionProposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p := models.SubstitutionProposal{
		NeedID:          params.NeedID,
		OriginProduct:   params.OriginProduct,
		TradedProduct:   params.TradedProduct,
		GenericProduct:  params.GenericProduct,
		SchoolID:        params.SchoolID,
		SchoolName:      params.SchoolName,
		Quantity:        params.Quantity,
		QuantityGeneric: params.QuantityGeneric,
		Status:          models.ProposalConfirmed,
		Active:          true,
		SupplyWeek:      params.SupplyWeek,
		ConsumptionWeek: params.ConsumptionWeek,
		Group:           params.Group,
		GroupID:         params.GroupID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if s.hasActiveLocked(p.Key()) {
		return models.SubstitutionProposal{}, apperr.Conflict("an active proposal already exists for this product, school and week")
	}

	s.nextID++
	p.ID = s.nextID
	s.proposals[p.ID] = p
	return p, nil
}

func (s *Store) Promote(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok || !p.Active || p.Status != models.ProposalConfirmed {
		return false, nil
	}
	p.Status = models.ProposalLogged
	p.UpdatedAt = s.now()
	s.proposals[id] = p
	return true, nil
}

func (s *Store) Deactivate(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok || !p.Active {
		return false, nil
	}
	p.Active = false
	p.UpdatedAt = s.now()
	s.proposals[id] = p
	return true, nil
}

func (s *Store) GetRoute(_ context.Context, id int64) (models.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routes[id]
	if !ok {
		return models.Route{}, apperr.NotFound("route %d not found", id)
	}
	return r, nil
}

func (s *Store) SchoolIDsByRoute(_ context.Context, routeID int64) ([]int64, error) {
	return s.schoolsWhere(func(r models.Route) bool { return r.ID == routeID }), nil
}

func (s *Store) SchoolIDsByRouteType(_ context.Context, routeTypeID int64) ([]int64, error) {
	return s.schoolsWhere(func(r models.Route) bool { return r.RouteTypeID == routeTypeID }), nil
}

func (s *Store) schoolsWhere(match func(models.Route) bool) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0)
	for schoolID, routeIDs := range s.memberships {
		for _, rid := range routeIDs {
			if r, ok := s.routes[rid]; ok && match(r) {
				out = append(out, schoolID)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Store) SchoolRoutes(_ context.Context, schoolIDs []int64) ([]models.SchoolRoute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SchoolRoute, 0)
	for _, schoolID := range schoolIDs {
		for _, rid := range s.memberships[schoolID] {
			r, ok := s.routes[rid]
			if !ok {
				continue
			}
			out = append(out, models.SchoolRoute{
				SchoolID:      schoolID,
				Route:         r,
				RouteTypeName: s.routeTypes[r.RouteTypeID].Name,
			})
		}
	}
	return out, nil
}

func (s *Store) PermittedGroups(_ context.Context, routeTypeID int64) ([]models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Group(nil), s.permitted[routeTypeID]...), nil
}

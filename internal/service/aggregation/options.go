package aggregation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mamadbah2/provisioning/internal/domain/models"
	"github.com/mamadbah2/provisioning/pkg/apperr"
)

// ConsumptionWeek returns the consumption week paired with a supply week.
func (s *Service) ConsumptionWeek(ctx context.Context, supplyWeek string) (string, error) {
	if strings.TrimSpace(supplyWeek) == "" {
		return "", apperr.Validation("supplyWeek is required")
	}
	return s.needs.ConsumptionWeek(ctx, supplyWeek)
}

// RouteTypeOptions lists the route types serving at least one school that
// contributes rows to the stage. routeID narrows to the type of that route.
func (s *Service) RouteTypeOptions(ctx context.Context, stage models.Stage, routeID int64, supplyWeek string) ([]models.RouteType, error) {
	memberships, err := s.memberships(ctx, stage, models.Filters{RouteID: routeID, SupplyWeek: supplyWeek})
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	out := make([]models.RouteType, 0)
	for _, m := range memberships {
		if routeID != 0 && m.Route.ID != routeID {
			continue
		}
		if _, ok := seen[m.Route.RouteTypeID]; ok {
			continue
		}
		seen[m.Route.RouteTypeID] = struct{}{}
		out = append(out, models.RouteType{ID: m.Route.RouteTypeID, Name: m.RouteTypeName})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := compareFold(out[i].Name, out[j].Name); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RouteOptions lists the routes that carry at least one contributing school.
func (s *Service) RouteOptions(ctx context.Context, stage models.Stage, routeTypeID int64, supplyWeek string) ([]models.Route, error) {
	memberships, err := s.memberships(ctx, stage, models.Filters{RouteTypeID: routeTypeID, SupplyWeek: supplyWeek})
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	out := make([]models.Route, 0)
	for _, m := range memberships {
		if routeTypeID != 0 && m.Route.RouteTypeID != routeTypeID {
			continue
		}
		if _, ok := seen[m.Route.ID]; ok {
			continue
		}
		seen[m.Route.ID] = struct{}{}
		out = append(out, m.Route)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := compareFold(out[i].Name, out[j].Name); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GroupOptions lists the group labels present in the stage's rows. With a route
// type, only groups that type is permitted to carry are offered; a type with no
// permitted-group rows is unrestricted.
func (s *Service) GroupOptions(ctx context.Context, stage models.Stage, routeTypeID int64, supplyWeek string) ([]models.Group, error) {
	rows, err := s.sources(ctx, stage, models.Filters{RouteTypeID: routeTypeID, SupplyWeek: supplyWeek})
	if err != nil {
		return nil, err
	}

	var permitted []models.Group
	if routeTypeID != 0 {
		permitted, err = s.logistics.PermittedGroups(ctx, routeTypeID)
		if err != nil {
			return nil, fmt.Errorf("load permitted groups: %w", err)
		}
	}

	seen := make(map[string]struct{})
	out := make([]models.Group, 0)
	for _, row := range rows {
		group := row.group()
		name := strings.ToLower(strings.TrimSpace(group.Name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		if len(permitted) > 0 && !containsGroup(permitted, group) {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, group)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := compareFold(out[i].Name, out[j].Name); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func containsGroup(groups []models.Group, g models.Group) bool {
	for _, p := range groups {
		if g.ID != 0 && p.ID == g.ID {
			return true
		}
		if strings.EqualFold(strings.TrimSpace(p.Name), strings.TrimSpace(g.Name)) {
			return true
		}
	}
	return false
}

// sources returns the stage's un-aggregated rows for the given filters.
func (s *Service) sources(ctx context.Context, stage models.Stage, f models.Filters) ([]sourceRow, error) {
	scope, err := s.scope(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, stage, scope)
}

func (s *Service) memberships(ctx context.Context, stage models.Stage, f models.Filters) ([]models.SchoolRoute, error) {
	rows, err := s.sources(ctx, stage, f)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	seen := make(map[int64]struct{}, len(rows))
	schoolIDs := make([]int64, 0, len(rows))
	for _, row := range rows {
		id := row.schoolID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		schoolIDs = append(schoolIDs, id)
	}

	memberships, err := s.logistics.SchoolRoutes(ctx, schoolIDs)
	if err != nil {
		return nil, fmt.Errorf("load school routes: %w", err)
	}
	return memberships, nil
}

func (r sourceRow) schoolID() int64 {
	if r.kind == models.SourceNeed {
		return r.need.SchoolID
	}
	return r.proposal.SchoolID
}

func (r sourceRow) group() models.Group {
	if r.kind == models.SourceNeed {
		return models.Group{ID: r.need.GroupID, Name: strings.TrimSpace(r.need.Group)}
	}
	return models.Group{ID: r.proposal.GroupID, Name: strings.TrimSpace(r.proposal.Group)}
}

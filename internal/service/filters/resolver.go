package filters

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/provisioning/internal/domain/models"
	"github.com/mamadbah2/provisioning/internal/repository"
	"github.com/mamadbah2/provisioning/pkg/apperr"
)

// Resolver turns review filters into a Scope by walking school → route → route type.
type Resolver struct {
	logistics repository.LogisticsRepository
	logger    *zap.Logger
}

// NewResolver constructs a filter resolver.
func NewResolver(logistics repository.LogisticsRepository, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logistics: logistics, logger: logger}
}

// Resolve computes the scope of f. A route that does not belong to the requested
// route type yields an empty scope instead of silently preferring either filter.
func (r *Resolver) Resolve(ctx context.Context, f models.Filters) (models.Scope, error) {
	if f.RouteID < 0 || f.RouteTypeID < 0 {
		return models.Scope{}, apperr.Validation("route and route type ids must be positive")
	}

	scope := models.Scope{
		Group:           strings.TrimSpace(f.Group),
		SupplyWeek:      strings.TrimSpace(f.SupplyWeek),
		ConsumptionWeek: strings.TrimSpace(f.ConsumptionWeek),
	}

	switch {
	case f.RouteID != 0:
		route, err := r.logistics.GetRoute(ctx, f.RouteID)
		if err != nil {
			return models.Scope{}, fmt.Errorf("resolve route filter: %w", err)
		}
		if f.RouteTypeID != 0 && route.RouteTypeID != f.RouteTypeID {
			r.logger.Debug("route does not belong to requested route type",
				zap.Int64("route_id", f.RouteID),
				zap.Int64("route_type_id", f.RouteTypeID),
				zap.Int64("actual_route_type_id", route.RouteTypeID))
			scope.Empty = true
			return scope, nil
		}
		schools, err := r.logistics.SchoolIDsByRoute(ctx, f.RouteID)
		if err != nil {
			return models.Scope{}, fmt.Errorf("resolve route schools: %w", err)
		}
		scope.SchoolIDs = schools
		scope.SchoolsRestricted = true
	case f.RouteTypeID != 0:
		schools, err := r.logistics.SchoolIDsByRouteType(ctx, f.RouteTypeID)
		if err != nil {
			return models.Scope{}, fmt.Errorf("resolve route type schools: %w", err)
		}
		scope.SchoolIDs = schools
		scope.SchoolsRestricted = true
	}

	if scope.SchoolsRestricted && len(scope.SchoolIDs) == 0 {
		scope.Empty = true
	}
	return scope, nil
}

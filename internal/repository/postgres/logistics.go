package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mamadbah2/provisioning/internal/domain/models"
	"github.com/mamadbah2/provisioning/internal/repository"
	"github.com/mamadbah2/provisioning/pkg/apperr"
)

// LogisticsRepo reads schools, routes and route types.
type LogisticsRepo struct {
	pool *pgxpool.Pool
}

// NewLogisticsRepo wires a LogisticsRepo.
func NewLogisticsRepo(pool *pgxpool.Pool) *LogisticsRepo {
	return &LogisticsRepo{pool: pool}
}

var _ repository.LogisticsRepository = (*LogisticsRepo)(nil)

func (r *LogisticsRepo) GetRoute(ctx context.Context, id int64) (models.Route, error) {
	var route models.Route
	err := r.pool.QueryRow(ctx, `SELECT id, name, route_type_id FROM routes WHERE id = $1`, id).
		Scan(&route.ID, &route.Name, &route.RouteTypeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Route{}, apperr.NotFound("route %d not found", id)
		}
		return models.Route{}, fmt.Errorf("get route: %w", err)
	}
	return route, nil
}

func (r *LogisticsRepo) SchoolIDsByRoute(ctx context.Context, routeID int64) ([]int64, error) {
	return r.schoolIDs(ctx, `SELECT DISTINCT school_id FROM school_routes WHERE route_id = $1 ORDER BY school_id`, routeID)
}

// SchoolIDsByRouteType returns schools having at least one route of the type.
func (r *LogisticsRepo) SchoolIDsByRouteType(ctx context.Context, routeTypeID int64) ([]int64, error) {
	return r.schoolIDs(ctx, `
		SELECT DISTINCT sr.school_id
		FROM school_routes sr
		JOIN routes rt ON rt.id = sr.route_id
		WHERE rt.route_type_id = $1
		ORDER BY sr.school_id`, routeTypeID)
}

func (r *LogisticsRepo) schoolIDs(ctx context.Context, query string, arg int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list school ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect school ids: %w", err)
	}
	return ids, nil
}

func (r *LogisticsRepo) SchoolRoutes(ctx context.Context, schoolIDs []int64) ([]models.SchoolRoute, error) {
	if len(schoolIDs) == 0 {
		return []models.SchoolRoute{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT sr.school_id, ro.id, ro.name, ro.route_type_id, rt.name
		FROM school_routes sr
		JOIN routes ro ON ro.id = sr.route_id
		JOIN route_types rt ON rt.id = ro.route_type_id
		WHERE sr.school_id = ANY($1)
		ORDER BY sr.school_id, ro.id`, schoolIDs)
	if err != nil {
		return nil, fmt.Errorf("list school routes: %w", err)
	}
	defer rows.Close()

	items := make([]models.SchoolRoute, 0)
	for rows.Next() {
		var sr models.SchoolRoute
		if err := rows.Scan(&sr.SchoolID, &sr.Route.ID, &sr.Route.Name, &sr.Route.RouteTypeID, &sr.RouteTypeName); err != nil {
			return nil, fmt.Errorf("scan school route: %w", err)
		}
		items = append(items, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate school routes: %w", err)
	}
	return items, nil
}

func (r *LogisticsRepo) PermittedGroups(ctx context.Context, routeTypeID int64) ([]models.Group, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT group_id, group_name FROM route_type_groups
		WHERE route_type_id = $1
		ORDER BY group_name`, routeTypeID)
	if err != nil {
		return nil, fmt.Errorf("list permitted groups: %w", err)
	}
	groups, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Group, error) {
		var g models.Group
		err := row.Scan(&g.ID, &g.Name)
		return g, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect permitted groups: %w", err)
	}
	return groups, nil
}

//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/provisioning/internal/domain/models"
	"github.com/mamadbah2/provisioning/internal/repository"
	"github.com/mamadbah2/provisioning/pkg/apperr"
)

// Run with: TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/repository/postgres/
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, url, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE substitution_proposals, needs, school_routes, schools, routes,
		route_type_groups, route_types RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return pool
}

func seedNeed(t *testing.T, pool *pgxpool.Pool, schoolID int64, qty string) models.Need {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO needs (school_id, school_name, origin_product_id, origin_product_name, origin_product_unit,
			generic_product_id, quantity, group_name, group_id, supply_week, consumption_week, status)
		VALUES ($1, 'School', 1, 'Rice', 'kg', 10, $2, 'Cereals', 4, '2025-W10', '2025-W11', 'CONF')
		RETURNING id`, schoolID, decimal.RequireFromString(qty)).Scan(&id)
	require.NoError(t, err)

	n, err := NewNeedRepo(pool).GetNeed(context.Background(), id)
	require.NoError(t, err)
	return n
}

func proposalParams(n models.Need, genericID int64) repository.CreateProposalParams {
	return repository.CreateProposalParams{
		NeedID:          n.ID,
		OriginProduct:   n.OriginProduct,
		GenericProduct:  models.GenericProductRef{ID: genericID, Name: "Generic", Unit: "kg", GroupID: 4},
		SchoolID:        n.SchoolID,
		SchoolName:      n.SchoolName,
		Quantity:        n.Quantity,
		QuantityGeneric: n.Quantity,
		SupplyWeek:      n.SupplyWeek,
		ConsumptionWeek: n.ConsumptionWeek,
		Group:           n.Group,
		GroupID:         n.GroupID,
	}
}

func TestNeedRepo_PendingAndLatch(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := NewNeedRepo(pool)
	a := seedNeed(t, pool, 1, "10.5")
	b := seedNeed(t, pool, 2, "4")

	pending, err := repo.ListPending(ctx, models.Scope{SchoolIDs: []int64{2, 7}, SchoolsRestricted: true})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)
	assert.True(t, decimal.RequireFromString("4").Equal(pending[0].Quantity))

	require.NoError(t, repo.MarkProcessed(ctx, a.ID))
	pending, err = repo.ListPending(ctx, models.Scope{Group: "CEREALS"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)

	err = repo.MarkProcessed(ctx, 999999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	week, err := repo.ConsumptionWeek(ctx, "2025-W10")
	require.NoError(t, err)
	assert.Equal(t, "2025-W11", week)
}

func TestProposalRepo_ActiveKeyIsUnique(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := NewProposalRepo(pool)
	need := seedNeed(t, pool, 1, "10")

	first, err := repo.CreateProposal(ctx, proposalParams(need, 10))
	require.NoError(t, err)
	assert.Equal(t, models.ProposalConfirmed, first.Status)
	assert.True(t, first.Active)

	_, err = repo.CreateProposal(ctx, proposalParams(need, 10))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	exists, err := repo.HasActive(ctx, first.Key())
	require.NoError(t, err)
	assert.True(t, exists)

	changed, err := repo.Deactivate(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = repo.CreateProposal(ctx, proposalParams(need, 10))
	require.NoError(t, err, "an inactive proposal frees the key")
}

func TestProposalRepo_ConditionalTransitions(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := NewProposalRepo(pool)
	p, err := repo.CreateProposal(ctx, proposalParams(seedNeed(t, pool, 1, "10"), 10))
	require.NoError(t, err)

	changed, err := repo.Promote(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.Promote(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, changed, "already logged")

	changed, err = repo.Deactivate(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.Deactivate(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, changed, "already inactive")

	_, err = repo.GetProposal(ctx, 999999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestProposalRepo_ListPushesFiltersDown(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := NewProposalRepo(pool)
	a := seedNeed(t, pool, 1, "10")
	b := seedNeed(t, pool, 2, "5")

	pa, err := repo.CreateProposal(ctx, proposalParams(a, 10))
	require.NoError(t, err)
	pb, err := repo.CreateProposal(ctx, proposalParams(b, 11))
	require.NoError(t, err)
	_, err = repo.Promote(ctx, pb.ID)
	require.NoError(t, err)

	tests := []struct {
		name string
		q    repository.ProposalQuery
		want []int64
	}{
		{"all active", repository.ProposalQuery{ActiveOnly: true}, []int64{pa.ID, pb.ID}},
		{"by status", repository.ProposalQuery{Status: models.ProposalLogged}, []int64{pb.ID}},
		{"by need", repository.ProposalQuery{NeedID: a.ID}, []int64{pa.ID}},
		{"by generic", repository.ProposalQuery{GenericProductID: 11}, []int64{pb.ID}},
		{"school list", repository.ProposalQuery{SchoolIDs: []int64{1, 3}}, []int64{pa.ID}},
		{"restricted scope", repository.ProposalQuery{Scope: models.Scope{SchoolIDs: []int64{2}, SchoolsRestricted: true}}, []int64{pb.ID}},
		{"empty restricted scope", repository.ProposalQuery{Scope: models.Scope{SchoolsRestricted: true}}, nil},
		{"other week", repository.ProposalQuery{Scope: models.Scope{SupplyWeek: "2025-W11"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListProposals(ctx, tt.q)
			require.NoError(t, err)
			ids := make([]int64, 0, len(got))
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestLogisticsRepo_Memberships(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	for _, stmt := range []string{
		`INSERT INTO route_types (id, name) VALUES (100, 'Bus'), (200, 'Truck')`,
		`INSERT INTO route_type_groups (route_type_id, group_id, group_name) VALUES (200, 4, 'Cereals')`,
		`INSERT INTO routes (id, name, route_type_id) VALUES (1, 'North', 100), (2, 'Harbour', 200)`,
		`INSERT INTO schools (id, name) VALUES (1, 'A'), (2, 'B'), (3, 'C')`,
		`INSERT INTO school_routes (school_id, route_id) VALUES (1, 1), (2, 1), (2, 2), (3, 2)`,
	} {
		_, err := pool.Exec(ctx, stmt)
		require.NoError(t, err, stmt)
	}
	repo := NewLogisticsRepo(pool)

	route, err := repo.GetRoute(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(200), route.RouteTypeID)

	_, err = repo.GetRoute(ctx, 9)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	ids, err := repo.SchoolIDsByRoute(ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, ids)

	ids, err = repo.SchoolIDsByRouteType(ctx, 200)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{2, 3}, ids)

	memberships, err := repo.SchoolRoutes(ctx, []int64{2})
	require.NoError(t, err)
	assert.Len(t, memberships, 2)

	groups, err := repo.PermittedGroups(ctx, 200)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Cereals", groups[0].Name)

	groups, err = repo.PermittedGroups(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

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

const needColumns = `id, school_id, school_name, origin_product_id, origin_product_name, origin_product_unit,
	generic_product_id, quantity, group_name, group_id, supply_week, consumption_week, status,
	substitution_processed, created_at, updated_at`

// NeedRepo reads the upstream needs table.
type NeedRepo struct {
	pool *pgxpool.Pool
}

// NewNeedRepo wires a NeedRepo.
func NewNeedRepo(pool *pgxpool.Pool) *NeedRepo {
	return &NeedRepo{pool: pool}
}

var _ repository.NeedRepository = (*NeedRepo)(nil)

// ListPending returns confirmed, unprocessed needs inside scope.
func (r *NeedRepo) ListPending(ctx context.Context, scope models.Scope) ([]models.Need, error) {
	w := &where{}
	w.add("status = $%d", string(models.NeedStatusConfirmed))
	w.raw("NOT substitution_processed")
	if !w.scope(scope) {
		return []models.Need{}, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM needs WHERE %s ORDER BY id`, needColumns, w)
	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list pending needs: %w", err)
	}
	defer rows.Close()

	items := make([]models.Need, 0)
	for rows.Next() {
		n, err := scanNeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan need: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate needs: %w", err)
	}
	return items, nil
}

// GetNeed loads one need.
func (r *NeedRepo) GetNeed(ctx context.Context, id int64) (models.Need, error) {
	query := fmt.Sprintf(`SELECT %s FROM needs WHERE id = $1`, needColumns)
	n, err := scanNeed(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Need{}, apperr.NotFound("need %d not found", id)
		}
		return models.Need{}, fmt.Errorf("get need: %w", err)
	}
	return n, nil
}

// MarkProcessed latches substitution_processed.
func (r *NeedRepo) MarkProcessed(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE needs SET substitution_processed = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark need processed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("need %d not found", id)
	}
	return nil
}

// ConsumptionWeek returns the consumption week paired with a supply week.
func (r *NeedRepo) ConsumptionWeek(ctx context.Context, supplyWeek string) (string, error) {
	var week string
	err := r.pool.QueryRow(ctx, `
		SELECT consumption_week FROM needs
		WHERE supply_week = $1 AND consumption_week <> ''
		ORDER BY consumption_week
		LIMIT 1`, supplyWeek).Scan(&week)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.NotFound("no consumption week for supply week %s", supplyWeek)
		}
		return "", fmt.Errorf("lookup consumption week: %w", err)
	}
	return week, nil
}

func scanNeed(row pgx.Row) (models.Need, error) {
	var n models.Need
	var genericID *int64
	var status string
	if err := row.Scan(
		&n.ID, &n.SchoolID, &n.SchoolName,
		&n.OriginProduct.ID, &n.OriginProduct.Name, &n.OriginProduct.Unit,
		&genericID, &n.Quantity, &n.Group, &n.GroupID, &n.SupplyWeek, &n.ConsumptionWeek,
		&status, &n.SubstitutionProcessed, &n.CreatedAt, &n.UpdatedAt,
	); err != nil {
		return models.Need{}, err
	}
	if genericID != nil {
		n.GenericProductID = *genericID
	}
	n.Status = models.NeedStatus(status)
	return n, nil
}

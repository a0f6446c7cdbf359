package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mamadbah2/provisioning/internal/domain/models"
	"github.com/mamadbah2/provisioning/internal/repository"
	"github.com/mamadbah2/provisioning/pkg/apperr"
)

const (
	proposalColumns = `id, need_id, origin_product_id, origin_product_name, origin_product_unit,
	traded_product_id, traded_product_name, traded_product_unit,
	generic_product_id, generic_product_code, generic_product_name, generic_product_unit, generic_group_id,
	school_id, school_name, quantity, quantity_generic, status, active,
	supply_week, consumption_week, group_name, group_id, created_at, updated_at`

	uniqueViolation = "23505"
)

// ProposalRepo persists substitution proposals.
type ProposalRepo struct {
	pool *pgxpool.Pool
}

// NewProposalRepo wires a ProposalRepo.
func NewProposalRepo(pool *pgxpool.Pool) *ProposalRepo {
	return &ProposalRepo{pool: pool}
}

var _ repository.ProposalRepository = (*ProposalRepo)(nil)

// ListProposals returns the proposals matching q, oldest first.
func (r *ProposalRepo) ListProposals(ctx context.Context, q repository.ProposalQuery) ([]models.SubstitutionProposal, error) {
	w := &where{}
	if q.Status != "" {
		w.add("status = $%d", string(q.Status))
	}
	if q.ActiveOnly {
		w.raw("active")
	}
	if q.NeedID != 0 {
		w.add("need_id = $%d", q.NeedID)
	}
	if q.OriginProductID != 0 {
		w.add("origin_product_id = $%d", q.OriginProductID)
	}
	if q.GenericProductID != 0 {
		w.add("generic_product_id = $%d", q.GenericProductID)
	}
	if len(q.SchoolIDs) > 0 {
		w.add("school_id = ANY($%d)", q.SchoolIDs)
	}
	if !w.scope(q.Scope) {
		return []models.SubstitutionProposal{}, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM substitution_proposals WHERE %s ORDER BY id`, proposalColumns, w)
	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	items := make([]models.SubstitutionProposal, 0)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}
	return items, nil
}

// GetProposal loads one proposal regardless of its state.
func (r *ProposalRepo) GetProposal(ctx context.Context, id int64) (models.SubstitutionProposal, error) {
	query := fmt.Sprintf(`SELECT %s FROM substitution_proposals WHERE id = $1`, proposalColumns)
	p, err := scanProposal(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.SubstitutionProposal{}, apperr.NotFound("proposal %d not found", id)
		}
		return models.SubstitutionProposal{}, fmt.Errorf("get proposal: %w", err)
	}
	return p, nil
}

// HasActive checks the active-uniqueness key.
func (r *ProposalRepo) HasActive(ctx context.Context, key models.ProposalKey) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM substitution_proposals
			WHERE active AND origin_product_id = $1 AND generic_product_id = $2
			  AND school_id = $3 AND supply_week = $4
		)`, key.OriginProductID, key.GenericProductID, key.SchoolID, key.SupplyWeek).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active proposal: %w", err)
	}
	return exists, nil
}

// CreateProposal inserts an active conf proposal.
func (r *ProposalRepo) CreateProposal(ctx context.Context, params repository.CreateProposalParams) (models.SubstitutionProposal, error) {
	var tradedID *int64
	var tradedName, tradedUnit *string
	if params.TradedProduct != nil {
		tradedID = &params.TradedProduct.ID
		tradedName = &params.TradedProduct.Name
		tradedUnit = &params.TradedProduct.Unit
	}

	query := fmt.Sprintf(`
		INSERT INTO substitution_proposals (
			need_id, origin_product_id, origin_product_name, origin_product_unit,
			traded_product_id, traded_product_name, traded_product_unit,
			generic_product_id, generic_product_code, generic_product_name, generic_product_unit, generic_group_id,
			school_id, school_name, quantity, quantity_generic, status, active,
			supply_week, consumption_week, group_name, group_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, TRUE, $18, $19, $20, $21)
		RETURNING %s`, proposalColumns)

	p, err := scanProposal(r.pool.QueryRow(ctx, query,
		params.NeedID, params.OriginProduct.ID, params.OriginProduct.Name, params.OriginProduct.Unit,
		tradedID, tradedName, tradedUnit,
		params.GenericProduct.ID, params.GenericProduct.Code, params.GenericProduct.Name,
		params.GenericProduct.Unit, params.GenericProduct.GroupID,
		params.SchoolID, params.SchoolName, params.Quantity, params.QuantityGeneric,
		string(models.ProposalConfirmed),
		params.SupplyWeek, params.ConsumptionWeek, params.Group, params.GroupID,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.SubstitutionProposal{}, apperr.Conflict("an active proposal already exists for this product, school and week")
		}
		return models.SubstitutionProposal{}, fmt.Errorf("create proposal: %w", err)
	}
	return p, nil
}

// Promote moves an active conf proposal to conf log.
func (r *ProposalRepo) Promote(ctx context.Context, id int64) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE substitution_proposals
		SET status = $2, updated_at = now()
		WHERE id = $1 AND active AND status = $3`,
		id, string(models.ProposalLogged), string(models.ProposalConfirmed))
	if err != nil {
		return false, fmt.Errorf("promote proposal: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Deactivate clears the active flag of an active proposal.
func (r *ProposalRepo) Deactivate(ctx context.Context, id int64) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE substitution_proposals
		SET active = FALSE, updated_at = now()
		WHERE id = $1 AND active`, id)
	if err != nil {
		return false, fmt.Errorf("deactivate proposal: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func scanProposal(row pgx.Row) (models.SubstitutionProposal, error) {
	var p models.SubstitutionProposal
	var tradedID *int64
	var tradedName, tradedUnit *string
	var status string
	if err := row.Scan(
		&p.ID, &p.NeedID, &p.OriginProduct.ID, &p.OriginProduct.Name, &p.OriginProduct.Unit,
		&tradedID, &tradedName, &tradedUnit,
		&p.GenericProduct.ID, &p.GenericProduct.Code, &p.GenericProduct.Name, &p.GenericProduct.Unit,
		&p.GenericProduct.GroupID,
		&p.SchoolID, &p.SchoolName, &p.Quantity, &p.QuantityGeneric, &status, &p.Active,
		&p.SupplyWeek, &p.ConsumptionWeek, &p.Group, &p.GroupID, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return models.SubstitutionProposal{}, err
	}
	p.Status = models.ProposalStatus(status)
	if tradedID != nil {
		p.TradedProduct = &models.ProductRef{ID: *tradedID}
		if tradedName != nil {
			p.TradedProduct.Name = *tradedName
		}
		if tradedUnit != nil {
			p.TradedProduct.Unit = *tradedUnit
		}
	}
	return p, nil
}

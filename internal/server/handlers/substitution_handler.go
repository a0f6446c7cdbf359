package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mamadbah2/provisioning/internal/domain/models"
	"github.com/mamadbah2/provisioning/internal/service/aggregation"
	"github.com/mamadbah2/provisioning/internal/service/catalog"
	"github.com/mamadbah2/provisioning/internal/service/reporting"
	"github.com/mamadbah2/provisioning/internal/service/substitution"
)

// SubstitutionHandler serves the review screens and proposal transitions.
type SubstitutionHandler struct {
	aggregator    *aggregation.Service
	substitutions *substitution.Service
	catalog       *catalog.Service
	reports       *reporting.Service
	val           *validator.Validate
	logger        *zap.Logger
}

// NewSubstitutionHandler constructs the HTTP handler adapter.
func NewSubstitutionHandler(
	aggregator *aggregation.Service,
	substitutions *substitution.Service,
	products *catalog.Service,
	reports *reporting.Service,
	val *validator.Validate,
	logger *zap.Logger,
) *SubstitutionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if val == nil {
		val = NewValidator()
	}
	return &SubstitutionHandler{
		aggregator:    aggregator,
		substitutions: substitutions,
		catalog:       products,
		reports:       reports,
		val:           val,
		logger:        logger,
	}
}

// ForReview lists the nutritionist stage rows.
// GET /substitutions/for-review
func (h *SubstitutionHandler) ForReview(c *gin.Context) {
	h.aggregate(c, models.StageNutritionist)
}

// ForCoordination lists the coordination stage rows.
// GET /substitutions/for-coordination
func (h *SubstitutionHandler) ForCoordination(c *gin.Context) {
	h.aggregate(c, models.StageCoordination)
}

func (h *SubstitutionHandler) aggregate(c *gin.Context, stage models.Stage) {
	var q aggregateQuery
	if !h.bindQuery(c, &q) {
		return
	}

	rows, err := h.aggregator.Aggregate(c.Request.Context(), stage, q.filters())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Summary returns per-stage totals for the filters.
// GET /substitutions/summary
func (h *SubstitutionHandler) Summary(c *gin.Context) {
	var q aggregateQuery
	if !h.bindQuery(c, &q) {
		return
	}

	summary, err := h.reports.Summarize(c.Request.Context(), q.filters())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ConsumptionWeek returns the consumption week paired with a supply week.
// GET /substitutions/consumption-week
func (h *SubstitutionHandler) ConsumptionWeek(c *gin.Context) {
	var q consumptionWeekQuery
	if !h.bindQuery(c, &q) {
		return
	}

	week, err := h.aggregator.ConsumptionWeek(c.Request.Context(), q.SupplyWeek)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, consumptionWeekResponse{SupplyWeek: q.SupplyWeek, ConsumptionWeek: week})
}

// GenericProducts searches substitute candidates.
// GET /substitutions/generic-products
func (h *SubstitutionHandler) GenericProducts(c *gin.Context) {
	var q genericProductsQuery
	if !h.bindQuery(c, &q) {
		return
	}
	c.JSON(http.StatusOK, h.catalog.SearchCandidates(c.Request.Context(), q.OriginProductID, q.Group, q.Search))
}

// RouteTypes lists route types that yield rows for the stage.
// GET /substitutions/route-types
func (h *SubstitutionHandler) RouteTypes(c *gin.Context) {
	q, stage, ok := h.bindOptions(c)
	if !ok {
		return
	}

	types, err := h.aggregator.RouteTypeOptions(c.Request.Context(), stage, q.RouteID, q.SupplyWeek)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, types)
}

// Routes lists routes that yield rows for the stage.
// GET /substitutions/routes
func (h *SubstitutionHandler) Routes(c *gin.Context) {
	q, stage, ok := h.bindOptions(c)
	if !ok {
		return
	}

	routes, err := h.aggregator.RouteOptions(c.Request.Context(), stage, q.RouteTypeID, q.SupplyWeek)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, routes)
}

// Groups lists groups that yield rows for the stage.
// GET /substitutions/groups
func (h *SubstitutionHandler) Groups(c *gin.Context) {
	q, stage, ok := h.bindOptions(c)
	if !ok {
		return
	}

	groups, err := h.aggregator.GroupOptions(c.Request.Context(), stage, q.RouteTypeID, q.SupplyWeek)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

// Create records a substitution proposal for a need.
// POST /substitutions
func (h *SubstitutionHandler) Create(c *gin.Context) {
	var req createProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := h.val.Struct(req); err != nil {
		respondInvalid(c, err)
		return
	}

	in := substitution.CreateInput{
		NeedID:           req.NeedID,
		GenericProductID: req.GenericProductID,
		QuantityGeneric:  req.QuantityGeneric,
	}
	if req.TradedProduct != nil {
		in.TradedProduct = &models.ProductRef{
			ID:   req.TradedProduct.ID,
			Name: req.TradedProduct.Name,
			Unit: req.TradedProduct.Unit,
		}
	}

	proposal, err := h.substitutions.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, proposal)
}

// Get returns a proposal.
// GET /substitutions/:id
func (h *SubstitutionHandler) Get(c *gin.Context) {
	h.transition(c, h.substitutions.Get)
}

// Promote moves a proposal to the coordination stage.
// POST /substitutions/:id/promote
func (h *SubstitutionHandler) Promote(c *gin.Context) {
	h.transition(c, h.substitutions.Promote)
}

// Deactivate withdraws a proposal.
// POST /substitutions/:id/deactivate
func (h *SubstitutionHandler) Deactivate(c *gin.Context) {
	h.transition(c, h.substitutions.Deactivate)
}

type proposalAction func(ctx context.Context, id int64) (models.SubstitutionProposal, error)

func (h *SubstitutionHandler) transition(c *gin.Context, action proposalAction) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: msgInvalidID})
		return
	}

	proposal, err := action(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, proposal)
}

func (h *SubstitutionHandler) bindQuery(c *gin.Context, dst any) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		respondInvalid(c, err)
		return false
	}
	if err := h.val.Struct(dst); err != nil {
		respondInvalid(c, err)
		return false
	}
	return true
}

func (h *SubstitutionHandler) bindOptions(c *gin.Context) (optionsQuery, models.Stage, bool) {
	var q optionsQuery
	if !h.bindQuery(c, &q) {
		return q, "", false
	}
	stage, err := q.stage()
	if err != nil {
		respondInvalid(c, err)
		return q, "", false
	}
	return q, stage, true
}

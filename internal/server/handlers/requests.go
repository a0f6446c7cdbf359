package handlers

import (
	"github.com/shopspring/decimal"

	"github.com/mamadbah2/provisioning/internal/domain/models"
)

type aggregateQuery struct {
	Group           string `form:"group" validate:"omitempty,max=120"`
	SupplyWeek      string `form:"supplyWeek" validate:"omitempty,week"`
	ConsumptionWeek string `form:"consumptionWeek" validate:"omitempty,week"`
	RouteTypeID     int64  `form:"routeTypeId" validate:"omitempty,gt=0"`
	RouteID         int64  `form:"routeId" validate:"omitempty,gt=0"`
}

func (q aggregateQuery) filters() models.Filters {
	return models.Filters{
		Group:           q.Group,
		SupplyWeek:      q.SupplyWeek,
		ConsumptionWeek: q.ConsumptionWeek,
		RouteTypeID:     q.RouteTypeID,
		RouteID:         q.RouteID,
	}
}

type optionsQuery struct {
	Stage       string `form:"stage" validate:"omitempty,oneof=nutritionist review coordination"`
	SupplyWeek  string `form:"supplyWeek" validate:"omitempty,week"`
	RouteTypeID int64  `form:"routeTypeId" validate:"omitempty,gt=0"`
	RouteID     int64  `form:"routeId" validate:"omitempty,gt=0"`
}

func (q optionsQuery) stage() (models.Stage, error) {
	if q.Stage == "" {
		return models.StageNutritionist, nil
	}
	return models.ParseStage(q.Stage)
}

type consumptionWeekQuery struct {
	SupplyWeek string `form:"supplyWeek" validate:"required,week"`
}

type genericProductsQuery struct {
	OriginProductID int64  `form:"originProductId" validate:"omitempty,gt=0"`
	Group           string `form:"group" validate:"omitempty,max=120"`
	Search          string `form:"search" validate:"omitempty,max=120"`
}

type productRequest struct {
	ID   int64  `json:"id" validate:"required,gt=0"`
	Name string `json:"name" validate:"omitempty,max=200"`
	Unit string `json:"unit" validate:"omitempty,max=20"`
}

type createProposalRequest struct {
	NeedID           int64            `json:"needId" validate:"required,gt=0"`
	GenericProductID int64            `json:"genericProductId" validate:"required,gt=0"`
	QuantityGeneric  *decimal.Decimal `json:"quantityGeneric"`
	TradedProduct    *productRequest  `json:"tradedProduct" validate:"omitempty"`
}

type consumptionWeekResponse struct {
	SupplyWeek      string `json:"supply_week"`
	ConsumptionWeek string `json:"consumption_week"`
}

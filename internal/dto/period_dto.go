package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/naa-portal-api/internal/models"
)

// PeriodCreateRequest defines a new accrual period. A zero target uses the configured default.
type PeriodCreateRequest struct {
	Name         string           `json:"name" validate:"required,min=2,max=100"`
	StartsOn     time.Time        `json:"starts_on" validate:"required"`
	EndsOn       time.Time        `json:"ends_on" validate:"required,gtfield=StartsOn"`
	TargetPoints *decimal.Decimal `json:"target_points"`
}

// PeriodResponse serialises an accrual period.
type PeriodResponse struct {
	ID           uint            `json:"id"`
	Name         string          `json:"name"`
	StartsOn     time.Time       `json:"starts_on"`
	EndsOn       time.Time       `json:"ends_on"`
	TargetPoints decimal.Decimal `json:"target_points"`
}

// NewPeriodResponse converts a period model into its DTO.
func NewPeriodResponse(period models.AccrualPeriod) PeriodResponse {
	return PeriodResponse{
		ID:           period.ID,
		Name:         period.Name,
		StartsOn:     period.StartsOn,
		EndsOn:       period.EndsOn,
		TargetPoints: period.TargetPoints,
	}
}

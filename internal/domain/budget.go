package domain

import (
	"context"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// BudgetPeriod is the recurrence window a budget covers
type BudgetPeriod string

const (
	BudgetPeriodDaily   BudgetPeriod = "DAILY"
	BudgetPeriodWeekly  BudgetPeriod = "WEEKLY"
	BudgetPeriodMonthly BudgetPeriod = "MONTHLY"
	BudgetPeriodYearly  BudgetPeriod = "YEARLY"
)

// Valid reports whether p is a known period
func (p BudgetPeriod) Valid() bool {
	switch p {
	case BudgetPeriodDaily, BudgetPeriodWeekly, BudgetPeriodMonthly, BudgetPeriodYearly:
		return true
	}
	return false
}

// BudgetStatus is the lifecycle state of a budget.
// States are ordered; the evaluation engine only ever moves a budget forward.
type BudgetStatus string

const (
	BudgetStatusCreated  BudgetStatus = "CREATED"
	BudgetStatusActive   BudgetStatus = "ACTIVE"
	BudgetStatusWarning  BudgetStatus = "WARNING"
	BudgetStatusExceeded BudgetStatus = "EXCEEDED"
)

// Valid reports whether s is a known status
func (s BudgetStatus) Valid() bool {
	return s.Rank() > 0
}

// Rank returns the position of s along CREATED -> ACTIVE -> WARNING -> EXCEEDED,
// starting at 1. Unknown statuses rank 0.
func (s BudgetStatus) Rank() int {
	switch s {
	case BudgetStatusCreated:
		return 1
	case BudgetStatusActive:
		return 2
	case BudgetStatusWarning:
		return 3
	case BudgetStatusExceeded:
		return 4
	}
	return 0
}

// IsLive reports whether the budget currently tracks spend for its category
func (s BudgetStatus) IsLive() bool {
	return s == BudgetStatusActive || s == BudgetStatusWarning || s == BudgetStatusExceeded
}

// Advance returns the status a budget should hold after an evaluation pass.
// Exceeding wins over alerting; with neither signal the status is left as is.
// The result never ranks below s.
func (s BudgetStatus) Advance(isExceeded, shouldAlert bool) BudgetStatus {
	target := s
	switch {
	case isExceeded:
		target = BudgetStatusExceeded
	case shouldAlert:
		target = BudgetStatusWarning
	}
	if target.Rank() < s.Rank() {
		return s
	}
	return target
}

// Budget defaults
const (
	DefaultBudgetCurrency = "USD"
)

// DefaultAlertThreshold is the usage fraction at which a warning fires when none is given
var DefaultAlertThreshold = decimal.NewFromFloat(0.8)

var currencyCodeRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// IsValidCurrency reports whether code looks like an ISO-4217 currency code
func IsValidCurrency(code string) bool {
	return currencyCodeRegex.MatchString(code)
}

// Money columns hold two decimal places, alert thresholds four
const (
	AmountScale    = 2
	ThresholdScale = 4
)

// FitsScale reports whether d has no significant digits beyond places decimals
func FitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// NormalizeAlertThreshold converts a threshold given in percent (> 1) to a fraction
// and validates the result lies in [0, 1] with at most ThresholdScale decimals.
func NormalizeAlertThreshold(threshold decimal.Decimal) (decimal.Decimal, error) {
	if threshold.GreaterThan(decimal.NewFromInt(1)) {
		threshold = threshold.Shift(-2)
	}
	if threshold.IsNegative() || threshold.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, ErrInvalidThreshold
	}
	if !FitsScale(threshold, ThresholdScale) {
		return decimal.Zero, ErrInvalidThreshold
	}
	return threshold, nil
}

// Budget is a spending cap for one (user, category) pair over a period
type Budget struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	CategoryID     string          `json:"categoryId"`
	LimitAmount    decimal.Decimal `json:"limitAmount"`
	LimitCurrency  string          `json:"limitCurrency"`
	SpentAmount    decimal.Decimal `json:"spentAmount"`
	Period         BudgetPeriod    `json:"period"`
	Status         BudgetStatus    `json:"status"`
	StartDate      time.Time       `json:"startDate"`
	EndDate        time.Time       `json:"endDate"`
	AlertThreshold decimal.Decimal `json:"alertThreshold"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

var hundred = decimal.NewFromInt(100)

// UsagePercentage returns spent/limit*100, or zero when the limit is zero
func (b *Budget) UsagePercentage() decimal.Decimal {
	if b.LimitAmount.IsZero() {
		return decimal.Zero
	}
	return b.SpentAmount.Div(b.LimitAmount).Mul(hundred)
}

// RemainingAmount returns limit minus spent. Negative once the budget is exceeded.
func (b *Budget) RemainingAmount() decimal.Decimal {
	return b.LimitAmount.Sub(b.SpentAmount)
}

// IsExceeded reports whether spend is strictly above the limit
func (b *Budget) IsExceeded() bool {
	return b.SpentAmount.GreaterThan(b.LimitAmount)
}

// ShouldAlert reports whether usage has reached the alert threshold
func (b *Budget) ShouldAlert() bool {
	return b.UsagePercentage().GreaterThanOrEqual(b.AlertThreshold.Mul(hundred))
}

// BudgetPatch is a partial update. Nil fields are left untouched.
type BudgetPatch struct {
	LimitAmount    *decimal.Decimal
	LimitCurrency  *string
	SpentAmount    *decimal.Decimal
	Period         *BudgetPeriod
	Status         *BudgetStatus
	StartDate      *time.Time
	EndDate        *time.Time
	AlertThreshold *decimal.Decimal
}

// IsEmpty reports whether the patch changes nothing
func (p BudgetPatch) IsEmpty() bool {
	return p.LimitAmount == nil && p.LimitCurrency == nil && p.SpentAmount == nil &&
		p.Period == nil && p.Status == nil && p.StartDate == nil && p.EndDate == nil &&
		p.AlertThreshold == nil
}

// Apply copies the set fields of p onto b
func (p BudgetPatch) Apply(b *Budget) {
	if p.LimitAmount != nil {
		b.LimitAmount = *p.LimitAmount
	}
	if p.LimitCurrency != nil {
		b.LimitCurrency = *p.LimitCurrency
	}
	if p.SpentAmount != nil {
		b.SpentAmount = *p.SpentAmount
	}
	if p.Period != nil {
		b.Period = *p.Period
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.StartDate != nil {
		b.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		b.EndDate = *p.EndDate
	}
	if p.AlertThreshold != nil {
		b.AlertThreshold = *p.AlertThreshold
	}
}

// BudgetFilter narrows a budget listing. Empty fields match everything.
type BudgetFilter struct {
	UserID     string
	CategoryID string
	Status     BudgetStatus
}

// Matches reports whether b satisfies the filter
func (f BudgetFilter) Matches(b *Budget) bool {
	if f.UserID != "" && b.UserID != f.UserID {
		return false
	}
	if f.CategoryID != "" && b.CategoryID != f.CategoryID {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	return true
}

// BudgetCheckResult is the outcome of evaluating a budget against new spend
type BudgetCheckResult struct {
	Budget          *Budget         `json:"budget"`
	PreviousStatus  BudgetStatus    `json:"previousStatus,omitempty"`
	UsagePercentage decimal.Decimal `json:"usagePercentage"`
	IsExceeded      bool            `json:"isExceeded"`
	ShouldAlert     bool            `json:"shouldAlert"`
	Message         string          `json:"message"`
}

// StatusChanged reports whether the evaluation moved the budget to a new status
func (r *BudgetCheckResult) StatusChanged() bool {
	return r.Budget != nil && r.PreviousStatus != "" && r.Budget.Status != r.PreviousStatus
}

// BudgetStats is a derived, read-only view of a budget's consumption
type BudgetStats struct {
	LimitAmount     decimal.Decimal `json:"limitAmount"`
	SpentAmount     decimal.Decimal `json:"spentAmount"`
	RemainingAmount decimal.Decimal `json:"remainingAmount"`
	UsagePercentage decimal.Decimal `json:"usagePercentage"`
	Status          BudgetStatus    `json:"status"`
}

// BudgetRepository is the budget store consumed by the evaluation engine
type BudgetRepository interface {
	// FindActiveByCategory returns the ACTIVE budget for the pair, or nil when none exists
	FindActiveByCategory(ctx context.Context, userID, categoryID string) (*Budget, error)
	// FindLiveByCategory returns the ACTIVE, WARNING or EXCEEDED budget for the pair, or nil
	FindLiveByCategory(ctx context.Context, userID, categoryID string) (*Budget, error)
	GetByID(ctx context.Context, id string) (*Budget, error)
	List(ctx context.Context, filter BudgetFilter) ([]*Budget, error)
	Create(ctx context.Context, budget *Budget) (*Budget, error)
	Update(ctx context.Context, id string, patch BudgetPatch) (*Budget, error)
	UpdateSpent(ctx context.Context, id string, spentAmount decimal.Decimal) (*Budget, error)
	// IncrementSpent atomically adds delta to the stored spent amount
	IncrementSpent(ctx context.Context, id string, delta decimal.Decimal) (*Budget, error)
	// AdvanceStatus persists status only when it ranks above the stored one
	AdvanceStatus(ctx context.Context, id string, status BudgetStatus) (*Budget, error)
	Delete(ctx context.Context, id string) (bool, error)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/util"
	"github.com/dafibh/fortuna/fortuna-budget/internal/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Check result messages
const (
	MessageNoActiveBudget = "No active budget for this category"
	MessageBudgetOK       = "Budget is OK"
)

// BudgetService evaluates spend against budgets and owns their lifecycle
type BudgetService struct {
	budgetRepo     domain.BudgetRepository
	eventPublisher websocket.EventPublisher
}

// NewBudgetService creates a new BudgetService
func NewBudgetService(budgetRepo domain.BudgetRepository) *BudgetService {
	return &BudgetService{
		budgetRepo:     budgetRepo,
		eventPublisher: websocket.NoOpPublisher{},
	}
}

// SetEventPublisher sets the event publisher for real-time updates. nil disables events.
func (s *BudgetService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = websocket.OrNoOp(publisher)
}

func (s *BudgetService) publishEvent(userID string, event websocket.Event) {
	s.eventPublisher.Publish(userID, event)
}

// CheckBudget adds amount to the ACTIVE budget for (userID, categoryID) and
// advances its status from the updated spend. With no active budget nothing is written.
func (s *BudgetService) CheckBudget(ctx context.Context, userID, categoryID string, amount decimal.Decimal) (*domain.BudgetCheckResult, error) {
	if !domain.FitsScale(amount, domain.AmountScale) {
		return nil, domain.ErrInvalidAmount
	}
	budget, err := s.budgetRepo.FindActiveByCategory(ctx, userID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active budget: %w", err)
	}
	if budget == nil {
		return &domain.BudgetCheckResult{
			UsagePercentage: decimal.Zero,
			Message:         MessageNoActiveBudget,
		}, nil
	}

	previous := budget.Status
	updated, err := s.budgetRepo.IncrementSpent(ctx, budget.ID, amount)
	if err != nil {
		if errors.Is(err, domain.ErrBudgetNotFound) {
			return nil, fmt.Errorf("%w: budget %s disappeared before spend was recorded", domain.ErrBudgetUpdateFailed, budget.ID)
		}
		return nil, fmt.Errorf("failed to record spend: %w", err)
	}

	result, err := s.evaluate(ctx, updated)
	if err != nil {
		return nil, err
	}
	result.PreviousStatus = previous

	log.Debug().
		Str("budget_id", updated.ID).
		Str("user_id", userID).
		Str("spent", result.Budget.SpentAmount.String()).
		Str("status", string(result.Budget.Status)).
		Msg("Budget checked")

	return result, nil
}

// evaluate derives the signals from the stored spend and persists a forward status move
func (s *BudgetService) evaluate(ctx context.Context, budget *domain.Budget) (*domain.BudgetCheckResult, error) {
	usage := budget.UsagePercentage()
	isExceeded := budget.IsExceeded()
	shouldAlert := budget.ShouldAlert()

	target := budget.Status.Advance(isExceeded, shouldAlert)
	if target != budget.Status {
		advanced, err := s.budgetRepo.AdvanceStatus(ctx, budget.ID, target)
		if err != nil {
			return nil, fmt.Errorf("failed to update budget status: %w", err)
		}
		budget = advanced
	}

	return &domain.BudgetCheckResult{
		Budget:          budget,
		UsagePercentage: usage,
		IsExceeded:      isExceeded,
		ShouldAlert:     shouldAlert,
		Message:         checkMessage(budget, usage, isExceeded, shouldAlert),
	}, nil
}

func checkMessage(b *domain.Budget, usage decimal.Decimal, isExceeded, shouldAlert bool) string {
	switch {
	case isExceeded:
		return fmt.Sprintf("Budget exceeded! Spent %s of %s %s", b.SpentAmount.String(), b.LimitAmount.String(), b.LimitCurrency)
	case shouldAlert:
		return fmt.Sprintf("Budget warning! You've spent %s%% of your budget", usage.StringFixed(1))
	}
	return MessageBudgetOK
}

// GetStats returns the consumption view of a budget
func (s *BudgetService) GetStats(ctx context.Context, budgetID string) (*domain.BudgetStats, error) {
	budget, err := s.budgetRepo.GetByID(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	return &domain.BudgetStats{
		LimitAmount:     budget.LimitAmount,
		SpentAmount:     budget.SpentAmount,
		RemainingAmount: budget.RemainingAmount(),
		UsagePercentage: budget.UsagePercentage(),
		Status:          budget.Status,
	}, nil
}

// CreateBudgetInput holds the input for creating a budget.
// A zero StartDate means today; a zero EndDate means the last day of the first period.
type CreateBudgetInput struct {
	UserID         string
	CategoryID     string
	LimitAmount    decimal.Decimal
	LimitCurrency  string
	Period         domain.BudgetPeriod
	StartDate      time.Time
	EndDate        time.Time
	AlertThreshold *decimal.Decimal
}

// CreateBudget validates input and stores a new budget in CREATED state with nothing spent
func (s *BudgetService) CreateBudget(ctx context.Context, input CreateBudgetInput) (*domain.Budget, error) {
	if input.UserID == "" || input.CategoryID == "" {
		return nil, domain.ErrInvalidInput
	}
	if !input.LimitAmount.IsPositive() || !domain.FitsScale(input.LimitAmount, domain.AmountScale) {
		return nil, domain.ErrInvalidAmount
	}
	if !input.Period.Valid() {
		return nil, domain.ErrInvalidPeriod
	}
	if input.StartDate.IsZero() {
		input.StartDate = util.StartOfDay(time.Now())
	}
	if input.EndDate.IsZero() {
		input.EndDate = util.PeriodEnd(input.StartDate, input.Period)
	}
	if input.EndDate.Before(input.StartDate) {
		return nil, domain.ErrInvalidDateRange
	}

	currency, err := normalizeCurrency(input.LimitCurrency)
	if err != nil {
		return nil, err
	}

	threshold := domain.DefaultAlertThreshold
	if input.AlertThreshold != nil {
		normalized, err := domain.NormalizeAlertThreshold(*input.AlertThreshold)
		if err != nil {
			return nil, err
		}
		threshold = normalized
	}

	budget := &domain.Budget{
		UserID:         input.UserID,
		CategoryID:     input.CategoryID,
		LimitAmount:    input.LimitAmount,
		LimitCurrency:  currency,
		SpentAmount:    decimal.Zero,
		Period:         input.Period,
		Status:         domain.BudgetStatusCreated,
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		AlertThreshold: threshold,
	}

	created, err := s.budgetRepo.Create(ctx, budget)
	if err != nil {
		return nil, err
	}

	s.publishEvent(created.UserID, websocket.Budgets.Created(created))
	return created, nil
}

// UpdateBudget applies a validated partial update
func (s *BudgetService) UpdateBudget(ctx context.Context, id string, patch domain.BudgetPatch) (*domain.Budget, error) {
	current, err := s.budgetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.validatePatch(current, &patch); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return current, nil
	}

	updated, err := s.budgetRepo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	s.publishEvent(updated.UserID, websocket.Budgets.Updated(updated))
	return updated, nil
}

// validatePatch checks the patched fields and normalizes threshold and currency in place
func (s *BudgetService) validatePatch(current *domain.Budget, patch *domain.BudgetPatch) error {
	if patch.LimitAmount != nil && (!patch.LimitAmount.IsPositive() || !domain.FitsScale(*patch.LimitAmount, domain.AmountScale)) {
		return domain.ErrInvalidAmount
	}
	if patch.SpentAmount != nil && (patch.SpentAmount.IsNegative() || !domain.FitsScale(*patch.SpentAmount, domain.AmountScale)) {
		return domain.ErrInvalidAmount
	}
	if patch.Period != nil && !patch.Period.Valid() {
		return domain.ErrInvalidPeriod
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return domain.ErrInvalidStatus
	}
	if patch.LimitCurrency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*patch.LimitCurrency))
		if !domain.IsValidCurrency(currency) {
			return domain.ErrInvalidCurrency
		}
		patch.LimitCurrency = &currency
	}
	if patch.AlertThreshold != nil {
		normalized, err := domain.NormalizeAlertThreshold(*patch.AlertThreshold)
		if err != nil {
			return err
		}
		patch.AlertThreshold = &normalized
	}

	start, end := current.StartDate, current.EndDate
	if patch.StartDate != nil {
		start = *patch.StartDate
	}
	if patch.EndDate != nil {
		end = *patch.EndDate
	}
	if end.Before(start) {
		return domain.ErrInvalidDateRange
	}
	return nil
}

// DeleteBudget removes a budget
func (s *BudgetService) DeleteBudget(ctx context.Context, id string) error {
	budget, err := s.budgetRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := s.budgetRepo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrBudgetNotFound
	}

	s.publishEvent(budget.UserID, websocket.Budgets.Deleted(id))
	return nil
}

// GetBudget retrieves a budget by ID
func (s *BudgetService) GetBudget(ctx context.Context, id string) (*domain.Budget, error) {
	return s.budgetRepo.GetByID(ctx, id)
}

// GetBudgetForUser retrieves a budget owned by userID. Budgets of other users read as not found.
func (s *BudgetService) GetBudgetForUser(ctx context.Context, userID, id string) (*domain.Budget, error) {
	budget, err := s.budgetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if budget.UserID != userID {
		return nil, domain.ErrBudgetNotFound
	}
	return budget, nil
}

// ListBudgets returns budgets matching filter
func (s *BudgetService) ListBudgets(ctx context.Context, filter domain.BudgetFilter) ([]*domain.Budget, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	return s.budgetRepo.List(ctx, filter)
}

// ActivateBudget moves a CREATED budget to ACTIVE so CheckBudget starts tracking it.
// Only one budget per (user, category) may be live at a time.
func (s *BudgetService) ActivateBudget(ctx context.Context, id string) (*domain.Budget, error) {
	budget, err := s.budgetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if budget.Status != domain.BudgetStatusCreated {
		return nil, domain.ErrInvalidStatusTransition
	}

	live, err := s.budgetRepo.FindLiveByCategory(ctx, budget.UserID, budget.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to check live budgets: %w", err)
	}
	if live != nil && live.ID != budget.ID {
		return nil, domain.ErrBudgetAlreadyActive
	}

	activated, err := s.budgetRepo.AdvanceStatus(ctx, id, domain.BudgetStatusActive)
	if err != nil {
		return nil, err
	}
	if activated.Status != domain.BudgetStatusActive {
		return nil, domain.ErrInvalidStatusTransition
	}

	log.Info().Str("budget_id", id).Str("user_id", activated.UserID).Msg("Budget activated")
	s.publishEvent(activated.UserID, websocket.Budgets.Updated(activated))
	return activated, nil
}

// ReevaluateBudget recomputes the signals of a live budget from its stored spend
// without adding any, advancing its status forward when they call for it.
func (s *BudgetService) ReevaluateBudget(ctx context.Context, id string) (*domain.BudgetCheckResult, error) {
	budget, err := s.budgetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !budget.Status.IsLive() {
		return nil, domain.ErrInvalidStatusTransition
	}

	previous := budget.Status
	result, err := s.evaluate(ctx, budget)
	if err != nil {
		return nil, err
	}
	result.PreviousStatus = previous
	return result, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/broker"
	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/util"
	"github.com/dafibh/fortuna/fortuna-budget/internal/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// BudgetChecker evaluates new spend against the matching budget
type BudgetChecker interface {
	CheckBudget(ctx context.Context, userID, categoryID string, amount decimal.Decimal) (*domain.BudgetCheckResult, error)
}

// TransactionService handles transaction-related business logic
type TransactionService struct {
	transactionRepo domain.TransactionRepository
	categoryRepo    domain.CategoryRepository
	budgets         BudgetChecker
	eventPublisher  websocket.EventPublisher
	alertPublisher  broker.AlertPublisher
}

// NewTransactionService creates a new TransactionService
func NewTransactionService(transactionRepo domain.TransactionRepository, categoryRepo domain.CategoryRepository, budgets BudgetChecker) *TransactionService {
	return &TransactionService{
		transactionRepo: transactionRepo,
		categoryRepo:    categoryRepo,
		budgets:         budgets,
		eventPublisher:  websocket.NoOpPublisher{},
		alertPublisher:  broker.NoOpPublisher{},
	}
}

// SetEventPublisher sets the event publisher for real-time updates. nil disables events.
func (s *TransactionService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = websocket.OrNoOp(publisher)
}

// SetAlertPublisher sets the broker publisher for budget alerts
func (s *TransactionService) SetAlertPublisher(publisher broker.AlertPublisher) {
	if publisher == nil {
		publisher = broker.NoOpPublisher{}
	}
	s.alertPublisher = publisher
}

func (s *TransactionService) publishEvent(userID string, event websocket.Event) {
	s.eventPublisher.Publish(userID, event)
}

// CreateTransactionInput holds the input for creating a transaction
type CreateTransactionInput struct {
	CategoryID  string
	Type        domain.TransactionType
	Amount      decimal.Decimal
	Currency    string
	Description string
	Date        *time.Time
}

// CreateTransactionResult is a stored transaction plus the budget check it triggered, if any
type CreateTransactionResult struct {
	Transaction *domain.Transaction        `json:"transaction"`
	BudgetCheck *domain.BudgetCheckResult `json:"budgetCheck,omitempty"`
}

// CreateTransaction stores a transaction and, for expenses, checks it against the
// category's active budget. The transaction is committed before the check runs: when
// the check fails the stored transaction is still returned, with an error wrapping
// domain.ErrBudgetCheckFailed.
func (s *TransactionService) CreateTransaction(ctx context.Context, userID string, input CreateTransactionInput) (*CreateTransactionResult, error) {
	if !input.Type.Valid() {
		return nil, domain.ErrInvalidTransactionType
	}
	if !input.Amount.IsPositive() || !domain.FitsScale(input.Amount, domain.AmountScale) {
		return nil, domain.ErrInvalidAmount
	}
	currency, err := normalizeCurrency(input.Currency)
	if err != nil {
		return nil, err
	}
	description := strings.TrimSpace(input.Description)
	if len(description) > domain.MaxTransactionDescriptionLen {
		return nil, domain.ErrDescriptionTooLong
	}

	if _, err := s.categoryRepo.GetByID(ctx, userID, input.CategoryID); err != nil {
		return nil, err
	}

	date := util.StartOfDay(time.Now())
	if input.Date != nil {
		date = *input.Date
	}

	transaction, err := s.transactionRepo.Create(ctx, &domain.Transaction{
		UserID:      userID,
		CategoryID:  input.CategoryID,
		Type:        input.Type,
		Amount:      input.Amount,
		Currency:    currency,
		Description: description,
		Date:        date,
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(userID, websocket.Transactions.Created(transaction))

	result := &CreateTransactionResult{Transaction: transaction}
	if transaction.Type != domain.TransactionTypeExpense {
		return result, nil
	}

	check, err := s.budgets.CheckBudget(ctx, userID, transaction.CategoryID, transaction.Amount)
	if err != nil {
		log.Error().Err(err).
			Str("user_id", userID).
			Str("transaction_id", transaction.ID).
			Str("category_id", transaction.CategoryID).
			Msg("Budget check failed after transaction was recorded")
		return result, fmt.Errorf("%w: %w", domain.ErrBudgetCheckFailed, err)
	}
	result.BudgetCheck = check
	s.notifyBudgetAlert(ctx, check)

	return result, nil
}

// notifyBudgetAlert fans a warning or exceeded result out to websocket clients and the broker
func (s *TransactionService) notifyBudgetAlert(ctx context.Context, check *domain.BudgetCheckResult) {
	msg := broker.NewBudgetAlertMessage(check)
	if msg == nil {
		return
	}
	s.publishEvent(msg.UserID, websocket.BudgetAlert(check.IsExceeded, check))
	s.alertPublisher.PublishBudgetAlert(ctx, msg)
}

// GetTransactions retrieves the user's transactions matching filters
func (s *TransactionService) GetTransactions(ctx context.Context, userID string, filters *domain.TransactionFilters) ([]*domain.Transaction, error) {
	if filters != nil {
		if filters.Type != nil && !filters.Type.Valid() {
			return nil, domain.ErrInvalidTransactionType
		}
		if filters.StartDate != nil && filters.EndDate != nil && filters.EndDate.Before(*filters.StartDate) {
			return nil, domain.ErrInvalidDateRange
		}
	}
	return s.transactionRepo.ListByUser(ctx, userID, filters)
}

// GetTransactionByID retrieves a transaction owned by the user
func (s *TransactionService) GetTransactionByID(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	return s.transactionRepo.GetByID(ctx, userID, id)
}

// UpdateTransaction applies a partial update. Budget spend is not recomputed.
func (s *TransactionService) UpdateTransaction(ctx context.Context, userID, id string, patch domain.TransactionPatch) (*domain.Transaction, error) {
	if patch.Type != nil && !patch.Type.Valid() {
		return nil, domain.ErrInvalidTransactionType
	}
	if patch.Amount != nil && (!patch.Amount.IsPositive() || !domain.FitsScale(*patch.Amount, domain.AmountScale)) {
		return nil, domain.ErrInvalidAmount
	}
	if patch.Currency != nil {
		currency, err := normalizeCurrency(*patch.Currency)
		if err != nil {
			return nil, err
		}
		patch.Currency = &currency
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		if len(description) > domain.MaxTransactionDescriptionLen {
			return nil, domain.ErrDescriptionTooLong
		}
		patch.Description = &description
	}
	if patch.CategoryID != nil {
		if _, err := s.categoryRepo.GetByID(ctx, userID, *patch.CategoryID); err != nil {
			return nil, err
		}
	}

	updated, err := s.transactionRepo.Update(ctx, userID, id, patch)
	if err != nil {
		return nil, err
	}
	s.publishEvent(userID, websocket.Transactions.Updated(updated))
	return updated, nil
}

// DeleteTransaction removes a transaction. Budget spend is not reversed.
func (s *TransactionService) DeleteTransaction(ctx context.Context, userID, id string) error {
	deleted, err := s.transactionRepo.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrTransactionNotFound
	}
	s.publishEvent(userID, websocket.Transactions.Deleted(id))
	return nil
}

// GetStats returns total income, total expenses and their balance
func (s *TransactionService) GetStats(ctx context.Context, userID string) (*domain.TransactionStats, error) {
	income, err := s.transactionRepo.SumByType(ctx, userID, domain.TransactionTypeIncome)
	if err != nil {
		return nil, err
	}
	expenses, err := s.transactionRepo.SumByType(ctx, userID, domain.TransactionTypeExpense)
	if err != nil {
		return nil, err
	}
	return &domain.TransactionStats{
		TotalIncome:   income,
		TotalExpenses: expenses,
		Balance:       income.Sub(expenses),
	}, nil
}

func normalizeCurrency(code string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(code))
	if currency == "" {
		return domain.DefaultBudgetCurrency, nil
	}
	if !domain.IsValidCurrency(currency) {
		return "", domain.ErrInvalidCurrency
	}
	return currency, nil
}

// IsBudgetCheckFailure reports whether err came from the budget check of an otherwise recorded transaction
func IsBudgetCheckFailure(err error) bool {
	return errors.Is(err, domain.ErrBudgetCheckFailed)
}

package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "INCOME"
	TransactionTypeExpense TransactionType = "EXPENSE"
)

// Valid reports whether t is a known transaction type
func (t TransactionType) Valid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	CategoryID  string          `json:"categoryId"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	ReceiptPath *string         `json:"receiptPath,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// TransactionPatch is a partial transaction update. Nil fields are left untouched.
type TransactionPatch struct {
	CategoryID  *string
	Type        *TransactionType
	Amount      *decimal.Decimal
	Currency    *string
	Description *string
	Date        *time.Time
	ReceiptPath *string
}

// Apply copies the set fields of p onto tx
func (p TransactionPatch) Apply(tx *Transaction) {
	if p.CategoryID != nil {
		tx.CategoryID = *p.CategoryID
	}
	if p.Type != nil {
		tx.Type = *p.Type
	}
	if p.Amount != nil {
		tx.Amount = *p.Amount
	}
	if p.Currency != nil {
		tx.Currency = *p.Currency
	}
	if p.Description != nil {
		tx.Description = *p.Description
	}
	if p.Date != nil {
		tx.Date = *p.Date
	}
	if p.ReceiptPath != nil {
		path := *p.ReceiptPath
		tx.ReceiptPath = &path
	}
}

type TransactionFilters struct {
	CategoryID *string
	Type       *TransactionType
	StartDate  *time.Time
	EndDate    *time.Time
}

// Matches reports whether tx satisfies the filters. Date bounds are inclusive.
func (f *TransactionFilters) Matches(tx *Transaction) bool {
	if f == nil {
		return true
	}
	if f.CategoryID != nil && tx.CategoryID != *f.CategoryID {
		return false
	}
	if f.Type != nil && tx.Type != *f.Type {
		return false
	}
	if f.StartDate != nil && tx.Date.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && tx.Date.After(*f.EndDate) {
		return false
	}
	return true
}

// TransactionStats summarises a user's cash flow
type TransactionStats struct {
	TotalIncome   decimal.Decimal `json:"totalIncome"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	Balance       decimal.Decimal `json:"balance"`
}

type TransactionRepository interface {
	Create(ctx context.Context, transaction *Transaction) (*Transaction, error)
	GetByID(ctx context.Context, userID, id string) (*Transaction, error)
	ListByUser(ctx context.Context, userID string, filters *TransactionFilters) ([]*Transaction, error)
	SumByType(ctx context.Context, userID string, txType TransactionType) (decimal.Decimal, error)
	Update(ctx context.Context, userID, id string, patch TransactionPatch) (*Transaction, error)
	Delete(ctx context.Context, userID, id string) (bool, error)
}

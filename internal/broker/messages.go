package broker

import (
	"encoding/json"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/shopspring/decimal"
)

// Alert event names, also used as the message type field
const (
	EventBudgetWarning  = "budget.warning"
	EventBudgetExceeded = "budget.exceeded"
)

// BudgetAlertMessage is published when a budget check crosses the alert threshold or the limit
type BudgetAlertMessage struct {
	Event           string              `json:"event"`
	UserID          string              `json:"userId"`
	BudgetID        string              `json:"budgetId"`
	CategoryID      string              `json:"categoryId"`
	Status          domain.BudgetStatus `json:"status"`
	PreviousStatus  domain.BudgetStatus `json:"previousStatus"`
	SpentAmount     decimal.Decimal     `json:"spentAmount"`
	LimitAmount     decimal.Decimal     `json:"limitAmount"`
	Currency        string              `json:"currency"`
	UsagePercentage decimal.Decimal     `json:"usagePercentage"`
	Message         string              `json:"message"`
	Timestamp       time.Time           `json:"timestamp"`
}

// NewBudgetAlertMessage builds an alert from a check result. Returns nil when the
// result carries no alert.
func NewBudgetAlertMessage(result *domain.BudgetCheckResult) *BudgetAlertMessage {
	if result == nil || result.Budget == nil || !(result.IsExceeded || result.ShouldAlert) {
		return nil
	}
	event := EventBudgetWarning
	if result.IsExceeded {
		event = EventBudgetExceeded
	}
	b := result.Budget
	return &BudgetAlertMessage{
		Event:           event,
		UserID:          b.UserID,
		BudgetID:        b.ID,
		CategoryID:      b.CategoryID,
		Status:          b.Status,
		PreviousStatus:  result.PreviousStatus,
		SpentAmount:     b.SpentAmount,
		LimitAmount:     b.LimitAmount,
		Currency:        b.LimitCurrency,
		UsagePercentage: result.UsagePercentage,
		Message:         result.Message,
		Timestamp:       time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *BudgetAlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BudgetAlertMessageFromJSON creates a message from JSON bytes
func BudgetAlertMessageFromJSON(data []byte) (*BudgetAlertMessage, error) {
	var msg BudgetAlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

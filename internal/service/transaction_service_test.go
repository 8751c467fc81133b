package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/broker"
	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/testutil"
	"github.com/shopspring/decimal"
)

type failingChecker struct{}

func (failingChecker) CheckBudget(ctx context.Context, userID, categoryID string, amount decimal.Decimal) (*domain.BudgetCheckResult, error) {
	return nil, domain.ErrBudgetUpdateFailed
}

type txFixture struct {
	svc          *TransactionService
	transactions *testutil.MockTransactionRepository
	budgets      *testutil.MockBudgetRepository
	events       *testutil.MockEventPublisher
	alerts       *testutil.MockAlertPublisher
}

func newTransactionFixture() *txFixture {
	categories := testutil.NewMockCategoryRepository()
	categories.AddCategory(&domain.Category{ID: "cat-1", UserID: "user-1", Name: "Food", Type: domain.CategoryTypeExpense})
	categories.AddCategory(&domain.Category{ID: "cat-2", UserID: "user-1", Name: "Salary", Type: domain.CategoryTypeIncome})

	f := &txFixture{
		transactions: testutil.NewMockTransactionRepository(),
		budgets:      testutil.NewMockBudgetRepository(),
		events:       &testutil.MockEventPublisher{},
		alerts:       &testutil.MockAlertPublisher{},
	}
	f.svc = NewTransactionService(f.transactions, categories, NewBudgetService(f.budgets))
	f.svc.SetEventPublisher(f.events)
	f.svc.SetAlertPublisher(f.alerts)
	return f
}

func expense(amount string) CreateTransactionInput {
	return CreateTransactionInput{
		CategoryID:  "cat-1",
		Type:        domain.TransactionTypeExpense,
		Amount:      dec(amount),
		Description: "Lunch",
	}
}

func TestCreateTransaction_ExpenseChecksBudget(t *testing.T) {
	f := newTransactionFixture()
	f.budgets.AddBudget(activeBudget("b-1", "100", "50"))

	result, err := f.svc.CreateTransaction(context.Background(), "user-1", expense("20"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Transaction.ID == "" {
		t.Error("Expected stored transaction")
	}
	if result.Transaction.Currency != "USD" {
		t.Errorf("Expected default currency USD, got %s", result.Transaction.Currency)
	}
	if result.BudgetCheck == nil || result.BudgetCheck.Budget == nil {
		t.Fatal("Expected a budget check result")
	}
	if !f.budgets.Stored("b-1").SpentAmount.Equal(dec("70")) {
		t.Errorf("Expected spent 70, got %s", f.budgets.Stored("b-1").SpentAmount)
	}
	if f.alerts.Count() != 0 {
		t.Errorf("Expected no alerts below threshold, got %d", f.alerts.Count())
	}
}

func TestCreateTransaction_PublishesWarning(t *testing.T) {
	f := newTransactionFixture()
	f.budgets.AddBudget(activeBudget("b-1", "100", "70"))

	if _, err := f.svc.CreateTransaction(context.Background(), "user-1", expense("15")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if f.alerts.Count() != 1 {
		t.Fatalf("Expected 1 alert, got %d", f.alerts.Count())
	}
	if f.alerts.Alerts[0].Event != broker.EventBudgetWarning {
		t.Errorf("Expected warning alert, got %s", f.alerts.Alerts[0].Event)
	}
	types := f.events.Types()
	if len(types) != 2 || types[0] != "transaction.created" || types[1] != "budget.warning" {
		t.Errorf("Unexpected events %v", types)
	}
}

func TestCreateTransaction_PublishesExceeded(t *testing.T) {
	f := newTransactionFixture()
	f.budgets.AddBudget(activeBudget("b-1", "100", "95"))

	result, err := f.svc.CreateTransaction(context.Background(), "user-1", expense("6"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.BudgetCheck.Budget.Status != domain.BudgetStatusExceeded {
		t.Errorf("Expected EXCEEDED, got %s", result.BudgetCheck.Budget.Status)
	}
	if f.alerts.Count() != 1 || f.alerts.Alerts[0].Event != broker.EventBudgetExceeded {
		t.Errorf("Expected one exceeded alert, got %v", f.alerts.Alerts)
	}
	if f.events.Events[1].UserID != "user-1" {
		t.Errorf("Expected alert for user-1, got %s", f.events.Events[1].UserID)
	}
}

func TestCreateTransaction_IncomeSkipsBudget(t *testing.T) {
	f := newTransactionFixture()
	f.budgets.AddBudget(activeBudget("b-1", "100", "0"))

	input := expense("500")
	input.Type = domain.TransactionTypeIncome
	result, err := f.svc.CreateTransaction(context.Background(), "user-1", input)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.BudgetCheck != nil {
		t.Error("Expected no budget check for income")
	}
	if f.budgets.WriteCount() != 0 {
		t.Errorf("Expected no budget writes, got %d", f.budgets.WriteCount())
	}
}

func TestCreateTransaction_BudgetCheckFailureKeepsTransaction(t *testing.T) {
	f := newTransactionFixture()
	f.svc.budgets = failingChecker{}

	result, err := f.svc.CreateTransaction(context.Background(), "user-1", expense("10"))
	if !errors.Is(err, domain.ErrBudgetCheckFailed) {
		t.Fatalf("Expected ErrBudgetCheckFailed, got %v", err)
	}
	if !errors.Is(err, domain.ErrBudgetUpdateFailed) {
		t.Errorf("Expected cause to be kept, got %v", err)
	}
	if !IsBudgetCheckFailure(err) {
		t.Error("Expected IsBudgetCheckFailure to match")
	}
	if result == nil || result.Transaction == nil {
		t.Fatal("Expected stored transaction alongside the error")
	}
	if _, ok := f.transactions.Transactions[result.Transaction.ID]; !ok {
		t.Error("Expected transaction to stay stored")
	}
}

func TestCreateTransaction_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *CreateTransactionInput)
		want   error
	}{
		{"zero amount", func(in *CreateTransactionInput) { in.Amount = decimal.Zero }, domain.ErrInvalidAmount},
		{"negative amount", func(in *CreateTransactionInput) { in.Amount = dec("-3") }, domain.ErrInvalidAmount},
		{"fractional cent", func(in *CreateTransactionInput) { in.Amount = dec("10.005") }, domain.ErrInvalidAmount},
		{"bad type", func(in *CreateTransactionInput) { in.Type = "TRANSFER" }, domain.ErrInvalidTransactionType},
		{"bad currency", func(in *CreateTransactionInput) { in.Currency = "us dollars" }, domain.ErrInvalidCurrency},
		{"unknown category", func(in *CreateTransactionInput) { in.CategoryID = "nope" }, domain.ErrCategoryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTransactionFixture()
			input := expense("10")
			tt.mutate(&input)
			_, err := f.svc.CreateTransaction(context.Background(), "user-1", input)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if len(f.transactions.Transactions) != 0 {
				t.Error("Expected nothing stored")
			}
		})
	}
}

func TestCreateTransaction_OtherUsersCategory(t *testing.T) {
	f := newTransactionFixture()

	_, err := f.svc.CreateTransaction(context.Background(), "user-2", expense("10"))
	if !errors.Is(err, domain.ErrCategoryNotFound) {
		t.Errorf("Expected ErrCategoryNotFound, got %v", err)
	}
}

func TestGetTransactions_Filters(t *testing.T) {
	f := newTransactionFixture()
	day := func(d int) time.Time { return time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC) }
	f.transactions.AddTransaction(&domain.Transaction{ID: "t1", UserID: "user-1", CategoryID: "cat-1", Type: domain.TransactionTypeExpense, Amount: dec("10"), Date: day(1)})
	f.transactions.AddTransaction(&domain.Transaction{ID: "t2", UserID: "user-1", CategoryID: "cat-2", Type: domain.TransactionTypeIncome, Amount: dec("900"), Date: day(5)})
	f.transactions.AddTransaction(&domain.Transaction{ID: "t3", UserID: "user-1", CategoryID: "cat-1", Type: domain.TransactionTypeExpense, Amount: dec("20"), Date: day(10)})
	ctx := context.Background()

	expenseType := domain.TransactionTypeExpense
	got, err := f.svc.GetTransactions(ctx, "user-1", &domain.TransactionFilters{Type: &expenseType})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(got) != 2 || got[0].ID != "t3" {
		t.Errorf("Expected t3 then t1, got %v", got)
	}

	start, end := day(1), day(5)
	got, _ = f.svc.GetTransactions(ctx, "user-1", &domain.TransactionFilters{StartDate: &start, EndDate: &end})
	if len(got) != 2 {
		t.Errorf("Expected inclusive range to hold 2, got %d", len(got))
	}

	if _, err := f.svc.GetTransactions(ctx, "user-1", &domain.TransactionFilters{StartDate: &end, EndDate: &start}); !errors.Is(err, domain.ErrInvalidDateRange) {
		t.Errorf("Expected ErrInvalidDateRange, got %v", err)
	}
}

func TestUpdateTransaction_DoesNotTouchBudget(t *testing.T) {
	f := newTransactionFixture()
	f.budgets.AddBudget(activeBudget("b-1", "100", "0"))
	result, err := f.svc.CreateTransaction(context.Background(), "user-1", expense("10"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	writes := f.budgets.WriteCount()

	amount := dec("40")
	updated, err := f.svc.UpdateTransaction(context.Background(), "user-1", result.Transaction.ID, domain.TransactionPatch{Amount: &amount})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !updated.Amount.Equal(amount) {
		t.Errorf("Expected amount 40, got %s", updated.Amount)
	}
	if f.budgets.WriteCount() != writes {
		t.Error("Expected no budget writes on update")
	}

	zero := decimal.Zero
	if _, err := f.svc.UpdateTransaction(context.Background(), "user-1", result.Transaction.ID, domain.TransactionPatch{Amount: &zero}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}
	fractional := dec("40.001")
	if _, err := f.svc.UpdateTransaction(context.Background(), "user-1", result.Transaction.ID, domain.TransactionPatch{Amount: &fractional}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount for fractional cent, got %v", err)
	}
}

func TestDeleteTransaction(t *testing.T) {
	f := newTransactionFixture()
	f.transactions.AddTransaction(&domain.Transaction{ID: "t1", UserID: "user-1", CategoryID: "cat-1", Type: domain.TransactionTypeExpense, Amount: dec("10")})

	if err := f.svc.DeleteTransaction(context.Background(), "user-2", "t1"); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Errorf("Expected ErrTransactionNotFound, got %v", err)
	}
	if err := f.svc.DeleteTransaction(context.Background(), "user-1", "t1"); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestGetStats_Balance(t *testing.T) {
	f := newTransactionFixture()
	f.transactions.AddTransaction(&domain.Transaction{ID: "t1", UserID: "user-1", Type: domain.TransactionTypeIncome, Amount: dec("1500.50")})
	f.transactions.AddTransaction(&domain.Transaction{ID: "t2", UserID: "user-1", Type: domain.TransactionTypeExpense, Amount: dec("200.25")})
	f.transactions.AddTransaction(&domain.Transaction{ID: "t3", UserID: "user-1", Type: domain.TransactionTypeExpense, Amount: dec("99.75")})
	f.transactions.AddTransaction(&domain.Transaction{ID: "t4", UserID: "user-2", Type: domain.TransactionTypeExpense, Amount: dec("1000")})

	stats, err := f.svc.GetStats(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !stats.TotalIncome.Equal(dec("1500.50")) || !stats.TotalExpenses.Equal(dec("300")) || !stats.Balance.Equal(dec("1200.50")) {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/repository/memory"
	"github.com/dafibh/fortuna/fortuna-budget/internal/testutil"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func activeBudget(id, limit, spent string) *domain.Budget {
	return &domain.Budget{
		ID:             id,
		UserID:         "user-1",
		CategoryID:     "cat-1",
		LimitAmount:    dec(limit),
		LimitCurrency:  "USD",
		SpentAmount:    dec(spent),
		Period:         domain.BudgetPeriodMonthly,
		Status:         domain.BudgetStatusActive,
		StartDate:      time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, 10, 31, 0, 0, 0, 0, time.UTC),
		AlertThreshold: dec("0.8"),
	}
}

func TestCheckBudget_NoActiveBudget(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	created := activeBudget("b-created", "100", "0")
	created.Status = domain.BudgetStatusCreated
	repo.AddBudget(created)
	svc := NewBudgetService(repo)

	result, err := svc.CheckBudget(context.Background(), "user-1", "cat-1", dec("50"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Budget != nil {
		t.Errorf("Expected nil budget, got %+v", result.Budget)
	}
	if result.IsExceeded || result.ShouldAlert {
		t.Errorf("Expected no signals, got exceeded=%v alert=%v", result.IsExceeded, result.ShouldAlert)
	}
	if result.Message != "No active budget for this category" {
		t.Errorf("Unexpected message %q", result.Message)
	}
	if repo.WriteCount() != 0 {
		t.Errorf("Expected zero store writes, got %d", repo.WriteCount())
	}
	if !repo.Stored("b-created").SpentAmount.IsZero() {
		t.Error("CREATED budget must not accumulate spend")
	}
}

func TestCheckBudget_RejectsFractionalCents(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	repo.AddBudget(activeBudget("b-1", "100", "0"))
	svc := NewBudgetService(repo)

	result, err := svc.CheckBudget(context.Background(), "user-1", "cat-1", dec("10.005"))
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("Expected ErrInvalidAmount, got %v", err)
	}
	if result != nil {
		t.Errorf("Expected nil result, got %+v", result)
	}
	if repo.WriteCount() != 0 {
		t.Errorf("Expected zero store writes, got %d", repo.WriteCount())
	}
	if !repo.Stored("b-1").SpentAmount.IsZero() {
		t.Errorf("Expected spent untouched, got %s", repo.Stored("b-1").SpentAmount)
	}

	// Trailing zeros are not extra precision
	if _, err := svc.CheckBudget(context.Background(), "user-1", "cat-1", dec("10.500")); err != nil {
		t.Errorf("Expected 10.500 accepted, got %v", err)
	}
}

func TestCheckBudget_AccumulatesExactly(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	repo.AddBudget(activeBudget("b-1", "1000", "0.1"))
	svc := NewBudgetService(repo)

	result, err := svc.CheckBudget(context.Background(), "user-1", "cat-1", dec("0.2"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !result.Budget.SpentAmount.Equal(dec("0.3")) {
		t.Errorf("Expected spent 0.3, got %s", result.Budget.SpentAmount)
	}
	if !repo.Stored("b-1").SpentAmount.Equal(dec("0.3")) {
		t.Errorf("Expected stored spent 0.3, got %s", repo.Stored("b-1").SpentAmount)
	}
	if result.Message != "Budget is OK" {
		t.Errorf("Unexpected message %q", result.Message)
	}
	if result.Budget.Status != domain.BudgetStatusActive {
		t.Errorf("Expected ACTIVE, got %s", result.Budget.Status)
	}
	if repo.AdvanceStatusCalls != 0 {
		t.Errorf("Expected no status write, got %d", repo.AdvanceStatusCalls)
	}
}

func TestCheckBudget_ThresholdEqualityAlerts(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	repo.AddBudget(activeBudget("b-1", "100", "70"))
	svc := NewBudgetService(repo)

	result, err := svc.CheckBudget(context.Background(), "user-1", "cat-1", dec("10"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !result.UsagePercentage.Equal(dec("80")) {
		t.Errorf("Expected usage 80, got %s", result.UsagePercentage)
	}
	if !result.ShouldAlert {
		t.Error("Expected alert at exactly the threshold")
	}
	if result.IsExceeded {
		t.Error("Did not expect exceeded")
	}
	if result.Budget.Status != domain.BudgetStatusWarning {
		t.Errorf("Expected WARNING, got %s", result.Budget.Status)
	}
	if result.PreviousStatus != domain.BudgetStatusActive {
		t.Errorf("Expected previous ACTIVE, got %s", result.PreviousStatus)
	}
	if result.Message != "Budget warning! You've spent 80.0% of your budget" {
		t.Errorf("Unexpected message %q", result.Message)
	}
	if repo.Stored("b-1").Status != domain.BudgetStatusWarning {
		t.Errorf("Expected stored WARNING, got %s", repo.Stored("b-1").Status)
	}
}

func TestCheckBudget_LimitReachedIsNotExceeded(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	repo.AddBudget(activeBudget("b-1", "100", "95"))
	svc := NewBudgetService(repo)

	result, err := svc.CheckBudget(context.Background(), "user-1", "cat-1", dec("5"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.IsExceeded {
		t.Error("100 of 100 must not be exceeded")
	}
	if !result.ShouldAlert {
		t.Error("Expected alert at 100%")
	}
	if result.Budget.Status != domain.BudgetStatusWarning {
		t.Errorf("Expected WARNING, got %s", result.Budget.Status)
	}
}

func TestCheckBudget_Exceeded(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	repo.AddBudget(activeBudget("b-1", "100", "95"))
	svc := NewBudgetService(repo)

	result, err := svc.CheckBudget(context.Background(), "user-1", "cat-1", dec("6"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !result.IsExceeded {
		t.Error("Expected exceeded")
	}
	if result.Budget.Status != domain.BudgetStatusExceeded {
		t.Errorf("Expected EXCEEDED, got %s", result.Budget.Status)
	}
	if !strings.Contains(result.Message, "Budget exceeded! Spent 101 of 100") {
		t.Errorf("Unexpected message %q", result.Message)
	}
	if result.Message != "Budget exceeded! Spent 101 of 100 USD" {
		t.Errorf("Unexpected message %q", result.Message)
	}
}

func TestCheckBudget_SpendWriteNotFound(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	repo.AddBudget(activeBudget("b-1", "100", "0"))
	repo.IncrementSpentFn = func(id string, delta decimal.Decimal) (*domain.Budget, error) {
		return nil, domain.ErrBudgetNotFound
	}
	svc := NewBudgetService(repo)

	_, err := svc.CheckBudget(context.Background(), "user-1", "cat-1", dec("10"))
	if !errors.Is(err, domain.ErrBudgetUpdateFailed) {
		t.Errorf("Expected ErrBudgetUpdateFailed, got %v", err)
	}
}

func TestCheckBudget_StatusWriteFailureSurfaces(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	repo.AddBudget(activeBudget("b-1", "100", "0"))
	repo.AdvanceStatusFn = func(id string, status domain.BudgetStatus) (*domain.Budget, error) {
		return nil, errors.New("connection reset")
	}
	svc := NewBudgetService(repo)

	_, err := svc.CheckBudget(context.Background(), "user-1", "cat-1", dec("150"))
	if err == nil {
		t.Fatal("Expected error from status write")
	}
	if !repo.Stored("b-1").SpentAmount.Equal(dec("150")) {
		t.Errorf("Expected spend to stay applied, got %s", repo.Stored("b-1").SpentAmount)
	}
}

func TestCheckBudget_LookupErrorPropagates(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	repo.FindActiveByCategoryFn = func(userID, categoryID string) (*domain.Budget, error) {
		return nil, errors.New("store down")
	}
	svc := NewBudgetService(repo)

	if _, err := svc.CheckBudget(context.Background(), "user-1", "cat-1", dec("1")); err == nil {
		t.Fatal("Expected error")
	}
}

func TestCheckBudget_ZeroLimit(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	repo.AddBudget(activeBudget("b-1", "0", "0"))
	svc := NewBudgetService(repo)

	result, err := svc.CheckBudget(context.Background(), "user-1", "cat-1", dec("10"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !result.UsagePercentage.IsZero() {
		t.Errorf("Expected zero usage, got %s", result.UsagePercentage)
	}
	if !result.IsExceeded {
		t.Error("Spend above a zero limit is exceeded")
	}
}

func TestCheckBudget_ConcurrentCallsKeepEveryIncrement(t *testing.T) {
	repo := memory.NewBudgetRepository()
	ctx := context.Background()
	b := activeBudget("", "1000", "0")
	created, err := repo.Create(ctx, b)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	svc := NewBudgetService(repo)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CheckBudget(ctx, "user-1", "cat-1", dec("1.5")); err != nil {
				t.Errorf("CheckBudget failed: %v", err)
			}
		}()
	}
	wg.Wait()

	stored, err := repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !stored.SpentAmount.Equal(dec("75")) {
		t.Errorf("Expected spent 75, got %s", stored.SpentAmount)
	}
}

func TestGetStats(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	repo.AddBudget(activeBudget("b-1", "500", "345.99"))
	svc := NewBudgetService(repo)

	stats, err := svc.GetStats(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !stats.UsagePercentage.Equal(dec("69.198")) {
		t.Errorf("Expected usage 69.198, got %s", stats.UsagePercentage)
	}
	if !stats.RemainingAmount.Equal(dec("154.01")) {
		t.Errorf("Expected remaining 154.01, got %s", stats.RemainingAmount)
	}
	if stats.Status != domain.BudgetStatusActive {
		t.Errorf("Expected ACTIVE, got %s", stats.Status)
	}
}

func TestGetStats_NegativeRemainingAndZeroLimit(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	repo.AddBudget(activeBudget("over", "100", "130"))
	repo.AddBudget(activeBudget("zero", "0", "10"))
	svc := NewBudgetService(repo)

	stats, err := svc.GetStats(context.Background(), "over")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !stats.RemainingAmount.Equal(dec("-30")) {
		t.Errorf("Expected remaining -30, got %s", stats.RemainingAmount)
	}

	stats, err = svc.GetStats(context.Background(), "zero")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !stats.UsagePercentage.IsZero() {
		t.Errorf("Expected zero usage, got %s", stats.UsagePercentage)
	}
}

func TestGetStats_NotFound(t *testing.T) {
	svc := NewBudgetService(testutil.NewMockBudgetRepository())

	_, err := svc.GetStats(context.Background(), "missing")
	if !errors.Is(err, domain.ErrBudgetNotFound) {
		t.Errorf("Expected ErrBudgetNotFound, got %v", err)
	}
}

func TestCreateBudget_Defaults(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	events := &testutil.MockEventPublisher{}
	svc := NewBudgetService(repo)
	svc.SetEventPublisher(events)

	budget, err := svc.CreateBudget(context.Background(), CreateBudgetInput{
		UserID:      "user-1",
		CategoryID:  "cat-1",
		LimitAmount: dec("250"),
		Period:      domain.BudgetPeriodMonthly,
		StartDate:   time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 10, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if budget.ID == "" {
		t.Error("Expected an ID")
	}
	if budget.Status != domain.BudgetStatusCreated {
		t.Errorf("Expected CREATED, got %s", budget.Status)
	}
	if !budget.SpentAmount.IsZero() {
		t.Errorf("Expected zero spent, got %s", budget.SpentAmount)
	}
	if budget.LimitCurrency != "USD" {
		t.Errorf("Expected USD, got %s", budget.LimitCurrency)
	}
	if !budget.AlertThreshold.Equal(dec("0.8")) {
		t.Errorf("Expected threshold 0.8, got %s", budget.AlertThreshold)
	}
	if types := events.Types(); len(types) != 1 || types[0] != "budget.created" {
		t.Errorf("Expected one budget.created event, got %v", types)
	}
}

func TestCreateBudget_NormalizesPercentThreshold(t *testing.T) {
	svc := NewBudgetService(testutil.NewMockBudgetRepository())
	threshold := dec("80")

	budget, err := svc.CreateBudget(context.Background(), CreateBudgetInput{
		UserID:         "user-1",
		CategoryID:     "cat-1",
		LimitAmount:    dec("100"),
		LimitCurrency:  "eur",
		Period:         domain.BudgetPeriodWeekly,
		AlertThreshold: &threshold,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !budget.AlertThreshold.Equal(dec("0.8")) {
		t.Errorf("Expected threshold 0.8, got %s", budget.AlertThreshold)
	}
	if budget.LimitCurrency != "EUR" {
		t.Errorf("Expected EUR, got %s", budget.LimitCurrency)
	}
}

func TestCreateBudget_Validation(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	negative := dec("-0.5")
	tooHigh := dec("150")
	finePercent := dec("33.333")

	tests := []struct {
		name  string
		input CreateBudgetInput
		want  error
	}{
		{"zero limit", CreateBudgetInput{UserID: "u", CategoryID: "c", LimitAmount: decimal.Zero, Period: domain.BudgetPeriodMonthly}, domain.ErrInvalidAmount},
		{"negative limit", CreateBudgetInput{UserID: "u", CategoryID: "c", LimitAmount: dec("-1"), Period: domain.BudgetPeriodMonthly}, domain.ErrInvalidAmount},
		{"bad period", CreateBudgetInput{UserID: "u", CategoryID: "c", LimitAmount: dec("1"), Period: "HOURLY"}, domain.ErrInvalidPeriod},
		{"end before start", CreateBudgetInput{UserID: "u", CategoryID: "c", LimitAmount: dec("1"), Period: domain.BudgetPeriodMonthly, StartDate: start, EndDate: start.AddDate(0, 0, -1)}, domain.ErrInvalidDateRange},
		{"bad currency", CreateBudgetInput{UserID: "u", CategoryID: "c", LimitAmount: dec("1"), Period: domain.BudgetPeriodMonthly, LimitCurrency: "DOLLARS"}, domain.ErrInvalidCurrency},
		{"negative threshold", CreateBudgetInput{UserID: "u", CategoryID: "c", LimitAmount: dec("1"), Period: domain.BudgetPeriodMonthly, AlertThreshold: &negative}, domain.ErrInvalidThreshold},
		{"threshold above 100 percent", CreateBudgetInput{UserID: "u", CategoryID: "c", LimitAmount: dec("1"), Period: domain.BudgetPeriodMonthly, AlertThreshold: &tooHigh}, domain.ErrInvalidThreshold},
		{"limit below a cent", CreateBudgetInput{UserID: "u", CategoryID: "c", LimitAmount: dec("100.001"), Period: domain.BudgetPeriodMonthly}, domain.ErrInvalidAmount},
		{"threshold finer than four places", CreateBudgetInput{UserID: "u", CategoryID: "c", LimitAmount: dec("1"), Period: domain.BudgetPeriodMonthly, AlertThreshold: &finePercent}, domain.ErrInvalidThreshold},
		{"missing category", CreateBudgetInput{UserID: "u", LimitAmount: dec("1"), Period: domain.BudgetPeriodMonthly}, domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := testutil.NewMockBudgetRepository()
			svc := NewBudgetService(repo)
			_, err := svc.CreateBudget(context.Background(), tt.input)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if repo.CreateCalls != 0 {
				t.Error("Expected no store write on invalid input")
			}
		})
	}
}

func TestUpdateBudget(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	repo.AddBudget(activeBudget("b-1", "100", "10"))
	svc := NewBudgetService(repo)

	limit := dec("200")
	threshold := dec("90")
	updated, err := svc.UpdateBudget(context.Background(), "b-1", domain.BudgetPatch{
		LimitAmount:    &limit,
		AlertThreshold: &threshold,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !updated.LimitAmount.Equal(limit) {
		t.Errorf("Expected limit 200, got %s", updated.LimitAmount)
	}
	if !updated.AlertThreshold.Equal(dec("0.9")) {
		t.Errorf("Expected threshold 0.9, got %s", updated.AlertThreshold)
	}
	if !updated.SpentAmount.Equal(dec("10")) {
		t.Errorf("Expected spent untouched, got %s", updated.SpentAmount)
	}
}

func TestUpdateBudget_Errors(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	repo.AddBudget(activeBudget("b-1", "100", "10"))
	svc := NewBudgetService(repo)

	zero := decimal.Zero
	if _, err := svc.UpdateBudget(context.Background(), "b-1", domain.BudgetPatch{LimitAmount: &zero}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}

	fractionalCent := dec("10.005")
	if _, err := svc.UpdateBudget(context.Background(), "b-1", domain.BudgetPatch{LimitAmount: &fractionalCent}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount for limit, got %v", err)
	}
	if _, err := svc.UpdateBudget(context.Background(), "b-1", domain.BudgetPatch{SpentAmount: &fractionalCent}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount for spent, got %v", err)
	}
	fineThreshold := dec("0.12345")
	if _, err := svc.UpdateBudget(context.Background(), "b-1", domain.BudgetPatch{AlertThreshold: &fineThreshold}); !errors.Is(err, domain.ErrInvalidThreshold) {
		t.Errorf("Expected ErrInvalidThreshold, got %v", err)
	}

	early := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.UpdateBudget(context.Background(), "b-1", domain.BudgetPatch{EndDate: &early}); !errors.Is(err, domain.ErrInvalidDateRange) {
		t.Errorf("Expected ErrInvalidDateRange, got %v", err)
	}

	bogus := domain.BudgetStatus("PAUSED")
	if _, err := svc.UpdateBudget(context.Background(), "b-1", domain.BudgetPatch{Status: &bogus}); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Errorf("Expected ErrInvalidStatus, got %v", err)
	}

	limit := dec("50")
	if _, err := svc.UpdateBudget(context.Background(), "missing", domain.BudgetPatch{LimitAmount: &limit}); !errors.Is(err, domain.ErrBudgetNotFound) {
		t.Errorf("Expected ErrBudgetNotFound, got %v", err)
	}
	if repo.UpdateCalls != 0 {
		t.Errorf("Expected no updates, got %d", repo.UpdateCalls)
	}
}

func TestDeleteBudget(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	repo.AddBudget(activeBudget("b-1", "100", "0"))
	svc := NewBudgetService(repo)

	if err := svc.DeleteBudget(context.Background(), "b-1"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := svc.DeleteBudget(context.Background(), "b-1"); !errors.Is(err, domain.ErrBudgetNotFound) {
		t.Errorf("Expected ErrBudgetNotFound, got %v", err)
	}
}

func TestGetBudgetForUser_OtherUser(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	repo.AddBudget(activeBudget("b-1", "100", "0"))
	svc := NewBudgetService(repo)

	if _, err := svc.GetBudgetForUser(context.Background(), "user-1", "b-1"); err != nil {
		t.Errorf("Expected owner to read budget, got %v", err)
	}
	if _, err := svc.GetBudgetForUser(context.Background(), "user-2", "b-1"); !errors.Is(err, domain.ErrBudgetNotFound) {
		t.Errorf("Expected ErrBudgetNotFound, got %v", err)
	}
}

func TestListBudgets_Filters(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	a := activeBudget("a", "100", "0")
	b := activeBudget("b", "100", "0")
	b.CategoryID = "cat-2"
	b.Status = domain.BudgetStatusCreated
	c := activeBudget("c", "100", "0")
	c.UserID = "user-2"
	repo.AddBudget(a)
	repo.AddBudget(b)
	repo.AddBudget(c)
	svc := NewBudgetService(repo)
	ctx := context.Background()

	all, _ := svc.ListBudgets(ctx, domain.BudgetFilter{})
	if len(all) != 3 {
		t.Errorf("Expected 3 budgets, got %d", len(all))
	}
	mine, _ := svc.ListBudgets(ctx, domain.BudgetFilter{UserID: "user-1"})
	if len(mine) != 2 {
		t.Errorf("Expected 2 budgets, got %d", len(mine))
	}
	created, _ := svc.ListBudgets(ctx, domain.BudgetFilter{UserID: "user-1", Status: domain.BudgetStatusCreated})
	if len(created) != 1 || created[0].ID != "b" {
		t.Errorf("Expected budget b, got %v", created)
	}
	if _, err := svc.ListBudgets(ctx, domain.BudgetFilter{Status: "NOPE"}); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Errorf("Expected ErrInvalidStatus, got %v", err)
	}
}

func TestActivateBudget(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	b := activeBudget("b-1", "100", "0")
	b.Status = domain.BudgetStatusCreated
	repo.AddBudget(b)
	svc := NewBudgetService(repo)
	ctx := context.Background()

	activated, err := svc.ActivateBudget(ctx, "b-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if activated.Status != domain.BudgetStatusActive {
		t.Errorf("Expected ACTIVE, got %s", activated.Status)
	}

	if _, err := svc.ActivateBudget(ctx, "b-1"); !errors.Is(err, domain.ErrInvalidStatusTransition) {
		t.Errorf("Expected ErrInvalidStatusTransition, got %v", err)
	}

	result, err := svc.CheckBudget(ctx, "user-1", "cat-1", dec("10"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Budget == nil || result.Budget.ID != "b-1" {
		t.Error("Expected activated budget to be checked")
	}
}

func TestActivateBudget_OneLivePerCategory(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	repo.AddBudget(activeBudget("live", "100", "0"))
	pending := activeBudget("pending", "100", "0")
	pending.Status = domain.BudgetStatusCreated
	repo.AddBudget(pending)
	svc := NewBudgetService(repo)

	if _, err := svc.ActivateBudget(context.Background(), "pending"); !errors.Is(err, domain.ErrBudgetAlreadyActive) {
		t.Errorf("Expected ErrBudgetAlreadyActive, got %v", err)
	}
	if repo.Stored("pending").Status != domain.BudgetStatusCreated {
		t.Error("Expected pending budget to stay CREATED")
	}
}

func TestReevaluateBudget_WarningReachesExceeded(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	b := activeBudget("b-1", "100", "90")
	b.Status = domain.BudgetStatusWarning
	repo.AddBudget(b)
	svc := NewBudgetService(repo)
	ctx := context.Background()

	limit := dec("80")
	if _, err := svc.UpdateBudget(ctx, "b-1", domain.BudgetPatch{LimitAmount: &limit}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	result, err := svc.ReevaluateBudget(ctx, "b-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !result.IsExceeded {
		t.Error("Expected exceeded")
	}
	if result.Budget.Status != domain.BudgetStatusExceeded {
		t.Errorf("Expected EXCEEDED, got %s", result.Budget.Status)
	}
	if !result.StatusChanged() {
		t.Error("Expected status change to be reported")
	}
	if !result.Budget.SpentAmount.Equal(dec("90")) {
		t.Errorf("Expected spend untouched, got %s", result.Budget.SpentAmount)
	}
}

func TestReevaluateBudget_NeverRegresses(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	b := activeBudget("b-1", "100", "85")
	b.Status = domain.BudgetStatusExceeded
	repo.AddBudget(b)
	svc := NewBudgetService(repo)

	result, err := svc.ReevaluateBudget(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Budget.Status != domain.BudgetStatusExceeded {
		t.Errorf("Expected EXCEEDED to stick, got %s", result.Budget.Status)
	}
	if repo.AdvanceStatusCalls != 0 {
		t.Errorf("Expected no status write, got %d", repo.AdvanceStatusCalls)
	}
}

func TestReevaluateBudget_RequiresLiveBudget(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	b := activeBudget("b-1", "100", "0")
	b.Status = domain.BudgetStatusCreated
	repo.AddBudget(b)
	svc := NewBudgetService(repo)

	if _, err := svc.ReevaluateBudget(context.Background(), "b-1"); !errors.Is(err, domain.ErrInvalidStatusTransition) {
		t.Errorf("Expected ErrInvalidStatusTransition, got %v", err)
	}
}

func TestCreateBudget_DerivesEndDateFromPeriod(t *testing.T) {
	repo := testutil.NewMockBudgetRepository()
	svc := NewBudgetService(repo)

	budget, err := svc.CreateBudget(context.Background(), CreateBudgetInput{
		UserID:      "user-1",
		CategoryID:  "cat-1",
		LimitAmount: dec("200"),
		Period:      domain.BudgetPeriodWeekly,
		StartDate:   time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := time.Date(2026, 10, 11, 0, 0, 0, 0, time.UTC)
	if !budget.EndDate.Equal(want) {
		t.Errorf("Expected end date %s, got %s", want.Format("2006-01-02"), budget.EndDate.Format("2006-01-02"))
	}
}

package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/service"
	"github.com/dafibh/fortuna/fortuna-budget/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBudgetHandler() (*BudgetHandler, *testutil.MockBudgetRepository) {
	categoryRepo := testutil.NewMockCategoryRepository()
	categoryRepo.AddCategory(&domain.Category{ID: "cat-1", UserID: "user-1", Name: "Food", Type: domain.CategoryTypeExpense})
	categoryRepo.AddCategory(&domain.Category{ID: "cat-2", UserID: "user-2", Name: "Food", Type: domain.CategoryTypeExpense})

	budgetRepo := testutil.NewMockBudgetRepository()
	categoryService := service.NewCategoryService(categoryRepo, testutil.NewMockTransactionRepository())
	return NewBudgetHandler(service.NewBudgetService(budgetRepo), categoryService), budgetRepo
}

func budgetIDContext(e *echo.Echo, method, target, userID, budgetID, body string) (echo.Context, *httptest.ResponseRecorder) {
	req, rec := newJSONRequest(method, target, body)
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(budgetID)
	setupAuthContext(c, userID)
	return c, rec
}

func createTestBudget(t *testing.T, e *echo.Echo, h *BudgetHandler, body string) BudgetResponse {
	t.Helper()
	req, rec := newJSONRequest(http.MethodPost, "/api/v1/budgets", body)
	c := e.NewContext(req, rec)
	setupAuthContext(c, "user-1")

	require.NoError(t, h.CreateBudget(c))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var response BudgetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	return response
}

func TestCreateBudget_Defaults(t *testing.T) {
	e := echo.New()
	h, _ := newBudgetHandler()

	budget := createTestBudget(t, e, h, `{"categoryId":"cat-1","limitAmount":"500","period":"monthly","startDate":"2026-02-01"}`)

	assert.Equal(t, "CREATED", budget.Status)
	assert.Equal(t, "MONTHLY", budget.Period)
	assert.Equal(t, "USD", budget.LimitCurrency)
	assert.Equal(t, "0", budget.SpentAmount)
	assert.Equal(t, "0.8", budget.AlertThreshold)
	assert.Equal(t, "2026-02-01", budget.StartDate)
	assert.Equal(t, "2026-02-28", budget.EndDate)
}

func TestCreateBudget_Validation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{"missing category", `{"limitAmount":"100","period":"MONTHLY"}`, http.StatusBadRequest, "categoryId"},
		{"bad limit", `{"categoryId":"cat-1","limitAmount":"lots","period":"MONTHLY"}`, http.StatusBadRequest, "limitAmount"},
		{"negative limit", `{"categoryId":"cat-1","limitAmount":"-5","period":"MONTHLY"}`, http.StatusBadRequest, "limitAmount"},
		{"bad period", `{"categoryId":"cat-1","limitAmount":"100","period":"HOURLY"}`, http.StatusBadRequest, "period"},
		{"threshold too high", `{"categoryId":"cat-1","limitAmount":"100","period":"MONTHLY","alertThreshold":"150"}`, http.StatusBadRequest, "alertThreshold"},
		{"end before start", `{"categoryId":"cat-1","limitAmount":"100","period":"MONTHLY","startDate":"2026-03-01","endDate":"2026-02-01"}`, http.StatusBadRequest, "endDate"},
		{"foreign category", `{"categoryId":"cat-2","limitAmount":"100","period":"MONTHLY"}`, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			h, budgetRepo := newBudgetHandler()
			req, rec := newJSONRequest(http.MethodPost, "/api/v1/budgets", tt.body)
			c := e.NewContext(req, rec)
			setupAuthContext(c, "user-1")

			require.NoError(t, h.CreateBudget(c))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.field != "" {
				problem := decodeProblem(t, rec)
				require.NotEmpty(t, problem.Errors)
				assert.Equal(t, tt.field, problem.Errors[0].Field)
			}
			assert.Equal(t, 0, budgetRepo.CreateCalls)
		})
	}
}

func TestBudgetLifecycle_ActivateThenCheck(t *testing.T) {
	e := echo.New()
	h, _ := newBudgetHandler()
	budget := createTestBudget(t, e, h, `{"categoryId":"cat-1","limitAmount":"100","period":"MONTHLY"}`)

	// a CREATED budget is not tracked yet
	req, rec := newJSONRequest(http.MethodPost, "/api/v1/budgets/check", `{"categoryId":"cat-1","amount":"50"}`)
	c := e.NewContext(req, rec)
	setupAuthContext(c, "user-1")
	require.NoError(t, h.CheckBudget(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var check BudgetCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &check))
	assert.Nil(t, check.Budget)
	assert.Equal(t, service.MessageNoActiveBudget, check.Message)

	c, rec = budgetIDContext(e, http.MethodPost, "/api/v1/budgets/"+budget.ID+"/activate", "user-1", budget.ID, "")
	require.NoError(t, h.ActivateBudget(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var activated BudgetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &activated))
	assert.Equal(t, "ACTIVE", activated.Status)

	req, rec = newJSONRequest(http.MethodPost, "/api/v1/budgets/check", `{"categoryId":"cat-1","amount":"90"}`)
	c = e.NewContext(req, rec)
	setupAuthContext(c, "user-1")
	require.NoError(t, h.CheckBudget(c))
	require.Equal(t, http.StatusOK, rec.Code)

	check = BudgetCheckResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &check))
	require.NotNil(t, check.Budget)
	assert.True(t, check.ShouldAlert)
	assert.False(t, check.IsExceeded)
	assert.Equal(t, "ACTIVE", check.PreviousStatus)
	assert.Equal(t, "WARNING", check.Budget.Status)
	assert.Equal(t, "90", check.Budget.SpentAmount)

	c, rec = budgetIDContext(e, http.MethodGet, "/api/v1/budgets/"+budget.ID+"/stats", "user-1", budget.ID, "")
	require.NoError(t, h.GetBudgetStats(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats BudgetStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "10", stats.RemainingAmount)
	assert.Equal(t, "WARNING", stats.Status)
}

func TestActivateBudget_Conflicts(t *testing.T) {
	e := echo.New()
	h, _ := newBudgetHandler()
	first := createTestBudget(t, e, h, `{"categoryId":"cat-1","limitAmount":"100","period":"MONTHLY"}`)
	second := createTestBudget(t, e, h, `{"categoryId":"cat-1","limitAmount":"300","period":"MONTHLY"}`)

	c, rec := budgetIDContext(e, http.MethodPost, "/", "user-1", first.ID, "")
	require.NoError(t, h.ActivateBudget(c))
	require.Equal(t, http.StatusOK, rec.Code)

	// already active
	c, rec = budgetIDContext(e, http.MethodPost, "/", "user-1", first.ID, "")
	require.NoError(t, h.ActivateBudget(c))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// one live budget per category
	c, rec = budgetIDContext(e, http.MethodPost, "/", "user-1", second.ID, "")
	require.NoError(t, h.ActivateBudget(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBudget_OtherUserReadsAsNotFound(t *testing.T) {
	e := echo.New()
	h, budgetRepo := newBudgetHandler()
	budget := createTestBudget(t, e, h, `{"categoryId":"cat-1","limitAmount":"100","period":"MONTHLY"}`)

	c, rec := budgetIDContext(e, http.MethodGet, "/", "user-2", budget.ID, "")
	require.NoError(t, h.GetBudget(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c, rec = budgetIDContext(e, http.MethodPut, "/", "user-2", budget.ID, `{"limitAmount":"1"}`)
	require.NoError(t, h.UpdateBudget(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c, rec = budgetIDContext(e, http.MethodDelete, "/", "user-2", budget.ID, "")
	require.NoError(t, h.DeleteBudget(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.NotNil(t, budgetRepo.Stored(budget.ID))
	assert.Equal(t, 0, budgetRepo.DeleteCalls)
}

func TestUpdateBudget(t *testing.T) {
	e := echo.New()
	h, _ := newBudgetHandler()
	budget := createTestBudget(t, e, h, `{"categoryId":"cat-1","limitAmount":"100","period":"MONTHLY"}`)

	c, rec := budgetIDContext(e, http.MethodPut, "/", "user-1", budget.ID, `{"limitAmount":"250","alertThreshold":"90"}`)
	require.NoError(t, h.UpdateBudget(c))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated BudgetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "250", updated.LimitAmount)
	assert.Equal(t, "0.9", updated.AlertThreshold)

	c, rec = budgetIDContext(e, http.MethodPut, "/", "user-1", budget.ID, `{"spentAmount":"abc"}`)
	require.NoError(t, h.UpdateBudget(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteBudget(t *testing.T) {
	e := echo.New()
	h, budgetRepo := newBudgetHandler()
	budget := createTestBudget(t, e, h, `{"categoryId":"cat-1","limitAmount":"100","period":"MONTHLY"}`)

	c, rec := budgetIDContext(e, http.MethodDelete, "/", "user-1", budget.ID, "")
	require.NoError(t, h.DeleteBudget(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, budgetRepo.Stored(budget.ID))
}

func TestGetBudgets_Filters(t *testing.T) {
	e := echo.New()
	h, _ := newBudgetHandler()
	first := createTestBudget(t, e, h, `{"categoryId":"cat-1","limitAmount":"100","period":"MONTHLY"}`)
	createTestBudget(t, e, h, `{"categoryId":"cat-1","limitAmount":"200","period":"YEARLY"}`)

	c, rec := budgetIDContext(e, http.MethodPost, "/", "user-1", first.ID, "")
	require.NoError(t, h.ActivateBudget(c))
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/budgets?status=active", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	setupAuthContext(c, "user-1")
	require.NoError(t, h.GetBudgets(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var budgets []BudgetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &budgets))
	require.Len(t, budgets, 1)
	assert.Equal(t, first.ID, budgets[0].ID)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/budgets?status=paused", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	setupAuthContext(c, "user-1")
	require.NoError(t, h.GetBudgets(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckBudget_Validation(t *testing.T) {
	for _, body := range []string{
		`{"amount":"10"}`,
		`{"categoryId":"cat-1","amount":"zero"}`,
		`{"categoryId":"cat-1","amount":"-3"}`,
	} {
		e := echo.New()
		h, budgetRepo := newBudgetHandler()
		req, rec := newJSONRequest(http.MethodPost, "/api/v1/budgets/check", body)
		c := e.NewContext(req, rec)
		setupAuthContext(c, "user-1")

		require.NoError(t, h.CheckBudget(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, 0, budgetRepo.WriteCount())
	}
}

func TestReevaluateBudget(t *testing.T) {
	e := echo.New()
	h, budgetRepo := newBudgetHandler()
	budget := createTestBudget(t, e, h, `{"categoryId":"cat-1","limitAmount":"100","period":"MONTHLY"}`)

	c, rec := budgetIDContext(e, http.MethodPost, "/", "user-1", budget.ID, "")
	require.NoError(t, h.ActivateBudget(c))
	require.Equal(t, http.StatusOK, rec.Code)

	// a spend correction alone does not move the status
	c, rec = budgetIDContext(e, http.MethodPut, "/", "user-1", budget.ID, `{"spentAmount":"120"}`)
	require.NoError(t, h.UpdateBudget(c))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, domain.BudgetStatusActive, budgetRepo.Stored(budget.ID).Status)

	c, rec = budgetIDContext(e, http.MethodPost, "/", "user-1", budget.ID, "")
	require.NoError(t, h.ReevaluateBudget(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var check BudgetCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &check))
	assert.True(t, check.IsExceeded)
	require.NotNil(t, check.Budget)
	assert.Equal(t, "EXCEEDED", check.Budget.Status)
}

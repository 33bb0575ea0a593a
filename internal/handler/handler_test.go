package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"moneyflow/internal/debt"
	"moneyflow/internal/domain"
	"moneyflow/internal/middleware"
	"moneyflow/internal/service"
	"moneyflow/internal/storage/memory"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	h := NewHandler(
		service.NewAccountService(store),
		service.NewTransactionService(store),
		service.NewDebtService(store, debt.NewKeyedMutex(), nil),
	)

	r := gin.New()
	r.Use(middleware.RequestLog())
	h.Register(r.Group("/api/v1"))
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func createAccount(t *testing.T, r http.Handler) domain.Account {
	t.Helper()
	w := do(t, r, "POST", "/api/v1/accounts", `{"name": "Tinkoff", "type": "credit",
		"cashback_config": {"rate": 0.05, "cycleType": "calendar_month"}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create account: status %d: %s", w.Code, w.Body.String())
	}
	var acct domain.Account
	decode(t, w, &acct)
	return acct
}

func TestCreateAccount(t *testing.T) {
	r := setupRouter(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"flat config", `{"name": "Card", "type": "debit", "cashback_config": {"rate": 0.01, "cycleType": "calendar_month"}}`, http.StatusCreated},
		{"no config", `{"name": "Cash", "type": "cash"}`, http.StatusCreated},
		{"null config", `{"name": "Cash", "type": "cash", "cashback_config": null}`, http.StatusCreated},
		{"invalid config", `{"name": "Card", "type": "credit", "cashback_config": {"rate": 0.01}}`, http.StatusUnprocessableEntity},
		{"blank name", `{"name": "  ", "type": "credit"}`, http.StatusBadRequest},
		{"malformed", `{"name": `, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, "POST", "/api/v1/accounts", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestSetCashbackConfig(t *testing.T) {
	r := setupRouter(t)
	acct := createAccount(t, r)

	w := do(t, r, "PUT", "/api/v1/accounts/"+acct.ID.String()+"/cashback-config",
		`{"program": {"cycleType": "statement_cycle", "statementDay": 20, "levels": []}}`)
	if w.Code != http.StatusOK {
		t.Errorf("valid program: status %d: %s", w.Code, w.Body.String())
	}

	w = do(t, r, "PUT", "/api/v1/accounts/"+acct.ID.String()+"/cashback-config", `{"program": {"cycleType": "statement_cycle"}}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing statementDay: status %d", w.Code)
	}

	w = do(t, r, "PUT", "/api/v1/accounts/not-a-uuid/cashback-config", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status %d", w.Code)
	}
}

func TestTransactionCashbackFlow(t *testing.T) {
	r := setupRouter(t)
	acct := createAccount(t, r)

	w := do(t, r, "POST", "/api/v1/transactions", `{"account_id": "`+acct.ID.String()+`", "type": "expense",
		"amount": 100, "occurred_at": "2024-03-10T12:00:00Z", "cashback_mode": "real_fixed", "cashback_share_fixed": 10}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create transaction: status %d: %s", w.Code, w.Body.String())
	}
	var txn domain.Transaction
	decode(t, w, &txn)
	if txn.Tag != "2024-03" {
		t.Errorf("tag = %q, want 2024-03", txn.Tag)
	}

	w = do(t, r, "GET", "/api/v1/transactions/"+txn.ID.String()+"/cashback", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get cashback: status %d", w.Code)
	}
	var entry domain.CashbackEntry
	decode(t, w, &entry)
	if entry.Mode != domain.EntryReal || !entry.Amount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("entry = %+v, want real 10", entry)
	}

	w = do(t, r, "PUT", "/api/v1/transactions/"+txn.ID.String(), `{"account_id": "`+acct.ID.String()+`", "type": "expense",
		"amount": 100, "occurred_at": "2024-03-10T12:00:00Z", "cashback_mode": "none_back"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update: status %d: %s", w.Code, w.Body.String())
	}
	w = do(t, r, "GET", "/api/v1/transactions/"+txn.ID.String()+"/cashback", "")
	decode(t, w, &entry)
	if entry.Mode != domain.EntryVirtual {
		t.Errorf("mode after update = %s, want virtual", entry.Mode)
	}

	w = do(t, r, "GET", "/api/v1/accounts/"+acct.ID.String()+"/cycle?date=2024-03-20", "")
	if w.Code != http.StatusOK {
		t.Fatalf("cycle: status %d: %s", w.Code, w.Body.String())
	}
	var sum service.CycleSummary
	decode(t, w, &sum)
	if sum.Tag != "2024-03" || !sum.Virtual.Equal(decimal.NewFromInt(5)) {
		t.Errorf("summary = %+v", sum)
	}

	w = do(t, r, "DELETE", "/api/v1/transactions/"+txn.ID.String(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status %d", w.Code)
	}
	w = do(t, r, "GET", "/api/v1/transactions/"+txn.ID.String()+"/cashback", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("cashback after delete: status %d, want 404", w.Code)
	}
}

func TestCreateTransaction_Invalid(t *testing.T) {
	r := setupRouter(t)
	acct := createAccount(t, r)
	base := `"account_id": "` + acct.ID.String() + `", "occurred_at": "2024-03-10T12:00:00Z"`

	tests := []struct {
		name string
		body string
	}{
		{"zero amount", `{` + base + `, "type": "expense", "amount": 0}`},
		{"unknown type", `{` + base + `, "type": "loan", "amount": 5}`},
		{"unknown mode", `{` + base + `, "type": "expense", "amount": 5, "cashback_mode": "max"}`},
		{"missing share", `{` + base + `, "type": "expense", "amount": 5, "cashback_mode": "real_fixed"}`},
		{"bad tag", `{` + base + `, "type": "expense", "amount": 5, "tag": "2024-3"}`},
		{"bad account", `{"account_id": "x", "type": "expense", "amount": 5, "occurred_at": "2024-03-10T12:00:00Z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, "POST", "/api/v1/transactions", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestGetCycle_BadQuery(t *testing.T) {
	r := setupRouter(t)
	acct := createAccount(t, r)

	for _, q := range []string{"?date=10.03.2024", "?tag=2024-3"} {
		w := do(t, r, "GET", "/api/v1/accounts/"+acct.ID.String()+"/cycle"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", q, w.Code)
		}
	}
}

func TestRepaymentFlow(t *testing.T) {
	r := setupRouter(t)
	acct := createAccount(t, r)

	w := do(t, r, "POST", "/api/v1/people", `{"name": "Лена"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create person: status %d", w.Code)
	}
	var person domain.Person
	decode(t, w, &person)

	for _, body := range []string{
		`{"account_id": "` + acct.ID.String() + `", "person_id": "` + person.ID.String() + `", "type": "debt", "amount": 100000, "occurred_at": "2024-01-01T00:00:00Z"}`,
		`{"account_id": "` + acct.ID.String() + `", "person_id": "` + person.ID.String() + `", "type": "debt", "amount": 50000, "occurred_at": "2024-02-01T00:00:00Z"}`,
	} {
		if w := do(t, r, "POST", "/api/v1/transactions", body); w.Code != http.StatusCreated {
			t.Fatalf("create debt: status %d: %s", w.Code, w.Body.String())
		}
	}

	w = do(t, r, "POST", "/api/v1/people/"+person.ID.String()+"/repayments", `{"account_id": "`+acct.ID.String()+`", "amount": 120000}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("repay: status %d: %s", w.Code, w.Body.String())
	}
	var res service.RepaymentResult
	decode(t, w, &res)
	if len(res.Allocation.Debts) != 2 || !res.Unallocated.IsZero() {
		t.Errorf("allocation = %+v", res.Allocation)
	}

	w = do(t, r, "GET", "/api/v1/people/"+person.ID.String()+"/debts", "")
	if w.Code != http.StatusOK {
		t.Fatalf("debts: status %d", w.Code)
	}
	var debts DebtsResponse
	decode(t, w, &debts)
	if !debts.Outstanding.Equal(decimal.NewFromInt(30000)) || len(debts.Debts) != 1 {
		t.Errorf("debts = %+v, want 30000 left on one debt", debts)
	}

	// правка заметки не должна сбрасывать распределение
	edit := `{"account_id": "` + acct.ID.String() + `", "person_id": "` + person.ID.String() + `", "type": "repayment", "amount": 120000,
		"occurred_at": "` + res.Transaction.OccurredAt.Format(time.RFC3339Nano) + `", "note": "перевод"}`
	w = do(t, r, "PUT", "/api/v1/transactions/"+res.Transaction.ID.String(), edit)
	if w.Code != http.StatusOK {
		t.Fatalf("edit repayment: status %d: %s", w.Code, w.Body.String())
	}
	w = do(t, r, "GET", "/api/v1/people/"+person.ID.String()+"/debts", "")
	decode(t, w, &debts)
	if !debts.Outstanding.Equal(decimal.NewFromInt(30000)) {
		t.Errorf("outstanding after edit = %s, want 30000", debts.Outstanding)
	}

	w = do(t, r, "POST", "/api/v1/people/"+person.ID.String()+"/replay", "")
	if w.Code != http.StatusOK {
		t.Fatalf("replay: status %d", w.Code)
	}
	var report service.ReplayReport
	decode(t, w, &report)
	if report.Updated != 0 {
		t.Errorf("replay updated %d repayments, want 0", report.Updated)
	}

	w = do(t, r, "GET", "/api/v1/people/"+person.ID.String()+"/statement.xlsx", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != xlsxContentType || w.Body.Len() == 0 {
		t.Errorf("statement: status %d, type %q, %d bytes", w.Code, w.Header().Get("Content-Type"), w.Body.Len())
	}

	w = do(t, r, "POST", "/api/v1/people/"+person.ID.String()+"/repayments", `{"account_id": "`+acct.ID.String()+`", "amount": -5}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative repayment: status %d", w.Code)
	}
}

func TestCreateBatch(t *testing.T) {
	r := setupRouter(t)
	acct := createAccount(t, r)

	w := do(t, r, "POST", "/api/v1/people", `{"name": "Олег"}`)
	var person domain.Person
	decode(t, w, &person)

	w = do(t, r, "POST", "/api/v1/repayments/batch", `{"account_id": "`+acct.ID.String()+`", "children": []}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty batch: status %d", w.Code)
	}

	w = do(t, r, "POST", "/api/v1/repayments/batch", `{"account_id": "`+acct.ID.String()+`",
		"children": [{"person_id": "`+person.ID.String()+`", "amount": 25}]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("batch: status %d: %s", w.Code, w.Body.String())
	}
	var res service.BatchResult
	decode(t, w, &res)
	if len(res.Children) != 1 || !res.Parent.Amount.Equal(decimal.NewFromInt(25)) {
		t.Errorf("batch = %+v", res)
	}
}

func TestNotFoundAndRequestID(t *testing.T) {
	r := setupRouter(t)

	w := do(t, r, "GET", "/api/v1/transactions/6f1c1b0e-8f3a-4d8e-9a59-0c2b9b1d7e11", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("response has no request id")
	}
}

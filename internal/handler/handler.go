// internal/handler/handler.go
package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"moneyflow/internal/cashback"
	"moneyflow/internal/service"
	"moneyflow/internal/storage"
	val "moneyflow/internal/validator"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Handler struct {
	accounts     *service.AccountService
	transactions *service.TransactionService
	debts        *service.DebtService
}

func NewHandler(accounts *service.AccountService, transactions *service.TransactionService, debts *service.DebtService) *Handler {
	return &Handler{accounts: accounts, transactions: transactions, debts: debts}
}

// Register mounts the API routes on the group.
func (h *Handler) Register(v1 *gin.RouterGroup) {
	v1.POST("/accounts", h.CreateAccount)
	v1.GET("/accounts/:id", h.GetAccount)
	v1.PUT("/accounts/:id/cashback-config", h.SetCashbackConfig)
	v1.GET("/accounts/:id/cycle", h.GetCycle)

	v1.POST("/transactions", h.CreateTransaction)
	v1.GET("/transactions/:id", h.GetTransaction)
	v1.PUT("/transactions/:id", h.UpdateTransaction)
	v1.DELETE("/transactions/:id", h.DeleteTransaction)
	v1.GET("/transactions/:id/cashback", h.GetCashbackEntry)

	v1.POST("/people", h.CreatePerson)
	v1.GET("/people/:id/debts", h.GetDebts)
	v1.POST("/people/:id/repayments", h.Repay)
	v1.POST("/people/:id/replay", h.Replay)
	v1.GET("/people/:id/statement.xlsx", h.Statement)

	v1.POST("/repayments/batch", h.CreateBatch)
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps service errors to HTTP statuses.
func writeError(c *gin.Context, op string, err error) {
	var ce *cashback.ConfigError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &ce):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": ce.Error()})
	case errors.Is(err, service.ErrInvalidTransaction), errors.Is(err, service.ErrInvalidRepayment):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error(op+" failed", "error", err, "request_id", c.GetString("request_id"))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return false
	}
	if err := validateStruct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func validateStruct(v any) error {
	if err := val.Validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid input: %w", err)
		}
		var errs []string
		for _, e := range verrs {
			errs = append(errs, fieldErrorToString(e))
		}
		return fmt.Errorf("invalid input: %s", strings.Join(errs, "; "))
	}
	return nil
}

func fieldErrorToString(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "yearmonth":
		return fmt.Sprintf("%s must be in YYYY-MM format", e.Field())
	case "notblank":
		return fmt.Sprintf("%s must not be blank", e.Field())
	case "cashbackmode":
		return fmt.Sprintf("%s must be one of real_fixed, real_percent, none_back, voluntary", e.Field())
	case "txntype":
		return fmt.Sprintf("%s must be one of expense, income, debt, repayment, transfer", e.Field())
	case "uuid":
		return fmt.Sprintf("%s must be a UUID", e.Field())
	case "min":
		if e.Param() == "1" {
			return fmt.Sprintf("%s must not be empty", e.Field())
		}
		return fmt.Sprintf("%s is too short", e.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", e.Field(), e.Param())
	case "gte":
		return fmt.Sprintf("%s must not be negative", e.Field())
	default:
		return fmt.Sprintf("%s is invalid", e.Field())
	}
}

// internal/handler/cashback.go
package handler

import (
	"net/http"
	"time"

	"moneyflow/internal/cashback"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateAccount godoc
// @Summary Create an account, optionally with a cashback config
// @Param request body CreateAccountRequest true "Account"
// @Success 201 {object} domain.Account
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/accounts [post]
func (h *Handler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if !bindJSON(c, &req) {
		return
	}
	acct, err := h.accounts.Create(c.Request.Context(), normalizeText(req.Name), req.Type, req.CashbackConfig)
	if err != nil {
		writeError(c, "CreateAccount", err)
		return
	}
	c.JSON(http.StatusCreated, acct)
}

// GetAccount godoc
// @Router /api/v1/accounts/{id} [get]
func (h *Handler) GetAccount(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	acct, err := h.accounts.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, "GetAccount", err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

// SetCashbackConfig godoc
// @Summary Replace the account's cashback config
// @Description Accepts the flat shape or {"program": {...}}; invalid configs are rejected with 422
// @Router /api/v1/accounts/{id}/cashback-config [put]
func (h *Handler) SetCashbackConfig(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
		return
	}
	if _, err := h.accounts.SetCashbackConfig(c.Request.Context(), id, raw); err != nil {
		writeError(c, "SetCashbackConfig", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetCycle godoc
// @Summary Cashback cycle summary
// @Param date query string false "Reference date YYYY-MM-DD (default today)"
// @Param tag query string false "Cycle tag YYYY-MM, takes precedence over date"
// @Param category query string false "Category used for the resolved rate"
// @Success 200 {object} service.CycleSummary
// @Router /api/v1/accounts/{id}/cycle [get]
func (h *Handler) GetCycle(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ref := time.Now().UTC()
	if d := c.Query("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be in YYYY-MM-DD format"})
			return
		}
		ref = parsed
	}
	tag := c.Query("tag")
	if tag != "" {
		if _, err := time.Parse(cashback.TagLayout, tag); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tag must be in YYYY-MM format"})
			return
		}
	}

	summary, err := h.transactions.CycleSummary(c.Request.Context(), id, ref, tag, c.Query("category"))
	if err != nil {
		writeError(c, "CycleSummary", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// CreateTransaction godoc
// @Summary Create a transaction and compute its cashback entry
// @Param request body TransactionRequest true "Transaction"
// @Success 201 {object} domain.Transaction
// @Failure 400 {object} map[string]string
// @Router /api/v1/transactions [post]
func (h *Handler) CreateTransaction(c *gin.Context) {
	var req TransactionRequest
	if !bindJSON(c, &req) {
		return
	}
	txn, err := h.transactions.Create(c.Request.Context(), req.toDomain(uuid.Nil))
	if err != nil {
		writeError(c, "CreateTransaction", err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

// GetTransaction godoc
// @Router /api/v1/transactions/{id} [get]
func (h *Handler) GetTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	txn, err := h.transactions.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, "GetTransaction", err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

// UpdateTransaction godoc
// @Summary Replace a transaction; its cashback entry is overwritten
// @Router /api/v1/transactions/{id} [put]
func (h *Handler) UpdateTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req TransactionRequest
	if !bindJSON(c, &req) {
		return
	}
	txn, err := h.transactions.Update(c.Request.Context(), req.toDomain(id))
	if err != nil {
		writeError(c, "UpdateTransaction", err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

// DeleteTransaction godoc
// @Summary Delete a transaction together with its cashback entry
// @Router /api/v1/transactions/{id} [delete]
func (h *Handler) DeleteTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.transactions.Delete(c.Request.Context(), id); err != nil {
		writeError(c, "DeleteTransaction", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetCashbackEntry godoc
// @Success 200 {object} domain.CashbackEntry
// @Router /api/v1/transactions/{id}/cashback [get]
func (h *Handler) GetCashbackEntry(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	entry, err := h.transactions.CashbackEntry(c.Request.Context(), id)
	if err != nil {
		writeError(c, "GetCashbackEntry", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

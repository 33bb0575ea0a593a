package handler

import (
	"bytes"
	"net/http"

	"moneyflow/internal/debt"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) CreatePerson(c *gin.Context) {
	var req CreatePersonRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.debts.CreatePerson(c.Request.Context(), normalizeText(req.Name))
	if err != nil {
		writeError(c, "CreatePerson", err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// GetDebts godoc
// @Summary Outstanding debts of a person, oldest first
// @Success 200 {object} DebtsResponse
// @Router /api/v1/people/{id}/debts [get]
func (h *Handler) GetDebts(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	pool, err := h.debts.Outstanding(c.Request.Context(), id)
	if err != nil {
		writeError(c, "Outstanding", err)
		return
	}
	c.JSON(http.StatusOK, DebtsResponse{PersonID: id, Outstanding: debt.Outstanding(pool), Debts: pool})
}

// Repay godoc
// @Summary Record a repayment, allocated to the oldest debts first
// @Param request body RepaymentRequest true "Repayment"
// @Success 201 {object} service.RepaymentResult
// @Router /api/v1/people/{id}/repayments [post]
func (h *Handler) Repay(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req RepaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.debts.Repay(c.Request.Context(), req.toService(id))
	if err != nil {
		writeError(c, "Repay", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// CreateBatch godoc
// @Summary Parent transfer plus one repayment per person, all or nothing
// @Param request body BatchRequest true "Batch"
// @Success 201 {object} service.BatchResult
// @Router /api/v1/repayments/batch [post]
func (h *Handler) CreateBatch(c *gin.Context) {
	var req BatchRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.debts.CreateBatch(c.Request.Context(), req.toService())
	if err != nil {
		writeError(c, "CreateBatch", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Replay godoc
// @Summary Fill in allocations for repayments recorded without them
// @Success 200 {object} service.ReplayReport
// @Router /api/v1/people/{id}/replay [post]
func (h *Handler) Replay(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	report, err := h.debts.Replay(c.Request.Context(), id)
	if err != nil {
		writeError(c, "Replay", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Statement godoc
// @Summary XLSX statement of debts and repayments
// @Router /api/v1/people/{id}/statement.xlsx [get]
func (h *Handler) Statement(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.debts.Statement(c.Request.Context(), id, &buf); err != nil {
		writeError(c, "Statement", err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="statement-`+id.String()+`.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"reconquest/internal"
	"reconquest/internal/engine"
)

type handler struct {
	engine *engine.Engine
	logger *zap.Logger
}

type invoiceList struct {
	Invoices       []internal.Invoice `json:"invoices"`
	Total          int                `json:"total"`
	TotalPotential decimal.Decimal    `json:"totalPotential"`
}

type planRequestBody struct {
	Subject string `json:"subject" binding:"required"`
}

type planRequestResult struct {
	Request   internal.PlanRequest `json:"request"`
	Delivered int                  `json:"delivered"`
}

func (h *handler) stats(c *gin.Context) {
	success(c, http.StatusOK, h.engine.DashboardStats(c.Request.Context()))
}

func (h *handler) recordBaseline(c *gin.Context) {
	b, err := h.engine.RecordBaseline(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, http.StatusCreated, b)
}

// listInvoices supports an optional ?client= filter on the folded customer
// name.
func (h *handler) listInvoices(c *gin.Context) {
	all := h.engine.Invoices()
	client := strings.ToLower(strings.TrimSpace(c.Query("client")))

	out := invoiceList{Invoices: make([]internal.Invoice, 0, len(all)), TotalPotential: decimal.Zero}
	for _, inv := range all {
		if client != "" && !strings.Contains(strings.ToLower(inv.Client.Name), client) {
			continue
		}
		out.Invoices = append(out.Invoices, inv)
		out.TotalPotential = out.TotalPotential.Add(inv.Potential)
	}
	out.Total = len(out.Invoices)
	success(c, http.StatusOK, out)
}

func (h *handler) getInvoice(c *gin.Context) {
	inv, ok := h.engine.Invoice(c.Param("id"))
	if !ok {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "invoice not found")
		return
	}
	success(c, http.StatusOK, inv)
}

func (h *handler) addInvoice(c *gin.Context) {
	var inv internal.Invoice
	if err := c.ShouldBindJSON(&inv); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	stored, err := h.engine.AddInvoice(inv)
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, http.StatusCreated, stored)
}

func (h *handler) replaceInvoices(c *gin.Context) {
	var list []internal.Invoice
	if err := c.ShouldBindJSON(&list); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	if err := h.engine.SetInvoices(list); err != nil {
		handleError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"total": h.engine.TotalInvoices()})
}

func (h *handler) clearInvoices(c *gin.Context) {
	h.engine.ClearAllInvoices()
	c.Status(http.StatusNoContent)
}

// removeInvoice is idempotent: an unknown id is still a 204.
func (h *handler) removeInvoice(c *gin.Context) {
	if !h.engine.RemoveInvoice(c.Param("id")) {
		h.logger.Debug("remove of unknown invoice", zap.String("id", c.Param("id")))
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) attachPlan(c *gin.Context) {
	var plan internal.ReconquestPlan
	if err := c.ShouldBindJSON(&plan); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	id := c.Param("id")
	if err := h.engine.AttachPlan(id, plan); err != nil {
		handleError(c, err)
		return
	}
	inv, _ := h.engine.Invoice(id)
	success(c, http.StatusOK, inv)
}

func (h *handler) brands(c *gin.Context) {
	success(c, http.StatusOK, h.engine.CompetitorBrands())
}

func (h *handler) traceability(c *gin.Context) {
	success(c, http.StatusOK, h.engine.ProductTraceability(c.Param("brand")))
}

func (h *handler) customers(c *gin.Context) {
	success(c, http.StatusOK, h.engine.CustomerProfiles(c.Request.Context()))
}

func (h *handler) locations(c *gin.Context) {
	success(c, http.StatusOK, h.engine.CustomerReconquestLocations(c.Request.Context()))
}

func (h *handler) requestPlan(c *gin.Context) {
	var body planRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	req, delivered, err := h.engine.RequestPlan(c.Request.Context(), body.Subject)
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, http.StatusOK, planRequestResult{Request: req, Delivered: delivered})
}

func (h *handler) storage(c *gin.Context) {
	success(c, http.StatusOK, h.engine.StorageInfo())
}

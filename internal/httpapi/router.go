package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reconquest/internal/engine"
)

// NewRouter exposes the engine over JSON. Every response except /metrics and
// 204s uses the Response envelope.
func NewRouter(e *engine.Engine, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(requestID(), accessLog(logger), recovery(logger))

	h := &handler{engine: e, logger: logger}

	r.GET("/healthz", func(c *gin.Context) {
		success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(e.Metrics().Handler()))

	api := r.Group("/api")
	{
		api.GET("/stats", h.stats)
		api.POST("/stats/baseline", h.recordBaseline)

		api.GET("/invoices", h.listInvoices)
		api.POST("/invoices", h.addInvoice)
		api.PUT("/invoices", h.replaceInvoices)
		api.DELETE("/invoices", h.clearInvoices)
		api.GET("/invoices/:id", h.getInvoice)
		api.DELETE("/invoices/:id", h.removeInvoice)
		api.PUT("/invoices/:id/plan", h.attachPlan)

		api.GET("/brands", h.brands)
		api.GET("/brands/:brand/traceability", h.traceability)

		api.GET("/customers", h.customers)
		api.GET("/customers/locations", h.locations)

		api.POST("/plans/request", h.requestPlan)

		api.GET("/storage", h.storage)
	}

	return r
}

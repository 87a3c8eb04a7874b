// Package transport is the scanner's gin-based HTTP surface: the
// downstream subscriber API exposed over REST/SSE.
package transport

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"setbull_trader/internal/domain"
	"setbull_trader/internal/orchestrator"
	"setbull_trader/pkg/apperrors"
	"setbull_trader/pkg/log"
)

// HTTPHandler exposes the Orchestrator's watchlist(), symbolData(), and
// subscribeAlerts(cb) surface over HTTP.
type HTTPHandler struct {
	orch *orchestrator.Orchestrator
}

// NewHTTPHandler builds a handler bound to the given Orchestrator.
func NewHTTPHandler(orch *orchestrator.Orchestrator) *HTTPHandler {
	return &HTTPHandler{orch: orch}
}

// RegisterRoutes wires every scanner endpoint onto router.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.Use(CORSMiddleware())
	router.Use(RequestLoggerMiddleware())

	router.GET("/healthz", h.healthz)

	api := router.Group("/api/v1")
	api.GET("/watchlist", h.watchlist)
	api.GET("/symbols", h.symbols)
	api.GET("/alerts", h.alertsSSE)
	api.POST("/config", h.updateConfig)
}

func (h *HTTPHandler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": string(h.orch.Status()),
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *HTTPHandler) watchlist(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Watchlist())
}

func (h *HTTPHandler) symbols(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.SymbolData())
}

// alertsSSE streams every fired alert as a server-sent event, implementing
// subscribeAlerts(cb) for HTTP clients.
func (h *HTTPHandler) alertsSSE(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	alerts := make(chan domain.Alert, 32)
	unsubscribe := h.orch.SubscribeAlerts(func(a domain.Alert) error {
		select {
		case alerts <- a:
		default:
			log.ScannerWarn("transport", "alertsSSE", "client too slow, dropping alert", map[string]interface{}{"symbol": a.Symbol})
		}
		return nil
	})
	defer unsubscribe()

	c.Stream(func(w http.ResponseWriter) bool {
		select {
		case a := <-alerts:
			c.SSEvent("alert", a)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *HTTPHandler) updateConfig(c *gin.Context) {
	var partial map[string]interface{}
	if err := c.ShouldBindJSON(&partial); err != nil {
		appErr := apperrors.NewBadRequestError("invalid request body", err)
		c.JSON(appErr.Code, apperrors.NewErrorResponse(appErr.Message, appErr))
		return
	}
	appErr := apperrors.NewInternalServerError(
		"structured config patches are not yet wired; restart with a new application.dev.yaml",
		errors.New("not implemented"),
	)
	c.JSON(http.StatusNotImplemented, apperrors.NewErrorResponse(appErr.Message, appErr))
}

// CORSMiddleware applies a permissive development CORS policy.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// RequestLoggerMiddleware logs method, path, status, and latency per request.
func RequestLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		log.Info("scanner: %s %s | status=%d | latency=%v", c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

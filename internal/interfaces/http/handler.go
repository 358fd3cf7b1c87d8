package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	execution "main/internal/application/service/execution"
	portfolio "main/internal/application/service/portfolio"
	trading "main/internal/domain/entity/trading"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const basePath = "/api/v1"

// Handler exposes the finished batch read-only: positions, trades and the
// aggregate summary. It is constructed only after ProcessAll has returned, so
// the ledger and trade slice are stable.
type Handler struct {
	router   *gin.Engine
	ledger   *portfolio.Service
	trades   []*trading.Trade
	result   execution.Result
	cache    *redis.Client
	cacheTTL time.Duration
}

func NewHandler(ledger *portfolio.Service, trades []*trading.Trade, result execution.Result, cache *redis.Client, cacheTTL time.Duration) *Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router:   router,
		ledger:   ledger,
		trades:   trades,
		result:   result,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	api := h.router.Group(basePath)
	if h.cache != nil {
		api.Use(h.cacheMiddleware())
	}
	{
		api.GET("/positions", h.getPositions)
		api.GET("/positions/by-account", h.getPositionsByAccount)
		api.GET("/trades", h.getTrades)
		api.GET("/summary", h.getSummary)
	}
}

func (h *Handler) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, h.ledger.AllPositions())
}

func (h *Handler) getPositionsByAccount(c *gin.Context) {
	if account := c.Query("account_id"); account != "" {
		accountID, err := strconv.ParseInt(account, 10, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, fmt.Errorf("invalid account_id %q", account))
			return
		}
		c.JSON(http.StatusOK, h.ledger.PositionsByAccount()[accountID])
		return
	}
	c.JSON(http.StatusOK, h.ledger.PositionsByAccount())
}

type tradeView struct {
	ID        int64     `json:"trade_id"`
	AccountID int64     `json:"account_id"`
	Symbol    string    `json:"symbol"`
	Quantity  int64     `json:"quantity"`
	Price     string    `json:"price"`
	Side      string    `json:"side"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
}

func (h *Handler) getTrades(c *gin.Context) {
	views := make([]tradeView, 0, len(h.trades))
	for _, t := range h.trades {
		if status := c.Query("status"); status != "" && status != t.Status().String() {
			continue
		}
		views = append(views, tradeView{
			ID:        t.ID,
			AccountID: t.AccountID,
			Symbol:    t.Symbol,
			Quantity:  t.Quantity,
			Price:     t.Price.String(),
			Side:      string(t.Side),
			Timestamp: t.Timestamp,
			Status:    t.Status().String(),
			Reason:    t.Reason(),
		})
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handler) getSummary(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"run_id":       h.result.RunID.String(),
		"total_trades": h.result.TotalTrades,
		"completed":    h.result.Completed,
		"accepted":     h.result.Accepted,
		"rejected":     h.result.Rejected,
		"errors":       h.result.Errors,
		"elapsed_ms":   h.result.Elapsed.Milliseconds(),
	})
}

func (h *Handler) cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.cache == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := h.cacheKey(c)
		ctx := c.Request.Context()

		if cached, err := h.cache.Get(ctx, key).Result(); err == nil {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			c.Abort()
			return
		}

		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			status:         http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = recorder

		c.Next()

		if recorder.status >= 200 && recorder.status < 300 && recorder.body.Len() > 0 {
			_ = h.cache.Set(ctx, key, recorder.body.Bytes(), h.cacheTTL).Err()
		}
	}
}

type responseRecorder struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if len(data) > 0 {
		r.body.Write(data)
	}
	return r.ResponseWriter.Write(data)
}

func (h *Handler) cacheKey(c *gin.Context) string {
	return fmt.Sprintf("cache:%s:%s?%s", c.Request.Method, c.FullPath(), c.Request.URL.RawQuery)
}

func writeError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

// Package commercetest serves an in-memory commerce admin API for tests.
package commercetest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paysync/internal/commerce/domain"
	"github.com/smallbiznis/paysync/internal/observability/metrics"
)

type Server struct {
	*httptest.Server

	mu           sync.Mutex
	orders       map[string]*domain.Order
	transactions map[string][]domain.TransactionRequest
	calls        map[string]int
	failures     map[string]int
}

func NewServer(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		orders:       map[string]*domain.Order{},
		transactions: map[string][]domain.TransactionRequest{},
		calls:        map[string]int{},
		failures:     map[string]int{},
	}

	r := gin.New()
	r.GET("/admin/orders/:id", s.getOrder(false))
	r.POST("/admin/orders/:id", s.updateMetadata(metrics.CommerceOpUpdateMetadata))
	r.POST("/admin/orders/:id/transactions", s.addTransaction)
	r.POST("/admin/orders/:id/payment-summary", s.paymentSummary)
	r.GET("/admin/draft-orders/:id", s.getOrder(true))
	r.POST("/admin/draft-orders/:id", s.updateMetadata(metrics.CommerceOpUpdateMetadata))
	r.POST("/admin/draft-orders/:id/convert-to-order", s.convert)
	r.DELETE("/admin/draft-orders/:id", s.delete)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// AddOrder stores a copy of order.
func (s *Server) AddOrder(order domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := order
	copied.Metadata = cloneMetadata(order.Metadata)
	s.orders[order.ID] = &copied
}

// Order returns a snapshot and whether the order still exists.
func (s *Server) Order(id string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	copied := *order
	copied.Metadata = cloneMetadata(order.Metadata)
	return copied, true
}

func (s *Server) Transactions(id string) []domain.TransactionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TransactionRequest(nil), s.transactions[id]...)
}

// Calls counts requests per operation, including failed ones.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// FailWith makes every call of op answer with status until cleared with 0.
func (s *Server) FailWith(op string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, op)
		return
	}
	s.failures[op] = status
}

func (s *Server) begin(c *gin.Context, op string) bool {
	s.calls[op]++
	if status, ok := s.failures[op]; ok {
		c.JSON(status, gin.H{"message": "injected failure"})
		return false
	}
	return true
}

func (s *Server) getOrder(draft bool) gin.HandlerFunc {
	op := metrics.CommerceOpGetOrder
	if draft {
		op = metrics.CommerceOpGetDraftOrder
	}
	return func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.begin(c, op) {
			return
		}
		order, ok := s.orders[c.Param("id")]
		if !ok || order.IsDraftOrder != draft {
			c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
			return
		}
		if draft {
			c.JSON(http.StatusOK, gin.H{"draft_order": order})
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": order})
	}
}

func (s *Server) updateMetadata(op string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.begin(c, op) {
			return
		}
		order, ok := s.orders[c.Param("id")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
			return
		}
		var body struct {
			Metadata map[string]any `json:"metadata"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		metadata := map[string]any{}
		for k, v := range body.Metadata {
			if v != nil {
				metadata[k] = v
			}
		}
		order.Metadata = metadata
		c.JSON(http.StatusOK, gin.H{"order": order})
	}
}

func (s *Server) addTransaction(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.begin(c, metrics.CommerceOpAddTransaction) {
		return
	}
	id := c.Param("id")
	if _, ok := s.orders[id]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
		return
	}
	var req domain.TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	s.transactions[id] = append(s.transactions[id], req)
	c.Status(http.StatusOK)
}

func (s *Server) paymentSummary(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.begin(c, metrics.CommerceOpPaymentSummary) {
		return
	}
	order, ok := s.orders[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
		return
	}
	var req domain.PaymentSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	paid, err := decimal.NewFromString(req.PaidTotal.String())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	order.PaidTotal = paid
	order.PaymentStatus = req.PaymentStatus
	c.Status(http.StatusOK)
}

func (s *Server) convert(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.begin(c, metrics.CommerceOpConvertDraftOrder) {
		return
	}
	order, ok := s.orders[c.Param("id")]
	if !ok || !order.IsDraftOrder {
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
		return
	}
	order.IsDraftOrder = false
	order.Status = "pending"
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (s *Server) delete(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.begin(c, metrics.CommerceOpDeleteDraftOrder) {
		return
	}
	id := c.Param("id")
	if _, ok := s.orders[id]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
		return
	}
	delete(s.orders, id)
	c.Status(http.StatusOK)
}

func cloneMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

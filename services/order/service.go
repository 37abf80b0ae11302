package order

import (
	"net/http"

	"giftvoucher/pkg/errutil"
	"giftvoucher/pkg/task"
	"giftvoucher/services/code"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

// Service is the cart-facing surface: customers apply and remove codes on
// an in-progress order, and the host commerce system reports completed
// orders here for asynchronous issuance and settlement.
type Service struct {
	code     *code.Service
	storage  CodeStorage
	enqueuer task.Enqueuer
}

type ServiceParams struct {
	fx.In
	Code     *code.Service
	Storage  CodeStorage
	Enqueuer task.Enqueuer
}

func NewService(p ServiceParams) *Service {
	return &Service{code: p.Code, storage: p.Storage, enqueuer: p.Enqueuer}
}

func RegisterRoutes(engine *gin.Engine, s *Service) {
	g := engine.Group("/api/orders/:orderId")
	g.POST("/complete", s.handleCompleteOrder)
	g.POST("/codes", s.handleApplyCode)
	g.GET("/codes", s.handleListCodes)
	g.DELETE("/codes/:codeKey", s.handleRemoveCode)
}

type completeOrderRequest struct {
	LineItems   []LineItem   `json:"line_items"`
	Adjustments []Adjustment `json:"adjustments"`
}

func (s *Service) handleCompleteOrder(c *gin.Context) {
	var req completeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	t, err := NewOrderCompletedTask(OrderCompletedPayload{
		OrderID:     c.Param("orderId"),
		LineItems:   req.LineItems,
		Adjustments: req.Adjustments,
	})
	if err != nil {
		c.Error(errutil.Internal("failed to build order task", errutil.WithErr(err)))
		return
	}

	info, err := s.enqueuer.Enqueue(t, asynq.Queue("critical"))
	if err != nil {
		c.Error(errutil.Internal("failed to enqueue order task", errutil.WithErr(err)))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID})
}

type applyCodeRequest struct {
	CodeKey string `json:"code_key" binding:"required"`
}

func (s *Service) handleApplyCode(c *gin.Context) {
	var req applyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	matched, err := s.code.MatchCode(c.Request.Context(), req.CodeKey)
	if err != nil {
		if me, ok := err.(*code.MatchError); ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"applied": false,
				"reason":  me.Reason,
				"message": me.Message,
			})
			return
		}
		c.Error(errutil.Internal("failed to match code", errutil.WithErr(err)))
		return
	}

	orderID := c.Param("orderId")
	if err := s.storage.Add(c.Request.Context(), orderID, matched.CodeKey); err != nil {
		c.Error(errutil.Internal("failed to store applied code", errutil.WithErr(err)))
		return
	}

	c.JSON(http.StatusOK, gin.H{"applied": true, "code": matched})
}

func (s *Service) handleListCodes(c *gin.Context) {
	keys, err := s.storage.Keys(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		c.Error(errutil.Internal("failed to list applied codes", errutil.WithErr(err)))
		return
	}
	c.JSON(http.StatusOK, gin.H{"code_keys": keys})
}

func (s *Service) handleRemoveCode(c *gin.Context) {
	if err := s.storage.Remove(c.Request.Context(), c.Param("orderId"), c.Param("codeKey")); err != nil {
		c.Error(errutil.Internal("failed to remove applied code", errutil.WithErr(err)))
		return
	}
	c.Status(http.StatusNoContent)
}

package voucher

import (
	"context"
	"net/http"
	"strconv"

	"giftvoucher/pkg/db/option"
	"giftvoucher/pkg/errutil"
	"giftvoucher/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	voucherType repository.Repository[VoucherType]
	voucher     repository.Repository[Voucher]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		voucherType: repository.ProvideStore[VoucherType](p.DB),
		voucher:     repository.ProvideStore[Voucher](p.DB),
	}
}

type CreateVoucherTypeRequest struct {
	Name   string `json:"name" binding:"required"`
	Handle string `json:"handle"`
}

func (s *Service) CreateVoucherType(ctx context.Context, req CreateVoucherTypeRequest) (*VoucherType, error) {
	if req.Name == "" {
		return nil, errutil.BadRequest("name is required")
	}

	handle := req.Handle
	if handle == "" {
		handle = slug.Make(req.Name)
	}

	existing, err := s.voucherType.FindOne(ctx, &VoucherType{Handle: handle})
	if err != nil {
		return nil, errutil.Internal("failed to check voucher type handle", errutil.WithErr(err))
	}
	if existing != nil {
		return nil, errutil.Conflict("voucher type handle already in use")
	}

	vt := VoucherType{
		TypeID: s.node.Generate().String(),
		Name:   req.Name,
		Handle: handle,
	}
	if err := s.voucherType.Create(ctx, &vt); err != nil {
		return nil, errutil.Internal("failed to create voucher type", errutil.WithErr(err))
	}

	return &vt, nil
}

type CreateVoucherRequest struct {
	TypeID       string  `json:"type_id" binding:"required"`
	Name         string  `json:"name" binding:"required"`
	Handle       string  `json:"handle"`
	SKU          string  `json:"sku"`
	Price        float64 `json:"price"`
	ExpiryMonths *int    `json:"expiry_months"`
	Enabled      *bool   `json:"enabled"`
}

func (s *Service) CreateVoucher(ctx context.Context, req CreateVoucherRequest) (*Voucher, error) {
	if req.Name == "" || req.TypeID == "" {
		return nil, errutil.BadRequest("type_id and name are required")
	}
	if req.Price < 0 {
		return nil, errutil.ValidationFailed("price must not be negative")
	}
	if req.ExpiryMonths != nil && *req.ExpiryMonths < 0 {
		return nil, errutil.ValidationFailed("expiry_months must not be negative")
	}

	vt, err := s.voucherType.FindOne(ctx, &VoucherType{TypeID: req.TypeID})
	if err != nil {
		return nil, errutil.Internal("failed to fetch voucher type", errutil.WithErr(err))
	}
	if vt == nil {
		return nil, errutil.BadRequest("voucher type not found")
	}

	handle := req.Handle
	if handle == "" {
		handle = slug.Make(req.Name)
	}

	existing, err := s.voucher.FindOne(ctx, &Voucher{Handle: handle})
	if err != nil {
		return nil, errutil.Internal("failed to check voucher handle", errutil.WithErr(err))
	}
	if existing != nil {
		return nil, errutil.Conflict("voucher handle already in use")
	}

	var sku *string
	if req.SKU != "" {
		taken, err := s.voucher.FindOne(ctx, &Voucher{SKU: &req.SKU})
		if err != nil {
			return nil, errutil.Internal("failed to check voucher sku", errutil.WithErr(err))
		}
		if taken != nil {
			return nil, errutil.Conflict("voucher sku already in use")
		}
		sku = &req.SKU
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	v := Voucher{
		VoucherID:    s.node.Generate().String(),
		TypeID:       req.TypeID,
		Name:         req.Name,
		Handle:       handle,
		SKU:          sku,
		Price:        req.Price,
		ExpiryMonths: req.ExpiryMonths,
		Enabled:      enabled,
	}
	if err := s.voucher.Create(ctx, &v); err != nil {
		return nil, errutil.Internal("failed to create voucher", errutil.WithErr(err))
	}

	return &v, nil
}

func (s *Service) GetVoucher(ctx context.Context, voucherID string) (*Voucher, error) {
	v, err := s.voucher.FindOne(ctx, &Voucher{VoucherID: voucherID})
	if err != nil {
		return nil, errutil.Internal("failed to fetch voucher", errutil.WithErr(err))
	}
	if v == nil {
		return nil, errutil.NotFound("voucher not found")
	}
	return v, nil
}

type UpdateVoucherRequest struct {
	Name         *string  `json:"name"`
	Price        *float64 `json:"price"`
	ExpiryMonths *int     `json:"expiry_months"`
	Enabled      *bool    `json:"enabled"`
}

// UpdateVoucher applies a partial update. Handle and SKU are immutable once
// issued codes may reference the voucher.
func (s *Service) UpdateVoucher(ctx context.Context, voucherID string, req UpdateVoucherRequest) (*Voucher, error) {
	existing, err := s.voucher.FindOne(ctx, &Voucher{VoucherID: voucherID})
	if err != nil {
		return nil, errutil.Internal("failed to fetch voucher", errutil.WithErr(err))
	}
	if existing == nil {
		return nil, errutil.NotFound("voucher not found")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, errutil.ValidationFailed("name must not be empty")
		}
		updates["name"] = *req.Name
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, errutil.ValidationFailed("price must not be negative")
		}
		updates["price"] = *req.Price
	}
	if req.ExpiryMonths != nil {
		if *req.ExpiryMonths < 0 {
			return nil, errutil.ValidationFailed("expiry_months must not be negative")
		}
		updates["expiry_months"] = *req.ExpiryMonths
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if len(updates) == 0 {
		return existing, nil
	}

	if err := s.voucher.Update(ctx, voucherID, updates); err != nil {
		return nil, errutil.Internal("failed to update voucher", errutil.WithErr(err))
	}

	return s.GetVoucher(ctx, voucherID)
}

type ListVouchersRequest struct {
	Limit   int
	OrderBy string
}

func (s *Service) ListVouchers(ctx context.Context, req ListVouchersRequest) ([]*Voucher, error) {
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	vouchers, err := s.voucher.Find(ctx, &Voucher{},
		option.WithLimit(limit),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: req.OrderBy,
			Allow:   map[string]bool{"created_at": true, "name": true},
		}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list vouchers", errutil.WithErr(err))
	}
	return vouchers, nil
}

func RegisterRoutes(engine *gin.Engine, s *Service) {
	g := engine.Group("/api/vouchers")
	g.POST("/types", s.handleCreateVoucherType)
	g.POST("", s.handleCreateVoucher)
	g.GET("", s.handleListVouchers)
	g.GET("/:voucherId", s.handleGetVoucher)
	g.PUT("/:voucherId", s.handleUpdateVoucher)
}

func (s *Service) handleCreateVoucherType(c *gin.Context) {
	var req CreateVoucherTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	vt, err := s.CreateVoucherType(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, vt)
}

func (s *Service) handleCreateVoucher(c *gin.Context) {
	var req CreateVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	v, err := s.CreateVoucher(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (s *Service) handleGetVoucher(c *gin.Context) {
	v, err := s.GetVoucher(c.Request.Context(), c.Param("voucherId"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Service) handleUpdateVoucher(c *gin.Context) {
	var req UpdateVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	v, err := s.UpdateVoucher(c.Request.Context(), c.Param("voucherId"), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Service) handleListVouchers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	vouchers, err := s.ListVouchers(c.Request.Context(), ListVouchersRequest{
		Limit:   limit,
		OrderBy: c.Query("order_by"),
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vouchers": vouchers})
}

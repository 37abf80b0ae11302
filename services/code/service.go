package code

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"giftvoucher/pkg/config"
	"giftvoucher/pkg/db/option"
	"giftvoucher/pkg/errutil"
	"giftvoucher/pkg/repository"
	"giftvoucher/services/voucher"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const dateLayout = "20060102"

// Hooks lets the host application customise code behaviour without forking
// the service. All fields are optional.
type Hooks struct {
	// GenerateCodeKey supplies the next code key instead of the random
	// generator. Returned keys are still checked for uniqueness.
	GenerateCodeKey func(ctx context.Context) (string, bool)

	// BeforeMatchCode runs before the stored lookup. A non-nil error
	// rejects the key with the error's message as the customer-facing
	// reason.
	BeforeMatchCode func(ctx context.Context, codeKey string) error

	// PopulateCode mutates a code after defaults are applied and before it
	// is persisted.
	PopulateCode func(ctx context.Context, c *Code) error
}

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	keygen *KeyGenerator
	cfg    *config.Config
	hooks  Hooks

	code    repository.Repository[Code]
	voucher repository.Repository[voucher.Voucher]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
	Hooks  *Hooks `optional:"true"`
}

func NewService(p ServiceParams) (*Service, error) {
	keygen, err := NewKeyGenerator(p.Config.Voucher.CodeKeyAlphabet, p.Config.Voucher.CodeKeyLength)
	if err != nil {
		return nil, err
	}

	s := &Service{
		db:     p.DB,
		node:   p.Node,
		keygen: keygen,
		cfg:    p.Config,

		code:    repository.ProvideStore[Code](p.DB),
		voucher: repository.ProvideStore[voucher.Voucher](p.DB),
	}
	if p.Hooks != nil {
		s.hooks = *p.Hooks
	}
	return s, nil
}

// IsCodeKeyUnique reports whether no stored code carries the given key.
func (s *Service) IsCodeKeyUnique(ctx context.Context, codeKey string) (bool, error) {
	count, err := s.code.Count(ctx, &Code{CodeKey: codeKey})
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

const maxKeyAttempts = 100

// GenerateUniqueCodeKey draws keys until one is free of collisions. The
// attempt cap only trips when the key space is nearly saturated or an
// override hook keeps returning a taken key.
func (s *Service) GenerateUniqueCodeKey(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		var key string
		if s.hooks.GenerateCodeKey != nil {
			if k, ok := s.hooks.GenerateCodeKey(ctx); ok {
				key = k
			}
		}
		if key == "" {
			k, err := s.keygen.Generate()
			if err != nil {
				return "", err
			}
			key = k
		}

		unique, err := s.IsCodeKeyUnique(ctx, key)
		if err != nil {
			return "", err
		}
		if unique {
			return key, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique code key after %d attempts", maxKeyAttempts)
}

// MatchCode resolves a customer-supplied key to a redeemable code. Failures
// come back as *MatchError with a message safe to show at checkout. Balance
// is checked before expiry, so a drained expired code reads as exhausted.
func (s *Service) MatchCode(ctx context.Context, codeKey string) (*Code, error) {
	if s.hooks.BeforeMatchCode != nil {
		if err := s.hooks.BeforeMatchCode(ctx, codeKey); err != nil {
			return nil, &MatchError{Reason: ReasonRejected, Message: err.Error()}
		}
	}

	c, err := s.code.FindOne(ctx, &Code{CodeKey: codeKey})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errNotFound()
	}

	if c.CurrentAmount <= 0 {
		return nil, errExhausted()
	}

	if c.ExpiryDate != nil {
		today := time.Now().Format(dateLayout)
		if c.ExpiryDate.Format(dateLayout) < today {
			return nil, errExpired()
		}
	}

	return c, nil
}

// IssueCodeInput describes one code to mint from a purchased line item.
type IssueCodeInput struct {
	VoucherID  string
	OrderID    string
	LineItemID string
	Amount     float64
	Options    map[string]interface{}
}

// CreateFromLineItem mints a single code inside the given transaction (pass
// nil outside one). Expiry comes from the voucher's override when set,
// otherwise the configured default; zero months means no expiry.
func (s *Service) CreateFromLineItem(ctx context.Context, tx *gorm.DB, in IssueCodeInput) (*Code, error) {
	if in.Amount <= 0 {
		return nil, errutil.ValidationFailed("code amount must be positive")
	}

	v, err := s.voucher.WithTrx(tx).FindOne(ctx, &voucher.Voucher{VoucherID: in.VoucherID})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errutil.BadRequest("voucher not found")
	}

	key, err := s.GenerateUniqueCodeKey(ctx)
	if err != nil {
		return nil, err
	}

	c := &Code{
		CodeID:         s.node.Generate().String(),
		CodeKey:        key,
		VoucherID:      in.VoucherID,
		OrderID:        in.OrderID,
		LineItemID:     in.LineItemID,
		OriginalAmount: in.Amount,
		CurrentAmount:  in.Amount,
		ExpiryDate:     s.resolveExpiry(v),
	}

	if len(in.Options) > 0 {
		raw, err := json.Marshal(in.Options)
		if err != nil {
			return nil, fmt.Errorf("marshal custom fields: %w", err)
		}
		c.CustomFields = datatypes.JSON(raw)
	}

	if s.hooks.PopulateCode != nil {
		if err := s.hooks.PopulateCode(ctx, c); err != nil {
			return nil, err
		}
	}

	if err := s.code.WithTrx(tx).Create(ctx, c); err != nil {
		return nil, err
	}

	zap.L().Info("issued gift voucher code",
		zap.String("code_id", c.CodeID),
		zap.String("voucher_id", c.VoucherID),
		zap.String("order_id", c.OrderID),
		zap.Float64("amount", c.OriginalAmount),
	)

	return c, nil
}

func (s *Service) resolveExpiry(v *voucher.Voucher) *time.Time {
	months := s.cfg.Voucher.DefaultExpiryMonths
	if v.ExpiryMonths != nil {
		months = *v.ExpiryMonths
	}
	if months <= 0 {
		return nil
	}

	now := time.Now()
	expiry := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
		AddDate(0, months, 0)
	return &expiry
}

// ValidateLineItem checks a voucher line item before it enters a cart. The
// options blob is the host commerce system's custom-field payload; it only
// needs to be well-formed JSON object material here.
func (s *Service) ValidateLineItem(ctx context.Context, voucherID string, qty int, options map[string]interface{}) error {
	if qty <= 0 {
		return errutil.ValidationFailed("quantity must be positive")
	}

	v, err := s.voucher.FindOne(ctx, &voucher.Voucher{VoucherID: voucherID})
	if err != nil {
		return errutil.Internal("failed to fetch voucher", errutil.WithErr(err))
	}
	if v == nil {
		return errutil.BadRequest("voucher not found")
	}
	if !v.Enabled {
		return errutil.ValidationFailed("voucher is not available for purchase")
	}

	if options != nil {
		if _, err := json.Marshal(options); err != nil {
			return errutil.ValidationFailed("line item options are not serialisable")
		}
	}
	return nil
}

// ListExpiredWithBalance returns codes whose expiry has passed but which
// still carry value. Used by the sweep task for operator visibility.
func (s *Service) ListExpiredWithBalance(ctx context.Context, now time.Time) ([]*Code, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.code.Find(ctx, &Code{},
		option.ApplyOperator(option.Condition{Field: "expiry_date", Operator: option.LT, Value: today}),
		option.ApplyOperator(option.Condition{Field: "current_amount", Operator: option.GT, Value: 0}),
	)
}

func RegisterRoutes(engine *gin.Engine, s *Service) {
	g := engine.Group("/api/codes")
	g.GET("/match/:codeKey", s.handleMatchCode)
	g.GET("/:codeKey", s.handleGetCode)
	g.POST("/validate-line-item", s.handleValidateLineItem)
}

func (s *Service) handleMatchCode(c *gin.Context) {
	matched, err := s.MatchCode(c.Request.Context(), c.Param("codeKey"))
	if err != nil {
		if me, ok := err.(*MatchError); ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"matched": false,
				"reason":  me.Reason,
				"message": me.Message,
			})
			return
		}
		c.Error(errutil.Internal("failed to match code", errutil.WithErr(err)))
		return
	}

	c.JSON(http.StatusOK, gin.H{"matched": true, "code": matched})
}

type validateLineItemRequest struct {
	VoucherID string                 `json:"voucher_id" binding:"required"`
	Qty       int                    `json:"qty"`
	Options   map[string]interface{} `json:"options"`
}

func (s *Service) handleValidateLineItem(c *gin.Context) {
	var req validateLineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	if err := s.ValidateLineItem(c.Request.Context(), req.VoucherID, req.Qty, req.Options); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (s *Service) handleGetCode(c *gin.Context) {
	stored, err := s.code.FindOne(c.Request.Context(), &Code{CodeKey: c.Param("codeKey")})
	if err != nil {
		c.Error(errutil.Internal("failed to fetch code", errutil.WithErr(err)))
		return
	}
	if stored == nil {
		c.Error(errutil.NotFound("code not found"))
		return
	}
	c.JSON(http.StatusOK, stored)
}

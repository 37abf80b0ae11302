package redemption

import (
	"context"
	"errors"
	"net/http"

	"giftvoucher/pkg/db/option"
	"giftvoucher/pkg/errutil"
	"giftvoucher/pkg/repository"
	"giftvoucher/services/code"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrUnresolvedCode means the adjustment referenced a code key that no
// longer resolves; nothing is written in that case.
var ErrUnresolvedCode = errors.New("redemption references an unknown code")

// ErrBalanceConflict means the adjustment would push the balance below zero
// or above the original amount. The transaction is rolled back.
var ErrBalanceConflict = errors.New("redemption would leave balance out of bounds")

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	code       repository.Repository[code.Code]
	redemption repository.Repository[Redemption]
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

		code:       repository.ProvideStore[code.Code](p.DB),
		redemption: repository.ProvideStore[Redemption](p.DB),
	}
}

// ApplyRedemption adjusts a code's balance and records the ledger entry in
// one transaction. amount is the signed delta (negative for consumption).
// The balance update is a conditional write: zero rows affected means a
// concurrent redemption won the race or the delta breaches the bounds, and
// the whole transaction rolls back.
func (s *Service) ApplyRedemption(ctx context.Context, codeKey, orderID string, amount float64) (*Redemption, error) {
	resolved, err := s.code.FindOne(ctx, &code.Code{CodeKey: codeKey})
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, ErrUnresolvedCode
	}
	return s.ApplyRedemptionByCodeID(ctx, resolved.CodeID, orderID, amount)
}

// ApplyRedemptionByCodeID is the id-keyed form used once settlement has
// resolved the snapshot key.
func (s *Service) ApplyRedemptionByCodeID(ctx context.Context, codeID, orderID string, amount float64) (*Redemption, error) {
	entry := &Redemption{
		RedemptionID: s.node.Generate().String(),
		CodeID:       codeID,
		OrderID:      orderID,
		Amount:       amount,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&code.Code{}).
			Where("code_id = ? AND current_amount + ? >= 0 AND current_amount + ? <= original_amount",
				codeID, amount, amount).
			Update("current_amount", gorm.Expr("current_amount + ?", amount))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&code.Code{}).Where("code_id = ?", codeID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrUnresolvedCode
			}
			return ErrBalanceConflict
		}

		return s.redemption.WithTrx(tx).Create(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("applied redemption",
		zap.String("redemption_id", entry.RedemptionID),
		zap.String("code_id", codeID),
		zap.String("order_id", orderID),
		zap.Float64("amount", amount),
	)

	return entry, nil
}

// ListByCodeKey returns the ledger entries for a code, oldest first.
func (s *Service) ListByCodeKey(ctx context.Context, codeKey string) ([]*Redemption, error) {
	resolved, err := s.code.FindOne(ctx, &code.Code{CodeKey: codeKey})
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, ErrUnresolvedCode
	}

	return s.redemption.Find(ctx, &Redemption{CodeID: resolved.CodeID},
		option.WithSortBy(option.QuerySortBy{
			SortBy: "created_at",
			Allow:  map[string]bool{"created_at": true},
		}),
	)
}

func RegisterRoutes(engine *gin.Engine, s *Service) {
	engine.GET("/api/codes/:codeKey/redemptions", s.handleListRedemptions)
}

func (s *Service) handleListRedemptions(c *gin.Context) {
	entries, err := s.ListByCodeKey(c.Request.Context(), c.Param("codeKey"))
	if err != nil {
		if errors.Is(err, ErrUnresolvedCode) {
			c.Error(errutil.NotFound("code not found"))
			return
		}
		c.Error(errutil.Internal("failed to list redemptions", errutil.WithErr(err)))
		return
	}
	c.JSON(http.StatusOK, gin.H{"redemptions": entries})
}

package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"giftvoucher/services/code"
	"giftvoucher/services/redemption"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Task struct {
	db         *gorm.DB
	code       *code.Service
	redemption *redemption.Service
	storage    CodeStorage
}

type TaskParams struct {
	fx.In

	DB         *gorm.DB
	Code       *code.Service
	Redemption *redemption.Service
	Storage    CodeStorage
}

func NewTask(p TaskParams) *Task {
	return &Task{
		db:         p.DB,
		code:       p.Code,
		redemption: p.Redemption,
		storage:    p.Storage,
	}
}

// HandleOrderCompletedTask mints codes for purchased vouchers, then settles
// the balances of codes the customer applied to the order. Business-rule
// failures (a single bad line item, an unresolvable snapshot) are logged and
// skipped so the rest of the order still processes; only malformed payloads
// and infrastructure errors bubble up for asynq to retry.
func (s *Task) HandleOrderCompletedTask(ctx context.Context, t *asynq.Task) error {
	var payload OrderCompletedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if payload.OrderID == "" {
		return fmt.Errorf("invalid payload: order_id is required")
	}

	zapLog := zap.L().With(
		zap.String("task_type", t.Type()),
		zap.String("order_id", payload.OrderID),
	)
	zapLog.Info("start order completed task")

	s.issueCodes(ctx, zapLog, payload)
	if err := s.settleRedemptions(ctx, zapLog, payload); err != nil {
		return err
	}

	zapLog.Info("finished order completed task")
	return nil
}

func (s *Task) issueCodes(ctx context.Context, zapLog *zap.Logger, payload OrderCompletedPayload) {
	for _, item := range payload.LineItems {
		if item.PurchasableType != PurchasableTypeVoucher {
			continue
		}

		for i := 0; i < item.Qty; i++ {
			_, err := s.code.CreateFromLineItem(ctx, nil, code.IssueCodeInput{
				VoucherID:  item.PurchasableID,
				OrderID:    payload.OrderID,
				LineItemID: item.LineItemID,
				Amount:     item.Price,
				Options:    item.Options,
			})
			if err != nil {
				zapLog.Error("failed to issue code for line item",
					zap.String("line_item_id", item.LineItemID),
					zap.String("voucher_id", item.PurchasableID),
					zap.Error(err),
				)
				break
			}
		}
	}
}

func (s *Task) settleRedemptions(ctx context.Context, zapLog *zap.Logger, payload OrderCompletedPayload) error {
	keys, err := s.storage.Keys(ctx, payload.OrderID)
	if err != nil {
		return fmt.Errorf("read order code storage: %w", err)
	}
	if len(keys) == 0 {
		zapLog.Info("no codes in storage for order, skipping settlement")
		return nil
	}

	for _, adj := range payload.Adjustments {
		if adj.Type != AdjustmentTypeGiftVoucher {
			continue
		}

		codeKey, ok := adj.CodeKeyFromSnapshot()
		if !ok {
			zapLog.Warn("gift voucher adjustment without code key snapshot",
				zap.Float64("amount", adj.Amount),
			)
			continue
		}

		if _, err := s.redemption.ApplyRedemption(ctx, codeKey, payload.OrderID, adj.Amount); err != nil {
			switch {
			case errors.Is(err, redemption.ErrUnresolvedCode):
				zapLog.Warn("adjustment references unknown code",
					zap.String("code_key", codeKey),
				)
			case errors.Is(err, redemption.ErrBalanceConflict):
				zapLog.Warn("adjustment exceeds code balance",
					zap.String("code_key", codeKey),
					zap.Float64("amount", adj.Amount),
				)
			default:
				zapLog.Error("failed to apply redemption",
					zap.String("code_key", codeKey),
					zap.Float64("amount", adj.Amount),
					zap.Error(err),
				)
			}
			continue
		}
	}

	if err := s.storage.Clear(ctx, payload.OrderID); err != nil {
		zapLog.Error("failed to clear order code storage", zap.Error(err))
	}
	return nil
}

// HandleSweepExpiredTask reports codes whose expiry has passed while value
// remains. Balances are kept: expiry is enforced at match time, the sweep
// exists for operator visibility.
func (s *Task) HandleSweepExpiredTask(ctx context.Context, t *asynq.Task) error {
	expired, err := s.code.ListExpiredWithBalance(ctx, time.Now())
	if err != nil {
		return err
	}

	for _, c := range expired {
		zap.L().Info("expired code with remaining balance",
			zap.String("code_id", c.CodeID),
			zap.String("code_key", c.CodeKey),
			zap.Float64("current_amount", c.CurrentAmount),
			zap.Timep("expiry_date", c.ExpiryDate),
		)
	}

	zap.L().Info("expiry sweep finished", zap.Int("expired_with_balance", len(expired)))
	return nil
}

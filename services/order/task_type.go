package order

import (
	"encoding/json"

	"giftvoucher/pkg/taskname"

	"github.com/hibiken/asynq"
)

const (
	// PurchasableTypeVoucher marks line items that mint gift voucher codes.
	PurchasableTypeVoucher = "voucher"

	// AdjustmentTypeGiftVoucher marks order adjustments created by applying
	// a code at checkout. The adjustment amount is the signed delta taken
	// from the code's balance.
	AdjustmentTypeGiftVoucher = "giftVoucher"
)

type LineItem struct {
	LineItemID      string                 `json:"line_item_id"`
	PurchasableID   string                 `json:"purchasable_id"`
	PurchasableType string                 `json:"purchasable_type"`
	Qty             int                    `json:"qty"`
	Price           float64                `json:"price"`
	Options         map[string]interface{} `json:"options,omitempty"`
}

type Adjustment struct {
	Type           string                 `json:"type"`
	Amount         float64                `json:"amount"`
	SourceSnapshot map[string]interface{} `json:"source_snapshot,omitempty"`
}

// OrderCompletedPayload is what the host commerce system publishes when an
// order is paid. It carries everything issuance and settlement need so the
// worker never calls back into the host.
type OrderCompletedPayload struct {
	OrderID     string       `json:"order_id"`
	LineItems   []LineItem   `json:"line_items"`
	Adjustments []Adjustment `json:"adjustments"`
}

func NewOrderCompletedTask(payload OrderCompletedPayload) (*asynq.Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.OrderCompleted, raw), nil
}

func NewSweepExpiredTask() *asynq.Task {
	return asynq.NewTask(taskname.CodeSweepExpired, nil)
}

// CodeKeyFromSnapshot digs the applied code key out of an adjustment's
// source snapshot.
func (a Adjustment) CodeKeyFromSnapshot() (string, bool) {
	if a.SourceSnapshot == nil {
		return "", false
	}
	key, ok := a.SourceSnapshot["codeKey"].(string)
	return key, ok && key != ""
}

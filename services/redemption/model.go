package redemption

import (
	"time"
)

// Redemption is one ledger entry against a code. Amount is the signed delta
// applied to the balance: consumption is negative, refunds positive. The
// code's original amount plus the sum of its redemption amounts always
// equals its current amount.
type Redemption struct {
	RedemptionID string    `gorm:"column:redemption_id;primaryKey" json:"redemption_id"`
	CodeID       string    `gorm:"column:code_id;index;not null" json:"code_id"`
	OrderID      string    `gorm:"column:order_id;index" json:"order_id,omitempty"`
	Amount       float64   `gorm:"column:amount;not null" json:"amount"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

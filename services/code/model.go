package code

import (
	"time"

	"gorm.io/datatypes"
)

// Code is a stored-value voucher code. CodeKey is the customer-facing
// identifier printed on the gift card; it never changes after issuance.
// CurrentAmount is derived state: OriginalAmount plus the sum of all
// redemption amounts recorded against the code.
type Code struct {
	CodeID  string `gorm:"column:code_id;primaryKey" json:"code_id"`
	CodeKey string `gorm:"column:code_key;uniqueIndex;not null" json:"code_key"`

	VoucherID  string `gorm:"column:voucher_id;index" json:"voucher_id"`
	OrderID    string `gorm:"column:order_id;index" json:"order_id,omitempty"`
	LineItemID string `gorm:"column:line_item_id" json:"line_item_id,omitempty"`

	OriginalAmount float64 `gorm:"column:original_amount;not null" json:"original_amount"`
	CurrentAmount  float64 `gorm:"column:current_amount;not null" json:"current_amount"`

	// ExpiryDate is compared at date granularity: a code expiring today is
	// still redeemable until midnight. Nil means the code never expires.
	ExpiryDate *time.Time `gorm:"column:expiry_date" json:"expiry_date,omitempty"`

	CustomFields datatypes.JSON `gorm:"column:custom_fields" json:"custom_fields,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

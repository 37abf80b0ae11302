package voucher

import (
	"time"
)

// VoucherType groups vouchers into categories (gift card, store credit,
// promotional) and carries presentation metadata only.
type VoucherType struct {
	TypeID    string    `gorm:"column:type_id;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Handle    string    `gorm:"column:handle;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Voucher is the purchasable product definition codes are minted from.
// The commerce host owns orders and line items; this service only needs the
// product's face value and expiry policy at issuance time.
type Voucher struct {
	VoucherID string  `gorm:"column:voucher_id;primaryKey"`
	TypeID    string  `gorm:"column:type_id;index;not null"`
	Name   string `gorm:"column:name;not null"`
	Handle string `gorm:"column:handle;uniqueIndex;not null"`

	// SKU is nil when the host assigns none; the unique index only applies
	// to vouchers that carry one.
	SKU *string `gorm:"column:sku;uniqueIndex"`

	Price float64 `gorm:"column:price;not null;default:0"`

	// ExpiryMonths overrides the configured default expiry for codes minted
	// from this voucher. Nil means use the default; zero means never expire.
	ExpiryMonths *int `gorm:"column:expiry_months"`

	Enabled   bool      `gorm:"column:enabled"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	// Relations
	Type *VoucherType `gorm:"foreignKey:TypeID;references:TypeID"`
}

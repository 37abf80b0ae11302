package rediskey

import "fmt"

// Key prefixes shared between the API and the worker.
const (
	OrderCodesPrefix = "order:codes"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildOrderCodesKey returns "order:codes:{orderID}" — the transient set of
// voucher code keys applied to an in-progress order.
func BuildOrderCodesKey(orderID string) string {
	return NamespaceKey(OrderCodesPrefix, orderID)
}

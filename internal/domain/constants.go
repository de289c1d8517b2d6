package domain

import "strconv"

// Roles carried in the storefront's access tokens.
const (
	RoleCustomer = "CUSTOMER"
	RoleStaff    = "STAFF"
	RoleAdmin    = "ADMIN"
)

// DefaultInstance is the checkout UI instance used when the client does not name one.
const DefaultInstance = "default"

// InstanceHeader lets one customer run independent checkout UIs (e.g. two tabs).
const InstanceHeader = "X-Checkout-Instance"

// SessionKey identifies one customer's checkout UI instance.
func SessionKey(userID uint, instance string) string {
	return strconv.FormatUint(uint64(userID), 10) + ":" + instance
}

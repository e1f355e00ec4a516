package models

type UserStatus string
type UserRole string

const (
	UserStatusPending   UserStatus = "pending"
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"

	// Staff-side roles
	UserRoleAdmin UserRole = "admin"
	UserRoleAgent UserRole = "agent"

	// Subject-side roles
	UserRoleCustomer UserRole = "customer"
	UserRoleGuest    UserRole = "guest"
)

// ValidRole reports whether the role is one the core recognizes.
func ValidRole(r UserRole) bool {
	switch r {
	case UserRoleAdmin, UserRoleAgent, UserRoleCustomer, UserRoleGuest:
		return true
	}
	return false
}

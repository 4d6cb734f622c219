package enums

import "fmt"

// UserStatus gates whether an account may place orders.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusInactive  UserStatus = "inactive"
)

var validUserStatuses = []UserStatus{
	UserStatusActive,
	UserStatusSuspended,
	UserStatusInactive,
}

// String implements fmt.Stringer.
func (v UserStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known UserStatus.
func (v UserStatus) IsValid() bool {
	for _, candidate := range validUserStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseUserStatus converts raw input into a UserStatus.
func ParseUserStatus(value string) (UserStatus, error) {
	for _, candidate := range validUserStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user status %q", value)
}

package entities

import "time"

type UserRole string

const (
	UserRoleAdmin     UserRole = "admin"
	UserRoleLibrarian UserRole = "librarian"
	UserRoleMember    UserRole = "member"
)

// IsStaff reports whether the role belongs to library staff. Staff manage the
// catalog and the borrower registry and may never be registered as borrowers.
func (r UserRole) IsStaff() bool {
	return r == UserRoleAdmin || r == UserRoleLibrarian
}

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleLibrarian, UserRoleMember:
		return true
	}
	return false
}

type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Username         string     `gorm:"uniqueIndex;size:100" json:"username"`
	Email            string     `gorm:"uniqueIndex;size:255" json:"email"`
	PasswordHash     string     `gorm:"size:255" json:"-"`
	Role             UserRole   `gorm:"size:20;not null" json:"role"`
	TokenHash        string     `gorm:"index;size:64" json:"-"`
	TokenCreatedAt   *time.Time `json:"-"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	FailedLoginCount int        `json:"-"`
	LockedUntil      *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (u *User) IsStaff() bool {
	return u.Role.IsStaff()
}

const (
	CapabilityBorrow = "can_borrow"
	CapabilityReturn = "can_return"
)

// BorrowerCapabilities are granted to a principal for as long as it is linked
// to a borrower record.
var BorrowerCapabilities = []string{CapabilityBorrow, CapabilityReturn}

type Capability struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Codename string `gorm:"uniqueIndex;size:100" json:"codename"`
	Name     string `gorm:"size:255" json:"name"`
}

// UserCapability is the join row between a principal and a capability it holds.
type UserCapability struct {
	UserID       uint      `gorm:"primaryKey;autoIncrement:false"`
	CapabilityID uint      `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt    time.Time `json:"created_at"`
}

func (UserCapability) TableName() string {
	return "user_capabilities"
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRole defines allowed roles in the system
type UserRole string

const (
	RoleCustomer        UserRole = "customer"
	RoleRestaurantOwner UserRole = "restaurant_owner"
	RoleAdmin           UserRole = "admin"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleCustomer, RoleRestaurantOwner, RoleAdmin:
		return true
	}
	return false
}

// PostalAddress is shared by users, restaurants and orders.
type PostalAddress struct {
	Street  string `json:"street" validate:"max=100"`
	City    string `json:"city" validate:"max=50"`
	State   string `json:"state" validate:"max=50"`
	ZipCode string `json:"zipCode" validate:"max=12"`
}

type User struct {
	ID           string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name         string        `json:"name" gorm:"not null"`
	Email        string        `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string        `json:"-" gorm:"not null"`
	Role         UserRole      `json:"role" gorm:"not null;index"`
	Phone        string        `json:"phone"`
	Address      PostalAddress `json:"address" gorm:"embedded;embeddedPrefix:address_"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

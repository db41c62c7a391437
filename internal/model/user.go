package model

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// User is a registered participant. Email is the ledger identity.
type User struct {
	BaseModel
	Name         string    `gorm:"type:varchar(255);not null" json:"name" validate:"required,max=255"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email" validate:"required,email"`
	Password     string    `gorm:"type:varchar(255);not null" json:"-"` // Hidden from JSON
	Role         Role      `gorm:"type:varchar(20);not null;index" json:"role"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`
	RegisteredAt time.Time `json:"registered_at"`
}

// SetPassword hashes and sets the user's password
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword verifies if the provided password matches the stored hash
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// Principal returns the ledger identity for the user.
func (u *User) Principal() Principal {
	return Principal{Identity: u.Email, Role: ParseRole(string(u.Role))}
}

// UserResponse is used for API responses (without sensitive data)
type UserResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	RegisteredAt time.Time `json:"registered_at"`
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Role:         u.Role,
		IsActive:     u.IsActive,
		RegisteredAt: u.RegisteredAt,
	}
}

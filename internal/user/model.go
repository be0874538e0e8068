package user

import (
	"github.com/google/uuid"
)

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,alphanum"`
	FullName string `json:"fullName" validate:"max=120"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phoneNumber" validate:"omitempty,e164"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest accepts a username, an email or a phone number as identifier.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
}

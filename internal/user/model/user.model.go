package model

import (
	"encoding/json"
	"time"

	appdata "appsync/internal/appdata/model"
	"appsync/pkg/timex"
)

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MarshalJSON never includes the password hash.
func (u User) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        int64  `json:"id"`
		Username  string `json:"username"`
		Email     string `json:"email"`
		CreatedAt string `json:"created_at"`
		UpdatedAt string `json:"updated_at"`
	}{u.ID, u.Username, u.Email, timex.Format(u.CreatedAt), timex.Format(u.UpdatedAt)})
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=80"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required,min=6"`
}

// Rules for fields that UpdateProfileRequest carries as Optional values.
const (
	EmailRule    = "required,email,max=120"
	PasswordRule = "required,min=6"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	Email    appdata.Optional[string] `json:"email"`
	Password appdata.Optional[string] `json:"password"`
}

type RegisterResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	User        User   `json:"user"`
}

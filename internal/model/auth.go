package model

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ParticipantClaims are JWT claims for a study participant
type ParticipantClaims struct {
	Username string `json:"username"`
	StudyID  string `json:"studyId"`
	jwt.RegisteredClaims
}

// LoginRequest is the request body for participant login
type LoginRequest struct {
	Username   string `json:"username" validate:"required,max=64,alphanum"`
	AccessCode string `json:"accessCode"`
}

// LoginResponse is returned after successful login
type LoginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

package model

import "github.com/golang-jwt/jwt/v5"

// MentorClaims are JWT claims for the admin API
type MentorClaims struct {
	MentorID string `json:"mentorId"`
	jwt.RegisteredClaims
}

// LoginRequest is the request body for mentor login
type LoginRequest struct {
	Secret string `json:"secret"`
}

// LoginResponse is returned after successful login
type LoginResponse struct {
	Token    string `json:"token"`
	MentorID string `json:"mentorId"`
}

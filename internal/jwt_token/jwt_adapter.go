package jwttoken

import (
	"immimate/internal/platform/middleware"
)

// JWTServiceAdapter satisfies middleware.TokenValidator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(raw string) (*middleware.Identity, error) {
	claims, err := a.service.ValidateToken(raw)
	if err != nil {
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	return &middleware.Identity{UserID: userID, Email: claims.Email}, nil
}

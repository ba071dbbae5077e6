package auth

import (
	"errors"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
)

var (
	ErrInvalidToken = types.ErrInvalidToken
	ErrExpToken     = errors.New("expired token")
)

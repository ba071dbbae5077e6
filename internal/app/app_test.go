package app

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Temutjin2k/taxi-dispatch/config"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
)

func TestNewApplication_InvalidMode(t *testing.T) {
	cfg := config.Config{Mode: "ride-service"}

	_, err := NewApplication(context.Background(), cfg, logger.New(io.Discard, "test", logger.LevelError))
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestRun_WithoutService(t *testing.T) {
	a := &App{}
	assert.ErrorIs(t, a.Run(context.Background()), ErrServiceNotInitialized)
}

package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/retail-session-scraper/internal/config"
	"github.com/maltedev/retail-session-scraper/internal/session"
	"github.com/maltedev/retail-session-scraper/internal/session/sessiontest"
)

func TestNewIsLazy(t *testing.T) {
	t.Setenv("SESSION_POLICY", "per-operation")
	cfg, err := config.Load()
	require.NoError(t, err)

	launcher := sessiontest.NewLauncher()
	a, err := newApp(context.Background(), cfg, launcher, nil)
	require.NoError(t, err)

	assert.Equal(t, session.PolicyPerOperation, a.Service.Policy())
	assert.Zero(t, launcher.Launches(), "no browser before the first operation")
	assert.Nil(t, a.publisher)

	assert.NoError(t, a.Close())
}

func TestNewFailsWithoutRedis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "127.0.0.1:1")
	cfg, err := config.Load()
	require.NoError(t, err)

	_, err = newApp(context.Background(), cfg, sessiontest.NewLauncher(), nil)
	assert.ErrorContains(t, err, "failed to connect to redis")
}

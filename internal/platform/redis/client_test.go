package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"immimate/internal/platform/config"
)

func TestOptionsOverlayURL(t *testing.T) {
	opts, err := options(config.RedisConfig{
		URL:         "redis://:secret@cache:6380/3",
		PoolSize:    20,
		DialTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)
}

func TestOpen(t *testing.T) {
	client, err := Open(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client, "no URL means redis is off")

	_, err = Open(context.Background(), config.RedisConfig{URL: "http://nope"})
	assert.ErrorContains(t, err, "parse redis URL")
}

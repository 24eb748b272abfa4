package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOpen_BadConnString(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "postgres://%zz", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "db: parse config")
}

func TestOpen_Unreachable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Open(ctx, "postgres://kpi@127.0.0.1:1/kpi?connect_timeout=1", &PoolConfig{MaxConns: 2})
	assert.Error(t, err)
}

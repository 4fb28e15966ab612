package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolOptions_WithDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   PoolOptions
		want PoolOptions
	}{
		{"Empty", PoolOptions{}, PoolOptions{MaxConns: 20, MinConns: 2, PingTimeout: 5 * time.Second}},
		{"Tiny pool", PoolOptions{MaxConns: 1}, PoolOptions{MaxConns: 1, MinConns: 1, PingTimeout: 5 * time.Second}},
		{"Min above max", PoolOptions{MaxConns: 4, MinConns: 10}, PoolOptions{MaxConns: 4, MinConns: 2, PingTimeout: 5 * time.Second}},
		{"Explicit", PoolOptions{MaxConns: 50, MinConns: 5, PingTimeout: time.Second}, PoolOptions{MaxConns: 50, MinConns: 5, PingTimeout: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.withDefaults())
		})
	}
}

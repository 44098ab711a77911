package dynamodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateTTLDisabledWhenZero(t *testing.T) {
	s := &Store{}
	_, ok := s.calculateTTL()
	assert.False(t, ok)
}

func TestCalculateTTLIsFutureEpochSeconds(t *testing.T) {
	s := &Store{ttl: time.Hour}
	ttl, ok := s.calculateTTL()
	assert.True(t, ok)
	assert.Greater(t, ttl, time.Now().Unix())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "agent-checkpoints", cfg.TableName)
	assert.Equal(t, "us-east-1", cfg.Region)
}

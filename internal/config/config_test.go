package config

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "view", cfg.ReadMode)
	assert.Equal(t, time.Second, cfg.TxPollInterval)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("READ_MODE", "call")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TX_TIMEOUT", "90s")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "call", cfg.ReadMode)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 90*time.Second, cfg.TxTimeout)
}

func TestLoad_RejectsReadMode(t *testing.T) {
	t.Setenv("READ_MODE", "both")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_SignedReadsNeedAccessKey(t *testing.T) {
	t.Setenv("READ_MODE", "call")
	t.Setenv("WALLET_ACCESS_KEY", "false")
	_, err := Load()
	assert.ErrorContains(t, err, "WALLET_ACCESS_KEY")

	t.Setenv("READ_MODE", "view")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.AccessKey)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STOCK_ALLOW_NEGATIVE", "")
	t.Setenv("STOCK_MAX_RETRIES", "")
	t.Setenv("REQUEST_TIMEOUT", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()
	assert.False(t, cfg.AllowNegativeStock)
	assert.Equal(t, 3, cfg.StockMaxRetries)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STOCK_ALLOW_NEGATIVE", "true")
	t.Setenv("STOCK_MAX_RETRIES", "7")
	t.Setenv("REQUEST_TIMEOUT", "250ms")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")

	cfg := Load()
	assert.True(t, cfg.AllowNegativeStock)
	assert.Equal(t, 7, cfg.StockMaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RequestTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadIgnoresGarbage(t *testing.T) {
	t.Setenv("STOCK_MAX_RETRIES", "lots")
	t.Setenv("REQUEST_TIMEOUT", "-1s")

	cfg := Load()
	assert.Equal(t, 3, cfg.StockMaxRetries)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestParseSeed(t *testing.T) {
	got, err := ParseSeed("amox-250=100, ibu-400 = 5")
	assert.NoError(t, err)
	assert.Equal(t, map[string]int{"amox-250": 100, "ibu-400": 5}, got)

	_, err = ParseSeed("amox-250")
	assert.Error(t, err)
	_, err = ParseSeed("=3")
	assert.Error(t, err)

	got, err = ParseSeed("")
	assert.NoError(t, err)
	assert.Empty(t, got)
}

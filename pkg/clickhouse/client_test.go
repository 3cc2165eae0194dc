package clickhouse

import (
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	opts := options(ClientConfig{
		Host:        "ch",
		Port:        9000,
		Database:    "market",
		User:        "reader",
		Password:    "pw",
		DialTimeout: 5 * time.Second,
		MaxExecTime: 1500 * time.Millisecond,
		ReadOnly:    true,
	})
	assert.Equal(t, []string{"ch:9000"}, opts.Addr)
	assert.Equal(t, clickhouse.Native, opts.Protocol)
	assert.Equal(t, "market", opts.Auth.Database)
	assert.Equal(t, "reader", opts.Auth.Username)
	assert.Equal(t, 5*time.Second, opts.DialTimeout)
	assert.Equal(t, 2, opts.Settings["max_execution_time"])
	assert.Equal(t, 2, opts.Settings["readonly"])

	opts = options(ClientConfig{Host: "::1", Port: 8123, UseHTTP: true})
	assert.Equal(t, []string{"[::1]:8123"}, opts.Addr)
	assert.Equal(t, clickhouse.HTTP, opts.Protocol)
	assert.Empty(t, opts.Settings)
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)

	c, err := NewClient(WithHost("127.0.0.1"), WithPort(1))
	require.NoError(t, err)
	assert.NotNil(t, c.DB())
	assert.NoError(t, c.Close())
}

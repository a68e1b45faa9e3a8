package server

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/groupware/internal/logging"
	"github.com/dmitrijs2005/groupware/internal/server/config"
	"github.com/dmitrijs2005/groupware/internal/server/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	return c
}

func TestOpenDB_PoolSettings(t *testing.T) {
	c := defaults()
	c.DatabaseMaxOpenConns = 7

	db, err := OpenDB(c)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 7, db.Stats().MaxOpenConnections)
}

func TestNewNotifier(t *testing.T) {
	c := defaults()
	n, err := newNotifier(context.Background(), c, logging.Nop())
	require.NoError(t, err)
	require.IsType(t, events.Multi{}, n)
	assert.Len(t, n.(events.Multi), 1, "log only without a bucket")

	c.S3Bucket = "events"
	c.S3AccessKey, c.S3SecretKey = "key", "secret"
	c.S3BaseEndpoint = "http://127.0.0.1:9000"
	n, err = newNotifier(context.Background(), c, logging.Nop())
	require.NoError(t, err)
	multi := n.(events.Multi)
	require.Len(t, multi, 2)
	assert.IsType(t, &events.S3Archive{}, multi[1])
}

func TestNewApp(t *testing.T) {
	c := defaults()
	c.LogBackend = logging.BackendZerolog

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	defer app.Close()
	assert.NotNil(t, app.grpc)
	assert.NotNil(t, app.http)

	c.EndpointAddrHTTP = ""
	app2, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	defer app2.Close()
	assert.Nil(t, app2.http)
}

func TestNewApp_BadLogBackend(t *testing.T) {
	c := defaults()
	c.LogBackend = "syslog"
	_, err := NewApp(context.Background(), c)
	assert.Error(t, err)
}

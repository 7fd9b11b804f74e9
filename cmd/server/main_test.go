package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotkeeper/internal/config"
)

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{
		{"serve"},
		{"worker"},
		{"sweep"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"admin", "create"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	store, err := serve.Flags().GetString("store")
	require.NoError(t, err)
	assert.Equal(t, storePostgres, store)
}

func TestOpenStoresRejectsUnknownKind(t *testing.T) {
	_, log, err := setup()
	require.NoError(t, err)

	_, err = openStores(context.Background(), config.Config{StoreTimeout: time.Second}, "sqlite", log)
	assert.ErrorContains(t, err, "unknown store")
}

func TestOpenStoresMemorySeedsDemoService(t *testing.T) {
	_, log, err := setup()
	require.NoError(t, err)

	st, err := openStores(context.Background(), config.Config{StoreTimeout: time.Second}, storeMemory, log)
	require.NoError(t, err)
	defer st.close()
	assert.NoError(t, st.pinger.PingContext(context.Background()))
}

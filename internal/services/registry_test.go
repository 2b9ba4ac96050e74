package services

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/insightd/internal/config"
	"github.com/fyrsmithlabs/insightd/internal/store"
)

func TestNewRegistry_MemoryDriver(t *testing.T) {
	cfg := config.NewDefaultConfig()
	reg, err := NewRegistry(cfg, zaptest.NewLogger(t), Options{})
	require.NoError(t, err)
	defer reg.Close()

	require.NotNil(t, reg.Engine())
	require.NotNil(t, reg.Norms())
	_, ok := reg.Store().(*store.MemoryStore)
	assert.True(t, ok)
}

func TestNewRegistry_SQLiteDriver(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "insightd.db")

	reg, err := NewRegistry(cfg, zaptest.NewLogger(t), Options{})
	require.NoError(t, err)
	defer reg.Close()

	_, ok := reg.Store().(*store.SQLiteStore)
	assert.True(t, ok)
}

func TestNewRegistry_NilConfig(t *testing.T) {
	_, err := NewRegistry(nil, zaptest.NewLogger(t), Options{})
	require.Error(t, err)
}

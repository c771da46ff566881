package database

import (
	"path/filepath"
	"testing"
	"time"

	"go-seedvault/internal/config"
	"go-seedvault/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectSQLite(t *testing.T) {
	db, err := Connect(config.DatabaseConfig{
		Driver:        "sqlite",
		URL:           filepath.Join(t.TempDir(), "seedvault.db"),
		SlowThreshold: time.Second,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	require.NoError(t, db.AutoMigrate(&model.Chamber{}))

	chamber := &model.Chamber{Code: "CH-01", Name: "North", Status: model.ChamberActive}
	require.NoError(t, db.Create(chamber).Error)

	var count int64
	require.NoError(t, db.Model(&model.Chamber{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

package database

import (
	"context"
	"path/filepath"
	"server/config"
	"server/internal/logger"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Test database initialization and core functionality

func TestNew_FailsWithoutCacheServer(t *testing.T) {
	testConfig := config.Config{
		DatabaseDbPath:       ":memory:",
		DatabaseCacheAddress: "localhost",
		DatabaseCachePort:    6379,
	}

	// SQL setup succeeds; cache client creation fails without a running
	// valkey server, and New reports that.
	_, err := New(testConfig)
	assert.Error(t, err)
}

func TestNew_InvalidConfig(t *testing.T) {
	invalidConfig := config.Config{
		DatabaseDbPath:       "",
		DatabaseCacheAddress: "",
		DatabaseCachePort:    0,
	}

	_, err := New(invalidConfig)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database path is empty")
}

func TestInitializeSQLiteDB_Success(t *testing.T) {
	db := &DB{
		log: logger.New("test"),
	}

	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	testConfig := config.Config{
		DatabaseDbPath: dbPath,
	}

	err := db.initializeSQLiteDB(&gorm.Config{}, testConfig)
	assert.NoError(t, err)
	assert.NotNil(t, db.SQL)
	assert.FileExists(t, dbPath)

	if db.SQL != nil {
		sqlDB, _ := db.SQL.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}
}

func TestInitializeSQLiteDB_EmptyPath(t *testing.T) {
	db := &DB{
		log: logger.New("test"),
	}

	err := db.initializeSQLiteDB(&gorm.Config{}, config.Config{DatabaseDbPath: ""})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database path is empty")
}

func TestInitializeSQLiteDB_InMemory(t *testing.T) {
	db := &DB{
		log: logger.New("test"),
	}

	err := db.initializeSQLiteDB(&gorm.Config{}, config.Config{DatabaseDbPath: ":memory:"})
	assert.NoError(t, err)
	assert.NotNil(t, db.SQL)

	sqlDB, err := db.SQL.DB()
	assert.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())

	_ = sqlDB.Close()
}

func TestClose_WithNilSQL(t *testing.T) {
	db := &DB{
		log: logger.New("test"),
		SQL: nil,
	}

	// Should not panic with nil SQL or nil cache clients
	err := db.Close()
	assert.NoError(t, err)
}

func TestSQLWithContext(t *testing.T) {
	db := &DB{
		log: logger.New("test"),
	}

	err := db.initializeSQLiteDB(&gorm.Config{}, config.Config{DatabaseDbPath: ":memory:"})
	require.NoError(t, err)

	gormDB := db.SQLWithContext(context.Background())
	assert.NotNil(t, gormDB)
	assert.NotEqual(t, db.SQL, gormDB) // Should be a new session with context

	sqlDB, _ := db.SQL.DB()
	_ = sqlDB.Close()
}

func TestInitializeCacheDB_MissingConfig(t *testing.T) {
	db := &DB{
		log: logger.New("test"),
	}

	err := db.initializeCacheDB(config.Config{
		DatabaseCacheAddress: "",
		DatabaseCachePort:    6379,
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "address or port is empty")

	err = db.initializeCacheDB(config.Config{
		DatabaseCacheAddress: "localhost",
		DatabaseCachePort:    0,
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "address or port is empty")
}

func TestCacheBuilder_NilClient(t *testing.T) {
	// Every cache op against a nil client errors instead of panicking, so
	// the repositories degrade cleanly when the cache is down.
	err := NewCacheBuilder(nil, "key").WithStruct("value").Set()
	assert.Error(t, err)

	var dest string
	found, err := NewCacheBuilder(nil, "key").Get(&dest)
	assert.False(t, found)
	assert.Error(t, err)

	err = NewCacheBuilder(nil, "key").Delete()
	assert.Error(t, err)
}

func TestCacheItem_NilClient(t *testing.T) {
	expiry := 30 * time.Minute
	item := CacheItem[string]{
		Cache:  nil,
		Key:    "test-key",
		Value:  "test-value",
		Expiry: &expiry,
	}

	ctx := context.Background()
	assert.Error(t, item.SetValue(ctx))
	assert.Error(t, item.DeleteCachedValue(ctx))

	var dest string
	found, err := item.GetValue(ctx, &dest)
	assert.False(t, found)
	assert.Error(t, err)
}

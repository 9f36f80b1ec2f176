// Package modeltest opens throwaway in-memory databases for tests.
package modeltest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"praxischat/model"
	"praxischat/platform"
)

// NewDB returns a migrated sqlite in-memory database private to t.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	cfg := &platform.Config{
		DatabaseURL: fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString()),
	}
	db, err := platform.OpenDB(cfg, platform.NewDiscardLogger())
	require.NoError(t, err)
	require.NoError(t, model.Migrate(db))
	t.Cleanup(func() { _ = platform.CloseDB(db) })
	return db
}

// NewStore wraps NewDB in a model.Store.
func NewStore(t testing.TB) *model.Store {
	t.Helper()
	return model.NewStore(NewDB(t))
}

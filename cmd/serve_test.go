//go:build !integration

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretext/arena-cli/internal/config"
	"github.com/caretext/arena-cli/internal/store"
)

func TestServeCmd_RunE_RejectsIncompleteConfig(t *testing.T) {
	// No session secret and no access codes: serve must refuse to start and
	// name every missing key in one pass.
	cfg = &config.Config{
		Store:      config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "arena.db")},
		Server:     config.ServerConfig{Port: 8080},
		Session:    config.SessionConfig{TokenTTLHours: 72},
		Tournament: config.TournamentConfig{FavoredMethods: []string{"H"}},
	}

	serveCmd.SetContext(context.Background())
	defer serveCmd.SetContext(context.TODO())

	err := serveCmd.RunE(serveCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.secret")
	assert.Contains(t, err.Error(), "session.access_codes")
}

func TestMigrateCmd_RunE_CreatesSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "arena.db")
	cfg = &config.Config{
		Store:      config.StoreConfig{Driver: "sqlite", DatabaseURL: dbPath},
		Tournament: config.TournamentConfig{FavoredMethods: []string{"H"}},
	}

	migrateCmd.SetContext(context.Background())
	defer migrateCmd.SetContext(context.TODO())

	require.NoError(t, migrateCmd.RunE(migrateCmd, nil))

	// The schema exists: counting votes on a fresh database succeeds.
	st, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	count, err := st.CountVotes(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMigrateCmd_RunE_RejectsUnknownDriver(t *testing.T) {
	cfg = &config.Config{
		Store:      config.StoreConfig{Driver: "mysql"},
		Tournament: config.TournamentConfig{FavoredMethods: []string{"H"}},
	}

	migrateCmd.SetContext(context.Background())
	defer migrateCmd.SetContext(context.TODO())

	err := migrateCmd.RunE(migrateCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFS_ContainsOrderedGooseFiles(t *testing.T) {
	t.Parallel()

	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.Equal(t, []string{"00001_users.sql", "00002_request_limiter.sql"}, names)

	for _, n := range names {
		b, err := fs.ReadFile(FS, n)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(string(b), "-- +goose Up"), n)
		require.Contains(t, string(b), "-- +goose Down", n)
	}
}

func TestUsersTableMatchesMigration(t *testing.T) {
	t.Parallel()

	b, err := fs.ReadFile(FS, "00001_users.sql")
	require.NoError(t, err)
	require.Contains(t, string(b), "CREATE TABLE IF NOT EXISTS "+UsersTable+" (")
}

package postgres

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://a:b@h:1/d", Host: "ignored"},
			want: "postgres://a:b@h:1/d",
		},
		{
			name: "defaults port and sslmode",
			cfg:  ClientConfig{Host: "db", Database: "arb", User: "u", Password: "p"},
			want: "postgres://u:p@db:5432/arb?sslmode=disable",
		},
		{
			name: "custom port and sslmode",
			cfg:  ClientConfig{Host: "db", Port: 6543, Database: "arb", User: "u", SSLMode: "require"},
			want: "postgres://u:@db:6543/arb?sslmode=require",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DSN(tt.cfg))
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"001_settings.sql", "002_arbitrages.sql", "003_matrix_snapshots.sql"}, names)
}

package database

import (
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/internship-placement-api/pkg/config"
)

func TestEmbeddedMigrationsAreReadable(t *testing.T) {
	source, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	defer source.Close()

	first, err := source.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, _, err := source.ReadUp(first)
	require.NoError(t, err)
	require.NoError(t, up.Close())
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "placements", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=placements sslmode=disable", dsn)
}

package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_Defaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := ParseConfig(v)
	require.NoError(t, err)

	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, time.Hour, cfg.Fraud.Window)
	assert.Equal(t, 3, cfg.Fraud.MaxRecent)
	assert.Equal(t, 5, cfg.Fraud.MaxUnits)
	assert.Equal(t, 1.5, cfg.Matcher.RadiusKm)
	assert.Equal(t, 5, cfg.Matcher.LeaderboardSize)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
}

func TestParseConfig_UnknownDriver(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("store.driver", "cassandra")

	_, err := ParseConfig(v)
	assert.Error(t, err)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("SMARTBLOOD_STORE_DRIVER", DriverMemory)
	t.Setenv("SMARTBLOOD_MATCHER_LEADERBOARD_SIZE", "10")

	v, err := LoadConfig()
	require.NoError(t, err)

	cfg, err := ParseConfig(v)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Matcher.LeaderboardSize)
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())
}

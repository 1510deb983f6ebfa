package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                "development",
		Port:               "8080",
		JWTSecret:          "secure-secret-at-least-32-chars-long",
		StoreDriver:        StoreDriverPostgres,
		DBPassword:         "secure-password",
		DBSSLMode:          "require",
		TracingSampleRatio: 1,
	}
}

func TestConfig_ValidateSSLMode(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		sslMode     string
		expectError bool
	}{
		{"Production with empty SSL mode", "production", "", true},
		{"Production with disable SSL mode", "production", "disable", true},
		{"Production with require SSL mode", "production", "require", false},
		{"Prod with verify-full SSL mode", "prod", "verify-full", false},
		{"Development with disable SSL mode", "development", "disable", false},
		{"Test with empty SSL mode", "test", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			c.Env = tt.env
			c.DBSSLMode = tt.sslMode

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateStoreDriver(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"postgres", func(c *Config) {}, false},
		{"sqlite in development", func(c *Config) { c.StoreDriver = StoreDriverSQLite }, false},
		{"sqlite in production", func(c *Config) { c.StoreDriver = StoreDriverSQLite; c.Env = "production" }, true},
		{"mongo with uri", func(c *Config) { c.StoreDriver = StoreDriverMongo; c.MongoURI = "mongodb://db" }, false},
		{"mongo without uri", func(c *Config) { c.StoreDriver = StoreDriverMongo }, true},
		{"unknown driver", func(c *Config) { c.StoreDriver = "cassandra" }, true},
		{"bad sample ratio", func(c *Config) { c.TracingSampleRatio = 1.5 }, true},
		{"default secret in production", func(c *Config) { c.Env = "production"; c.JWTSecret = defaultJWTSecret }, true},
		{"short secret in production", func(c *Config) { c.Env = "production"; c.JWTSecret = "short" }, true},
		{"missing port", func(c *Config) { c.Port = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_EnvOverridesAndNormalization(t *testing.T) {
	t.Cleanup(viper.Reset)

	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")
	t.Setenv("STORE_DRIVER", " SQLite ")
	t.Setenv("PORT", "9999")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, StoreDriverSQLite, c.StoreDriver)
	assert.Equal(t, "9999", c.Port)
	assert.Equal(t, "smedia-auth", c.JWTIssuer)
	assert.Equal(t, 25, c.DBMaxOpenConns)
}

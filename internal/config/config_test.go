package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("should apply defaults in memory mode", func(t *testing.T) {
		req := require.New(t)
		t.Setenv("JWT_SECRET", "s3cret")
		t.Setenv("STORE_DRIVER", "memory")
		t.Setenv("BLOB_DRIVER", "memory")

		cfg, err := Load()

		req.NoError(err)
		req.Equal(":8080", cfg.Addr)
		req.Equal(8, cfg.DeleteConcurrency)
		req.Equal(24*time.Hour, cfg.TokenTTL)
		req.Equal(2*time.Minute, cfg.PresenceTTL)
		req.Equal("nexus_chat_assets", cfg.BlobFolder)
	})

	t.Run("should require the jwt secret", func(t *testing.T) {
		req := require.New(t)
		t.Setenv("JWT_SECRET", "")
		t.Setenv("STORE_DRIVER", "memory")
		t.Setenv("BLOB_DRIVER", "memory")

		_, err := Load()

		req.Error(err)
	})
}

func TestValidate(t *testing.T) {
	valid := Config{
		JWTSecret: "x", StoreDriver: DriverPostgres, DSN: "postgres://",
		BlobDriver: DriverCloudinary, CloudinaryCloudName: "c", CloudinaryAPIKey: "k", CloudinaryAPISecret: "s",
		DeleteConcurrency: 4, TokenTTL: time.Hour, PresenceTTL: time.Minute,
	}

	t.Run("should accept a complete config", func(t *testing.T) {
		require.NoError(t, valid.Validate())
	})

	t.Run("should reject missing driver settings", func(t *testing.T) {
		req := require.New(t)
		cfg := valid
		cfg.DSN = ""
		cfg.CloudinaryAPISecret = ""

		err := cfg.Validate()

		req.ErrorContains(err, "DB_DSN")
		req.ErrorContains(err, "CLOUDINARY")
	})

	t.Run("should reject unknown drivers", func(t *testing.T) {
		cfg := valid
		cfg.StoreDriver = "mongo"
		require.ErrorContains(t, cfg.Validate(), "STORE_DRIVER")
	})
}

package config_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/okian/upready/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
				convey.So(cfg.CacheBackend, convey.ShouldEqual, config.CacheSQLite)
				convey.So(cfg.OpenAIAPIKey, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("UPREADY_ADDR", ":8080")
			_ = os.Setenv("UPREADY_QUEUE_SIZE", "500")
			_ = os.Setenv("UPREADY_FETCH_TIMEOUT_MS", "2500")
			_ = os.Setenv("UPREADY_BODY_TEMPERATURE_AVAILABLE", "true")
			_ = os.Setenv("UPREADY_CACHE_BACKEND", "redis")
			_ = os.Setenv("UPREADY_REDIS_DB", "3")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env vars override defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.FetchTimeoutMS, convey.ShouldEqual, 2500)
				convey.So(cfg.BodyTemperatureAvailable, convey.ShouldBeTrue)
				convey.So(cfg.CacheBackend, convey.ShouldEqual, config.CacheRedis)
				convey.So(cfg.RedisDB, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			tmpFile := createTempConfigFile(`
# local overrides
addr: ":9090"
timezone: "UTC"
queue_size: 300
refresh_schedule: "@every 15m"
birth_date: "1988-02-29"
openai_model: "gpt-4o"
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("UPREADY_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Timezone, convey.ShouldEqual, "UTC")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)
				convey.So(cfg.RefreshSchedule, convey.ShouldEqual, "@every 15m")
				convey.So(cfg.OpenAIModel, convey.ShouldEqual, "gpt-4o")
				convey.So(cfg.DatabasePath, convey.ShouldEqual, "data/upready.db")
			})

			convey.Convey("Then env vars win over the file", func() {
				_ = os.Setenv("UPREADY_ADDR", ":7070")
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("UPREADY_CONFIG", "/nonexistent/upready.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it fails to load", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a numeric variable is not a number", func() {
			_ = os.Setenv("UPREADY_QUEUE_SIZE", "lots")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it returns an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a value fails validation", func() {
			_ = os.Setenv("UPREADY_CACHE_BACKEND", "memcached")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it returns ErrInvalidConfig", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "cache_backend")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When only OPENAI_API_KEY is set", func() {
			_ = os.Setenv("OPENAI_API_KEY", "sk-test")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it is used as the summarizer key", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.OpenAIAPIKey, convey.ShouldEqual, "sk-test")
			})
		})

		convey.Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			_, err := config.Load(cctx)

			convey.Convey("Then loading is aborted", func() {
				convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, config.EnvPrefix) {
			_ = os.Unsetenv(key)
		}
	}
	_ = os.Unsetenv("OPENAI_API_KEY")
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "upready-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}

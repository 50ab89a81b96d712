package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Port   int    `env:"PORT" envDefault:"8080"`
		Origin string `env:"ORIGIN" envDefault:"http://localhost:3000"`
	}

	Redis struct {
		Host     string `env:"REDIS_HOST" envDefault:"localhost"`
		Port     int    `env:"REDIS_PORT" envDefault:"6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Discord struct {
		BotToken string `env:"BOT_TOKEN,required"`
		// Overridable for tests and proxies.
		APIBaseURL string `env:"DISCORD_API_URL" envDefault:"https://discord.com/api/v10"`
	}

	Giveaway struct {
		// Cadence of the countdown/participant-counter message refresh.
		RefreshInterval time.Duration `env:"GIVEAWAY_REFRESH_INTERVAL" envDefault:"30s"`
	}
}

func Load() *Config {
	// .env is optional; in production the variables are set directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		panic(err)
	}

	return cfg
}

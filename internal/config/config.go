package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port          string        `env:"PORT" envDefault:"8080"`
	DBPath        string        `env:"DB_PATH" envDefault:"./data/focusflow.db"`
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"change-this-secret"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"72h"`
	CORSOrigins   []string      `env:"CORS_ORIGINS" envDefault:"http://localhost:5173,http://127.0.0.1:5173"`
	MigrationsDir string        `env:"MIGRATIONS_DIR" envDefault:"./migrations"`

	// Session policy knobs. LongBreakEvery is the cycle interval at
	// which a completed work phase is followed by a long break instead
	// of a short one.
	DefaultWorkSeconds       int `env:"DEFAULT_WORK_SECONDS" envDefault:"1500"`
	DefaultShortBreakSeconds int `env:"DEFAULT_SHORT_BREAK_SECONDS" envDefault:"300"`
	DefaultLongBreakSeconds  int `env:"DEFAULT_LONG_BREAK_SECONDS" envDefault:"900"`
	DefaultTotalCycles       int `env:"DEFAULT_TOTAL_CYCLES" envDefault:"4"`
	LongBreakEvery           int `env:"LONG_BREAK_EVERY" envDefault:"4"`

	// SweepInterval drives the optional proactive phase-advance loop.
	// Zero or negative disables it; lazy advance on access still keeps
	// sessions correct.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5s"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.LongBreakEvery <= 0 {
		cfg.LongBreakEvery = 4
	}
	return cfg, nil
}

// /internal/config/config.go
package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

func init() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, falling back to system environment variables")
	}
}

// Config holds every tunable of the adversarial layer. Values come from the
// environment; defaults mirror the documented behavior so an empty env works.
type Config struct {
	StoragePath string `env:"STORAGE_PATH" envDefault:"datastore.json"`
	AIProvider  string `env:"AI_PROVIDER" envDefault:"pollinations"`

	// Sentiment
	SentimentThreshold float64 `env:"SENTIMENT_THRESHOLD" envDefault:"0.6"`

	// Pattern detection
	SpamWindow       time.Duration `env:"SPAM_WINDOW" envDefault:"10s"`
	SpamCount        int           `env:"SPAM_COUNT" envDefault:"5"`
	RepetitionWindow time.Duration `env:"REPETITION_WINDOW" envDefault:"30s"`
	RepetitionCount  int           `env:"REPETITION_COUNT" envDefault:"4"`
	AnomalyDeviation float64       `env:"ANOMALY_DEVIATION" envDefault:"2.5"`

	// Corruption
	CorruptionLevelMin float64 `env:"CORRUPTION_LEVEL_MIN" envDefault:"0.2"`
	CorruptionLevelMax float64 `env:"CORRUPTION_LEVEL_MAX" envDefault:"0.5"`

	// Grip and governance
	GripDurationMin    time.Duration `env:"GRIP_DURATION_MIN" envDefault:"5s"`
	GripDurationMax    time.Duration `env:"GRIP_DURATION_MAX" envDefault:"8s"`
	MaxActivationsHour int           `env:"MAX_ACTIVATIONS_HOUR" envDefault:"5"`
	CooldownSeconds    int           `env:"COOLDOWN_SECONDS" envDefault:"60"`

	// When true, messages arriving during a grip are rejected instead of
	// queued for re-routing on release.
	RejectDuringGrip bool `env:"REJECT_DURING_GRIP" envDefault:"false"`

	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"25s"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("[ERR] Failed to parse config from environment: %v", err)
	}
	if cfg.GripDurationMax < cfg.GripDurationMin {
		cfg.GripDurationMax = cfg.GripDurationMin
	}
	if cfg.CorruptionLevelMax < cfg.CorruptionLevelMin {
		cfg.CorruptionLevelMax = cfg.CorruptionLevelMin
	}
	return cfg
}

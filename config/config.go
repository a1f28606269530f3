package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Reputation: Schwellwerte als Vielfache der durchschnittlichen
	// Reputation-pro-Paper eines Fachgebiets.
	ReputationThresholdReview  float64 `envconfig:"REPUTATION_THRESHOLD_REVIEW" default:"10"`
	ReputationThresholdReferee float64 `envconfig:"REPUTATION_THRESHOLD_REFEREE" default:"20"`
	ReputationPerCitation      float64 `envconfig:"REPUTATION_PER_CITATION" default:"10"`
	ReviewAcceptAward          int64   `envconfig:"REVIEW_ACCEPT_AWARD" default:"25"`
	VoteMinResponseWords       int     `envconfig:"VOTE_MIN_RESPONSE_WORDS" default:"125"`

	// Externe Zitat-Quelle für die Reputations-Initialisierung. Leer lassen
	// für den produktiven Europe PMC Endpunkt.
	EuropePMCURL string `envconfig:"EUROPEPMC_URL"`

	// Cron für die Neuberechnung der Fachgebiets-Durchschnitte.
	FieldAverageCronSchedule string `envconfig:"FIELD_AVERAGE_CRON_SCHEDULE" default:"0 3 * * *"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	BaseURL           string
	TrainEndpoint     string
	RecognizeEndpoint string
	HTTPTimeout       time.Duration
	PollInterval      time.Duration
	PollTimeout       time.Duration

	TrainDataDir    string
	TrainCollection string
	LineHeight      int
	TrainIterations int
	SaveFrequency   int

	ModelPath         string
	VisualizationPath string
	ModelCollection   string
	ModelName         string

	RecoDataDir    string
	RecoCollection string
	RecoModel      string
	RecognizedDir  string

	SkipUpload bool
	Database   string
}

// Load reads configuration from the environment, providing the demo defaults.
func Load() (Config, error) {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()

	cfg := Config{
		BaseURL:           getEnv("DIVA_BASE_URL", "http://divaservices.unifr.ch/api/v2"),
		TrainEndpoint:     getEnv("DIVA_TRAIN_ENDPOINT", "ocr/ocropustraining/1"),
		RecognizeEndpoint: getEnv("DIVA_RECOGNIZE_ENDPOINT", "ocr/ocropusrecognize/1"),
		TrainDataDir:      getEnv("TRAIN_DATA_DIR", "trainData"),
		TrainCollection:   getEnv("TRAIN_COLLECTION", "ocr_train_example"),
		ModelPath:         getEnv("MODEL_PATH", "outputs/models/minModel.pyrnn.gz"),
		VisualizationPath: getEnv("VISUALIZATION_PATH", "outputs/visualization/trainingError.png"),
		ModelCollection:   getEnv("MODEL_COLLECTION", "ocr_models"),
		ModelName:         getEnv("MODEL_NAME", "greekPoly"),
		RecoDataDir:       getEnv("RECO_DATA_DIR", "recoData"),
		RecoCollection:    getEnv("RECO_COLLECTION", "ocr_reco_example"),
		RecoModel:         getEnv("RECO_MODEL", "ocr_models/greekPoly.gz"),
		RecognizedDir:     getEnv("RECOGNIZED_DIR", "recognizedText"),
	}
	// An explicitly empty DATABASE_PATH disables the journal.
	cfg.Database = "./data/ocrjobs.db"
	if val, ok := os.LookupEnv("DATABASE_PATH"); ok {
		cfg.Database = val
	}

	var err error
	if cfg.HTTPTimeout, err = getDuration("DIVA_HTTP_TIMEOUT", 300*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PollInterval, err = getDuration("DIVA_POLL_INTERVAL", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PollTimeout, err = getDuration("DIVA_POLL_TIMEOUT", 0); err != nil {
		return Config{}, err
	}
	if cfg.LineHeight, err = getInt("LINE_HEIGHT", 46); err != nil {
		return Config{}, err
	}
	if cfg.TrainIterations, err = getInt("TRAIN_ITERATIONS", 500); err != nil {
		return Config{}, err
	}
	if cfg.SaveFrequency, err = getInt("SAVE_FREQUENCY", 100); err != nil {
		return Config{}, err
	}
	if cfg.SkipUpload, err = getBool("SKIP_UPLOAD", false); err != nil {
		return Config{}, err
	}

	if cfg.Database != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
			return Config{}, fmt.Errorf("ensure database dir %s: %w", cfg.Database, err)
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	val := getEnv(key, "")
	if val == "" {
		return fallback, nil
	}
	n, err := cast.ToIntE(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, val, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return fallback, nil
	}
	// A bare number is a count of seconds.
	if secs, err := cast.ToFloat64E(val); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("parse %s=%q: negative duration", key, val)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := cast.ToDurationE(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, val, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	val := getEnv(key, "")
	if val == "" {
		return fallback, nil
	}
	b, err := cast.ToBoolE(val)
	if err != nil {
		return false, fmt.Errorf("parse %s=%q: %w", key, val, err)
	}
	return b, nil
}

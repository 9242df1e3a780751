package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"flow-anomaly/internal/common"
	"flow-anomaly/internal/ml"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	DataPath       string
	BundleKey      string
	ServerPort     int
	RequestTimeout time.Duration
	ServiceURL     string

	DropColumns  []string
	LabelColumn  string
	NormalLabels []string

	Threshold      float64
	LearningRate   float64
	Epochs         int
	BatchSize      int
	PositiveWeight float64
	L2             float64
	Seed           int64

	DriftEnabled   bool
	DriftWindow    int
	DriftThreshold float64

	LogLevel  string
	LogFormat string
}

type ConfigFile struct {
	Storage struct {
		DataPath  string `yaml:"dataPath"`
		BundleKey string `yaml:"bundleKey"`
	} `yaml:"storage"`

	Server struct {
		Port           int    `yaml:"port"`
		RequestTimeout string `yaml:"requestTimeout"`
		ServiceURL     string `yaml:"serviceURL"`
	} `yaml:"server"`

	Pipeline struct {
		DropColumns  []string `yaml:"dropColumns"`
		LabelColumn  string   `yaml:"labelColumn"`
		NormalLabels []string `yaml:"normalLabels"`
	} `yaml:"pipeline"`

	Classifier struct {
		Threshold      float64 `yaml:"threshold"`
		LearningRate   float64 `yaml:"learningRate"`
		Epochs         int     `yaml:"epochs"`
		BatchSize      int     `yaml:"batchSize"`
		PositiveWeight float64 `yaml:"positiveWeight"`
		L2             float64 `yaml:"l2"`
		Seed           int64   `yaml:"seed"`
	} `yaml:"classifier"`

	Drift struct {
		Enabled   *bool   `yaml:"enabled"`
		Window    int     `yaml:"window"`
		Threshold float64 `yaml:"threshold"`
	} `yaml:"drift"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Load reads .env when present, then CONFIG_FILE if set, then the environment. Environment
// values override the YAML file.
func Load() (Settings, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Settings{}, err
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

// loadDotEnv never overrides variables already set in the process.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func defaults() Settings {
	return Settings{
		DataPath:       common.DefaultDataPath,
		ServerPort:     common.DefaultServerPort,
		RequestTimeout: 5 * time.Second,
		ServiceURL:     common.DefaultServiceURL,
		DropColumns:    append([]string(nil), common.DefaultDropColumns...),
		LabelColumn:    common.DefaultLabelColumn,
		NormalLabels:   append([]string(nil), common.DefaultNormalLabels...),
		Threshold:      common.DefaultThreshold,
		LearningRate:   common.DefaultLearningRate,
		Epochs:         common.DefaultEpochs,
		BatchSize:      common.DefaultBatchSize,
		PositiveWeight: common.DefaultPositiveWeight,
		L2:             common.DefaultL2,
		Seed:           common.DefaultSeed,
		DriftEnabled:   true,
		DriftWindow:    common.DefaultDriftWindow,
		DriftThreshold: common.DefaultDriftThreshold,
		LogLevel:       common.DefaultLogLevel,
		LogFormat:      common.DefaultLogFormat,
	}
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	s := defaults()
	s.DataPath = orString(config.Storage.DataPath, s.DataPath)
	s.BundleKey = orString(config.Storage.BundleKey, s.BundleKey)
	s.ServerPort = orInt(config.Server.Port, s.ServerPort)
	s.ServiceURL = orString(config.Server.ServiceURL, s.ServiceURL)
	if config.Server.RequestTimeout != "" {
		timeout, err := time.ParseDuration(config.Server.RequestTimeout)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid server.requestTimeout %q: %w", config.Server.RequestTimeout, err)
		}
		s.RequestTimeout = timeout
	}
	if config.Pipeline.DropColumns != nil {
		s.DropColumns = config.Pipeline.DropColumns
	}
	s.LabelColumn = orString(config.Pipeline.LabelColumn, s.LabelColumn)
	if len(config.Pipeline.NormalLabels) > 0 {
		s.NormalLabels = config.Pipeline.NormalLabels
	}
	s.Threshold = orFloat(config.Classifier.Threshold, s.Threshold)
	s.LearningRate = orFloat(config.Classifier.LearningRate, s.LearningRate)
	s.Epochs = orInt(config.Classifier.Epochs, s.Epochs)
	s.BatchSize = orInt(config.Classifier.BatchSize, s.BatchSize)
	s.PositiveWeight = orFloat(config.Classifier.PositiveWeight, s.PositiveWeight)
	s.L2 = orFloat(config.Classifier.L2, s.L2)
	if config.Classifier.Seed != 0 {
		s.Seed = config.Classifier.Seed
	}
	if config.Drift.Enabled != nil {
		s.DriftEnabled = *config.Drift.Enabled
	}
	s.DriftWindow = orInt(config.Drift.Window, s.DriftWindow)
	s.DriftThreshold = orFloat(config.Drift.Threshold, s.DriftThreshold)
	s.LogLevel = orString(config.Logging.Level, s.LogLevel)
	s.LogFormat = orString(config.Logging.Format, s.LogFormat)

	applyEnv(&s)

	if err := validateSettings(&s); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, nil
}

func loadFromEnv() (Settings, error) {
	s := defaults()
	applyEnv(&s)

	if err := validateSettings(&s); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, nil
}

func applyEnv(s *Settings) {
	s.DataPath = getEnvOrDefault(common.EnvDataPath, s.DataPath)
	s.BundleKey = getEnvOrDefault(common.EnvBundleKey, s.BundleKey)
	s.ServerPort = getIntOrDefault(common.EnvServerPort, s.ServerPort)
	s.RequestTimeout = getDurationOrDefault(common.EnvRequestTimeout, s.RequestTimeout)
	s.ServiceURL = getEnvOrDefault(common.EnvServiceURL, s.ServiceURL)
	s.DropColumns = splitOrDefault(os.Getenv(common.EnvDropColumns), s.DropColumns)
	s.LabelColumn = getEnvOrDefault(common.EnvLabelColumn, s.LabelColumn)
	s.NormalLabels = splitOrDefault(os.Getenv(common.EnvNormalLabels), s.NormalLabels)
	s.Threshold = getFloatOrDefault(common.EnvThreshold, s.Threshold)
	s.LearningRate = getFloatOrDefault(common.EnvLearningRate, s.LearningRate)
	s.Epochs = getIntOrDefault(common.EnvEpochs, s.Epochs)
	s.BatchSize = getIntOrDefault(common.EnvBatchSize, s.BatchSize)
	s.PositiveWeight = getFloatOrDefault(common.EnvPositiveWeight, s.PositiveWeight)
	s.L2 = getFloatOrDefault(common.EnvL2, s.L2)
	s.Seed = int64(getIntOrDefault(common.EnvSeed, int(s.Seed)))
	s.DriftEnabled = getBoolOrDefault(common.EnvDriftEnabled, s.DriftEnabled)
	s.DriftWindow = getIntOrDefault(common.EnvDriftWindow, s.DriftWindow)
	s.DriftThreshold = getFloatOrDefault(common.EnvDriftThreshold, s.DriftThreshold)
	s.LogLevel = getEnvOrDefault(common.EnvLogLevel, s.LogLevel)
	s.LogFormat = getEnvOrDefault(common.EnvLogFormat, s.LogFormat)
}

// LogisticConfig returns the classifier hyperparameters.
func (s *Settings) LogisticConfig() ml.LogisticConfig {
	return ml.LogisticConfig{
		LearningRate:   s.LearningRate,
		Epochs:         s.Epochs,
		BatchSize:      s.BatchSize,
		PositiveWeight: s.PositiveWeight,
		L2:             s.L2,
		Seed:           s.Seed,
		Threshold:      s.Threshold,
	}
}

// DriftConfig returns the serving drift monitor settings.
func (s *Settings) DriftConfig() ml.DriftConfig {
	return ml.DriftConfig{
		Enabled:    s.DriftEnabled,
		WindowSize: s.DriftWindow,
		Threshold:  s.DriftThreshold,
	}
}

// SetupLogging configures the global zerolog logger. format "console" writes human-readable
// output to stderr; anything else writes JSON.
func SetupLogging(level, format string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orFloat(v, def float64) float64 {
	if v != 0 {
		return v
	}
	return def
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.DataPath == "" {
		return fmt.Errorf("data path cannot be empty")
	}
	if settings.ServerPort < 1 || settings.ServerPort > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", settings.ServerPort)
	}
	if settings.RequestTimeout < 10*time.Millisecond || settings.RequestTimeout > time.Minute {
		return fmt.Errorf("request timeout must be between 10ms and 1m, got %v", settings.RequestTimeout)
	}
	if settings.LabelColumn == "" {
		return fmt.Errorf("label column cannot be empty")
	}
	if len(settings.NormalLabels) == 0 {
		return fmt.Errorf("at least one normal label must be specified")
	}

	if settings.Threshold <= 0 || settings.Threshold >= 1 {
		return fmt.Errorf("threshold must be between 0 and 1 exclusive, got %f", settings.Threshold)
	}
	if settings.LearningRate <= 0 || settings.LearningRate > 10 {
		return fmt.Errorf("learning rate must be in (0, 10], got %f", settings.LearningRate)
	}
	if settings.Epochs <= 0 || settings.Epochs > 100000 {
		return fmt.Errorf("epochs must be between 1 and 100000, got %d", settings.Epochs)
	}
	if settings.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", settings.BatchSize)
	}
	if settings.PositiveWeight <= 0 {
		return fmt.Errorf("positive weight must be positive, got %f", settings.PositiveWeight)
	}
	if settings.L2 < 0 {
		return fmt.Errorf("l2 penalty cannot be negative, got %f", settings.L2)
	}

	if settings.DriftWindow <= 0 || settings.DriftWindow > 1000000 {
		return fmt.Errorf("drift window must be between 1 and 1000000, got %d", settings.DriftWindow)
	}
	if settings.DriftThreshold <= 0 {
		return fmt.Errorf("drift threshold must be positive, got %f", settings.DriftThreshold)
	}

	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", settings.LogLevel)
	}
	if settings.LogFormat != "json" && settings.LogFormat != "console" {
		return fmt.Errorf("log format must be json or console, got %q", settings.LogFormat)
	}

	return nil
}

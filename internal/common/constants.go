package common

// Environment variable keys
const (
	EnvConfigFile     = "CONFIG_FILE"
	EnvDataPath       = "DATA_PATH"
	EnvBundleKey      = "BUNDLE_KEY"
	EnvServerPort     = "SERVER_PORT"
	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvDropColumns    = "DROP_COLUMNS"
	EnvLabelColumn    = "LABEL_COLUMN"
	EnvNormalLabels   = "NORMAL_LABELS"
	EnvThreshold      = "THRESHOLD"
	EnvLearningRate   = "LEARNING_RATE"
	EnvEpochs         = "EPOCHS"
	EnvBatchSize      = "BATCH_SIZE"
	EnvPositiveWeight = "POSITIVE_WEIGHT"
	EnvL2             = "L2"
	EnvSeed           = "SEED"
	EnvDriftEnabled   = "DRIFT_ENABLED"
	EnvDriftWindow    = "DRIFT_WINDOW"
	EnvDriftThreshold = "DRIFT_THRESHOLD"
	EnvServiceURL     = "SERVICE_URL"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
)

// Configuration defaults
const (
	DefaultDataPath       = "models"
	DefaultServerPort     = 8000
	DefaultLabelColumn    = "label"
	DefaultThreshold      = 0.5
	DefaultLearningRate   = 0.1
	DefaultEpochs         = 100
	DefaultBatchSize      = 64
	DefaultPositiveWeight = 5.0 // ratio of normal to anomalous flows in the reference data
	DefaultL2             = 1e-4
	DefaultSeed           = 42
	DefaultDriftWindow    = 1000
	DefaultDriftThreshold = 3.0 // training standard deviations
	DefaultServiceURL     = "http://localhost:8000"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
)

// DefaultDropColumns are identifier columns removed before fitting.
var DefaultDropColumns = []string{"flow id", "timestamp", "label"}

// DefaultNormalLabels are label values that mark a benign flow.
var DefaultNormalLabels = []string{"benign", "normal", "0"}

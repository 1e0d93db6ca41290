package types

// ProjectConfig is the top-level ledgerlens.yaml configuration.
type ProjectConfig struct {
	Provider  string          `yaml:"provider" validate:"required,oneof=postgres redis"`
	Postgres  *PostgresConfig `yaml:"postgres,omitempty" validate:"required_if=Provider postgres"`
	Redis     *RedisConfig    `yaml:"redis,omitempty" validate:"required_if=Provider redis"`
	Engine    EngineConfig    `yaml:"engine"`
	Alerts    []AlertConfig   `yaml:"alerts,omitempty" validate:"dive"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
	Export    ExportConfig    `yaml:"export,omitempty"`
}

// PostgresConfig holds the analytical database connection settings.
type PostgresConfig struct {
	DSN    string `yaml:"dsn" validate:"required"`
	Schema string `yaml:"schema,omitempty"`
}

// RedisConfig holds Redis/Valkey connection and key settings.
type RedisConfig struct {
	Addr      string `yaml:"addr" validate:"required"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty" validate:"gte=0"`
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
	RunLimit  int    `yaml:"runLimit,omitempty" validate:"gte=0"` // runs kept in the ledger index, default 100
}

// EngineConfig holds the computation parameters of a run.
type EngineConfig struct {
	ChurnThresholdDays int    `yaml:"churnThresholdDays" validate:"gte=0"`
	EvaluatedAt        string `yaml:"evaluatedAt,omitempty"` // RFC 3339; empty means wall clock at run start
	Workers            int    `yaml:"workers,omitempty" validate:"gte=0"`
	MinAffinitySupport int    `yaml:"minAffinitySupport,omitempty" validate:"gte=0"`
	LockTTL            string `yaml:"lockTtl,omitempty"`
}

// AlertConfig configures one alert sink.
type AlertConfig struct {
	Type AlertType `yaml:"type" validate:"required,oneof=console file webhook"`
	Path string    `yaml:"path,omitempty" validate:"required_if=Type file"`
	URL  string    `yaml:"url,omitempty" validate:"required_if=Type webhook,omitempty,url"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format,omitempty" validate:"omitempty,oneof=json text"`
}

// TelemetryConfig configures OpenTelemetry export. An empty endpoint disables export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint,omitempty"`
	ServiceName  string `yaml:"serviceName,omitempty"`
	Insecure     bool   `yaml:"insecure,omitempty"`
}

// ExportConfig configures where the export command writes published tables.
type ExportConfig struct {
	Dir      string `yaml:"dir,omitempty"`
	S3Bucket string `yaml:"s3Bucket,omitempty"`
	S3Prefix string `yaml:"s3Prefix,omitempty"`
}

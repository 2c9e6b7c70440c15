package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del pipeline.
type Config struct {
	Sources    SourcesConfig    `yaml:"sources"`
	Warehouse  WarehouseConfig  `yaml:"warehouse"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Log        LogConfig        `yaml:"log"`
}

// SourcesConfig contiene los endpoints de las fuentes de ingesta.
type SourcesConfig struct {
	DataAPIBase  string `yaml:"data_api_base"`
	CLOBBase     string `yaml:"clob_base"`
	SubgraphBase string `yaml:"subgraph_base"` // vacío → fuente subgraph deshabilitada
	RPCURL       string `yaml:"rpc_url"`       // vacío → fuente on-chain deshabilitada
	StartBlock   uint64 `yaml:"start_block"`   // primer bloque a escanear sin checkpoint previo
}

// WarehouseConfig contiene la conexión a ClickHouse.
type WarehouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// CheckpointConfig controla dónde se persisten los cursores de ingesta.
type CheckpointConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// PipelineConfig controla la ejecución del pipeline.
type PipelineConfig struct {
	Workers int `yaml:"workers"`
}

// ReconcileConfig fija los umbrales de varianza (fracciones 0–1, no %).
type ReconcileConfig struct {
	PassTolerance float64 `yaml:"pass_tolerance"` // varianza ≤ pass → PASS
	WarnTolerance float64 `yaml:"warn_tolerance"` // varianza ≤ warn → WARN, mayor → FAIL
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
// Las credenciales del warehouse solo viven en el entorno, nunca en el YAML commiteado.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLICKHOUSE_ADDR"); v != "" {
		cfg.Warehouse.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_USER"); v != "" {
		cfg.Warehouse.Username = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		cfg.Warehouse.Password = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Sources.RPCURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Sources.DataAPIBase == "" {
		cfg.Sources.DataAPIBase = "https://data-api.polymarket.com"
	}
	if cfg.Sources.CLOBBase == "" {
		cfg.Sources.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.Warehouse.Addr == "" {
		cfg.Warehouse.Addr = "localhost:9000"
	}
	if cfg.Warehouse.Database == "" {
		cfg.Warehouse.Database = "polypnl"
	}
	if cfg.Checkpoint.DSN == "" {
		cfg.Checkpoint.DSN = "polypnl.db"
	}
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 8
	}
	if cfg.Reconcile.PassTolerance <= 0 {
		cfg.Reconcile.PassTolerance = 0.05
	}
	if cfg.Reconcile.WarnTolerance <= 0 {
		cfg.Reconcile.WarnTolerance = 0.10
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

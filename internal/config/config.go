package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/shardmeta/internal/domain/types"
	"github.com/dropDatabas3/shardmeta/internal/validation"
)

// Defaults. Los nombres de base y el marcador de versión los leen los
// nodos de cómputo y los storage nodes: no cambiarlos sin migrar.
const (
	DefaultMetaDatabase    = "Kunlun_Metadata_DB"
	DefaultVersionMarker   = "kunlun-storage"
	DefaultShardDatabase   = "postgres_$$_public"
	DefaultCatalogDatabase = "postgres"
	DefaultConnectTimeout  = 10 * time.Second
	DefaultMaxAttempts     = 10
	DefaultBackoff         = 2 * time.Second
)

// Node es un nodo del cluster de metadata tal como llega en la configuración.
// "ip" se acepta como alias de "host".
type Node struct {
	Host      string `yaml:"host" json:"host"`
	IP        string `yaml:"ip,omitempty" json:"ip,omitempty"`
	Port      int    `yaml:"port" json:"port"`
	User      string `yaml:"user" json:"user"`
	Password  string `yaml:"password" json:"password"`
	IsPrimary bool   `yaml:"is_primary,omitempty" json:"is_primary,omitempty"`
}

// HostAddr retorna host, o ip si host está vacío.
func (n Node) HostAddr() string {
	if h := strings.TrimSpace(n.Host); h != "" {
		return h
	}
	return strings.TrimSpace(n.IP)
}

type Config struct {
	Log struct {
		// dev | prod
		Env    string   `yaml:"env"`
		Level  string   `yaml:"level"`
		Output []string `yaml:"output"`
	} `yaml:"log"`

	// Meta es el cluster de metadata (MySQL, replicado con MGR por defecto).
	Meta struct {
		Database string `yaml:"database"`
		HAMode   string `yaml:"ha_mode"`
		Nodes    []Node `yaml:"nodes"`
	} `yaml:"meta"`

	Storage struct {
		// Nombres de adapter registrados en internal/store.
		MetaDriver    string `yaml:"meta_driver"`
		MemberDriver  string `yaml:"member_driver"`
		CatalogDriver string `yaml:"catalog_driver"`

		ConnectTimeout  time.Duration `yaml:"connect_timeout"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		CatalogDatabase string        `yaml:"catalog_database"`
	} `yaml:"storage"`

	Propagation struct {
		MaxAttempts int           `yaml:"max_attempts"`
		Backoff     time.Duration `yaml:"backoff"`
		// 0 = todos los nodos a la vez.
		Parallelism int `yaml:"parallelism"`
	} `yaml:"propagation"`

	Shards struct {
		DefaultDatabase  string `yaml:"default_database"`
		VersionMarker    string `yaml:"version_marker"`
		SkipVersionCheck bool   `yaml:"skip_version_check"`
	} `yaml:"shards"`

	Metrics struct {
		// Textfile: si no está vacío, las métricas de la corrida se escriben ahí
		// en formato texto de Prometheus (node_exporter textfile collector).
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
}

// Default retorna la configuración sin archivo ni env.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// Load lee path (vacío = sólo defaults), aplica defaults, overrides de env
// SHARDMETA_* y valida.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	// Normalizar el textfile (si es relativo) respecto al directorio del YAML
	if p := strings.TrimSpace(c.Metrics.Textfile); p != "" && path != "" && !filepath.IsAbs(p) {
		c.Metrics.Textfile = filepath.Clean(filepath.Join(filepath.Dir(path), p))
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Env == "" {
		c.Log.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Meta.Database == "" {
		c.Meta.Database = DefaultMetaDatabase
	}
	if c.Meta.HAMode == "" {
		c.Meta.HAMode = string(types.HAModeReplicated)
	}
	if c.Storage.MetaDriver == "" {
		c.Storage.MetaDriver = "mysql"
	}
	if c.Storage.MemberDriver == "" {
		c.Storage.MemberDriver = "mysql"
	}
	if c.Storage.CatalogDriver == "" {
		c.Storage.CatalogDriver = "postgres"
	}
	if c.Storage.ConnectTimeout == 0 {
		c.Storage.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Storage.CatalogDatabase == "" {
		c.Storage.CatalogDatabase = DefaultCatalogDatabase
	}
	if c.Propagation.MaxAttempts == 0 {
		c.Propagation.MaxAttempts = DefaultMaxAttempts
	}
	if c.Propagation.Backoff == 0 {
		c.Propagation.Backoff = DefaultBackoff
	}
	if c.Shards.DefaultDatabase == "" {
		c.Shards.DefaultDatabase = DefaultShardDatabase
	}
	if c.Shards.VersionMarker == "" {
		c.Shards.VersionMarker = DefaultVersionMarker
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

// applyEnvOverrides: pisa el YAML con variables SHARDMETA_*.
func (c *Config) applyEnvOverrides() {
	// LOG
	if v, ok := getEnvStr("SHARDMETA_LOG_ENV"); ok {
		c.Log.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SHARDMETA_LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}

	// META
	if v, ok := getEnvStr("SHARDMETA_META_DATABASE"); ok {
		c.Meta.Database = v
	}
	if v, ok := getEnvStr("SHARDMETA_META_HA_MODE"); ok {
		c.Meta.HAMode = v
	}

	// STORAGE
	if v, ok := getEnvStr("SHARDMETA_STORAGE_META_DRIVER"); ok {
		c.Storage.MetaDriver = v
	}
	if v, ok := getEnvStr("SHARDMETA_STORAGE_MEMBER_DRIVER"); ok {
		c.Storage.MemberDriver = v
	}
	if v, ok := getEnvStr("SHARDMETA_STORAGE_CATALOG_DRIVER"); ok {
		c.Storage.CatalogDriver = v
	}
	if v, ok := getEnvDur("SHARDMETA_STORAGE_CONNECT_TIMEOUT"); ok {
		c.Storage.ConnectTimeout = v
	}
	if v, ok := getEnvStr("SHARDMETA_STORAGE_CATALOG_DATABASE"); ok {
		c.Storage.CatalogDatabase = v
	}

	// PROPAGATION
	if v, ok := getEnvInt("SHARDMETA_PROPAGATION_MAX_ATTEMPTS"); ok {
		c.Propagation.MaxAttempts = v
	}
	if v, ok := getEnvDur("SHARDMETA_PROPAGATION_BACKOFF"); ok {
		c.Propagation.Backoff = v
	}
	if v, ok := getEnvInt("SHARDMETA_PROPAGATION_PARALLELISM"); ok {
		c.Propagation.Parallelism = v
	}

	// SHARDS
	if v, ok := getEnvStr("SHARDMETA_SHARDS_DEFAULT_DATABASE"); ok {
		c.Shards.DefaultDatabase = v
	}
	if v, ok := getEnvStr("SHARDMETA_SHARDS_VERSION_MARKER"); ok {
		c.Shards.VersionMarker = v
	}
	if v, ok := getEnvBool("SHARDMETA_SHARDS_SKIP_VERSION_CHECK"); ok {
		c.Shards.SkipVersionCheck = v
	}

	// METRICS
	if v, ok := getEnvStr("SHARDMETA_METRICS_TEXTFILE"); ok {
		c.Metrics.Textfile = v
	}
}

// MetaHAMode retorna el modo de replicación del cluster de metadata.
// Sólo es válido después de Validate.
func (c *Config) MetaHAMode() types.HAMode {
	m, _ := types.ParseHAMode(c.Meta.HAMode)
	return m
}

// Validate revisa los valores que, mal puestos, harían fallar una corrida
// a mitad de camino.
func (c *Config) Validate() error {
	if _, ok := types.ParseHAMode(c.Meta.HAMode); !ok {
		return fmt.Errorf("config: meta.ha_mode %q is not one of mgr, no_rep, rbr", c.Meta.HAMode)
	}
	if !validation.ValidClusterName(c.Meta.Database) {
		return fmt.Errorf("config: meta.database %q is not a valid database name", c.Meta.Database)
	}
	for i, n := range c.Meta.Nodes {
		if n.HostAddr() == "" {
			return fmt.Errorf("config: meta.nodes[%d]: host is required", i)
		}
		if !validation.ValidPort(n.Port) {
			return fmt.Errorf("config: meta.nodes[%d]: port %d out of range", i, n.Port)
		}
	}
	if c.Storage.MetaDriver == "" || c.Storage.MemberDriver == "" || c.Storage.CatalogDriver == "" {
		return fmt.Errorf("config: storage drivers must not be empty")
	}
	if c.Storage.ConnectTimeout < 0 {
		return fmt.Errorf("config: storage.connect_timeout must be >= 0")
	}
	if c.Propagation.MaxAttempts < 1 {
		return fmt.Errorf("config: propagation.max_attempts must be >= 1, got %d", c.Propagation.MaxAttempts)
	}
	if c.Propagation.Backoff < 0 {
		return fmt.Errorf("config: propagation.backoff must be >= 0")
	}
	if c.Propagation.Parallelism < 0 {
		return fmt.Errorf("config: propagation.parallelism must be >= 0")
	}
	if strings.ContainsAny(c.Shards.DefaultDatabase, "`;") {
		return fmt.Errorf("config: shards.default_database %q contains forbidden characters", c.Shards.DefaultDatabase)
	}
	return nil
}

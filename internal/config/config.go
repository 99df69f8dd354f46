// Package config loads the replication engine settings: the environment naming
// scheme, protected environments, storage drivers and scan tuning. Settings are
// layered as built-in defaults, then an optional YAML file, then CELLENICS_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"cellenics/internal/blob"
	"cellenics/internal/errs"
	"cellenics/internal/scan"
	"cellenics/internal/table"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CELLENICS"

// Config is the root configuration document.
type Config struct {
	// NamingEnv is the environment name embedded in catalog table and container
	// names. Names for other environments replace it.
	NamingEnv string `yaml:"naming_env"`
	// Protected environments never receive clones.
	Protected []string `yaml:"protected"`
	Region    string   `yaml:"region"`
	Tables    Tables   `yaml:"tables"`
	// Environments overrides table settings per environment name.
	Environments map[string]Tables `yaml:"environments"`
	Blob         Blob              `yaml:"blob"`
	Scan         Scan              `yaml:"scan"`
}

// Tables selects the table driver.
type Tables struct {
	Driver   string `yaml:"driver"`
	Endpoint string `yaml:"endpoint"`
	DSN      string `yaml:"dsn"`
	Path     string `yaml:"path"`
}

// Blob selects the blob driver.
type Blob struct {
	Driver    string `yaml:"driver"`
	FSRoot    string `yaml:"fs_root"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Scan tunes the segmented scanner.
type Scan struct {
	Concurrency    int     `yaml:"concurrency"`
	Segments       int     `yaml:"segments"`
	PagesPerSecond float64 `yaml:"pages_per_second"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		NamingEnv: "production",
		Protected: []string{"production"},
		Region:    "eu-west-1",
		Tables:    Tables{Driver: string(table.DriverDynamoDB)},
		Blob:      Blob{Driver: string(blob.DriverS3), FSRoot: "./blobdata"},
		Scan:      Scan{Concurrency: scan.DefaultConcurrency, Segments: scan.DefaultSegments},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// $CELLENICS_CONFIG when path is empty) and environment overrides, then
// validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errs.WrapInvalid(fmt.Errorf("%w: parsing %s: %v", errs.ErrInvalidConfig, path, err), "config.load")
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + "_" + name); v != "" {
			*dst = v
		}
	}
	str("NAMING_ENV", &c.NamingEnv)
	str("REGION", &c.Region)
	str("TABLE_DRIVER", &c.Tables.Driver)
	str("TABLE_DYNAMODB_ENDPOINT", &c.Tables.Endpoint)
	str("TABLE_POSTGRES_DSN", &c.Tables.DSN)
	str("TABLE_SQLITE_PATH", &c.Tables.Path)
	str("BLOB_DRIVER", &c.Blob.Driver)
	str("BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("BLOB_S3_ENDPOINT", &c.Blob.Endpoint)
	if v := os.Getenv(EnvPrefix + "_PROTECTED"); v != "" {
		c.Protected = splitList(v)
	}

	parse := func(name string, set func(string) error) error {
		v := os.Getenv(EnvPrefix + "_" + name)
		if v == "" {
			return nil
		}
		if err := set(v); err != nil {
			return errs.WrapInvalid(fmt.Errorf("%w: %s_%s=%q: %v", errs.ErrInvalidConfig, EnvPrefix, name, v, err), "config.env")
		}
		return nil
	}
	return firstErr(
		parse("BLOB_S3_PATH_STYLE", func(v string) (err error) {
			c.Blob.PathStyle, err = strconv.ParseBool(v)
			return err
		}),
		parse("SCAN_CONCURRENCY", func(v string) (err error) {
			c.Scan.Concurrency, err = strconv.Atoi(v)
			return err
		}),
		parse("SCAN_SEGMENTS", func(v string) (err error) {
			c.Scan.Segments, err = strconv.Atoi(v)
			return err
		}),
		parse("SCAN_PAGES_PER_SECOND", func(v string) (err error) {
			c.Scan.PagesPerSecond, err = strconv.ParseFloat(v, 64)
			return err
		}),
	)
}

func firstErr(errList ...error) error {
	for _, err := range errList {
		if err != nil {
			return err
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var (
	tableDrivers = []table.Driver{table.DriverDynamoDB, table.DriverPostgres, table.DriverSQLite, table.DriverMemory}
	blobDrivers  = []blob.Driver{blob.DriverS3, blob.DriverFilesystem, blob.DriverMemory}
)

// Validate checks driver names, required driver settings and scan bounds.
// The naming environment must always be protected.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errs.WrapInvalid(fmt.Errorf("%w: "+format, append([]any{errs.ErrInvalidConfig}, args...)...), "config.validate")
	}
	if c.NamingEnv == "" {
		return invalid("naming_env is required")
	}
	for _, env := range c.Protected {
		if env == "" {
			return invalid("protected environments cannot be empty")
		}
	}
	if !slices.Contains(c.Protected, c.NamingEnv) {
		return invalid("protected %v must include naming_env %q", c.Protected, c.NamingEnv)
	}
	if err := validateTables("tables", c.Tables); err != nil {
		return err
	}
	for env := range c.Environments {
		if env == "" {
			return invalid("environment name cannot be empty")
		}
		if err := validateTables("environments."+env, c.TableConfigFor(env)); err != nil {
			return err
		}
	}
	if !slices.Contains(blobDrivers, blob.Driver(c.Blob.Driver)) {
		return errs.WrapInvalid(fmt.Errorf("%w: blob.driver %q", errs.ErrUnknownDriver, c.Blob.Driver), "config.validate")
	}
	if blob.Driver(c.Blob.Driver) == blob.DriverFilesystem && c.Blob.FSRoot == "" {
		return invalid("blob.fs_root is required for the fs driver")
	}
	if c.Scan.Concurrency < 1 {
		return invalid("scan.concurrency must be at least 1, got %d", c.Scan.Concurrency)
	}
	if c.Scan.Segments < 1 {
		return invalid("scan.segments must be at least 1, got %d", c.Scan.Segments)
	}
	if c.Scan.PagesPerSecond < 0 {
		return invalid("scan.pages_per_second cannot be negative")
	}
	return nil
}

func validateTables(where string, t Tables) error {
	driver := table.Driver(t.Driver)
	if !slices.Contains(tableDrivers, driver) {
		return errs.WrapInvalid(fmt.Errorf("%w: %s.driver %q", errs.ErrUnknownDriver, where, t.Driver), "config.validate")
	}
	missing := ""
	switch {
	case driver == table.DriverPostgres && t.DSN == "":
		missing = "dsn"
	case driver == table.DriverSQLite && t.Path == "":
		missing = "path"
	}
	if missing != "" {
		return errs.WrapInvalid(fmt.Errorf("%w: %s.%s is required for the %s driver", errs.ErrInvalidConfig, where, missing, driver), "config.validate")
	}
	return nil
}

// TableConfigFor returns the table settings of env: the shared settings with
// any per-environment fields laid over them.
func (c *Config) TableConfigFor(env string) Tables {
	t := c.Tables
	o, ok := c.Environments[env]
	if !ok {
		return t
	}
	if o.Driver != "" {
		t = Tables{Driver: o.Driver}
	}
	if o.Endpoint != "" {
		t.Endpoint = o.Endpoint
	}
	if o.DSN != "" {
		t.DSN = o.DSN
	}
	if o.Path != "" {
		t.Path = o.Path
	}
	return t
}

// TableConfig returns the driver configuration for env.
func (c *Config) TableConfig(env string) table.Config {
	t := c.TableConfigFor(env)
	return table.Config{
		Driver:   table.Driver(t.Driver),
		Region:   c.Region,
		Endpoint: t.Endpoint,
		DSN:      t.DSN,
		Path:     t.Path,
	}
}

// BlobConfig returns the blob driver configuration.
func (c *Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Region:    c.Region,
			Endpoint:  c.Blob.Endpoint,
			PathStyle: c.Blob.PathStyle,
		},
	}
}

// ScanOptions returns the scanner settings. Logger and Registerer are left for
// the caller.
func (c *Config) ScanOptions() scan.Options {
	return scan.Options{
		Concurrency:    c.Scan.Concurrency,
		Segments:       c.Scan.Segments,
		PagesPerSecond: c.Scan.PagesPerSecond,
	}
}

// Rename returns the function converting catalog names into env's names.
func (c *Config) Rename(env string) func(string) string {
	return func(name string) string { return strings.ReplaceAll(name, c.NamingEnv, env) }
}

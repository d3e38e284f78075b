package settings

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Storage Storage `mapstructure:"storage" yaml:"storage"`
	Index   Index   `mapstructure:"index" yaml:"index"`
	Journal Journal `mapstructure:"journal" yaml:"journal"`
	Logger  Logger  `mapstructure:"logger" yaml:"logger"`
}

// Storage is the configuration for the record store
type Storage struct {
	ByteOrder            string `mapstructure:"byte_order" yaml:"byte_order" validate:"oneof=native little big"`
	RecordAllocation     string `mapstructure:"record_allocation" yaml:"record_allocation" validate:"oneof=double exact block"`
	BlockSize            int    `mapstructure:"block_size" yaml:"block_size" validate:"min=0"`
	ReuseRecycledRecords bool   `mapstructure:"reuse_recycled_records" yaml:"reuse_recycled_records"`
	DataExtension        string `mapstructure:"data_extension" yaml:"data_extension" validate:"required,startswith=."`
	Codec                string `mapstructure:"codec" yaml:"codec" validate:"oneof=bson json"`
}

// Index is the configuration for B-tree indexes
type Index struct {
	Degree         int    `mapstructure:"degree" yaml:"degree" validate:"min=2,max=1024"`
	NodeAllocation string `mapstructure:"node_allocation" yaml:"node_allocation" validate:"oneof=double exact block"`
	MaxDepth       int    `mapstructure:"max_depth" yaml:"max_depth" validate:"min=1,max=1024"`
}

// Journal is the configuration for the write-ahead journal
type Journal struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Extension string `mapstructure:"extension" yaml:"extension" validate:"required,startswith=."`
}

// Logger is the configuration for the logger
type Logger struct {
	LogLevel    string `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	FileLogName string `mapstructure:"file_log_name" yaml:"file_log_name"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups" validate:"min=0"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age" validate:"min=0"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size" validate:"min=0"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Storage: Storage{
			ByteOrder:            "native",
			RecordAllocation:     "double",
			BlockSize:            64,
			ReuseRecycledRecords: true,
			DataExtension:        ".data",
			Codec:                "bson",
		},
		Index: Index{
			Degree:         16,
			NodeAllocation: "double",
			MaxDepth:       64,
		},
		Journal: Journal{
			Enabled:   true,
			Extension: ".journal",
		},
		Logger: Logger{
			LogLevel:   "info",
			MaxBackups: 3,
			MaxAge:     28,
			MaxSize:    100,
		},
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section against its constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if c.Storage.DataExtension == c.Journal.Extension {
		return errors.Errorf("invalid config: data and journal extensions are both %q", c.Journal.Extension)
	}
	return nil
}

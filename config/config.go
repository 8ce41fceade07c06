package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the print tools.
type Config struct {
	Transport TransportConfig `mapstructure:"transport"`
	Image     ImageConfig     `mapstructure:"image"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
}

// TransportConfig selects and parameterises the byte transport.
type TransportConfig struct {
	// usb, serial, tcp, lpd, file or spooler
	Kind    string        `mapstructure:"kind"`
	USB     USBConfig     `mapstructure:"usb"`
	Serial  SerialConfig  `mapstructure:"serial"`
	TCP     TCPConfig     `mapstructure:"tcp"`
	File    FileConfig    `mapstructure:"file"`
	Spooler SpoolerConfig `mapstructure:"spooler"`
}

type USBConfig struct {
	VendorID  string `mapstructure:"vendor_id"`
	ProductID string `mapstructure:"product_id"`
}

type SerialConfig struct {
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baud_rate"`
}

// TCPConfig is shared by the raw tcp and lpd kinds.
type TCPConfig struct {
	Address     string        `mapstructure:"address"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Queue       string        `mapstructure:"queue"`
}

type FileConfig struct {
	Path string `mapstructure:"path"`
}

type SpoolerConfig struct {
	PrinterName string `mapstructure:"printer_name"`
}

// ImageConfig controls how pictures become dots.
type ImageConfig struct {
	Density   int     `mapstructure:"density"`
	MaxWidth  int     `mapstructure:"max_width"`
	Binarize  string  `mapstructure:"binarize"`
	Threshold float64 `mapstructure:"threshold"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

var (
	transportKinds = []string{"usb", "serial", "tcp", "lpd", "file", "spooler"}
	binarizeRules  = []string{"alpha", "lightness", "dither"}
	logLevels      = []string{"debug", "info", "warn", "error"}
)

// Load reads path (if not empty), then ESCPOS_* environment variables, on top
// of the defaults.
func Load(path string) (*Config, error) {
	v := New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return Decode(v)
}

// LoadWithFlags is Load with command line flags on top. Flags are matched by
// name against config keys, e.g. --image.density or --transport.kind.
func LoadWithFlags(path string, fs *pflag.FlagSet) (*Config, error) {
	v := New()
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		// only section.key flags are config keys
		if bindErr == nil && strings.Contains(f.Name, ".") {
			bindErr = v.BindPFlag(f.Name, f)
		}
	})
	if bindErr != nil {
		return nil, fmt.Errorf("unable to bind flags: %w", bindErr)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return Decode(v)
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("ESCPOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport.kind", "usb")
	v.SetDefault("transport.usb.vendor_id", "0x0416")
	v.SetDefault("transport.usb.product_id", "0x5011")
	v.SetDefault("transport.serial.port", "/dev/ttyUSB0")
	v.SetDefault("transport.serial.baud_rate", 9600)
	v.SetDefault("transport.tcp.address", "127.0.0.1:9100")
	v.SetDefault("transport.tcp.dial_timeout", "10s")
	v.SetDefault("transport.tcp.queue", "lp")
	v.SetDefault("transport.file.path", "/dev/usb/lp0")

	v.SetDefault("image.density", 24)
	v.SetDefault("image.max_width", 384)
	v.SetDefault("image.binarize", "alpha")
	v.SetDefault("image.threshold", 0.5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", false)

	v.SetDefault("server.address", "127.0.0.1:8089")
}

func validate(cfg *Config) error {
	if !contains(transportKinds, cfg.Transport.Kind) {
		return fmt.Errorf("transport.kind must be one of: %v", transportKinds)
	}
	switch cfg.Transport.Kind {
	case "usb":
		if cfg.Transport.USB.VendorID == "" || cfg.Transport.USB.ProductID == "" {
			return errors.New("transport.usb.vendor_id and product_id are required")
		}
	case "serial":
		if cfg.Transport.Serial.Port == "" {
			return errors.New("transport.serial.port is required")
		}
		if cfg.Transport.Serial.BaudRate <= 0 {
			return errors.New("transport.serial.baud_rate must be positive")
		}
	case "tcp", "lpd":
		if cfg.Transport.TCP.Address == "" {
			return errors.New("transport.tcp.address is required")
		}
	case "file":
		if cfg.Transport.File.Path == "" {
			return errors.New("transport.file.path is required")
		}
	case "spooler":
		if cfg.Transport.Spooler.PrinterName == "" {
			return errors.New("transport.spooler.printer_name is required")
		}
	}

	if cfg.Image.Density != 8 && cfg.Image.Density != 24 {
		return fmt.Errorf("image.density must be 8 or 24, got %d", cfg.Image.Density)
	}
	if cfg.Image.MaxWidth < 0 || cfg.Image.MaxWidth > 0xFFFF {
		return fmt.Errorf("image.max_width out of range: %d", cfg.Image.MaxWidth)
	}
	if !contains(binarizeRules, cfg.Image.Binarize) {
		return fmt.Errorf("image.binarize must be one of: %v", binarizeRules)
	}
	if cfg.Image.Threshold < 0 || cfg.Image.Threshold > 1 {
		return fmt.Errorf("image.threshold must be within [0, 1], got %v", cfg.Image.Threshold)
	}

	if !contains(logLevels, cfg.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", logLevels)
	}
	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

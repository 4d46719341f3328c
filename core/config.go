package core

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/jessevdk/go-flags"
)

// Configuration constants
const (
	DefaultConfigPath     = "config.json"
	DefaultAppName        = "Riki"
	DefaultAppPath        = "/"
	DefaultPort           = 8080
	DefaultHostname       = "localhost"
	DefaultLogPath        = "#stderr"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultHgInfoEncoding = "utf-8"
	DefaultHgBinary       = "hg"
	MinPort               = 1
	MaxPort               = 65535
	MaxHostnameLength     = 253
	MaxAppNameLength      = 200
)

// Validation errors
var (
	ErrInvalidPort       = errors.New("port must be between 1 and 65535")
	ErrInvalidHostname   = errors.New("hostname is invalid")
	ErrEmptyDirectory    = errors.New("directory cannot be empty")
	ErrDirectoryNotExist = errors.New("directory does not exist")
	ErrConfigNotFound    = errors.New("configuration file not found")
	ErrInvalidConfig     = errors.New("invalid configuration file")
	ErrInvalidLogLevel   = errors.New("invalid log level")
)

// ServerConfig holds the listen address of the HTTP server
type ServerConfig struct {
	Port     int    `yaml:"port" json:"port"`
	Hostname string `yaml:"hostname" json:"hostname"`
}

func (s *ServerConfig) Validate() error {
	if s.Port < MinPort || s.Port > MaxPort {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, s.Port)
	}

	if s.Hostname != "" {
		if len(s.Hostname) > MaxHostnameLength {
			return fmt.Errorf("%w: hostname too long (%d > %d)",
				ErrInvalidHostname, len(s.Hostname), MaxHostnameLength)
		}
		if strings.ContainsAny(s.Hostname, " \t") {
			return fmt.Errorf("%w: hostname contains whitespace", ErrInvalidHostname)
		}
		if net.ParseIP(s.Hostname) == nil && !isValidHostname(s.Hostname) {
			return fmt.Errorf("%w: invalid hostname format", ErrInvalidHostname)
		}
	}
	return nil
}

// Address returns the host:port the server listens on
func (s *ServerConfig) Address() string {
	return net.JoinHostPort(s.Hostname, fmt.Sprint(s.Port))
}

func isValidHostname(hostname string) bool {
	if hostname == "" || len(hostname) > MaxHostnameLength {
		return false
	}
	if strings.HasPrefix(hostname, ".") || strings.HasSuffix(hostname, ".") {
		return false
	}

	for _, label := range strings.Split(hostname, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
		for _, char := range label {
			if !((char >= 'a' && char <= 'z') ||
				(char >= 'A' && char <= 'Z') ||
				(char >= '0' && char <= '9') ||
				char == '-') {
				return false
			}
		}
	}
	return true
}

// IndexOptions are the arguments of the index command
type IndexOptions struct {
	File     string
	NewIndex bool
}

// Config is the application configuration. The file format is JSON
// (as in config.json) or YAML with the same keys.
type Config struct {
	FilePath string       `yaml:"-" json:"-"`
	Mode     string       `yaml:"-" json:"-"`
	Index    IndexOptions `yaml:"-" json:"-"`

	AppName            string       `yaml:"appName" json:"appName"`
	AppPath            string       `yaml:"appPath" json:"appPath"`
	DataDir            string       `yaml:"dataDir" json:"dataDir"`
	LogPath            string       `yaml:"logPath" json:"logPath"`
	LogLevel           string       `yaml:"logLevel" json:"logLevel"`
	LogFormat          string       `yaml:"logFormat" json:"logFormat"`
	PictureCacheDir    string       `yaml:"pictureCacheDir" json:"pictureCacheDir"`
	HgInfoEncoding     string       `yaml:"hgInfoEncoding" json:"hgInfoEncoding"`
	HgBinary           string       `yaml:"hgBinary" json:"hgBinary"`
	SearchIndexDir     string       `yaml:"searchIndexDir" json:"searchIndexDir"`
	MarkdownExtensions []string     `yaml:"markdownExtensions" json:"markdownExtensions"`
	ThumbnailWorkers   int          `yaml:"thumbnailWorkers" json:"thumbnailWorkers"`
	WatchContent       bool         `yaml:"watchContent" json:"watchContent"`
	RateLimit          int          `yaml:"rateLimit" json:"rateLimit"`
	Server             ServerConfig `yaml:"server" json:"server"`
}

// LogConfig returns the logging part of the configuration
func (c *Config) LogConfig() LogConfig {
	return LogConfig{Path: c.LogPath, Level: c.LogLevel, Format: c.LogFormat}
}

// Validate checks the configuration and normalizes the application path
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}

	if err := validateDirectory("data directory", c.DataDir); err != nil {
		return err
	}
	c.DataDir = filepath.Clean(c.DataDir)

	if c.PictureCacheDir == "" {
		return fmt.Errorf("%w: picture cache directory", ErrEmptyDirectory)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %s", ErrInvalidLogLevel, c.LogLevel)
	}

	if len(c.AppName) > MaxAppNameLength {
		return fmt.Errorf("application name too long: %d > %d", len(c.AppName), MaxAppNameLength)
	}

	if c.ThumbnailWorkers < 0 {
		return NewValidationError("thumbnailWorkers", c.ThumbnailWorkers, "cannot be negative")
	}
	if c.RateLimit < 0 {
		return NewValidationError("rateLimit", c.RateLimit, "cannot be negative")
	}

	c.AppPath = NormalizeAppPath(c.AppPath)
	return nil
}

// NormalizeAppPath makes sure the path starts and ends with a slash
func NormalizeAppPath(appPath string) string {
	appPath = strings.Trim(strings.TrimSpace(appPath), "/")
	if appPath == "" {
		return "/"
	}
	return "/" + appPath + "/"
}

func validateDirectory(name, dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: %s", ErrEmptyDirectory, name)
	}
	if !IsDir(dir) {
		return fmt.Errorf("%w: %s", ErrDirectoryNotExist, dir)
	}
	return nil
}

// Options defines the global command-line options
type Options struct {
	Config string `short:"c" long:"config" env:"RIKI_CONF_PATH" description:"Path to the configuration file" default:"config.json"`
	Port   int    `short:"p" long:"port" description:"Port to run the HTTP server on (overrides the configuration)"`
}

func (o *Options) Validate() error {
	if o.Port != 0 && (o.Port < MinPort || o.Port > MaxPort) {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, o.Port)
	}
	return nil
}

// Commands defines the available subcommands
type Commands struct {
	Run     RunCommand
	Index   IndexCommand
	Version VersionCommand
}

type RunCommand struct{}

type IndexCommand struct {
	IndexDir string `short:"x" long:"index-dir" description:"Search index directory (overrides searchIndexDir)"`
	DataDir  string `short:"d" long:"data-dir" description:"Data directory (overrides dataDir)"`
	File     string `short:"f" long:"file" description:"A single file to index"`
	NewIndex bool   `short:"n" long:"new-index" description:"Drop the existing index and create a new one"`
}

type VersionCommand struct{}

// ReadConfigFile reads a configuration file into config. Values present
// in the file replace the defaults already set in config.
func ReadConfigFile(config *Config, filePath string) error {
	if filePath == "" {
		return fmt.Errorf("%w: empty file path", ErrConfigNotFound)
	}
	config.FilePath = filePath

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, filePath)
		}
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err.Error())
	}
	return nil
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() Config {
	return Config{
		AppName:        DefaultAppName,
		AppPath:        DefaultAppPath,
		LogPath:        DefaultLogPath,
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
		HgInfoEncoding: DefaultHgInfoEncoding,
		HgBinary:       DefaultHgBinary,
		Server: ServerConfig{
			Port:     DefaultPort,
			Hostname: DefaultHostname,
		},
	}
}

// DefaultThumbnailWorkers is used when thumbnailWorkers is not set
func DefaultThumbnailWorkers() int {
	return runtime.NumCPU()
}

// ParseCommandLineArguments parses args (without the program name), reads
// the configuration file and returns the validated configuration.
func ParseCommandLineArguments(args []string) (Config, error) {
	config := NewDefaultConfig()

	var opts Options
	var commands Commands

	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("run", "Run the wiki server",
		"Serve the data directory over HTTP", &commands.Run)
	parser.AddCommand("index", "Build the search index",
		"Index Markdown and text files of the data directory", &commands.Index)
	parser.AddCommand("version", "Print the build version",
		"Print the build version", &commands.Version)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return config, fmt.Errorf("failed to parse command line arguments: %w", err)
	}

	if err := opts.Validate(); err != nil {
		return config, fmt.Errorf("invalid command line options: %w", err)
	}

	if parser.Active == nil {
		return config, errors.New("no command specified")
	}
	config.Mode = parser.Active.Name
	if config.Mode == "version" {
		return config, nil
	}

	if err := ReadConfigFile(&config, opts.Config); err != nil {
		return config, err
	}
	if opts.Port != 0 {
		config.Server.Port = opts.Port
	}

	switch config.Mode {
	case "run":
	case "index":
		if commands.Index.IndexDir != "" {
			config.SearchIndexDir = commands.Index.IndexDir
		}
		if commands.Index.DataDir != "" {
			config.DataDir = commands.Index.DataDir
		}
		if config.SearchIndexDir == "" {
			return config, fmt.Errorf("%w: search index directory", ErrEmptyDirectory)
		}
		config.Index = IndexOptions{File: commands.Index.File, NewIndex: commands.Index.NewIndex}
	default:
		return config, fmt.Errorf("unknown command: %s", config.Mode)
	}

	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

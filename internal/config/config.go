package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml"
)

type Provider string

const (
	ProviderGCP     Provider = "gcp"
	ProviderLibvirt Provider = "libvirt"
)

const (
	OutputText = "text"
	OutputJSON = "json"
)

const dotEnvPath = ".env"

var (
	ErrNoProjectSelected = errors.New("select --all or --project")
	ErrUnknownProject    = errors.New("project is not configured")
)

// DefaultProjects is the project list used when none is configured.
var DefaultProjects = []string{
	"km-prod",
	"km-prod-cn-443607",
	"km-prod-eu",
	"km-prod-in",
	"km-prod-us",
	"km-dev-434106",
}

type Config struct {
	Projects        []string          `env:"HEALTH_PROJECTS"         envSeparator:","`
	ProjectsFile    string            `env:"HEALTH_PROJECTS_FILE"`
	Provider        Provider          `env:"HEALTH_PROVIDER"         envDefault:"gcp"`
	Window          time.Duration     `env:"HEALTH_WINDOW"           envDefault:"10m"`
	FetchTimeout    time.Duration     `env:"HEALTH_FETCH_TIMEOUT"    envDefault:"30s"`
	FetchRetries    int               `env:"HEALTH_FETCH_RETRIES"    envDefault:"3"`
	Parallelism     int               `env:"HEALTH_PARALLELISM"      envDefault:"1"`
	Output          string            `env:"HEALTH_OUTPUT"           envDefault:"text"`
	NoColor         bool              `env:"HEALTH_NO_COLOR"         envDefault:"false"`
	LogLevel        string            `env:"HEALTH_LOG_LEVEL"        envDefault:"info"`
	LogJSON         bool              `env:"HEALTH_LOG_JSON"         envDefault:"false"`
	LogFile         string            `env:"HEALTH_LOG_FILE"`
	LogMaxSizeMB    int               `env:"HEALTH_LOG_MAX_SIZE_MB"  envDefault:"50"`
	LogMaxBackups   int               `env:"HEALTH_LOG_MAX_BACKUPS"  envDefault:"3"`
	LogMaxAgeDays   int               `env:"HEALTH_LOG_MAX_AGE_DAYS" envDefault:"14"`
	CredentialsFile string            `env:"HEALTH_CREDENTIALS_FILE"`
	LibvirtURIs     map[string]string `env:"HEALTH_LIBVIRT_URIS"     envSeparator:"," envKeyValSeparator:"="`
	LibvirtCPUProbe time.Duration     `env:"HEALTH_LIBVIRT_CPU_PROBE" envDefault:"2s"`
	LibvirtRetry    time.Duration     `env:"HEALTH_LIBVIRT_RECONNECT" envDefault:"2s"`
	SinkGRPCAddr    string            `env:"HEALTH_SINK_GRPC_ADDR"`
	SinkMethod      string            `env:"HEALTH_SINK_METHOD"`
	SinkToken       string            `env:"HEALTH_SINK_TOKEN"`
	SinkInsecure    bool              `env:"HEALTH_SINK_INSECURE"    envDefault:"false"`
	WatchInterval   time.Duration     `env:"HEALTH_WATCH_INTERVAL"`
	ShutdownTimeout time.Duration     `env:"HEALTH_SHUTDOWN_TIMEOUT" envDefault:"20s"`
	ProbeListenAddr string            `env:"HEALTH_PROBE_ADDR"`
	ServeAddr       string            `env:"HEALTH_SERVE_ADDR"`
}

type projectsFile struct {
	Projects []string `toml:"projects"`
}

// Load reads .env (if present), the process environment and the optional
// projects file, in that order.
func Load() (Config, error) {
	if _, err := os.Stat(dotEnvPath); err == nil {
		_ = godotenv.Load(dotEnvPath)
	}
	return parse(env.Options{})
}

// LoadFromMap is Load without .env and with an explicit environment.
func LoadFromMap(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.ProjectsFile != "" {
		if err := cfg.ApplyProjectsFile(cfg.ProjectsFile); err != nil {
			return Config{}, err
		}
	}
	if len(cfg.Projects) == 0 {
		cfg.Projects = append([]string(nil), DefaultProjects...)
	}
	cfg.Provider = Provider(strings.ToLower(string(cfg.Provider)))
	cfg.Output = strings.ToLower(cfg.Output)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	return cfg, nil
}

// ApplyProjectsFile overrides the project list with the one in the TOML file at
// path and adds its [libvirt] URIs that the environment did not set.
func (c *Config) ApplyProjectsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read projects file: %w", err)
	}
	tree, err := toml.Load(string(data))
	if err != nil {
		return fmt.Errorf("parse projects file: %w", err)
	}
	var pf projectsFile
	if err := tree.Unmarshal(&pf); err != nil {
		return fmt.Errorf("unmarshal projects file: %w", err)
	}
	if len(pf.Projects) > 0 {
		c.Projects = pf.Projects
	}
	libvirt, ok := tree.Get("libvirt").(*toml.Tree)
	if !ok {
		return nil
	}
	if c.LibvirtURIs == nil {
		c.LibvirtURIs = map[string]string{}
	}
	// Environment entries win over the file.
	for _, project := range libvirt.Keys() {
		uri, ok := libvirt.Get(project).(string)
		if !ok {
			return fmt.Errorf("projects file: libvirt.%s must be a string", project)
		}
		if _, set := c.LibvirtURIs[project]; !set {
			c.LibvirtURIs[project] = uri
		}
	}
	return nil
}

func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Projects))
	for _, p := range c.Projects {
		if strings.TrimSpace(p) == "" {
			return errors.New("HEALTH_PROJECTS contains an empty project id")
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("project %q is listed twice", p)
		}
		seen[p] = struct{}{}
	}
	if c.Window <= 0 {
		return errors.New("HEALTH_WINDOW must be > 0")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("HEALTH_FETCH_TIMEOUT must be > 0")
	}
	if c.FetchRetries < 1 {
		return errors.New("HEALTH_FETCH_RETRIES must be >= 1")
	}
	if c.Parallelism < 1 {
		return errors.New("HEALTH_PARALLELISM must be >= 1")
	}
	if c.WatchInterval < 0 {
		return errors.New("HEALTH_WATCH_INTERVAL must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("HEALTH_SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.Serving() && c.WatchInterval > 0 {
		return errors.New("HEALTH_SERVE_ADDR and HEALTH_WATCH_INTERVAL are mutually exclusive")
	}
	switch c.Output {
	case OutputText, OutputJSON:
	default:
		return fmt.Errorf("unsupported output %q", c.Output)
	}
	switch c.Provider {
	case ProviderGCP:
		if c.CredentialsFile != "" {
			if _, err := os.Stat(c.CredentialsFile); err != nil {
				return fmt.Errorf("credentials file: %w", err)
			}
		}
	case ProviderLibvirt:
		if len(c.LibvirtURIs) == 0 {
			return errors.New("HEALTH_LIBVIRT_URIS is required for the libvirt provider")
		}
		if c.LibvirtCPUProbe <= 0 {
			return errors.New("HEALTH_LIBVIRT_CPU_PROBE must be > 0")
		}
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider)
	}
	return nil
}

// Select resolves the CLI selection into the ordered list of projects to poll.
// A single project need not be in the configured list, but with the libvirt
// provider it must have a URI. Under --all an unmapped project is left to fail
// on its own fetch so the rest still report.
func (c Config) Select(all bool, project string) ([]string, error) {
	project = strings.TrimSpace(project)
	var selected []string
	switch {
	case all && project != "":
		return nil, errors.New("--all and --project are mutually exclusive")
	case all:
		selected = append([]string(nil), c.Projects...)
	case project != "":
		selected = []string{project}
	default:
		return nil, ErrNoProjectSelected
	}
	if c.Provider == ProviderLibvirt && !all {
		if _, ok := c.LibvirtURIs[project]; !ok {
			return nil, fmt.Errorf("%w: %s has no libvirt uri", ErrUnknownProject, project)
		}
	}
	return selected, nil
}

// Serving reports whether the web front-end replaces the console report.
func (c Config) Serving() bool {
	return strings.TrimSpace(c.ServeAddr) != ""
}

// Configured reports whether project is part of the configured list.
func (c Config) Configured(project string) bool {
	for _, p := range c.Projects {
		if p == project {
			return true
		}
	}
	return false
}

package internal

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/shortwatch/internal/extract"
	"github.com/starford/shortwatch/internal/history"
	"github.com/starford/shortwatch/internal/pipeline"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	History  HistoryConfig     `yaml:"history"`
	State    StateConfig       `yaml:"state"`
	Enrich   EnrichConfig      `yaml:"enrich"`
	Analyzer AnalyzerConfig    `yaml:"analyzer"`
	Sidecar  SidecarConfig     `yaml:"sidecar"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.History.Validate(); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if err := c.State.Validate(); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	if err := c.Enrich.Validate(); err != nil {
		return fmt.Errorf("enrich: %w", err)
	}
	if c.Enrich.Mode == pipeline.ModeAnalyze {
		if err := c.Analyzer.Validate(); err != nil {
			return fmt.Errorf("analyzer: %w", err)
		}
	}
	if err := c.Sidecar.Validate(); err != nil {
		return fmt.Errorf("sidecar: %w", err)
	}
	if !c.History.Enabled && !c.Sidecar.Enabled {
		return fmt.Errorf("at least one of history or sidecar must be enabled")
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile, when set, receives a copy of every log record as text.
	LogFile string     `yaml:"log_file"`
	HTTP    HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration. Port 0 disables the server.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Enabled reports whether the HTTP server should run.
func (c *HTTPConfig) Enabled() bool { return c.Port != 0 }

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
	)
}

// HistoryConfig locates and describes the browser history database.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path overrides the location derived from Browser and Profile.
	Path       string        `yaml:"path"`
	Browser    string        `yaml:"browser"`
	Profile    string        `yaml:"profile"`
	Epoch      string        `yaml:"epoch"`
	Table      string        `yaml:"table"`
	URLColumn  string        `yaml:"url_column"`
	TimeColumn string        `yaml:"time_column"`
	Pattern    string        `yaml:"pattern"`
	Mode       string        `yaml:"mode"`
	MaxRows    int           `yaml:"max_rows"`
	Debounce   time.Duration `yaml:"debounce"`
	ScratchDir string        `yaml:"scratch_dir"`
}

// Validate validates the history configuration.
func (c *HistoryConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Browser == "", validation.Required.Error("path or browser is required"))),
		validation.Field(&c.Browser, validation.In(history.BrowserChrome, history.BrowserChromium, history.BrowserBrave, history.BrowserEdge)),
		validation.Field(&c.Epoch, validation.In(string(history.EpochWebKit), string(history.EpochUnix))),
		validation.Field(&c.Mode, validation.In(history.ModeAll, history.ModeLatest)),
		validation.Field(&c.MaxRows, validation.Min(0)),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// ResolvePath returns the configured path or the browser's default.
func (c *HistoryConfig) ResolvePath() (string, error) {
	if c.Path != "" {
		return c.Path, nil
	}
	return history.DefaultPath(c.Browser, c.Profile)
}

// StateConfig holds the SQLite state database location.
type StateConfig struct {
	Path string `yaml:"path"`
	// SSEReplay is how many recent detections a new SSE client receives.
	SSEReplay int `yaml:"sse_replay"`
}

// Validate validates the state configuration.
func (c *StateConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.SSEReplay, validation.Min(0)),
	)
}

// EnrichConfig controls how detections are enriched.
type EnrichConfig struct {
	Mode              string        `yaml:"mode"`
	APIKey            string        `yaml:"api_key"`
	MetadataTimeout   time.Duration `yaml:"metadata_timeout"`
	CommentsTimeout   time.Duration `yaml:"comments_timeout"`
	CaptionsTimeout   time.Duration `yaml:"captions_timeout"`
	CommentLimit      int           `yaml:"comment_limit"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	MaxInFlight       int           `yaml:"max_in_flight"`
	Captions          CaptionsConfig `yaml:"captions"`
}

// Validate validates the enrich configuration.
func (c *EnrichConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(pipeline.ModeEnrich, pipeline.ModeAnalyze)),
		validation.Field(&c.CommentLimit, validation.Min(0), validation.Max(100)),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
		validation.Field(&c.MaxInFlight, validation.Min(0)),
	); err != nil {
		return err
	}
	return c.Captions.Validate()
}

// CaptionsConfig describes the caption extractor subprocess.
type CaptionsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Interpreter string `yaml:"interpreter"`
	Script      string `yaml:"script"`
	Concurrency int    `yaml:"concurrency"`
}

// Validate validates the captions configuration.
func (c *CaptionsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Script, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Concurrency, validation.Min(0)),
	)
}

// AnalyzerConfig points at the downstream analysis service.
type AnalyzerConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the analyzer configuration.
func (c *AnalyzerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
	)
}

// SidecarConfig describes the supervised worker process.
type SidecarConfig struct {
	Enabled bool     `yaml:"enabled"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// PlatformSuffix appends -GOOS-GOARCH (and .exe) to Command.
	PlatformSuffix bool          `yaml:"platform_suffix"`
	MaxRestarts    int           `yaml:"max_restarts"`
	RestartBackoff time.Duration `yaml:"restart_backoff"`
	Classifier     string        `yaml:"classifier"`
	// Stdin is "none" (default) or "inherit", which hands shortwatch's own
	// standard input to the worker.
	Stdin string `yaml:"stdin"`
}

// Sidecar stdin modes.
const (
	StdinNone    = "none"
	StdinInherit = "inherit"
)

// Validate validates the sidecar configuration.
func (c *SidecarConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Command, validation.Required),
		validation.Field(&c.Classifier, validation.In(extract.ClassifierMarker, extract.ClassifierDetected)),
		validation.Field(&c.Stdin, validation.In(StdinNone, StdinInherit)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		History: HistoryConfig{
			Enabled:    true,
			Browser:    history.BrowserChrome,
			Profile:    "Default",
			Epoch:      string(history.EpochWebKit),
			Mode:       history.ModeAll,
			MaxRows:    50,
			Debounce:   2 * time.Second,
			ScratchDir: os.TempDir(),
		},
		State: StateConfig{
			Path:      "./shortwatch.db",
			SSEReplay: 10,
		},
		Enrich: EnrichConfig{
			Mode:              pipeline.ModeEnrich,
			MetadataTimeout:   15 * time.Second,
			CommentsTimeout:   15 * time.Second,
			CaptionsTimeout:   60 * time.Second,
			CommentLimit:      10,
			RequestsPerSecond: 5,
			CacheTTL:          10 * time.Minute,
			MaxInFlight:       4,
			Captions: CaptionsConfig{
				Interpreter: "python3",
				Concurrency: 2,
			},
		},
		Analyzer: AnalyzerConfig{
			Timeout: 30 * time.Second,
		},
		Sidecar: SidecarConfig{
			Classifier:     extract.ClassifierMarker,
			RestartBackoff: time.Second,
			Stdin:          StdinNone,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

package core

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/pelletier/go-toml/v2"
)

type LoggingConfig struct {
	Level string `toml:"level"`
}

type RendererConfig struct {
	// Name of a gputypes depth format, e.g. "Depth24PlusStencil8".
	DepthFormat string `toml:"depth_format"`
	// Companion depth buffers of array and cube targets back only one slice until
	// the full target is bound.
	OptimizeDepthForSingleSurface bool   `toml:"optimize_depth_for_single_surface"`
	SampleCount                   uint32 `toml:"sample_count"`
	SampleQuality                 uint32 `toml:"sample_quality"`
	ResolveToShaderResource       bool   `toml:"resolve_to_shader_resource"`
}

type ContentConfig struct {
	Root      string `toml:"root"`
	Watch     bool   `toml:"watch"`
	Overwrite bool   `toml:"overwrite"`
	Extension string `toml:"extension"`
}

type JobsConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

// Config is the engine configuration, usually read from spark.toml.
type Config struct {
	Logging  LoggingConfig  `toml:"logging"`
	Renderer RendererConfig `toml:"renderer"`
	Content  ContentConfig  `toml:"content"`
	Jobs     JobsConfig     `toml:"jobs"`
}

func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Renderer: RendererConfig{
			DepthFormat:                   gputypes.TextureFormatDepth24PlusStencil8.String(),
			OptimizeDepthForSingleSurface: false,
			SampleCount:                   1,
			SampleQuality:                 0,
			ResolveToShaderResource:       true,
		},
		Content: ContentConfig{
			Root:      "assets",
			Watch:     false,
			Overwrite: true,
			Extension: ".spk",
		},
		Jobs: JobsConfig{
			Workers:   4,
			QueueSize: 64,
		},
	}
}

// LoadConfig reads a TOML file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseConfig(f)
}

func ParseConfig(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level %q", ErrInvalidArgument, c.Logging.Level)
	}
	format, ok := ParseTextureFormat(c.Renderer.DepthFormat)
	if !ok || !format.HasDepth() {
		return fmt.Errorf("%w: renderer.depth_format %q is not a depth format", ErrInvalidArgument, c.Renderer.DepthFormat)
	}
	if c.Renderer.SampleCount == 0 {
		return fmt.Errorf("%w: renderer.sample_count must be > 0", ErrInvalidArgument)
	}
	if c.Content.Extension == "" || !strings.HasPrefix(c.Content.Extension, ".") {
		return fmt.Errorf("%w: content.extension %q must start with a dot", ErrInvalidArgument, c.Content.Extension)
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("%w: jobs.workers must be > 0", ErrInvalidArgument)
	}
	if c.Jobs.QueueSize < 0 {
		return fmt.Errorf("%w: jobs.queue_size must be >= 0", ErrInvalidArgument)
	}
	return nil
}

func (c *Config) DepthFormat() gputypes.TextureFormat {
	format, _ := ParseTextureFormat(c.Renderer.DepthFormat)
	return format
}

// ParseTextureFormat looks a format up by its gputypes name, ignoring case.
func ParseTextureFormat(name string) (gputypes.TextureFormat, bool) {
	for f := gputypes.TextureFormatR8Unorm; f <= gputypes.TextureFormatDepth32FloatStencil8; f++ {
		if strings.EqualFold(f.String(), name) {
			return f, true
		}
	}
	return gputypes.TextureFormatUndefined, false
}

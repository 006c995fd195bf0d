package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/forPelevin/textwipe/internal/domain/autosub"
	"github.com/forPelevin/textwipe/internal/domain/framecache"
	"github.com/forPelevin/textwipe/internal/domain/inpaint"
	"github.com/forPelevin/textwipe/internal/domain/similarity"
	"github.com/forPelevin/textwipe/internal/domain/textmask"
	"github.com/forPelevin/textwipe/internal/types"
)

//go:embed sample_config.toml
var sampleConfig string

// Mask tunes text mask extraction.
type Mask struct {
	DilateRadius int `toml:"dilate_radius"`
	XOffset      int `toml:"x_offset"`
	YOffset      int `toml:"y_offset"`
	AreaMin      int `toml:"area_min"`
	AreaMax      int `toml:"area_max"`
}

// Cache tunes reuse of inpainted patches across similar frames.
type Cache struct {
	Enabled bool    `toml:"enabled"`
	Accept  float64 `toml:"accept"`
	Gated   float64 `toml:"gated"`
	// Lookback and NearDistance drive forced refresh detection.
	Lookback     int     `toml:"lookback"`
	NearDistance int     `toml:"near_distance"`
	RevealMargin int     `toml:"reveal_margin"`
	LumaPenalty  float64 `toml:"luma_penalty"`
}

type AutoSub struct {
	NoiseThreshold    int `toml:"noise_threshold"`
	MinSentenceFrames int `toml:"min_sentence_frames"`
}

type Pipeline struct {
	QueueSize    int    `toml:"queue_size"`
	PreviewEvery int    `toml:"preview_every"`
	FFmpeg       string `toml:"ffmpeg"`
	FFprobe      string `toml:"ffprobe"`
	KeepTemp     bool   `toml:"keep_temp"`
}

type Inpaint struct {
	Radius      float64 `toml:"radius"`
	TileSize    int     `toml:"tile_size"`
	TileOverlap int     `toml:"tile_overlap"`
	// TileWorkers of 0 uses every CPU.
	TileWorkers int    `toml:"tile_workers"`
	ModelPath   string `toml:"model_path"`
	ModelSize   int    `toml:"model_size"`
}

type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Region is a rectangle listed in the config file. Regions given on the
// command line replace these.
type Region struct {
	X1    int    `toml:"x1"`
	X2    int    `toml:"x2"`
	Y1    int    `toml:"y1"`
	Y2    int    `toml:"y2"`
	Color string `toml:"color"`
	Label string `toml:"label"`
}

// Config holds every tunable of a run.
type Config struct {
	Mask     Mask     `toml:"mask"`
	Cache    Cache    `toml:"cache"`
	AutoSub  AutoSub  `toml:"autosub"`
	Pipeline Pipeline `toml:"pipeline"`
	Inpaint  Inpaint  `toml:"inpaint"`
	Logging  Logging  `toml:"logging"`
	Regions  []Region `toml:"regions"`
}

// DefaultConfigPath returns the absolute path of the per-user config file.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/textwipe/config.toml")
}

// Load resolves, parses and validates a configuration file. A missing file
// yields the defaults. Environment overrides are applied after parsing.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv("TEXTWIPE_CONFIG"))
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("textwipe.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("TEXTWIPE_LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("TEXTWIPE_FFMPEG")); v != "" {
		c.Pipeline.FFmpeg = v
	}
	if v := strings.TrimSpace(os.Getenv("TEXTWIPE_FFPROBE")); v != "" {
		c.Pipeline.FFprobe = v
	}
}

// CreateSample writes the commented sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func (c *Config) MaskParams() textmask.Params {
	return textmask.Params{
		DilateRadius: c.Mask.DilateRadius,
		XOffset:      c.Mask.XOffset,
		YOffset:      c.Mask.YOffset,
		AreaMin:      float64(c.Mask.AreaMin),
		AreaMax:      float64(c.Mask.AreaMax),
	}
}

func (c *Config) SimilarityOptions() similarity.Options {
	return similarity.Options{
		Mask:         c.MaskParams(),
		RevealMargin: c.Cache.RevealMargin,
		LumaPenalty:  c.Cache.LumaPenalty,
	}
}

func (c *Config) Thresholds() framecache.Thresholds {
	return framecache.Thresholds{Accept: c.Cache.Accept, Gated: c.Cache.Gated}
}

func (c *Config) AutoSubOptions() autosub.Options {
	return autosub.Options{
		NoiseThreshold:    c.AutoSub.NoiseThreshold,
		MinSentenceFrames: c.AutoSub.MinSentenceFrames,
	}
}

func (c *Config) InpaintOptions() inpaint.Options {
	opts := inpaint.DefaultOptions()
	opts.Radius = c.Inpaint.Radius
	opts.TileSize = c.Inpaint.TileSize
	opts.TileOverlap = c.Inpaint.TileOverlap
	if c.Inpaint.TileWorkers > 0 {
		opts.TileWorkers = c.Inpaint.TileWorkers
	}
	opts.ModelPath = c.Inpaint.ModelPath
	opts.ModelSize = c.Inpaint.ModelSize
	return opts
}

// RegionList converts the configured regions.
func (c *Config) RegionList() ([]types.Region, error) {
	out := make([]types.Region, 0, len(c.Regions))
	for i, r := range c.Regions {
		mode, err := types.ParseColorMode(r.Color)
		if err != nil {
			return nil, fmt.Errorf("regions[%d]: %w", i, err)
		}
		out = append(out, types.Region{X1: r.X1, X2: r.X2, Y1: r.Y1, Y2: r.Y2, Color: mode, Label: r.Label})
	}
	return out, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMask(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateAutoSub(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateInpaint(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateRegions()
}

func (c *Config) validateMask() error {
	if c.Mask.DilateRadius < 0 {
		return errors.New("mask.dilate_radius must be >= 0")
	}
	if c.Mask.AreaMin < 0 || c.Mask.AreaMax <= c.Mask.AreaMin {
		return errors.New("mask.area_max must be greater than mask.area_min >= 0")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.Accept <= 0 || c.Cache.Accept > 1 {
		return errors.New("cache.accept must be in (0, 1]")
	}
	if c.Cache.Gated <= 0 || c.Cache.Gated > c.Cache.Accept {
		return errors.New("cache.gated must be in (0, cache.accept]")
	}
	if c.Cache.Lookback < 1 {
		return errors.New("cache.lookback must be >= 1")
	}
	if c.Cache.NearDistance < 0 || c.Cache.NearDistance > 64 {
		return errors.New("cache.near_distance must be between 0 and 64")
	}
	if c.Cache.RevealMargin < 0 {
		return errors.New("cache.reveal_margin must be >= 0")
	}
	if c.Cache.LumaPenalty < 0 || c.Cache.LumaPenalty > 1 {
		return errors.New("cache.luma_penalty must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateAutoSub() error {
	if c.AutoSub.NoiseThreshold < 0 {
		return errors.New("autosub.noise_threshold must be >= 0")
	}
	if c.AutoSub.MinSentenceFrames < 1 {
		return errors.New("autosub.min_sentence_frames must be >= 1")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.QueueSize < 1 {
		return errors.New("pipeline.queue_size must be >= 1")
	}
	if c.Pipeline.PreviewEvery < 0 {
		return errors.New("pipeline.preview_every must be >= 0")
	}
	return nil
}

func (c *Config) validateInpaint() error {
	if c.Inpaint.Radius <= 0 {
		return errors.New("inpaint.radius must be > 0")
	}
	if c.Inpaint.TileSize < 8 {
		return errors.New("inpaint.tile_size must be >= 8")
	}
	if c.Inpaint.TileOverlap < 0 || 2*c.Inpaint.TileOverlap >= c.Inpaint.TileSize {
		return errors.New("inpaint.tile_overlap must be >= 0 and less than half of inpaint.tile_size")
	}
	if c.Inpaint.TileWorkers < 0 {
		return errors.New("inpaint.tile_workers must be >= 0")
	}
	if c.Inpaint.ModelSize < 32 {
		return errors.New("inpaint.model_size must be >= 32")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateRegions() error {
	if _, err := c.RegionList(); err != nil {
		return err
	}
	for i, r := range c.Regions {
		if r.X2 <= r.X1 || r.Y2 <= r.Y1 {
			return fmt.Errorf("regions[%d]: empty rectangle", i)
		}
	}
	return nil
}

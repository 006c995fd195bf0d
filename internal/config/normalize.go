package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Inpaint.ModelPath, err = expandPath(strings.TrimSpace(c.Inpaint.ModelPath)); err != nil {
		return fmt.Errorf("inpaint.model_path: %w", err)
	}
	c.normalizePipeline()
	c.normalizeLogging()
	for i := range c.Regions {
		c.Regions[i].Label = strings.TrimSpace(c.Regions[i].Label)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.FFmpeg = strings.TrimSpace(c.Pipeline.FFmpeg)
	if c.Pipeline.FFmpeg == "" {
		c.Pipeline.FFmpeg = defaultFFmpeg
	}
	c.Pipeline.FFprobe = strings.TrimSpace(c.Pipeline.FFprobe)
	if c.Pipeline.FFprobe == "" {
		c.Pipeline.FFprobe = defaultFFprobe
	}
	if c.Pipeline.QueueSize == 0 {
		c.Pipeline.QueueSize = defaultQueueSize
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

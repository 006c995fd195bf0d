package config

const (
	defaultDilateRadius      = 0
	defaultMaskXOffset       = -2
	defaultMaskYOffset       = -2
	defaultAreaMin           = 20
	defaultAreaMax           = 5000
	defaultCacheAccept       = 0.80
	defaultCacheGated        = 0.65
	defaultCacheLookback     = 5
	defaultNearDistance      = 4
	defaultRevealMargin      = 40
	defaultLumaPenalty       = 0.5
	defaultNoiseThreshold    = 50
	defaultMinSentenceFrames = 10
	defaultQueueSize         = 15
	defaultPreviewEvery      = 30
	defaultFFmpeg            = "ffmpeg"
	defaultFFprobe           = "ffprobe"
	defaultInpaintRadius     = 3
	defaultTileSize          = 64
	defaultTileOverlap       = 16
	defaultModelSize         = 512
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Mask: Mask{
			DilateRadius: defaultDilateRadius,
			XOffset:      defaultMaskXOffset,
			YOffset:      defaultMaskYOffset,
			AreaMin:      defaultAreaMin,
			AreaMax:      defaultAreaMax,
		},
		Cache: Cache{
			Enabled:      true,
			Accept:       defaultCacheAccept,
			Gated:        defaultCacheGated,
			Lookback:     defaultCacheLookback,
			NearDistance: defaultNearDistance,
			RevealMargin: defaultRevealMargin,
			LumaPenalty:  defaultLumaPenalty,
		},
		AutoSub: AutoSub{
			NoiseThreshold:    defaultNoiseThreshold,
			MinSentenceFrames: defaultMinSentenceFrames,
		},
		Pipeline: Pipeline{
			QueueSize:    defaultQueueSize,
			PreviewEvery: defaultPreviewEvery,
			FFmpeg:       defaultFFmpeg,
			FFprobe:      defaultFFprobe,
		},
		Inpaint: Inpaint{
			Radius:      defaultInpaintRadius,
			TileSize:    defaultTileSize,
			TileOverlap: defaultTileOverlap,
			ModelSize:   defaultModelSize,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

package config

const (
	defaultDataDir     = "~/.local/share/docket/data"
	defaultDocumentDir = "~/.local/share/docket/documents"
	defaultLogDir      = "~/.local/share/docket/logs"

	defaultClaimExpiryMinutes = 90
	defaultRetryIntervalHours = 4

	defaultRateLimitBackend    = "sqlite"
	defaultBaseDelayMS         = 1000
	defaultMinDelayMS          = 250
	defaultMaxDelayMS          = 120_000
	defaultBackoffMultiplier   = 2.0
	defaultRecoveryMultiplier  = 0.5
	defaultRecoveryThreshold   = 5
	defaultSoftLimitWindowSecs = 30
	defaultSoftLimitThreshold  = 3
	defaultRetryAfterCapSecs   = 60
	defaultBucketBurst         = 1

	defaultStrategy           = "wide"
	defaultChunkSize          = 25
	defaultDeferredWorkers    = 4
	defaultEventBuffer        = 256
	defaultEventSendTimeoutMS = 50

	defaultTesseractCommand = "tesseract"
	defaultOCRLanguage      = "en"

	defaultPassSchedule       = "@every 1m"
	defaultErrorRetryInterval = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			DocumentDir: defaultDocumentDir,
			LogDir:      defaultLogDir,
		},
		WorkQueue: WorkQueue{
			ClaimExpiryMinutes: defaultClaimExpiryMinutes,
			RetryIntervalHours: defaultRetryIntervalHours,
		},
		RateLimit: RateLimit{
			Backend:             defaultRateLimitBackend,
			BaseDelayMS:         defaultBaseDelayMS,
			MinDelayMS:          defaultMinDelayMS,
			MaxDelayMS:          defaultMaxDelayMS,
			BackoffMultiplier:   defaultBackoffMultiplier,
			RecoveryMultiplier:  defaultRecoveryMultiplier,
			RecoveryThreshold:   defaultRecoveryThreshold,
			SoftLimitWindowSecs: defaultSoftLimitWindowSecs,
			SoftLimitThreshold:  defaultSoftLimitThreshold,
			RetryAfterCapSecs:   defaultRetryAfterCapSecs,
			BucketBurst:         defaultBucketBurst,
		},
		Pipeline: Pipeline{
			Strategy:           defaultStrategy,
			ChunkSize:          defaultChunkSize,
			DeferredWorkers:    defaultDeferredWorkers,
			EventBuffer:        defaultEventBuffer,
			EventSendTimeoutMS: defaultEventSendTimeoutMS,
		},
		OCR: OCR{
			TesseractCommand: defaultTesseractCommand,
			Languages:        []string{defaultOCRLanguage},
		},
		Daemon: Daemon{
			PassSchedule:       defaultPassSchedule,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

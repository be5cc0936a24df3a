package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkQueue()
	c.normalizeRateLimit()
	c.normalizePipeline()
	c.normalizeOCR()
	c.normalizeDaemon()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DocumentDir) == "" {
		c.Paths.DocumentDir = defaultDocumentDir
	}
	if c.Paths.DocumentDir, err = expandPath(c.Paths.DocumentDir); err != nil {
		return fmt.Errorf("paths.document_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorkQueue() {
	if c.WorkQueue.ClaimExpiryMinutes <= 0 {
		c.WorkQueue.ClaimExpiryMinutes = defaultClaimExpiryMinutes
	}
	if c.WorkQueue.RetryIntervalHours <= 0 {
		c.WorkQueue.RetryIntervalHours = defaultRetryIntervalHours
	}
}

func (c *Config) normalizeRateLimit() {
	c.RateLimit.Backend = strings.ToLower(strings.TrimSpace(c.RateLimit.Backend))
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = defaultRateLimitBackend
	}
	if c.RateLimit.BaseDelayMS <= 0 {
		c.RateLimit.BaseDelayMS = defaultBaseDelayMS
	}
	if c.RateLimit.MinDelayMS <= 0 {
		c.RateLimit.MinDelayMS = defaultMinDelayMS
	}
	if c.RateLimit.MaxDelayMS <= 0 {
		c.RateLimit.MaxDelayMS = defaultMaxDelayMS
	}
	if c.RateLimit.BackoffMultiplier <= 1 {
		c.RateLimit.BackoffMultiplier = defaultBackoffMultiplier
	}
	if c.RateLimit.RecoveryMultiplier <= 0 || c.RateLimit.RecoveryMultiplier >= 1 {
		c.RateLimit.RecoveryMultiplier = defaultRecoveryMultiplier
	}
	if c.RateLimit.RecoveryThreshold <= 0 {
		c.RateLimit.RecoveryThreshold = defaultRecoveryThreshold
	}
	if c.RateLimit.SoftLimitWindowSecs <= 0 {
		c.RateLimit.SoftLimitWindowSecs = defaultSoftLimitWindowSecs
	}
	if c.RateLimit.SoftLimitThreshold <= 0 {
		c.RateLimit.SoftLimitThreshold = defaultSoftLimitThreshold
	}
	if c.RateLimit.RetryAfterCapSecs <= 0 {
		c.RateLimit.RetryAfterCapSecs = defaultRetryAfterCapSecs
	}
	if c.RateLimit.BucketBurst <= 0 {
		c.RateLimit.BucketBurst = defaultBucketBurst
	}
}

func (c *Config) normalizePipeline() {
	c.Pipeline.Strategy = strings.ToLower(strings.TrimSpace(c.Pipeline.Strategy))
	if c.Pipeline.Strategy == "" {
		c.Pipeline.Strategy = defaultStrategy
	}
	if c.Pipeline.ChunkSize <= 0 {
		c.Pipeline.ChunkSize = defaultChunkSize
	}
	if c.Pipeline.ItemLimit < 0 {
		c.Pipeline.ItemLimit = 0
	}
	if c.Pipeline.DeferredWorkers <= 0 {
		c.Pipeline.DeferredWorkers = defaultDeferredWorkers
	}
	if c.Pipeline.EventBuffer <= 0 {
		c.Pipeline.EventBuffer = defaultEventBuffer
	}
	if c.Pipeline.EventSendTimeoutMS <= 0 {
		c.Pipeline.EventSendTimeoutMS = defaultEventSendTimeoutMS
	}
}

func (c *Config) normalizeOCR() {
	if strings.TrimSpace(c.OCR.TesseractCommand) == "" {
		c.OCR.TesseractCommand = defaultTesseractCommand
	}
	if len(c.OCR.Languages) == 0 {
		c.OCR.Languages = []string{defaultOCRLanguage}
	}
}

func (c *Config) normalizeDaemon() {
	if strings.TrimSpace(c.Daemon.PassSchedule) == "" {
		c.Daemon.PassSchedule = defaultPassSchedule
	}
	if c.Daemon.ErrorRetryInterval <= 0 {
		c.Daemon.ErrorRetryInterval = defaultErrorRetryInterval
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

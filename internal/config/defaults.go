package config

const (
	defaultWorkDir             = "~/.local/share/krill/work"
	defaultOutputDir           = "~/.local/share/krill/results"
	defaultLogDir              = "~/.local/share/krill/logs"
	defaultFetchRetries        = 4
	defaultFetchBackoffSeconds = 15
	defaultBatchThreads        = 4
	defaultTrackerBackend      = "markers"
	defaultMetaphlanBinary     = "metaphlan"
	defaultHumannBinary        = "humann"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Fetch: Fetch{
			VerifyChecksums:     true,
			VerifyGzip:          true,
			Retries:             defaultFetchRetries,
			RetryBackoffSeconds: defaultFetchBackoffSeconds,
		},
		Batch: Batch{
			SkipFailed:    true,
			Threads:       defaultBatchThreads,
			DiskTelemetry: true,
		},
		Tracker: Tracker{
			Backend: defaultTrackerBackend,
		},
		MetaPhlAn: MetaPhlAn{
			Binary: defaultMetaphlanBinary,
		},
		HUMAnN: HUMAnN{
			Binary: defaultHumannBinary,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

package config

const (
	defaultConfigPath             = "~/.config/conveyor/config.toml"
	defaultStateDir               = "~/.local/share/conveyor"
	defaultLogDir                 = "~/.local/share/conveyor/logs"
	defaultFlowSpecDir            = "~/.config/conveyor/flows"
	defaultGridRoot               = "~/.local/share/conveyor/grid"
	defaultMaxErrorsBeforeCancel  = 3
	defaultRecentQueueSize        = 20
	defaultQueuePollInterval      = 5
	defaultSchedulerInterval      = 60
	defaultMetricsBind            = "127.0.0.1:9477"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
	defaultHashMemoryKiB          = 64 * 1024
	defaultHashIterations         = 1
	defaultHashParallelism        = 2
	defaultKDFMemoryKiB           = 64 * 1024
	defaultKDFIterations          = 1
	defaultLogSuccessfulTransfers = true
	defaultNotifyTimeout          = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
			FlowSpecDir: defaultFlowSpecDir,
			GridRoot:    defaultGridRoot,
		},
		Conveyor: Conveyor{
			LogSuccessfulTransfers: defaultLogSuccessfulTransfers,
			MaxErrorsBeforeCancel:  defaultMaxErrorsBeforeCancel,
			RecentQueueSize:        defaultRecentQueueSize,
			QueuePollInterval:      defaultQueuePollInterval,
		},
		Vault: Vault{
			HashMemoryKiB:   defaultHashMemoryKiB,
			HashIterations:  defaultHashIterations,
			HashParallelism: defaultHashParallelism,
			KDFMemoryKiB:    defaultKDFMemoryKiB,
			KDFIterations:   defaultKDFIterations,
		},
		Synch: Synch{
			SchedulerInterval: defaultSchedulerInterval,
		},
		Metrics: Metrics{
			Bind: defaultMetricsBind,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

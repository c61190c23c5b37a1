package config

const (
	defaultDataDir            = "~/.local/share/sweetexp"
	defaultLogDir             = "~/.local/share/sweetexp/logs"
	defaultSocketPath         = "/tmp/notifengine.sock"
	defaultStoreBackend       = StoreBackendText
	defaultTextStoreFile      = "sweetexp_enginedata.dat"
	defaultSQLiteStoreFile    = "sweetexp_engine.db"
	defaultQueueCapacity      = 100
	defaultEvaluateInterval   = 5
	defaultDispatchInterval   = 2
	defaultActivityInterval   = 5
	defaultAmbientProbability = 0.05
	defaultActivityMilestone  = 50
	defaultDeliveryTimeout    = 2
	defaultWatcherBackend     = WatcherBackendFSNotify
	defaultMetricPath         = "/proc/stat"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults. The engine
// starts disabled until a configuration file turns it on.
func Default() Config {
	return Config{
		Engine: Engine{
			Enabled:            false,
			QueueCapacity:      defaultQueueCapacity,
			EvaluateInterval:   defaultEvaluateInterval,
			DispatchInterval:   defaultDispatchInterval,
			ActivityInterval:   defaultActivityInterval,
			AmbientProbability: defaultAmbientProbability,
			ActivityMilestone:  defaultActivityMilestone,
		},
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			SocketPath: defaultSocketPath,
		},
		Store: Store{
			Backend: defaultStoreBackend,
		},
		IPC: IPC{
			DeliveryTimeout: defaultDeliveryTimeout,
		},
		Watcher: Watcher{
			Backend:    defaultWatcherBackend,
			MetricPath: defaultMetricPath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

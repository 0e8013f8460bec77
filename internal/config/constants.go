package config

import "time"

// Application constants
const (
	AppName    = "LicenseGate"
	AppVersion = "1.0.0"

	// EnvPrefix namespaces every environment variable, e.g. LICENSEGATE_SERVER_PORT
	EnvPrefix = "LICENSEGATE"

	// File names inside the license data directory
	LicenseCacheFileName = "license_cache.json"
	OfflineStateFileName = "offline_state.json"
	QueueSnapshotName    = "jobs.json"

	DefaultConfigFile = "licensegate.yaml"

	// Minimum shared-secret length accepted for token signing
	MinTokenSecretLength = 16

	DefaultNetworkTimeout    = 10 * time.Second
	DefaultCacheMaxAge       = 24 * time.Hour
	DefaultRefreshInterval   = 1 * time.Hour
	DefaultProcessingTimeout = 5 * time.Minute
)

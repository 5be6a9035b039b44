package config

// Default values for configuration.
const (
	// Server defaults
	DefaultServerHost             = "0.0.0.0"
	DefaultServerPort             = 8080
	DefaultShutdownTimeoutSeconds = 15

	// Database defaults
	DefaultDatabasePath = "telematrix.db"

	// Telegram defaults
	DefaultConnectTimeoutSeconds = 30

	// Job defaults
	DefaultInviteDelaySeconds = 60
	DefaultParsePageSize      = 100
	DefaultRecentDays         = 7
	DefaultRunTTLHours        = 24

	// Logging defaults
	DefaultLogLevel = "info"
)

package commands

// Display defaults
const (
	DefaultHistoryLimit       = 20
	DefaultHistorySearchLimit = 50
	MaxHistoryAnalysisRecords = 1000
	DefaultTopCommands        = 5
	TimestampFormat           = "2006-01-02 15:04:05"
	CommandColumnWidth        = 60
)

// Error messages
const (
	ErrConfigLoaderUnavailable  = "config loader unavailable"
	ErrDoctorServiceUnavailable = "doctor service unavailable"
	ErrHistoryStoreUnavailable  = "history store unavailable"
	ErrKeyStoreUnavailable      = "key store unavailable"
)

// Success messages
const (
	MsgConfigurationValid = "Configuration valid"
	MsgNoHistoryRecorded  = "No history recorded yet."
	MsgNoFavorites        = "No favorites saved."
	MsgNoKeys             = "No keys stored."
	MsgNoTargets          = "No remote targets configured."
	MsgCancelled          = "Cancelled."
)

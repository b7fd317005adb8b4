package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeUnknownStrategy      ErrorCode = 102
	ErrCodeSchemaVersion        ErrorCode = 103
	ErrCodeMissingParameter     ErrorCode = 104
	ErrCodeInvalidPeriod        ErrorCode = 105
	ErrCodeInvalidThreshold     ErrorCode = 106
	ErrCodeInvalidIntent        ErrorCode = 107
	ErrCodeInvalidWeight        ErrorCode = 108

	// Data errors (200-299)
	ErrCodeDataNotFound          ErrorCode = 200
	ErrCodeNoData                ErrorCode = 201
	ErrCodeQueryFailed           ErrorCode = 202
	ErrCodeDataSourceUnavailable ErrorCode = 203
	ErrCodeUnsortedData          ErrorCode = 204
	ErrCodePartialRange          ErrorCode = 205

	// Indicator errors (300-399)
	ErrCodeIndicatorCalculation ErrorCode = 300

	// Strategy errors (400-499)
	ErrCodeStrategyConfig  ErrorCode = 400
	ErrCodeStrategyRuntime ErrorCode = 401

	// Ledger errors (500-599)
	ErrCodeInsufficientCash     ErrorCode = 500
	ErrCodeInsufficientPosition ErrorCode = 501
	ErrCodeOrderFailed          ErrorCode = 502

	// Backtest errors (600-699)
	ErrCodeInvariantViolation ErrorCode = 600
	ErrCodeDriverState        ErrorCode = 601
	ErrCodeNoDataSource       ErrorCode = 602
	ErrCodeNoStrategy         ErrorCode = 603
	ErrCodeRunCancelled       ErrorCode = 604
	ErrCodeAllRunsFailed      ErrorCode = 605

	// Market data errors (700-799)
	ErrCodeMarketDataFetchFailed ErrorCode = 700
	ErrCodeMarketDataParseFailed ErrorCode = 701
	ErrCodeInvalidInterval       ErrorCode = 702
	ErrCodeInvalidProvider       ErrorCode = 703
)

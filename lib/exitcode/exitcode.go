// Package exitcode exports corsserve's exit status numbers.
package exitcode

const (
	// Success is returned when corsserve finished without error.
	Success = iota
	// UsageError is returned when there was a syntax or usage error in the arguments.
	UsageError
	// UncategorizedError is returned for any error not categorised otherwise,
	// including failing to bind a listening address.
	UncategorizedError
)

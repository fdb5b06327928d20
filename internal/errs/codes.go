package errs

// Error codes, grouped by the numeric band the teacher's taxonomy used
// (1XX config, 2XX IO, 3XX network/provider, 4XX validation, 5XX internal,
// 6XX coordinator state), extended with a 7XX band for data-integrity and
// cancellation since the teacher's three-category taxonomy predates those
// two spec.md kinds.
const (
	CodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	CodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	CodeFileNotFound  = "ERR_201_FILE_NOT_FOUND"
	CodeCorruptIndex  = "ERR_205_CORRUPT_INDEX"

	CodeProviderTimeout     = "ERR_301_PROVIDER_TIMEOUT"
	CodeProviderUnavailable = "ERR_302_PROVIDER_UNAVAILABLE"
	CodeCircuitOpen         = "ERR_303_CIRCUIT_OPEN"

	CodeInvalidInput      = "ERR_401_INVALID_INPUT"
	CodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	CodeNotFound          = "ERR_403_NOT_FOUND"

	CodeInternal = "ERR_501_INTERNAL"

	CodeAlreadyRunning = "ERR_601_ALREADY_RUNNING"
	CodeNotIndexing    = "ERR_602_NOT_INDEXING"

	CodeDataIntegrity = "ERR_701_DATA_INTEGRITY"
	CodeCancelled     = "ERR_702_CANCELLED"
	CodeTransient     = "ERR_703_TRANSIENT"
	CodeUnavailable   = CodeProviderUnavailable
)

func kindFromCode(code string) Kind {
	switch code {
	case CodeInvalidInput:
		return KindInvalidInput
	case CodeFileNotFound, CodeNotFound:
		return KindNotFound
	case CodeAlreadyRunning:
		return KindAlreadyRunning
	case CodeProviderUnavailable:
		return KindUnavailable
	case CodeProviderTimeout, CodeCircuitOpen, CodeTransient:
		return KindTransient
	case CodeCorruptIndex, CodeDimensionMismatch, CodeDataIntegrity:
		return KindDataIntegrity
	case CodeCancelled:
		return KindCancelled
	default:
		return KindInternal
	}
}

func isRetryableCode(code string) bool {
	switch code {
	case CodeProviderTimeout, CodeProviderUnavailable, CodeCircuitOpen, CodeTransient:
		return true
	default:
		return false
	}
}

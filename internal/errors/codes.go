package errors

// Error codes. The number block selects the category.
const (
	CodeInvalidQuery     = "ERR_100_INVALID_QUERY"
	CodeInvalidWorkspace = "ERR_101_INVALID_WORKSPACE"
	CodeInvalidLimit     = "ERR_102_INVALID_LIMIT"

	CodeIndexUnavailable = "ERR_200_INDEX_UNAVAILABLE"
	CodeStoreIO          = "ERR_201_STORE_IO"
	CodeIndexLocked      = "ERR_202_INDEX_LOCKED"

	CodeRetrievalUnavailable = "ERR_300_RETRIEVAL_UNAVAILABLE"
	CodeExpansionFailed      = "ERR_301_EXPANSION_FAILED"

	CodeEmbedderUnavailable = "ERR_400_EMBEDDER_UNAVAILABLE"
	CodeEvalUnavailable     = "ERR_401_EVAL_UNAVAILABLE"

	CodeConfigInvalid = "ERR_500_CONFIG_INVALID"
)

// Sentinel instances for errors.Is checks. Matching is by code, so
// callers can attach details to fresh instances and still compare.
var (
	// ErrRetrievalUnavailable is returned when every retrieval signal
	// failed and no ranked list could be produced.
	ErrRetrievalUnavailable = New(CodeRetrievalUnavailable,
		"all retrieval signals unavailable").WithRetryable().
		WithSuggestion("check index health and dense store connectivity")

	// ErrInvalidQuery is returned for empty or malformed query input.
	ErrInvalidQuery = New(CodeInvalidQuery, "query must not be empty")

	// ErrInvalidWorkspace is returned when no workspace ID was supplied.
	ErrInvalidWorkspace = New(CodeInvalidWorkspace, "workspace id required")

	// ErrIndexLocked is returned when another process holds the index
	// rebuild lock.
	ErrIndexLocked = New(CodeIndexLocked, "index locked by another process").
		WithRetryable()
)

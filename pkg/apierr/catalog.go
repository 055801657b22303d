package apierr

import "net/http"

// --- Common ---

func InvalidRequestBody() *Error {
	return New(CodeInvalidRequestBody, http.StatusBadRequest, "Invalid request body")
}

func InternalError(cause error) *Error {
	return Wrap(CodeInternalError, http.StatusInternalServerError, "Internal server error", cause)
}

// --- Build ---

func BuildNotFound(name string) *Error {
	return New(CodeBuildNotFound, http.StatusNotFound, "Build "+name+" not found")
}

func BuildGetFailed(cause error) *Error {
	return Wrap(CodeBuildGetFailed, http.StatusInternalServerError, "Failed to load build", cause)
}

func NoBuildConfig(name string) *Error {
	return New(CodeNoBuildConfig, http.StatusConflict, "Build "+name+" has no build config")
}

// --- Index commands ---

func UnknownIndexEnv(env string) *Error {
	return New(CodeUnknownIndexEnv, http.StatusBadRequest, "Unknown indexing environment "+env)
}

func InvalidMode(mode string) *Error {
	return New(CodeInvalidMode, http.StatusBadRequest, "mode must be one of: index, resume, merge, purge; got "+mode)
}

func InvalidBatchSize() *Error {
	return New(CodeInvalidBatchSize, http.StatusBadRequest, "batch_size must be between 50 and 10000")
}

func IndexEnqueueFailed(cause error) *Error {
	return Wrap(CodeIndexEnqueueFailed, http.StatusInternalServerError, "Failed to enqueue index command", cause)
}

// --- Snapshot commands ---

func UnknownSnapshotEnv(env string) *Error {
	return New(CodeUnknownSnapshotEnv, http.StatusBadRequest, "Unknown snapshot environment "+env)
}

func SnapshotEnqueueFailed(cause error) *Error {
	return Wrap(CodeSnapshotEnqueueFailed, http.StatusInternalServerError, "Failed to enqueue snapshot command", cause)
}

// --- Health ---

func DatabaseNotReady(cause error) *Error {
	return Wrap(CodeDatabaseNotReady, http.StatusServiceUnavailable, "Database not ready", cause)
}

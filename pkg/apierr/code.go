package apierr

// Code is a machine-readable error code returned in API responses.
type Code string

// Common errors.
const (
	CodeInvalidRequestBody Code = "INVALID_REQUEST_BODY"
	CodeInternalError      Code = "INTERNAL_ERROR"
)

// Build errors.
const (
	CodeBuildNotFound  Code = "BUILD_NOT_FOUND"
	CodeBuildGetFailed Code = "BUILD_GET_FAILED"
	CodeNoBuildConfig  Code = "NO_BUILD_CONFIG"
)

// Index command errors.
const (
	CodeUnknownIndexEnv    Code = "UNKNOWN_INDEX_ENV"
	CodeInvalidMode        Code = "INVALID_MODE"
	CodeInvalidBatchSize   Code = "INVALID_BATCH_SIZE"
	CodeIndexEnqueueFailed Code = "INDEX_ENQUEUE_FAILED"
)

// Snapshot command errors.
const (
	CodeUnknownSnapshotEnv    Code = "UNKNOWN_SNAPSHOT_ENV"
	CodeSnapshotEnqueueFailed Code = "SNAPSHOT_ENQUEUE_FAILED"
)

// Health errors.
const (
	CodeDatabaseNotReady Code = "DATABASE_NOT_READY"
)

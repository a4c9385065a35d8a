// Package constants provides shared constants used throughout the pipeline.
// This includes timeouts, limits, file permissions, and other configuration
// values that should be consistent across the application.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultHTTPTimeout is the standard timeout for small HTTP requests
	// such as schema fetches and object storage API calls
	DefaultHTTPTimeout = 60 * time.Second

	// DownloadTimeout is the timeout for downloading PSP source archives
	DownloadTimeout = 2 * time.Minute

	// UploadTimeout is the timeout for uploading a single snapshot file
	UploadTimeout = 5 * time.Minute

	// PipelineTimeout is the overall timeout for a full pipeline run
	PipelineTimeout = 30 * time.Minute

	// AnalysisTimeout is the timeout for one external analysis process
	AnalysisTimeout = 10 * time.Minute
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Snapshot constants
const (
	// SnapshotTimeFormat is the UTC timestamp embedded in snapshot file names.
	// Lexicographic order of names equals chronological order.
	SnapshotTimeFormat = "20060102T150405Z"

	// SnapshotRetain is how many snapshots to keep per dataset when pruning
	SnapshotRetain = 5

	// DefaultRemotePrefix is the object storage prefix for published datasets
	DefaultRemotePrefix = "legislatures/cz-psp-data-2025-202x"
)

// Limit constants
const (
	// VoteBatchSize is the row batch size when streaming votes to Parquet
	VoteBatchSize = 50000

	// WriteBufferSize is the default buffer size for write operations
	WriteBufferSize = 4096
)

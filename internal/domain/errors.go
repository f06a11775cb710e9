package domain

import "errors"

// Error taxonomy for the batch pipeline. Per-member errors
// (ErrToolInvocation, ErrDownloadFailed, ErrTagEmbed, ErrImageFetch) are
// recorded and the batch continues; ErrArchive and working-directory
// failures are batch-fatal.
var (
	// ErrInvalidPlaylistURL means the URL carries no recognizable playlist
	// marker. No job is created.
	ErrInvalidPlaylistURL = errors.New("not a valid playlist URL")

	// ErrToolInvocation means the external media tool exited non-zero or
	// produced unparseable output.
	ErrToolInvocation = errors.New("media tool invocation failed")

	// ErrDownloadFailed means a single download attempt failed after the
	// tool's built-in retries.
	ErrDownloadFailed = errors.New("download failed")

	// ErrTagEmbed means cover art embedding failed. Callers fall back to
	// the untagged file.
	ErrTagEmbed = errors.New("cover art embedding failed")

	// ErrImageFetch means a thumbnail could not be fetched. Non-fatal.
	ErrImageFetch = errors.New("image fetch failed")

	// ErrArchive means the working directory could not be compressed.
	ErrArchive = errors.New("archive build failed")

	// ErrJobNotFound means the job id is unknown or already expired.
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateJob means a job id was registered twice, which is a
	// logic error given the monotonic id generator.
	ErrDuplicateJob = errors.New("duplicate job id")

	// ErrTooManyJobs means the server is already running its maximum
	// number of concurrent batch jobs.
	ErrTooManyJobs = errors.New("too many concurrent batch jobs")
)

// Package consts defines application-wide constants.
package consts

import "time"

const (
	// DefaultHandlerTimeout is the default timeout for HTTP handlers.
	DefaultHandlerTimeout = 30 * time.Second
	// DefaultInfoTimeout bounds a metadata query made from an HTTP handler.
	DefaultInfoTimeout = 2 * time.Minute
	// DefaultSearchLimit is used when the search limit is missing or out of range.
	DefaultSearchLimit = 10
	// MaxSearchLimit is the largest page the search API accepts.
	MaxSearchLimit = 50
)

// HTTP response messages.
const (
	// RespInvalidRequestBody is returned when the request body is invalid.
	RespInvalidRequestBody = "invalid request body"
	// RespQueryParamMissing is returned when a required query parameter is missing or invalid.
	RespQueryParamMissing = "query param missing or invalid"
	// RespUnprocessableEntity is returned when the request cannot be processed.
	RespUnprocessableEntity = "unprocessable entity"
	// RespJobEnqueued is returned when a job is successfully enqueued.
	RespJobEnqueued = "job enqueued"
	// RespJobEnqueueFail is returned when a job cannot be enqueued.
	RespJobEnqueueFail = "job enqueue failed"
	// RespGetJobsFail is returned when fetching all jobs fails.
	RespGetJobsFail = "get all jobs failed"
	// RespNoJobs is returned when there are no jobs available.
	RespNoJobs = "no jobs"
	// RespJobRetrieved is returned when a job is successfully retrieved.
	RespJobRetrieved = "job retrieved"
	// RespJobsRetrieved is returned when jobs are successfully retrieved.
	RespJobsRetrieved = "jobs retrieved"
	// RespJobNotFound is returned when a job is not found.
	RespJobNotFound = "job not found"
	// RespJobAlreadyExists is returned when a job already exists.
	RespJobAlreadyExists = "job already exists"
	// RespJobDeleted is returned when a job and its files are removed.
	RespJobDeleted = "job deleted"
	// RespJobNotFinished is returned when a job file is requested before the job finished.
	RespJobNotFinished = "job not finished"
	// RespMetadataRetrieved is returned with video metadata.
	RespMetadataRetrieved = "metadata retrieved"
	// RespNoMetadata is returned when metadata could not be fetched.
	RespNoMetadata = "no metadata"
	// RespSearchResults is returned with search results, possibly empty.
	RespSearchResults = "search results"
	// RespSearchFail is returned with an empty list when the search API call fails.
	RespSearchFail = "search failed"
	// RespPlaylistRetrieved is returned with playlist entries.
	RespPlaylistRetrieved = "playlist retrieved"
	// RespPlaylistFail is returned when playlist entries could not be listed.
	RespPlaylistFail = "playlist listing failed"
	// RespBotChallenge is the user-facing message for a final bot challenge.
	RespBotChallenge = "the platform asked to confirm you are not a bot; try again later"
)

// Download strategy names, in the order they are tried.
const (
	// StrategyAndroid mimics the mobile app client.
	StrategyAndroid = "android"
	// StrategyWeb mimics a desktop browser.
	StrategyWeb = "web"
	// StrategyBasic sends no identity overrides.
	StrategyBasic = "basic"
	// StrategyAudio is the single desktop attempt used for audio requests.
	StrategyAudio = "audio"
)

// Extractor identifiers.
const (
	// ExtractorYTdlp runs the real yt-dlp binary.
	ExtractorYTdlp = "ytdlp"
	// ExtractorSimulated fakes transfers, for local runs and tests.
	ExtractorSimulated = "simulated"
)

// Progress status texts.
const (
	// StatusDownloading prefixes in-flight progress.
	StatusDownloading = "downloading..."
	// StatusProcessing is reported once the transfer is done and post-processing starts.
	StatusProcessing = "download complete, processing file..."
	// StatusReady is reported when the output file is in place.
	StatusReady = "ready"
)

// Files.
const (
	// RespFileNotFound is returned when a file is not found.
	RespFileNotFound = "file not found"
	// MIMEOctetStream is the fallback content type for served files.
	MIMEOctetStream = "application/octet-stream"
)

// MIMETypes maps output extensions to served content types.
var MIMETypes = map[string]string{
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"mp4":  "video/mp4",
	"webm": "video/webm",
}

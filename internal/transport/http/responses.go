package http

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse reports service liveness and load.
type HealthResponse struct {
	Status           string `json:"status"`
	ActiveJobs       int    `json:"activeJobs"`
	TrackedArchives  int    `json:"trackedArchives"`
	HistoryAvailable bool   `json:"historyAvailable"`
}

// PlaylistMemberPreview is one playlist entry in an info response.
type PlaylistMemberPreview struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// PlaylistInfoResponse describes a playlist without downloading anything.
type PlaylistInfoResponse struct {
	ID         string                  `json:"id"`
	Title      string                  `json:"title"`
	Thumbnail  string                  `json:"thumbnail,omitempty"`
	VideoCount int                     `json:"videoCount"`
	Videos     []PlaylistMemberPreview `json:"videos"`
}

// VideoFormatInfo is one selectable format in a video info response.
type VideoFormatInfo struct {
	FormatID string `json:"formatId"`
	Ext      string `json:"ext"`
	Quality  string `json:"quality"`
	HasAudio bool   `json:"hasAudio"`
	HasVideo bool   `json:"hasVideo"`
	Size     string `json:"size,omitempty"`
}

// VideoInfoResponse describes a single video and its formats.
type VideoInfoResponse struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Duration  float64           `json:"duration"`
	Thumbnail string            `json:"thumbnail,omitempty"`
	Uploader  string            `json:"uploader,omitempty"`
	Formats   []VideoFormatInfo `json:"formats"`
}

// DirectLinkResponse carries a direct media URL for a single video.
type DirectLinkResponse struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Ext     string `json:"ext"`
	Quality string `json:"quality,omitempty"`
}

// URLRequest is the body of the single-video POST endpoints.
type URLRequest struct {
	URL string `json:"url"`
}

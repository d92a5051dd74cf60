package image

// ImageData is the image payload handed to a VLLLM provider: either a
// remote URL or inline base64 content, never both.
type ImageData struct {
	URL    string `json:"url,omitempty"`
	Data   string `json:"data,omitempty"`
	Format string `json:"format,omitempty"`
}

// Empty reports whether the payload carries neither a URL nor inline data.
func (d ImageData) Empty() bool {
	return d.URL == "" && d.Data == ""
}

// Source labels the payload origin for logging: the URL itself for remote
// images, "inline" for base64 content.
func (d ImageData) Source() string {
	if d.URL != "" {
		return d.URL
	}
	return "inline"
}

// ValidationResult captures the outcome of security validation.
type ValidationResult struct {
	IsValid      bool
	Format       string
	Width        int
	Height       int
	FileSize     int64
	Error        error
	SecurityRisk string
}

// Metrics aggregates pipeline statistics for observability.
type Metrics struct {
	TotalProcessed    int64
	URLDownloads      int64
	Base64Direct      int64
	FailedValidations int64
	SecurityIncidents int64
}

package model

// SessionState constants
const (
	StateIdle    = "idle"
	StateLoading = "loading"
	StateReady   = "ready"
)

// ImagePlaceholder stands in for the raw text of an image submission
const ImagePlaceholder = "[Image Content Analysed]"

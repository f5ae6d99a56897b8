package model

// PayloadKind discriminates the DocumentPayload variants
type PayloadKind string

// PayloadKind constants
const (
	PayloadText  PayloadKind = "text"
	PayloadImage PayloadKind = "image"
)

// DocumentPayload is the normalized form of a submitted document.
// Exactly one variant is active: Content for text, Data+MediaType for images.
type DocumentPayload struct {
	Kind      PayloadKind
	Content   string
	Data      string // base64, no data-URL prefix
	MediaType string
}

// TextPayload builds the text variant
func TextPayload(content string) DocumentPayload {
	return DocumentPayload{Kind: PayloadText, Content: content}
}

// ImagePayload builds the image variant
func ImagePayload(data, mediaType string) DocumentPayload {
	return DocumentPayload{Kind: PayloadImage, Data: data, MediaType: mediaType}
}

// IsImage reports whether the payload is the image variant
func (p DocumentPayload) IsImage() bool {
	return p.Kind == PayloadImage
}

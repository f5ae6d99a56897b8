package service

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/AnTengye/legalease/backend/model"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultMaxDocumentBytes caps uploads when no limit is configured
const DefaultMaxDocumentBytes int64 = 10 << 20

// Ingestor turns pasted text and uploaded files into document payloads.
// It never touches the network.
type Ingestor struct {
	maxBytes int64
}

func NewIngestor(maxBytes int64) *Ingestor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDocumentBytes
	}
	return &Ingestor{maxBytes: maxBytes}
}

// MaxBytes returns the per-document size limit
func (i *Ingestor) MaxBytes() int64 {
	return i.maxBytes
}

// FromText wraps pasted text verbatim. A paste with nothing but
// whitespace is rejected; the stored content is never trimmed.
func (i *Ingestor) FromText(content string) (model.DocumentPayload, error) {
	if strings.TrimSpace(content) == "" {
		return model.DocumentPayload{}, &IngestionError{Kind: KindEmptyDocument, Err: ErrEmptyDocument}
	}
	return model.TextPayload(content), nil
}

// FromFile reads an uploaded file. Files whose media type starts with
// "image/" become image payloads; everything else is decoded as text.
// An empty or generic declared type is replaced by content sniffing.
func (i *Ingestor) FromFile(r io.Reader, declaredType string) (model.DocumentPayload, error) {
	data, err := io.ReadAll(io.LimitReader(r, i.maxBytes+1))
	if err != nil {
		return model.DocumentPayload{}, &IngestionError{Kind: KindUnreadable, Err: err}
	}
	if int64(len(data)) > i.maxBytes {
		return model.DocumentPayload{}, &IngestionError{
			Kind: KindTooLarge,
			Err:  fmt.Errorf("document exceeds %d bytes", i.maxBytes),
		}
	}

	mediaType := normalizeMediaType(declaredType)
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = normalizeMediaType(http.DetectContentType(data))
	}

	if strings.HasPrefix(mediaType, "image/") {
		if len(data) == 0 {
			return model.DocumentPayload{}, &IngestionError{Kind: KindInvalidImage, Err: fmt.Errorf("image file is empty")}
		}
		return model.ImagePayload(base64.StdEncoding.EncodeToString(data), mediaType), nil
	}

	text, err := decodeText(data)
	if err != nil {
		return model.DocumentPayload{}, &IngestionError{Kind: KindUnreadable, Err: err}
	}
	return model.TextPayload(text), nil
}

// FromImageData accepts base64 image data, optionally as a data URL. The
// media type embedded in a data URL is used when mediaType is empty.
func (i *Ingestor) FromImageData(data, mediaType string) (model.DocumentPayload, error) {
	stripped, urlType := StripDataURL(data)
	if mediaType == "" {
		mediaType = urlType
	}
	mediaType = normalizeMediaType(mediaType)

	if !strings.HasPrefix(mediaType, "image/") {
		return model.DocumentPayload{}, &IngestionError{
			Kind: KindInvalidImage,
			Err:  fmt.Errorf("unsupported media type %q", mediaType),
		}
	}
	if stripped == "" {
		return model.DocumentPayload{}, &IngestionError{Kind: KindInvalidImage, Err: fmt.Errorf("image data is empty")}
	}

	raw, err := base64.StdEncoding.DecodeString(stripped)
	if err != nil {
		return model.DocumentPayload{}, &IngestionError{Kind: KindInvalidImage, Err: fmt.Errorf("invalid base64: %w", err)}
	}
	if int64(len(raw)) > i.maxBytes {
		return model.DocumentPayload{}, &IngestionError{
			Kind: KindTooLarge,
			Err:  fmt.Errorf("document exceeds %d bytes", i.maxBytes),
		}
	}

	return model.ImagePayload(stripped, mediaType), nil
}

// StripDataURL removes a "data:<type>;base64," prefix and reports the
// media type it carried. Input without the prefix is returned unchanged.
func StripDataURL(s string) (data, mediaType string) {
	if !strings.HasPrefix(s, "data:") {
		return s, ""
	}
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return s, ""
	}
	header := s[len("data:"):comma]
	if semi := strings.IndexByte(header, ';'); semi >= 0 {
		header = header[:semi]
	}
	return s[comma+1:], header
}

func normalizeMediaType(v string) string {
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return mt
}

// decodeText decodes UTF-8 (BOM stripped) or BOM-marked UTF-16. Invalid
// byte sequences become U+FFFD.
func decodeText(data []byte) (string, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return "", fmt.Errorf("failed to decode text: %w", err)
	}
	return string(out), nil
}

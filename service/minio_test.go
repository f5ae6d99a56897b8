package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/AnTengye/legalease/backend/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArchive(t *testing.T, endpoint string) *DocumentArchive {
	t.Helper()
	archive, err := NewDocumentArchive(&config.ArchiveConfig{
		Endpoint:  endpoint,
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "documents",
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	return archive
}

func TestNewDocumentArchive(t *testing.T) {
	archive := newTestArchive(t, "localhost:9000")
	assert.Equal(t, "documents", archive.bucket)
}

func TestObjectName(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		expected string
	}{
		{"plain", "lease.txt", "acme/s1/lease.txt"},
		{"strips directories", "../../etc/passwd", "acme/s1/passwd"},
		{"windows path", `C:\docs\nda.png`, "acme/s1/nda.png"},
		{"empty", "", "acme/s1/document"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ObjectName("acme", "s1", tt.filename))
		})
	}
}

func TestDocumentArchiveGetPublicURL(t *testing.T) {
	tests := []struct {
		name       string
		useSSL     bool
		endpoint   string
		bucket     string
		objectName string
		expected   string
	}{
		{
			name:       "http url",
			endpoint:   "localhost:9000",
			bucket:     "test-bucket",
			objectName: "acme/s1/lease.txt",
			expected:   "http://localhost:9000/test-bucket/acme/s1/lease.txt",
		},
		{
			name:       "https url",
			useSSL:     true,
			endpoint:   "minio.example.com",
			bucket:     "documents",
			objectName: "tenant/abc/scan.png",
			expected:   "https://minio.example.com/documents/tenant/abc/scan.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive := &DocumentArchive{
				bucket: tt.bucket,
				config: &config.ArchiveConfig{Endpoint: tt.endpoint, UseSSL: tt.useSSL},
			}
			assert.Equal(t, tt.expected, archive.GetPublicURL(tt.objectName))
		})
	}
}

func TestDocumentArchiveUpload(t *testing.T) {
	var (
		mu       sync.Mutex
		gotPath  string
		gotBody  string
		gotCType string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath = r.URL.Path
		gotBody = string(body)
		gotCType = r.Header.Get("Content-Type")
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	archive := newTestArchive(t, strings.TrimPrefix(server.URL, "http://"))

	objectName, err := archive.UploadDocument(context.Background(), "acme", "s1", "lease.txt", []byte(leaseClause), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "acme/s1/lease.txt", objectName)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/documents/acme/s1/lease.txt", gotPath)
	assert.Contains(t, gotBody, leaseClause)
	assert.Equal(t, "text/plain", gotCType)
	assert.Equal(t, server.URL+"/documents/acme/s1/lease.txt", archive.GetPublicURL(objectName))
}

func TestDocumentArchiveCancelledContext(t *testing.T) {
	archive := newTestArchive(t, "localhost:9000")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := archive.UploadDocument(ctx, "t", "s", "f.txt", []byte("x"), "text/plain")
	assert.Error(t, err)
}

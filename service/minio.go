package service

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/AnTengye/legalease/backend/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DocumentArchive keeps a copy of every submitted document in object storage
type DocumentArchive struct {
	client *minio.Client
	bucket string
	config *config.ArchiveConfig
}

func NewDocumentArchive(cfg *config.ArchiveConfig) (*DocumentArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &DocumentArchive{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (a *DocumentArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.config.Region})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// SessionPrefix is the object prefix holding all documents of a session
func SessionPrefix(tenant, sessionID string) string {
	return tenant + "/" + sessionID + "/"
}

// ObjectName builds <tenant>/<session>/<filename>, keeping only the base name
func ObjectName(tenant, sessionID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "document"
	}
	return SessionPrefix(tenant, sessionID) + name
}

// UploadDocument stores the submitted bytes and returns the object name
func (a *DocumentArchive) UploadDocument(ctx context.Context, tenant, sessionID, filename string, data []byte, contentType string) (string, error) {
	objectName := ObjectName(tenant, sessionID, filename)
	_, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload document: %w", err)
	}

	return objectName, nil
}

// DeleteSession removes every archived document of the session
func (a *DocumentArchive) DeleteSession(ctx context.Context, tenant, sessionID string) error {
	objects := a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
		Prefix:    SessionPrefix(tenant, sessionID),
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			return fmt.Errorf("failed to list documents: %w", obj.Err)
		}
		if err := a.client.RemoveObject(ctx, a.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to delete document %s: %w", obj.Key, err)
		}
	}

	return nil
}

// GetPublicURL returns a public URL for the object (if bucket policy allows)
func (a *DocumentArchive) GetPublicURL(objectName string) string {
	protocol := "http"
	if a.config.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, a.config.Endpoint, a.bucket, objectName)
}

package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AnTengye/legalease/backend/middleware"
	"github.com/AnTengye/legalease/backend/model"
	"github.com/AnTengye/legalease/backend/pkg/logger"
	"github.com/AnTengye/legalease/backend/service"
	"github.com/gin-gonic/gin"
)

const archiveTimeout = 30 * time.Second

// DocumentArchiver stores uploaded documents; nil disables archiving
type DocumentArchiver interface {
	UploadDocument(ctx context.Context, tenant, sessionID, filename string, data []byte, contentType string) (string, error)
	DeleteSession(ctx context.Context, tenant, sessionID string) error
	GetPublicURL(objectName string) string
}

type SessionHandler struct {
	store    *service.SessionStore
	ingestor *service.Ingestor
	deps     service.SessionDeps
	archive  DocumentArchiver
}

func NewSessionHandler(store *service.SessionStore, ingestor *service.Ingestor, deps service.SessionDeps, archive DocumentArchiver) *SessionHandler {
	return &SessionHandler{
		store:    store,
		ingestor: ingestor,
		deps:     deps,
		archive:  archive,
	}
}

// SessionResponse is a session snapshot plus its rendered report
type SessionResponse struct {
	service.Snapshot
	Report *service.Report `json:"report,omitempty"`
}

type AnalyzeRequest struct {
	Text  *string       `json:"text"`
	Image *ImageRequest `json:"image"`
}

type ImageRequest struct {
	Data      string `json:"data"`
	MediaType string `json:"media_type"`
}

func resetPath(id string) string {
	return fmt.Sprintf("/api/sessions/%s/reset", id)
}

func newSessionResponse(sess *service.Session) SessionResponse {
	snap := sess.Snapshot()
	return SessionResponse{
		Snapshot: snap,
		Report:   service.BuildReport(snap.Analysis, resetPath(snap.ID)),
	}
}

// lookup finds the caller's session or writes a 404
func (h *SessionHandler) lookup(c *gin.Context) *service.Session {
	sess := h.store.Get(c.Param("id"))
	if sess == nil || sess.Tenant != middleware.GetTenant(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return nil
	}
	return sess
}

// Create starts a new idle session
func (h *SessionHandler) Create(c *gin.Context) {
	sess := service.NewSession(middleware.GetTenant(c), h.deps)
	h.store.Save(sess)

	logger.Info(logger.WithSession(c.Request.Context(), sess.ID), "session created")
	c.JSON(http.StatusCreated, newSessionResponse(sess))
}

// List returns the current tenant's sessions without analysis bodies
func (h *SessionHandler) List(c *gin.Context) {
	sessions := h.store.GetByTenant(middleware.GetTenant(c))

	result := make([]gin.H, len(sessions))
	for i, sess := range sessions {
		snap := sess.Snapshot()
		title := ""
		if snap.Analysis != nil {
			title = snap.Analysis.Title
		}
		result[i] = gin.H{
			"id":         snap.ID,
			"state":      snap.State,
			"title":      title,
			"messages":   len(snap.Messages),
			"created_at": snap.CreatedAt.Format(time.RFC3339),
			"updated_at": snap.UpdatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, gin.H{"sessions": result})
}

// Get returns one session with its report and conversation
func (h *SessionHandler) Get(c *gin.Context) {
	sess := h.lookup(c)
	if sess == nil {
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(sess))
}

// Delete cancels in-flight work, removes the session and its archived documents
func (h *SessionHandler) Delete(c *gin.Context) {
	sess := h.lookup(c)
	if sess == nil {
		return
	}

	h.store.Delete(sess.ID)

	if h.archive != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), archiveTimeout)
		defer cancel()
		if err := h.archive.DeleteSession(ctx, sess.Tenant, sess.ID); err != nil {
			logger.Warn(ctx, "failed to delete archived documents", "session_id", sess.ID, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session deleted"})
}

// Reset returns the session to idle, discarding analysis and conversation
func (h *SessionHandler) Reset(c *gin.Context) {
	sess := h.lookup(c)
	if sess == nil {
		return
	}
	sess.Reset()
	c.JSON(http.StatusOK, newSessionResponse(sess))
}

// Analyze accepts a multipart file or a JSON text/image body. With
// ?wait=true the analysis runs in the request; otherwise it is started in
// the background and 202 is returned.
func (h *SessionHandler) Analyze(c *gin.Context) {
	sess := h.lookup(c)
	if sess == nil {
		return
	}

	payload, upload, err := h.readPayload(c)
	if err != nil {
		writeIngestionError(c, err)
		return
	}

	job, err := sess.Start(payload)
	switch {
	case errors.Is(err, service.ErrEmptyDocument):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Document is empty", "kind": service.KindEmptyDocument})
		return
	case errors.Is(err, service.ErrAnalysisInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "An analysis is already in progress"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if upload != nil {
		h.archiveUpload(c, sess, job.Generation(), upload)
	}

	if c.Query("wait") != "true" {
		// the job outlives the request but keeps its log fields
		go job.Run(context.WithoutCancel(c.Request.Context()))
		c.JSON(http.StatusAccepted, gin.H{
			"id":         sess.ID,
			"state":      model.StateLoading,
			"generation": job.Generation(),
		})
		return
	}

	err = job.Run(c.Request.Context())
	switch {
	case errors.Is(err, service.ErrSessionReset):
		c.JSON(http.StatusConflict, gin.H{"error": "Session was reset during analysis"})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": service.AnalysisFailedMessage, "kind": service.KindOf(err)})
	default:
		c.JSON(http.StatusOK, newSessionResponse(sess))
	}
}

type uploadedFile struct {
	filename    string
	contentType string
	data        []byte
}

func (h *SessionHandler) readPayload(c *gin.Context) (model.DocumentPayload, *uploadedFile, error) {
	if c.ContentType() == "multipart/form-data" {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			return model.DocumentPayload{}, nil, errNoDocument
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, h.ingestor.MaxBytes()+1))
		if err != nil {
			return model.DocumentPayload{}, nil, &service.IngestionError{Kind: service.KindUnreadable, Err: err}
		}

		contentType := header.Header.Get("Content-Type")
		payload, err := h.ingestor.FromFile(bytes.NewReader(data), contentType)
		if err != nil {
			return model.DocumentPayload{}, nil, err
		}
		if payload.IsImage() {
			contentType = payload.MediaType
		}
		return payload, &uploadedFile{filename: header.Filename, contentType: contentType, data: data}, nil
	}

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return model.DocumentPayload{}, nil, errNoDocument
	}
	switch {
	case req.Image != nil:
		payload, err := h.ingestor.FromImageData(req.Image.Data, req.Image.MediaType)
		return payload, nil, err
	case req.Text != nil:
		payload, err := h.ingestor.FromText(*req.Text)
		return payload, nil, err
	default:
		return model.DocumentPayload{}, nil, errNoDocument
	}
}

var errNoDocument = errors.New("provide a file, text or image")

func writeIngestionError(c *gin.Context, err error) {
	if errors.Is(err, errNoDocument) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No document provided"})
		return
	}

	kind := service.KindOf(err)
	status := http.StatusBadRequest
	if kind == service.KindTooLarge {
		status = http.StatusRequestEntityTooLarge
	}
	logger.Warn(c.Request.Context(), "document rejected", "kind", kind, "error", err)
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind})
}

// archiveUpload stores the file in the background and records its URL on
// the session; failures are only logged
func (h *SessionHandler) archiveUpload(c *gin.Context, sess *service.Session, generation uint64, f *uploadedFile) {
	if h.archive == nil {
		return
	}
	ctx := context.WithoutCancel(logger.WithSession(c.Request.Context(), sess.ID))
	go func() {
		ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
		defer cancel()
		objectName, err := h.archive.UploadDocument(ctx, sess.Tenant, sess.ID, f.filename, f.data, f.contentType)
		if err != nil {
			logger.Warn(ctx, "failed to archive document", "error", err)
			return
		}
		url := h.archive.GetPublicURL(objectName)
		if !sess.SetDocumentURL(generation, url) {
			logger.Debug(ctx, "session moved on before the archive finished", "object", objectName)
			return
		}
		logger.Debug(ctx, "document archived", "object", objectName, "url", url)
	}()
}

// Report downloads the analysis as plain text
func (h *SessionHandler) Report(c *gin.Context) {
	sess := h.lookup(c)
	if sess == nil {
		return
	}

	report := service.BuildReport(sess.Analysis(), resetPath(sess.ID))
	if report == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No analysis available"})
		return
	}

	var buf bytes.Buffer
	if err := service.RenderText(&buf, report); err != nil {
		logger.Error(c.Request.Context(), "failed to render report", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render report"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.txt"`, sess.ID))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}

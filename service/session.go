package service

import (
	"context"
	"sync"
	"time"

	"github.com/AnTengye/legalease/backend/model"
	"github.com/AnTengye/legalease/backend/pkg/logger"
	"github.com/google/uuid"
)

// AnalysisFailedMessage is the user-facing text for any analysis failure
const AnalysisFailedMessage = "We couldn't analyze the document. Please ensure it's a clear image or readable text."

// Event types pushed to session subscribers
const (
	EventState   = "state"
	EventMessage = "message"
)

// Event is a session change pushed to subscribers
type Event struct {
	Type       string             `json:"type"`
	SessionID  string             `json:"session_id"`
	State      string             `json:"state,omitempty"`
	Generation uint64             `json:"generation,omitempty"`
	Error      string             `json:"error,omitempty"`
	Message    *model.ChatMessage `json:"message,omitempty"`
}

// Publisher receives session events
type Publisher interface {
	Publish(sessionID string, ev Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, Event) {}

// SessionDeps are the collaborators injected into every session
type SessionDeps struct {
	Analyzer    Analyzer
	Asker       Asker
	Publisher   Publisher
	MaxMessages int
}

// Session is the controller for one user interaction: idle -> loading ->
// ready -> (reset) idle. Errors are a side channel cleared on the next
// submit or reset.
type Session struct {
	ID        string
	Tenant    string
	CreatedAt time.Time

	analyzer     Analyzer
	publisher    Publisher
	conversation *Conversation

	mu         sync.Mutex
	state      string
	generation uint64
	analysis   *model.ContractAnalysis
	rawText    string
	errMsg     string
	docURL     string
	cancel     context.CancelFunc
	updatedAt  time.Time
}

// Snapshot is a consistent copy of a session's state
type Snapshot struct {
	ID            string                  `json:"id"`
	Tenant        string                  `json:"tenant"`
	State         string                  `json:"state"`
	Generation    uint64                  `json:"generation"`
	Error         string                  `json:"error,omitempty"`
	Analysis      *model.ContractAnalysis `json:"analysis,omitempty"`
	DocumentURL   string                  `json:"document_url,omitempty"`
	Messages      []model.ChatMessage     `json:"messages"`
	Awaiting      bool                    `json:"awaiting"`
	LastErrorKind ErrorKind               `json:"last_error_kind,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

func NewSession(tenant string, deps SessionDeps) *Session {
	now := time.Now()
	s := &Session{
		ID:        uuid.New().String(),
		Tenant:    tenant,
		CreatedAt: now,
		analyzer:  deps.Analyzer,
		publisher: deps.Publisher,
		state:     model.StateIdle,
		updatedAt: now,
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}
	s.conversation = NewConversation(deps.Asker, deps.MaxMessages, func(msg model.ChatMessage) {
		s.publisher.Publish(s.ID, Event{Type: EventMessage, SessionID: s.ID, Message: &msg})
	})
	return s
}

// AnalysisJob is one accepted submission, bound to the generation it started in
type AnalysisJob struct {
	session    *Session
	generation uint64
	payload    model.DocumentPayload
}

// Generation returns the generation the job belongs to
func (j *AnalysisJob) Generation() uint64 {
	return j.generation
}

// Start accepts a payload and moves the session to loading. The returned
// job performs the analysis; run it inline or in a goroutine.
func (s *Session) Start(payload model.DocumentPayload) (*AnalysisJob, error) {
	if (payload.IsImage() && payload.Data == "") || (!payload.IsImage() && payload.Content == "") {
		return nil, ErrEmptyDocument
	}

	s.mu.Lock()
	if s.state == model.StateLoading {
		s.mu.Unlock()
		return nil, ErrAnalysisInFlight
	}
	s.generation++
	s.state = model.StateLoading
	s.analysis = nil
	s.rawText = ""
	s.errMsg = ""
	s.docURL = ""
	s.updatedAt = time.Now()
	// a new document starts a new conversation
	s.conversation.Clear()
	job := &AnalysisJob{session: s, generation: s.generation, payload: payload}
	s.mu.Unlock()

	s.publishState()
	return job, nil
}

// Run performs the analysis and applies the result only if the session has
// not been reset or resubmitted in the meantime.
func (j *AnalysisJob) Run(ctx context.Context) error {
	s := j.session
	ctx = logger.WithSession(ctx, s.ID)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.generation != j.generation {
		s.mu.Unlock()
		return ErrSessionReset
	}
	s.cancel = cancel
	s.mu.Unlock()

	logger.Info(ctx, "analysis started", "generation", j.generation, "payload", j.payload.Kind)
	started := time.Now()
	analysis, err := s.analyzer.Analyze(ctx, j.payload)

	s.mu.Lock()
	if s.generation != j.generation {
		s.mu.Unlock()
		logger.Info(ctx, "discarding stale analysis result", "generation", j.generation)
		return ErrSessionReset
	}
	s.cancel = nil
	s.updatedAt = time.Now()
	if err != nil {
		s.state = model.StateIdle
		s.errMsg = AnalysisFailedMessage
		s.mu.Unlock()

		logger.Error(ctx, "analysis failed", "kind", KindOf(err), "error", err)
		s.publishState()
		return err
	}

	s.analysis = analysis
	if j.payload.IsImage() {
		s.rawText = model.ImagePlaceholder
	} else {
		s.rawText = j.payload.Content
	}
	s.state = model.StateReady
	s.mu.Unlock()

	logger.Info(ctx, "analysis completed",
		"risks", len(analysis.Risks),
		"deadlines", len(analysis.Deadlines),
		"latency_ms", time.Since(started).Milliseconds(),
	)
	s.publishState()
	return nil
}

// Submit starts and runs an analysis synchronously
func (s *Session) Submit(ctx context.Context, payload model.DocumentPayload) error {
	job, err := s.Start(payload)
	if err != nil {
		return err
	}
	return job.Run(ctx)
}

// Reset cancels any in-flight analysis and returns to idle with no
// analysis, raw text, error or conversation. Calling it twice is harmless.
func (s *Session) Reset() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.state = model.StateIdle
	s.analysis = nil
	s.rawText = ""
	s.errMsg = ""
	s.docURL = ""
	s.updatedAt = time.Now()
	s.conversation.Clear()
	s.mu.Unlock()

	s.publishState()
}

// Ask sends a follow-up question about the analysed document
func (s *Session) Ask(ctx context.Context, question string) (model.ChatMessage, error) {
	s.mu.Lock()
	if s.state != model.StateReady {
		s.mu.Unlock()
		return model.ChatMessage{}, ErrNoAnalysis
	}
	doc := s.rawText
	// the log is only cleared under s.mu, so this epoch belongs to doc
	epoch := s.conversation.Epoch()
	s.updatedAt = time.Now()
	s.mu.Unlock()

	return s.conversation.SendAt(logger.WithSession(ctx, s.ID), epoch, doc, question)
}

// SetDocumentURL records where the submitted document was archived. It is
// ignored once the session has moved past the given generation.
func (s *Session) SetDocumentURL(generation uint64, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return false
	}
	s.docURL = url
	return true
}

// Analysis returns the current analysis, or nil when none is present
func (s *Session) Analysis() *model.ContractAnalysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analysis
}

// State returns the current lifecycle state
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the conversation log
func (s *Session) Messages() []model.ChatMessage {
	return s.conversation.Messages()
}

// Snapshot returns the session state for presentation
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		ID:          s.ID,
		Tenant:      s.Tenant,
		State:       s.state,
		Generation:  s.generation,
		Error:       s.errMsg,
		Analysis:    s.analysis,
		DocumentURL: s.docURL,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.updatedAt,
	}
	s.mu.Unlock()

	snap.Messages = s.conversation.Messages()
	snap.Awaiting = s.conversation.Awaiting()
	snap.LastErrorKind = s.conversation.LastErrorKind()
	return snap
}

func (s *Session) publishState() {
	s.mu.Lock()
	ev := Event{
		Type:       EventState,
		SessionID:  s.ID,
		State:      s.state,
		Generation: s.generation,
		Error:      s.errMsg,
	}
	s.mu.Unlock()
	s.publisher.Publish(s.ID, ev)
}

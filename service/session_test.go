package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AnTengye/legalease/backend/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ string, ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) states() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		if ev.Type == EventState {
			out = append(out, ev.State)
		}
	}
	return out
}

func newTestSession(stub *stubModel, pub Publisher) *Session {
	return NewSession("default", SessionDeps{
		Analyzer:    NewAnalysisClient(stub, 0, 0),
		Asker:       NewAssistantClient(stub, 0, 0, 0),
		Publisher:   pub,
		MaxMessages: 50,
	})
}

func TestNewSessionIsIdle(t *testing.T) {
	s := newTestSession(&stubModel{}, nil)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "default", s.Tenant)
	snap := s.Snapshot()
	assert.Equal(t, model.StateIdle, snap.State)
	assert.Nil(t, snap.Analysis)
	assert.Empty(t, snap.Error)
	assert.Empty(t, snap.Messages)
}

func TestSessionAnalyzeAndAsk(t *testing.T) {
	stub := &stubModel{jsonText: leaseAnalysisJSON, chatText: "Lawyer Answer: 90 days prior."}
	pub := &recordingPublisher{}
	s := newTestSession(stub, pub)

	require.NoError(t, s.Submit(context.Background(), model.TextPayload(leaseClause)))

	snap := s.Snapshot()
	assert.Equal(t, model.StateReady, snap.State)
	require.NotNil(t, snap.Analysis)
	assert.Equal(t, "Lease Agreement", snap.Analysis.Title)
	require.Len(t, snap.Analysis.Risks, 1)
	assert.Equal(t, model.RiskHigh, snap.Analysis.Risks[0].RiskLevel)
	assert.Equal(t, []string{model.StateLoading, model.StateReady}, pub.states())

	reply, err := s.Ask(context.Background(), "When must I cancel?")
	require.NoError(t, err)
	assert.Contains(t, reply.Content, "90 days")

	// the question is grounded in the submitted text
	require.Equal(t, 1, stub.chatCallCount())
	turns := stub.chatCalls[0].turns
	assert.Contains(t, turns[len(turns)-1].Text, leaseClause)
	assert.Len(t, s.Messages(), 2)
}

func TestSessionRejectsEmptyText(t *testing.T) {
	stub := &stubModel{jsonText: leaseAnalysisJSON}
	s := newTestSession(stub, nil)

	err := s.Submit(context.Background(), model.TextPayload(""))
	assert.ErrorIs(t, err, ErrEmptyDocument)
	assert.Equal(t, model.StateIdle, s.State())
	assert.Empty(t, s.Snapshot().Error)
	assert.Equal(t, 0, stub.jsonCallCount())
}

func TestSessionImageUsesPlaceholder(t *testing.T) {
	stub := &stubModel{jsonText: leaseAnalysisJSON, chatText: "ok"}
	s := newTestSession(stub, nil)

	require.NoError(t, s.Submit(context.Background(), model.ImagePayload("iVBORw0KGgo=", "image/png")))
	_, err := s.Ask(context.Background(), "What is this?")
	require.NoError(t, err)

	turns := stub.chatCalls[0].turns
	assert.Contains(t, turns[len(turns)-1].Text, model.ImagePlaceholder)
}

func TestSessionAnalysisFailure(t *testing.T) {
	stub := &stubModel{jsonErr: errors.New("503 unavailable")}
	s := newTestSession(stub, nil)

	err := s.Submit(context.Background(), model.TextPayload(leaseClause))
	require.Error(t, err)
	assert.Equal(t, KindServiceFailure, KindOf(err))

	snap := s.Snapshot()
	assert.Equal(t, model.StateIdle, snap.State)
	assert.Equal(t, AnalysisFailedMessage, snap.Error)
	assert.Nil(t, snap.Analysis)

	// a successful retry clears the error
	stub.mu.Lock()
	stub.jsonErr = nil
	stub.jsonText = leaseAnalysisJSON
	stub.mu.Unlock()
	require.NoError(t, s.Submit(context.Background(), model.TextPayload(leaseClause)))
	assert.Empty(t, s.Snapshot().Error)
}

func TestSessionMalformedResponseIsFailure(t *testing.T) {
	stub := &stubModel{jsonText: `{"title":"only a title"}`}
	s := newTestSession(stub, nil)

	err := s.Submit(context.Background(), model.TextPayload(leaseClause))
	assert.Equal(t, KindMalformedResponse, KindOf(err))
	assert.Equal(t, model.StateIdle, s.State())
	assert.Nil(t, s.Analysis())
}

func TestSessionRejectsConcurrentSubmit(t *testing.T) {
	stub := &stubModel{jsonText: leaseAnalysisJSON, gate: make(chan struct{})}
	s := newTestSession(stub, nil)

	job, err := s.Start(model.TextPayload(leaseClause))
	require.NoError(t, err)
	assert.Equal(t, model.StateLoading, s.State())

	_, err = s.Start(model.TextPayload("another document"))
	assert.ErrorIs(t, err, ErrAnalysisInFlight)

	close(stub.gate)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, model.StateReady, s.State())
}

func TestSessionResetDuringLoading(t *testing.T) {
	stub := &stubModel{jsonText: leaseAnalysisJSON, gate: make(chan struct{})}
	s := newTestSession(stub, nil)

	job, err := s.Start(model.TextPayload(leaseClause))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- job.Run(context.Background()) }()

	require.Eventually(t, func() bool { return stub.jsonCallCount() == 1 }, time.Second, 5*time.Millisecond)
	s.Reset()

	assert.ErrorIs(t, <-done, ErrSessionReset)
	snap := s.Snapshot()
	assert.Equal(t, model.StateIdle, snap.State)
	assert.Nil(t, snap.Analysis)
	assert.Empty(t, snap.Error)
}

func TestSessionStaleResultDiscarded(t *testing.T) {
	stub := &stubModel{jsonText: leaseAnalysisJSON}
	s := newTestSession(stub, nil)

	job, err := s.Start(model.TextPayload(leaseClause))
	require.NoError(t, err)
	s.Reset()

	assert.ErrorIs(t, job.Run(context.Background()), ErrSessionReset)
	assert.Equal(t, 0, stub.jsonCallCount())
	assert.Equal(t, model.StateIdle, s.State())
}

func TestSessionResetClearsEverything(t *testing.T) {
	stub := &stubModel{jsonText: leaseAnalysisJSON, chatText: "answer"}
	s := newTestSession(stub, nil)

	require.NoError(t, s.Submit(context.Background(), model.TextPayload(leaseClause)))
	_, err := s.Ask(context.Background(), "q")
	require.NoError(t, err)

	s.Reset()
	s.Reset()

	snap := s.Snapshot()
	assert.Equal(t, model.StateIdle, snap.State)
	assert.Nil(t, snap.Analysis)
	assert.Empty(t, snap.Messages)

	_, err = s.Ask(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNoAnalysis)
}

func TestSessionResubmitClearsConversation(t *testing.T) {
	stub := &stubModel{jsonText: leaseAnalysisJSON, chatText: "answer"}
	s := newTestSession(stub, nil)

	require.NoError(t, s.Submit(context.Background(), model.TextPayload(leaseClause)))
	_, err := s.Ask(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, s.Messages(), 2)

	require.NoError(t, s.Submit(context.Background(), model.TextPayload("second contract")))
	assert.Empty(t, s.Messages())
	assert.Equal(t, model.StateReady, s.State())
}

func TestSessionAskBeforeAnalysis(t *testing.T) {
	s := newTestSession(&stubModel{}, nil)

	_, err := s.Ask(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNoAnalysis)
}

func TestSessionChatFailureKeepsAnalysis(t *testing.T) {
	stub := &stubModel{jsonText: leaseAnalysisJSON, chatErr: errors.New("timeout")}
	pub := &recordingPublisher{}
	s := newTestSession(stub, pub)

	require.NoError(t, s.Submit(context.Background(), model.TextPayload(leaseClause)))
	msg, err := s.Ask(context.Background(), "Can I cancel?")
	require.NoError(t, err)
	assert.Equal(t, FallbackServiceFailure, msg.Content)

	snap := s.Snapshot()
	assert.Equal(t, model.StateReady, snap.State)
	assert.NotNil(t, snap.Analysis)
	assert.Equal(t, KindServiceFailure, snap.LastErrorKind)

	var messageEvents int
	for _, ev := range pub.events {
		if ev.Type == EventMessage {
			messageEvents++
		}
	}
	assert.Equal(t, 2, messageEvents)
}

func TestSessionQuestionFromReplacedDocumentIsDropped(t *testing.T) {
	stub := &stubModel{jsonText: leaseAnalysisJSON, chatText: "answer"}
	s := newTestSession(stub, nil)
	require.NoError(t, s.Submit(context.Background(), model.TextPayload(leaseClause)))

	// a question that passed the ready check before a new document arrived
	asked := s.conversation.Epoch()
	job, err := s.Start(model.TextPayload("second contract"))
	require.NoError(t, err)
	assert.NotEqual(t, asked, s.conversation.Epoch())

	_, err = s.conversation.SendAt(context.Background(), asked, leaseClause, "old question")
	assert.ErrorIs(t, err, ErrSessionReset)
	assert.Empty(t, s.Messages())
	assert.Equal(t, 0, stub.chatCallCount())

	s.Reset()
	assert.ErrorIs(t, job.Run(context.Background()), ErrSessionReset)
}

func TestSessionDocumentURLFollowsGeneration(t *testing.T) {
	stub := &stubModel{jsonText: leaseAnalysisJSON}
	s := newTestSession(stub, nil)

	job, err := s.Start(model.TextPayload(leaseClause))
	require.NoError(t, err)
	assert.True(t, s.SetDocumentURL(job.Generation(), "http://archive.test/a"))
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "http://archive.test/a", s.Snapshot().DocumentURL)

	s.Reset()
	assert.Empty(t, s.Snapshot().DocumentURL)
	assert.False(t, s.SetDocumentURL(job.Generation(), "http://archive.test/late"))
	assert.Empty(t, s.Snapshot().DocumentURL)
}

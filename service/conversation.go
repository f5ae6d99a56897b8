package service

import (
	"context"
	"strings"
	"sync"

	"github.com/AnTengye/legalease/backend/model"
	"github.com/AnTengye/legalease/backend/pkg/logger"
)

// Fallback assistant replies, chosen by failure kind
const (
	FallbackEmptyReply     = "I couldn't process that. Please try again."
	FallbackServiceFailure = "An error occurred while connecting to the legal brain."
)

// FallbackText returns the assistant message shown for a failed question
func FallbackText(kind ErrorKind) string {
	if kind == KindEmptyResponse {
		return FallbackEmptyReply
	}
	return FallbackServiceFailure
}

// Conversation is the append-only chat log of one session. At most one
// question is awaiting a reply at a time.
type Conversation struct {
	asker       Asker
	maxMessages int
	onAppend    func(model.ChatMessage)

	mu            sync.Mutex
	messages      []model.ChatMessage
	awaiting      bool
	epoch         uint64
	lastErrorKind ErrorKind
}

// NewConversation creates an empty log. maxMessages <= 0 means unbounded;
// onAppend, if set, is called after every append outside the lock.
func NewConversation(asker Asker, maxMessages int, onAppend func(model.ChatMessage)) *Conversation {
	return &Conversation{
		asker:       asker,
		maxMessages: maxMessages,
		onAppend:    onAppend,
	}
}

// Send appends the question, asks it, and appends exactly one assistant
// reply: the model's answer or a fallback. A rejected send leaves the log
// untouched.
func (c *Conversation) Send(ctx context.Context, documentText, question string) (model.ChatMessage, error) {
	return c.SendAt(ctx, c.Epoch(), documentText, question)
}

// Epoch identifies the current log; every Clear starts a new one
func (c *Conversation) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// SendAt is Send for a caller that observed the log at epoch. If the log
// was cleared since, the question is rejected with ErrSessionReset and
// nothing is appended.
func (c *Conversation) SendAt(ctx context.Context, epoch uint64, documentText, question string) (model.ChatMessage, error) {
	if strings.TrimSpace(question) == "" {
		return model.ChatMessage{}, ErrEmptyQuestion
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return model.ChatMessage{}, ErrSessionReset
	}
	if c.awaiting {
		c.mu.Unlock()
		return model.ChatMessage{}, ErrAwaitingReply
	}
	if c.maxMessages > 0 && len(c.messages)+2 > c.maxMessages {
		c.mu.Unlock()
		return model.ChatMessage{}, ErrConversationFull
	}

	userMsg := model.ChatMessage{Role: model.RoleUser, Content: question}
	c.messages = append(c.messages, userMsg)
	c.awaiting = true
	history := make([]model.ChatMessage, len(c.messages))
	copy(history, c.messages)
	c.mu.Unlock()

	c.notify(userMsg)

	reply, err := c.asker.Ask(ctx, documentText, question, history)
	var kind ErrorKind
	if err != nil {
		kind = KindOf(err)
		if kind == "" {
			kind = KindServiceFailure
		}
		logger.Warn(ctx, "question failed, using fallback reply", "kind", kind, "error", err)
		reply = FallbackText(kind)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		logger.Info(ctx, "discarding reply for a cleared conversation")
		return model.ChatMessage{}, ErrSessionReset
	}
	msg := model.ChatMessage{Role: model.RoleAssistant, Content: reply}
	c.messages = append(c.messages, msg)
	c.awaiting = false
	c.lastErrorKind = kind
	c.mu.Unlock()

	c.notify(msg)
	return msg, nil
}

// Clear empties the log. A reply still in flight is dropped on arrival.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.awaiting = false
	c.lastErrorKind = ""
	c.epoch++
}

// Messages returns a copy of the log
func (c *Conversation) Messages() []model.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *Conversation) Awaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awaiting
}

// LastErrorKind is the failure kind of the latest turn, empty on success
func (c *Conversation) LastErrorKind() ErrorKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErrorKind
}

func (c *Conversation) notify(msg model.ChatMessage) {
	if c.onAppend != nil {
		c.onAppend(msg)
	}
}

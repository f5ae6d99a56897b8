package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AnTengye/legalease/backend/model"
)

// DefaultMaxDocumentChars caps the document excerpt sent with each question
const DefaultMaxDocumentChars = 40000

const assistantInstruction = `You are LegalEase, an assistant that explains complex legal documents like a helpful friend. Be extremely accurate.
For every question give two answers: a "Lawyer Answer" in professional language and a "Simple Translation" a child could follow.
If the answer cannot be found in the document, say plainly that you can't find it in the text.`

// Asker answers a question about a document
type Asker interface {
	Ask(ctx context.Context, documentText, question string, history []model.ChatMessage) (string, error)
}

// AssistantClient answers free-text questions about the analysed document.
// Each call is a fresh conversation: prior turns from history are replayed
// within a character budget, newest first.
type AssistantClient struct {
	model            ModelClient
	maxDocumentChars int
	historyBudget    int
	timeout          time.Duration
}

// NewAssistantClient creates the client. timeout bounds every Ask; zero
// leaves only the caller's deadline.
func NewAssistantClient(m ModelClient, maxDocumentChars, historyBudget int, timeout time.Duration) *AssistantClient {
	if maxDocumentChars <= 0 {
		maxDocumentChars = DefaultMaxDocumentChars
	}
	return &AssistantClient{
		model:            m,
		maxDocumentChars: maxDocumentChars,
		historyBudget:    historyBudget,
		timeout:          timeout,
	}
}

// Ask sends the question with the truncated document. history may end with
// the question itself; it is not sent twice.
func (c *AssistantClient) Ask(ctx context.Context, documentText, question string, history []model.ChatMessage) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	prior := history
	if n := len(prior); n > 0 && prior[n-1].Role == model.RoleUser && prior[n-1].Content == question {
		prior = prior[:n-1]
	}

	turns := boundHistory(prior, c.historyBudget)
	turns = append(turns, Turn{
		Role: model.RoleUser,
		Text: ComposeQuestion(documentText, question, c.maxDocumentChars),
	})

	reply, err := c.model.Chat(ctx, assistantInstruction, turns)
	if err != nil {
		return "", &ConversationError{Kind: KindServiceFailure, Err: err}
	}
	if strings.TrimSpace(reply) == "" {
		return "", &ConversationError{Kind: KindEmptyResponse, Err: errors.New("model returned no text")}
	}
	return reply, nil
}

// ComposeQuestion builds the single message carrying the document excerpt and the question
func ComposeQuestion(documentText, question string, maxChars int) string {
	return fmt.Sprintf("DOCUMENT CONTEXT:\n%s\n\nUSER QUESTION: %s", TruncateRunes(documentText, maxChars), question)
}

// TruncateRunes returns at most n runes of s
func TruncateRunes(s string, n int) string {
	if n < 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// boundHistory keeps the newest messages whose combined length fits the
// budget, and drops leading assistant turns so the replay opens with the user.
func boundHistory(history []model.ChatMessage, budget int) []Turn {
	if budget <= 0 || len(history) == 0 {
		return nil
	}

	start := len(history)
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		size := utf8.RuneCountInString(history[i].Content)
		if used+size > budget {
			break
		}
		used += size
		start = i
	}
	for start < len(history) && history[start].Role != model.RoleUser {
		start++
	}

	turns := make([]Turn, 0, len(history)-start+1)
	for _, m := range history[start:] {
		turns = append(turns, Turn{Role: m.Role, Text: m.Content})
	}
	return turns
}

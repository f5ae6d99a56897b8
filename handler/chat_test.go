package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/AnTengye/legalease/backend/model"
	"github.com/AnTengye/legalease/backend/service"
	"github.com/gin-gonic/gin"
)

type chatResponse struct {
	Message       model.ChatMessage   `json:"message"`
	Messages      []model.ChatMessage `json:"messages"`
	LastErrorKind string              `json:"last_error_kind"`
}

func TestChatBeforeAnalysis(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.createSession(t)

	w := env.do("POST", "/api/sessions/"+id+"/chat", gin.H{"question": "When must I cancel?"})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestChatAnswer(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.createSession(t)
	env.analyzeText(t, id, leaseText)

	w := env.do("POST", "/api/sessions/"+id+"/chat", gin.H{"question": "When must I cancel?"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Message.Role != model.RoleAssistant || resp.Message.Content != env.asker.reply {
		t.Errorf("Unexpected reply %+v", resp.Message)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].Content != "When must I cancel?" {
		t.Errorf("Expected user then assistant messages, got %+v", resp.Messages)
	}
	if resp.LastErrorKind != "" {
		t.Errorf("Expected no error kind, got %s", resp.LastErrorKind)
	}
}

func TestChatFailureFallback(t *testing.T) {
	env := newTestEnv(t, 0)
	env.asker.err = &service.ConversationError{Kind: service.KindServiceFailure, Err: errors.New("dial tcp: refused")}
	id := env.createSession(t)
	env.analyzeText(t, id, leaseText)

	w := env.do("POST", "/api/sessions/"+id+"/chat", gin.H{"question": "Can I leave early?"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp chatResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Message.Content != service.FallbackServiceFailure {
		t.Errorf("Expected fallback reply, got %q", resp.Message.Content)
	}
	if len(resp.Messages) != 2 {
		t.Errorf("Expected log to grow by 2, got %d", len(resp.Messages))
	}
	if resp.LastErrorKind != string(service.KindServiceFailure) {
		t.Errorf("Expected service failure kind, got %s", resp.LastErrorKind)
	}
}

func TestChatEmptyQuestion(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.createSession(t)
	env.analyzeText(t, id, leaseText)

	w := env.do("POST", "/api/sessions/"+id+"/chat", gin.H{"question": "   "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	w = env.do("GET", "/api/sessions/"+id+"/messages", nil)
	var resp struct {
		Messages []model.ChatMessage `json:"messages"`
		Awaiting bool                `json:"awaiting"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Messages) != 0 || resp.Awaiting {
		t.Errorf("Expected untouched log, got %+v", resp)
	}
}

func TestChatConversationFull(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.createSession(t)
	env.analyzeText(t, id, leaseText)

	// MaxMessages is 10 in the test env
	for i := 0; i < 5; i++ {
		if w := env.do("POST", "/api/sessions/"+id+"/chat", gin.H{"question": "q"}); w.Code != http.StatusOK {
			t.Fatalf("Turn %d: expected status 200, got %d", i+1, w.Code)
		}
	}

	w := env.do("POST", "/api/sessions/"+id+"/chat", gin.H{"question": "one more"})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestChatInvalidBody(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.createSession(t)

	w := env.do("POST", "/api/sessions/"+id+"/chat", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

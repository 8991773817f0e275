package memory

import (
	"strings"
	"sync"
	"time"

	"analytics-chat-be/pkg/llm"

	"github.com/patrickmn/go-cache"
)

type ConversationRepository struct {
	cache      *cache.Cache
	maxHistory int
	// go-cache is safe per key, but Append is read-modify-write.
	mu sync.Mutex
}

// NewConversationRepository keeps at most maxTurns user/assistant pairs per
// conversation. Conversations idle for an hour are evicted.
func NewConversationRepository(maxTurns int) *ConversationRepository {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	c := cache.New(1*time.Hour, 10*time.Minute)
	return &ConversationRepository{
		cache:      c,
		maxHistory: maxTurns * 2,
	}
}

func (r *ConversationRepository) Append(conversationID string, msgs ...llm.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.load(conversationID)
	history = append(history, msgs...)
	if len(history) > r.maxHistory {
		history = history[len(history)-r.maxHistory:]
	}
	r.cache.Set(conversationID, history, cache.DefaultExpiration)
}

// History returns a copy of the stored messages, oldest first.
func (r *ConversationRepository) History(conversationID string) []llm.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]llm.Message(nil), r.load(conversationID)...)
}

// Context renders the most recent messages that fit in roughly maxTokens,
// using four characters per token.
func (r *ConversationRepository) Context(conversationID string, maxTokens int) string {
	history := r.History(conversationID)
	budget := maxTokens * 4

	var lines []string
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		line := roleLabel(history[i].Role) + ": " + history[i].Content
		if used+len(line) > budget {
			break
		}
		lines = append(lines, line)
		used += len(line)
	}

	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n")
}

func (r *ConversationRepository) Clear(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.cache.Get(conversationID); found {
		r.cache.Set(conversationID, []llm.Message{}, cache.DefaultExpiration)
	}
}

func (r *ConversationRepository) Remove(conversationID string) {
	r.cache.Delete(conversationID)
}

// Count returns the number of live conversations.
func (r *ConversationRepository) Count() int {
	return r.cache.ItemCount()
}

func (r *ConversationRepository) load(conversationID string) []llm.Message {
	if x, found := r.cache.Get(conversationID); found {
		return x.([]llm.Message)
	}
	return nil
}

func roleLabel(role string) string {
	if role == "" {
		return ""
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "ISMS-Agent/internal/errors"
	"ISMS-Agent/internal/llm"
	"ISMS-Agent/internal/tracker"
)

// Session 是一次对话的运行时状态，只存活在进程内。
type Session struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	tracker *tracker.Tracker
	history []llm.HistoryEntry
}

// Tracker 返回会话的对象跟踪器。
func (s *Session) Tracker() *tracker.Tracker {
	return s.tracker
}

// AppendHistory 追加一轮请求记录。
func (s *Session) AppendHistory(entry llm.HistoryEntry) {
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().Unix()
	}
	s.mu.Lock()
	s.history = append(s.history, entry)
	s.mu.Unlock()
}

// History 返回最近 limit 轮历史，按时间正序。
func (s *Session) History(limit int) []llm.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]llm.HistoryEntry, limit)
	copy(out, s.history[len(s.history)-limit:])
	return out
}

// Reset 清空会话的历史与跟踪对象，会话本身保留。
func (s *Session) Reset() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
	s.tracker.Clear()
}

// Manager 维护全部活跃会话。
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager 创建会话管理器。
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create 创建一个新会话并返回。
func (m *Manager) Create() *Session {
	session := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		tracker:   tracker.New(),
	}
	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()
	return session
}

// Get 按 ID 查找会话。
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "会话不存在",
			xerrors.WithMetadata("session_id", id))
	}
	return session, nil
}

// Delete 删除会话。删除不存在的会话不算错误。
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count 返回活跃会话数量。
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

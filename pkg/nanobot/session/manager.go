// Package session – manager.go
// Conversation persistence: one JSON file per session key, windowed
// history, per-key locking.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hkuds/nanobot/pkg/nanobot/providers"
)

const defaultWindow = 100

// Turn is one message in a conversation. Assistant turns that requested
// tools carry the calls; tool turns carry the id of the call they answer.
type Turn struct {
	Role       string               `json:"role"`
	Content    string               `json:"content"`
	ToolCalls  []providers.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	Name       string               `json:"name,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
}

// Session is the stored conversation for one session key.
type Session struct {
	Key       string    `json:"key"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Manager stores sessions under dir, one file per key. All operations on
// the same key are serialized.
type Manager struct {
	dir    string
	window int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a Manager writing to dir. window caps the turns
// returned by History; <=0 uses the default of 100.
func NewManager(dir string, window int) *Manager {
	if window <= 0 {
		window = defaultWindow
	}
	return &Manager{
		dir:    dir,
		window: window,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (m *Manager) keyLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}

// path maps a session key to its file, replacing characters that are
// unsafe in filenames.
func (m *Manager) path(key string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case ':', '/', '\\', ' ':
			return '_'
		}
		return r
	}, key)
	return filepath.Join(m.dir, sanitized+".json")
}

// GetOrCreate loads the session for key, creating an empty one if absent.
func (m *Manager) GetOrCreate(key string) *Session {
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()
	return m.loadLocked(key)
}

func (m *Manager) loadLocked(key string) *Session {
	data, err := os.ReadFile(m.path(key))
	if err == nil {
		var sess Session
		if err := json.Unmarshal(data, &sess); err == nil {
			sess.Key = key
			return &sess
		}
	}
	now := time.Now()
	return &Session{Key: key, CreatedAt: now, UpdatedAt: now}
}

// Append adds one plain turn to the session and persists it.
func (m *Manager) Append(key, role, content string) error {
	return m.AppendTurns(key, []Turn{{Role: role, Content: content, Timestamp: time.Now()}})
}

// AppendTurns adds turns to the session in a single write, so a full
// tool-calling exchange lands atomically.
func (m *Manager) AppendTurns(key string, turns []Turn) error {
	if len(turns) == 0 {
		return nil
	}
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	sess := m.loadLocked(key)
	sess.Turns = append(sess.Turns, turns...)
	sess.UpdatedAt = time.Now()
	return m.saveLocked(sess)
}

// History returns the last window turns for key, oldest first.
func (m *Manager) History(key string) []Turn {
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	sess := m.loadLocked(key)
	if len(sess.Turns) <= m.window {
		return sess.Turns
	}
	return sess.Turns[len(sess.Turns)-m.window:]
}

// Clear removes the stored session for key.
func (m *Manager) Clear(key string) error {
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(m.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session %s: %w", key, err)
	}
	return nil
}

// Keys lists stored session keys (by filename), sorted.
func (m *Manager) Keys() []string {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil
	}
	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".json") {
			keys = append(keys, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(keys)
	return keys
}

// saveLocked writes the session atomically. Caller holds the key lock.
func (m *Manager) saveLocked(sess *Session) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	path := m.path(sess.Key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return os.Rename(tmp, path)
}

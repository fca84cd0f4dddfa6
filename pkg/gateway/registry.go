package gateway

import (
	"io"
	"sort"
	"sync"
	"time"
)

// SessionInfo describes a live websocket session.
type SessionInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

type liveSession struct {
	info SessionInfo
	conn io.Closer
}

// sessionRegistry tracks open websocket sessions so shutdown can close them.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*liveSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*liveSession)}
}

func (r *sessionRegistry) add(id, remote string, conn io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[id] = &liveSession{
		info: SessionInfo{ID: id, RemoteAddr: remote, ConnectedAt: time.Now()},
		conn: conn,
	}
}

func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
}

func (r *sessionRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// list returns sessions ordered by connection time.
func (r *sessionRegistry) list() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// closeAll closes every connection. The sessions observe the closed
// connection and unregister themselves.
func (r *sessionRegistry) closeAll() int {
	r.mu.RLock()
	conns := make([]io.Closer, 0, len(r.sessions))
	for _, s := range r.sessions {
		conns = append(conns, s.conn)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
	return len(conns)
}

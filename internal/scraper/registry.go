package scraper

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/profile-sync/internal/browser"
)

// DefaultSessionTTL is how long a parked browser waits for its resume.
const DefaultSessionTTL = 120 * time.Second

// Session is a live browser parked while the user approves a security challenge.
type Session struct {
	Key       string
	Driver    browser.Driver
	TargetURL string
	CreatedAt time.Time

	busy bool
}

// Registry holds parked sessions by key. At most one session exists per key. All map
// access is serialized by one mutex; browsers are shut down outside of it.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	clock    Clock
	log      *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRegistry creates an empty registry. A zero ttl uses DefaultSessionTTL.
func NewRegistry(ttl time.Duration, clock Clock, logger *zap.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		clock:    clock,
		log:      logger.Named("registry"),
		stop:     make(chan struct{}),
	}
}

// Park stores drv under key, evicting and shutting down any previous session for key.
func (r *Registry) Park(key string, drv browser.Driver, targetURL string) {
	r.mu.Lock()
	old := r.sessions[key]
	r.sessions[key] = &Session{
		Key:       key,
		Driver:    drv,
		TargetURL: targetURL,
		CreatedAt: r.clock.Now(),
	}
	r.mu.Unlock()

	if old != nil && old.Driver != drv {
		r.log.Info("replacing parked session", zap.String("session_key", key))
		r.quit(old)
	}
	r.log.Info("parked session", zap.String("session_key", key))
}

// Checkout hands the session for key to a resuming caller. The session stays registered
// but is marked busy until the caller returns, detaches or discards it.
func (r *Registry) Checkout(key string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok {
		return nil, &Error{
			Kind:       KindSessionExpired,
			SessionKey: key,
			Message:    "No active LinkedIn session. Please start a new scrape.",
		}
	}
	if s.busy {
		return nil, &Error{
			Kind:       KindSessionBusy,
			SessionKey: key,
			Message:    "A retry for this session is already in progress.",
		}
	}
	s.busy = true
	return s, nil
}

// Return puts a checked-out session back and restarts its TTL.
func (r *Registry) Return(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.Key] == s {
		s.busy = false
		s.CreatedAt = r.clock.Now()
	}
}

// Detach removes a checked-out session without shutting its browser down; the caller
// now owns the driver.
func (r *Registry) Detach(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.Key] == s {
		delete(r.sessions, s.Key)
	}
}

// Discard removes a checked-out session and shuts its browser down.
func (r *Registry) Discard(s *Session) {
	r.Detach(s)
	r.quit(s)
}

// Release removes the session for key and shuts its browser down. Unknown keys are ignored.
func (r *Registry) Release(key string) {
	r.mu.Lock()
	s, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()

	if ok {
		r.log.Info("released session", zap.String("session_key", key))
		r.quit(s)
	}
}

// Sweep shuts down every idle session older than the TTL and returns how many it removed.
func (r *Registry) Sweep() int {
	now := r.clock.Now()
	var expired []*Session

	r.mu.Lock()
	for key, s := range r.sessions {
		if !s.busy && now.Sub(s.CreatedAt) > r.ttl {
			expired = append(expired, s)
			delete(r.sessions, key)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		r.log.Info("expired parked session", zap.String("session_key", s.Key))
		r.quit(s)
	}
	return len(expired)
}

// Has reports whether a session is parked under key.
func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[key]
	return ok
}

// Len returns the number of parked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// StartJanitor sweeps every interval in a background goroutine until Close.
func (r *Registry) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		return
	}
	r.mu.Lock()
	if r.done != nil {
		r.mu.Unlock()
		return
	}
	r.done = make(chan struct{})
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Sweep()
			case <-r.stop:
				return
			}
		}
	}()
}

// Close stops the janitor and shuts down every parked browser.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })

	r.mu.Lock()
	done := r.done
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	if done != nil {
		<-done
	}
	for _, s := range sessions {
		r.quit(s)
	}
}

func (r *Registry) quit(s *Session) {
	if err := s.Driver.Quit(); err != nil {
		r.log.Warn("failed to close browser", zap.String("session_key", s.Key), zap.Error(err))
	}
}

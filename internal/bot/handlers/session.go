package handlers

import (
	"sync"
	"time"
)

const sessionTimeout = 5 * time.Minute

// snoozeSession ties a user's next free-text message to the reminder
// they pressed Snooze on.
type snoozeSession struct {
	ReminderID int64
	EventID    int64
	ExpiresAt  time.Time
}

// snoozeSessions keeps at most one open session per user. A new Snooze
// press replaces any existing one.
type snoozeSessions struct {
	mu       sync.Mutex
	sessions map[int64]snoozeSession
}

func newSnoozeSessions() *snoozeSessions {
	return &snoozeSessions{sessions: make(map[int64]snoozeSession)}
}

func (s *snoozeSessions) start(userID, reminderID, eventID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = snoozeSession{
		ReminderID: reminderID,
		EventID:    eventID,
		ExpiresAt:  time.Now().Add(sessionTimeout),
	}
}

func (s *snoozeSessions) get(userID int64) (snoozeSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[userID]
	if !ok {
		return snoozeSession{}, false
	}
	if time.Now().After(session.ExpiresAt) {
		delete(s.sessions, userID)
		return snoozeSession{}, false
	}
	return session, true
}

func (s *snoozeSessions) clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

package notification

import (
	"context"
	"slices"
	"sync"

	"pims/pkg/domain"
)

// MemorySink records notifications in order.
type MemorySink struct {
	mu    sync.Mutex
	notes []Notification
	read  map[domain.UserID]map[string]bool
}

func NewMemorySink() *MemorySink {
	return &MemorySink{read: make(map[domain.UserID]map[string]bool)}
}

func (s *MemorySink) Notify(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n = n.withID()
	n.Read = false
	s.notes = append(s.notes, n)
	return nil
}

// All returns a copy of everything received.
func (s *MemorySink) All() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.notes...)
}

// ByKind filters received notifications by kind.
func (s *MemorySink) ByKind(kind string) []Notification {
	var out []Notification
	for _, n := range s.All() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Inbox returns the newest notifications addressed to user or, when role is
// set, to that role.
func (s *MemorySink) Inbox(_ context.Context, user domain.UserID, role domain.Role, limit int64) ([]Notification, error) {
	out := s.inbox(user, role, limit)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range out {
		out[i].Read = s.read[user][out[i].ID]
	}
	return out, nil
}

// MarkRead marks one notification in the user's inbox as read.
func (s *MemorySink) MarkRead(_ context.Context, user domain.UserID, role domain.Role, id string) (bool, error) {
	notes := s.inbox(user, role, 0)
	if !slices.ContainsFunc(notes, func(n Notification) bool { return n.ID == id }) {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markLocked(user, id)
	return true, nil
}

// MarkAllRead marks the user's whole inbox as read and returns how many were unread.
func (s *MemorySink) MarkAllRead(ctx context.Context, user domain.UserID, role domain.Role) (int, error) {
	notes, _ := s.Inbox(ctx, user, role, 0)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range notes {
		s.markLocked(user, n.ID)
	}
	return CountUnread(notes), nil
}

func (s *MemorySink) markLocked(user domain.UserID, id string) {
	if s.read[user] == nil {
		s.read[user] = make(map[string]bool)
	}
	s.read[user][id] = true
}

func (s *MemorySink) inbox(user domain.UserID, role domain.Role, limit int64) []Notification {
	all := s.All()
	slices.Reverse(all)
	var out []Notification
	for _, n := range all {
		if (!user.IsNil() && n.UserID == user) || (n.UserID.IsNil() && role != "" && n.Role == role) {
			out = append(out, n)
		}
	}
	sortNewestFirst(out)
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out
}

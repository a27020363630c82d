package domain

import (
	"context"
	"sync"
)

type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]Notification
	saveErr error
}

func (f *fakeStore) SaveNotification(ctx context.Context, n *Notification) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return false, f.saveErr
	}
	if f.rows == nil {
		f.rows = map[string]Notification{}
	}
	if _, exists := f.rows[n.SourceEventID]; exists {
		return false, nil
	}
	f.rows[n.SourceEventID] = *n
	return true, nil
}

func (f *fakeStore) forUser(userID string) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Notification
	for _, n := range f.rows {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

type broadcastCall struct {
	userID string
	msg    any
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, userID string, msg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, broadcastCall{userID: userID, msg: msg})
}

type fakeCache struct{ invalidated []string }

func (f *fakeCache) InvalidateUnread(_ context.Context, userID string) {
	f.invalidated = append(f.invalidated, userID)
}

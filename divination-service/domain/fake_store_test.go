package domain

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/butvinm-itmo/highload-sub001/internal/events"
)

// fakeStore keeps rows in maps and applies the same cascades as the
// relational schema: removing a spread removes its cards and interpretations.
type fakeStore struct {
	mu      sync.Mutex
	spreads map[string]Spread
	interps map[string]Interpretation

	failSpreadDelete error
	saveErr          error
	// calls lists the cascade deletes in the order they ran.
	calls []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{spreads: map[string]Spread{}, interps: map[string]Interpretation{}}
}

func (f *fakeStore) SaveSpread(ctx context.Context, s *Spread) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.spreads[s.ID] = *s
	return nil
}

func (f *fakeStore) FindSpreadByID(ctx context.Context, id string) (*Spread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.spreads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (f *fakeStore) SaveInterpretation(ctx context.Context, i *Interpretation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if _, ok := f.spreads[i.SpreadID]; !ok {
		return errors.New("foreign key violation")
	}
	f.interps[i.ID] = *i
	return nil
}

func (f *fakeStore) Transaction(ctx context.Context, fn func(AuthoredData) error) error {
	f.mu.Lock()
	spreads := maps.Clone(f.spreads)
	interps := maps.Clone(f.interps)
	f.mu.Unlock()

	tx := &fakeTx{store: f, spreads: spreads, interps: interps, interpsGone: map[string]bool{}}
	if err := fn(tx); err != nil {
		return err
	}
	f.mu.Lock()
	f.spreads, f.interps = tx.spreads, tx.interps
	f.mu.Unlock()
	return nil
}

// fakeTx refuses to delete a user's spreads before their interpretations were
// deleted in the same transaction.
type fakeTx struct {
	store       *fakeStore
	spreads     map[string]Spread
	interps     map[string]Interpretation
	interpsGone map[string]bool
}

func (t *fakeTx) record(call string) {
	t.store.mu.Lock()
	t.store.calls = append(t.store.calls, call)
	t.store.mu.Unlock()
}

func (t *fakeTx) DeleteInterpretationsByAuthor(ctx context.Context, userID string) (int64, error) {
	t.record("interpretations:" + userID)
	t.interpsGone[userID] = true
	var n int64
	for id, i := range t.interps {
		if i.AuthorID == userID {
			delete(t.interps, id)
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) DeleteSpreadsByAuthor(ctx context.Context, userID string) (int64, error) {
	t.record("spreads:" + userID)
	if !t.interpsGone[userID] {
		return 0, errors.New("spreads deleted before the author's interpretations")
	}
	if t.store.failSpreadDelete != nil {
		return 0, t.store.failSpreadDelete
	}
	var n int64
	for id, s := range t.spreads {
		if s.AuthorID != userID {
			continue
		}
		delete(t.spreads, id)
		n++
		for iid, i := range t.interps {
			if i.SpreadID == id {
				delete(t.interps, iid)
			}
		}
	}
	return n, nil
}

func (f *fakeStore) snapshot() (map[string]Spread, map[string]Interpretation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.spreads), maps.Clone(f.interps)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type fakeDirectory map[string]string

func (d fakeDirectory) Username(ctx context.Context, userID string) (string, error) {
	name, ok := d[userID]
	if !ok {
		return "", ErrNotFound
	}
	return name, nil
}

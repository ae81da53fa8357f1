// Package allowlist tracks which players may issue commands and which
// secondary accounts are linked to them.
package allowlist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a player is not on the list.
	ErrNotFound = errors.New("player is not whitelisted")
	// ErrExists is returned when adding a player that is already present.
	ErrExists = errors.New("player is already whitelisted")
)

// Entry is one allow-listed player. Linked is empty until a secondary account
// is attached.
type Entry struct {
	Player uuid.UUID
	Linked string
}

// Store persists the full allow-list.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
}

// List is the process-wide allow-list. Mutations are written through to the
// store and rolled back in memory when the write fails.
type List struct {
	store Store

	mu      sync.RWMutex
	entries map[uuid.UUID]string
}

// Open loads the list from store.
func Open(ctx context.Context, store Store) (*List, error) {
	if store == nil {
		return nil, errors.New("allowlist store is required")
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load allowlist: %w", err)
	}

	entries := make(map[uuid.UUID]string, len(loaded))
	for _, entry := range loaded {
		entries[entry.Player] = entry.Linked
	}

	return &List{store: store, entries: entries}, nil
}

// Contains reports whether player is allow-listed.
func (l *List) Contains(player uuid.UUID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[player]
	return ok
}

// FindByLinked returns the player whose linked account is account.
func (l *List) FindByLinked(account string) (uuid.UUID, bool) {
	account = strings.TrimSpace(account)
	if account == "" {
		return uuid.Nil, false
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	for player, linked := range l.entries {
		if linked == account {
			return player, true
		}
	}
	return uuid.Nil, false
}

// Entries returns a snapshot sorted by player id.
func (l *List) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// Len returns the number of allow-listed players.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Add allow-lists player without a linked account.
func (l *List) Add(ctx context.Context, player uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[player]; ok {
		return ErrExists
	}

	l.entries[player] = ""
	if err := l.persistLocked(ctx); err != nil {
		delete(l.entries, player)
		return err
	}
	return nil
}

// Remove drops player and any linked account.
func (l *List) Remove(ctx context.Context, player uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	linked, ok := l.entries[player]
	if !ok {
		return ErrNotFound
	}

	delete(l.entries, player)
	if err := l.persistLocked(ctx); err != nil {
		l.entries[player] = linked
		return err
	}
	return nil
}

// Link attaches account to player, adding the player when absent. Any other
// player holding the same account loses it.
func (l *List) Link(ctx context.Context, player uuid.UUID, account string) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return errors.New("linked account is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	previous := make(map[uuid.UUID]string, len(l.entries))
	for k, v := range l.entries {
		previous[k] = v
	}

	for other, linked := range l.entries {
		if linked == account && other != player {
			l.entries[other] = ""
		}
	}
	l.entries[player] = account

	if err := l.persistLocked(ctx); err != nil {
		l.entries = previous
		return err
	}
	return nil
}

func (l *List) persistLocked(ctx context.Context) error {
	if err := l.store.Save(ctx, l.snapshotLocked()); err != nil {
		return fmt.Errorf("save allowlist: %w", err)
	}
	return nil
}

func (l *List) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(l.entries))
	for player, linked := range l.entries {
		out = append(out, Entry{Player: player, Linked: linked})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Player.String() < out[j].Player.String()
	})
	return out
}

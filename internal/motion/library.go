package motion

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Library persists moves.
type Library interface {
	Save(ctx context.Context, m Move) error
	Get(ctx context.Context, id uuid.UUID) (Move, error)
	List(ctx context.Context) ([]Move, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Close() error
}

// MemoryLibrary keeps moves in memory. It backs demo sessions that have no
// writable library path.
type MemoryLibrary struct {
	mu    sync.RWMutex
	moves map[uuid.UUID]Move
}

var _ Library = (*MemoryLibrary)(nil)

// NewMemoryLibrary returns an empty in-memory library.
func NewMemoryLibrary() *MemoryLibrary {
	return &MemoryLibrary{moves: make(map[uuid.UUID]Move)}
}

// Save validates and stores m, replacing any move with the same ID.
func (l *MemoryLibrary) Save(_ context.Context, m Move) error {
	if err := m.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.moves[m.ID] = m
	return nil
}

// Get returns the move with id.
func (l *MemoryLibrary) Get(_ context.Context, id uuid.UUID) (Move, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.moves[id]
	if !ok {
		return Move{}, ErrMoveNotFound
	}
	return m, nil
}

// List returns all moves, oldest first.
func (l *MemoryLibrary) List(_ context.Context) ([]Move, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Move, 0, len(l.moves))
	for _, m := range l.moves {
		out = append(out, m)
	}
	sortMoves(out)
	return out, nil
}

// Delete removes the move with id.
func (l *MemoryLibrary) Delete(_ context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.moves[id]; !ok {
		return ErrMoveNotFound
	}
	delete(l.moves, id)
	return nil
}

// Close is a no-op.
func (l *MemoryLibrary) Close() error { return nil }

func sortMoves(moves []Move) {
	sort.SliceStable(moves, func(i, j int) bool {
		if moves[i].CreatedAt.Equal(moves[j].CreatedAt) {
			return moves[i].Name < moves[j].Name
		}
		return moves[i].CreatedAt.Before(moves[j].CreatedAt)
	})
}

package room

import (
	"crypto/rand"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/jason-s-yu/pricecheck/internal/models"
)

const (
	// CodeLength is the length of a room join code.
	CodeLength = 6
	// CodeAlphabet leaves out characters that are easy to confuse.
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	maxCodeAttempts = 64
)

// Store is the process-wide registry of live rooms.
type Store interface {
	Create(name string, vis models.Visibility, settings models.Settings) (*Room, error)
	Get(id int) (*Room, bool)
	GetByCode(code string) (*Room, bool)
	Delete(id int)
	List() []*Room
}

// MemoryStore keeps rooms in memory only. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int
	rooms  map[int]*Room
	codes  map[string]int
	now    func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[int]*Room),
		codes: make(map[string]int),
		now:   time.Now,
	}
}

// Create allocates an id and a join code unique among live rooms.
func (s *MemoryStore) Create(name string, vis models.Visibility, settings models.Settings) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, err := s.uniqueCodeLocked()
	if err != nil {
		return nil, err
	}
	s.nextID++
	r := NewRoom(s.nextID, code, name, vis, settings, s.now())
	s.rooms[r.ID] = r
	s.codes[code] = r.ID
	return r, nil
}

// Get looks a room up by id.
func (s *MemoryStore) Get(id int) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	return r, ok
}

// GetByCode looks a room up by its join code.
func (s *MemoryStore) GetByCode(code string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return nil, false
	}
	r, ok := s.rooms[id]
	return r, ok
}

// Delete removes a room and frees its code. Unknown ids are ignored.
func (s *MemoryStore) Delete(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return
	}
	delete(s.codes, r.Code)
	delete(s.rooms, id)
}

// List returns a snapshot of the live rooms ordered by id.
func (s *MemoryStore) List() []*Room {
	s.mu.RLock()
	out := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sortByID(out)
	return out
}

func (s *MemoryStore) uniqueCodeLocked() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := GenerateCode()
		if err != nil {
			return "", err
		}
		if _, taken := s.codes[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}

// GenerateCode returns a random join code drawn from CodeAlphabet.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	max := big.NewInt(int64(len(CodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = CodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

func sortByID(rooms []*Room) {
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
}

package room

import (
	"strings"
	"sync"
	"testing"

	"github.com/jason-s-yu/pricecheck/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCreateGetDelete(t *testing.T) {
	s := NewMemoryStore()
	r, err := s.Create("friday", models.VisibilityPrivate, models.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, 1, r.ID)
	assert.Len(t, r.Code, CodeLength)
	assert.Equal(t, PhaseLobby, r.PhaseUnsafe())

	got, ok := s.Get(r.ID)
	require.True(t, ok)
	assert.Same(t, r, got)

	got, ok = s.GetByCode(r.Code)
	require.True(t, ok)
	assert.Same(t, r, got)

	s.Delete(r.ID)
	_, ok = s.Get(r.ID)
	assert.False(t, ok)
	_, ok = s.GetByCode(r.Code)
	assert.False(t, ok)

	s.Delete(r.ID)
}

func TestStoreCodesUniqueAndUnambiguous(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create("r", models.VisibilityPublic, models.DefaultSettings())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rooms := s.List()
	require.Len(t, rooms, 50)
	codes := map[string]bool{}
	for i, r := range rooms {
		assert.Equal(t, i+1, r.ID, "list is ordered by id")
		assert.False(t, codes[r.Code])
		codes[r.Code] = true
		for _, ch := range r.Code {
			assert.True(t, strings.ContainsRune(CodeAlphabet, ch))
		}
	}
}

func TestStoreListIsACopy(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Create("a", models.VisibilityPublic, models.DefaultSettings())
	require.NoError(t, err)
	list := s.List()
	list[0] = nil
	assert.NotNil(t, s.List()[0])
}

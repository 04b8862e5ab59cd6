package audit

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7GeneratorMintsV7(t *testing.T) {
	gen := UUIDv7Generator{}

	id := gen.Generate()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())

	assert.NotEqual(t, id, gen.Generate())
}

func TestFixedIDsReturnInOrder(t *testing.T) {
	gen := NewFixedIDs("first", "second")
	assert.Equal(t, "first", gen.Generate())
	assert.Equal(t, "second", gen.Generate())
}

func TestFixedIDsPanicWhenExhausted(t *testing.T) {
	gen := NewFixedIDs("only")
	gen.Generate()
	assert.Panics(t, func() { gen.Generate() })
}

func TestFixedIDsThreadSafe(t *testing.T) {
	const n = 64
	ids := make([]string, n)
	for i := range ids {
		ids[i] = string(rune('a' + i%26))
	}
	gen := NewFixedIDs(ids...)

	var wg sync.WaitGroup
	out := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out <- gen.Generate()
		}()
	}
	wg.Wait()
	close(out)

	var got []string
	for id := range out {
		got = append(got, id)
	}
	sort.Strings(got)
	sort.Strings(ids)
	assert.Equal(t, ids, got, "every id handed out exactly once")
}

func TestFixedClockReturnsInstant(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := FixedClock{At: at}
	assert.Equal(t, at, c.Now())
	assert.Equal(t, at, c.Now())
}

func TestSystemClockReturnsUTC(t *testing.T) {
	now := SystemClock{}.Now()
	assert.Equal(t, time.UTC, now.Location())
}

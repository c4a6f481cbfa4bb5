package session

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/johnnydevriese/glucose-agent/internal/domain"
)

func testReading(level float64) domain.Reading {
	return domain.Reading{
		GlucoseLevel: level,
		Date:         domain.NewDate(2025, time.March, 1),
		MealStatus:   domain.MealFasting,
	}
}

func TestManager_GetOrCreate(t *testing.T) {
	m := NewManager(40)

	st := m.Get("s1")
	if st == nil {
		t.Fatal("expected state, got nil")
	}
	if id, pending := st.Pending(); id != "" || pending != nil {
		t.Errorf("new session should have no pending reading, got %q %+v", id, pending)
	}
	if got := st.Transcript(); len(got) != 0 {
		t.Errorf("new session should have empty transcript, got %d messages", len(got))
	}

	if m.Get("s1") != st {
		t.Error("Get must return the same state for the same key")
	}
	if m.Get("s2") == st {
		t.Error("distinct keys must get distinct states")
	}
}

func TestState_SetPendingOverwrites(t *testing.T) {
	st := NewManager(40).Get("s1")

	first := st.SetPending(testReading(100))
	second := st.SetPending(testReading(130))
	if first == second {
		t.Error("each pending candidate must get a fresh id")
	}

	id, pending := st.Pending()
	if id != second {
		t.Errorf("expected latest candidate id %q, got %q", second, id)
	}
	if pending.GlucoseLevel != 130 {
		t.Errorf("expected latest reading 130, got %v", pending.GlucoseLevel)
	}
}

func TestState_CommitPending(t *testing.T) {
	st := NewManager(40).Get("s1")
	id := st.SetPending(testReading(105))

	reading, err := st.CommitPending(id, "before breakfast")
	if err != nil {
		t.Fatalf("CommitPending: %v", err)
	}
	if reading.ID != id {
		t.Errorf("committed reading id %q, want %q", reading.ID, id)
	}
	if reading.Notes == nil || *reading.Notes != "before breakfast" {
		t.Errorf("notes not attached: %+v", reading)
	}
	if _, pending := st.Pending(); pending != nil {
		t.Error("pending slot not cleared after commit")
	}

	// A second commit finds nothing.
	if _, err := st.CommitPending(id, ""); !errors.Is(err, ErrNoPendingReading) {
		t.Errorf("expected ErrNoPendingReading, got %v", err)
	}
}

func TestState_CommitPendingStaleID(t *testing.T) {
	st := NewManager(40).Get("s1")
	st.SetPending(testReading(105))

	if _, err := st.CommitPending("not-the-candidate", ""); !errors.Is(err, ErrNoPendingReading) {
		t.Errorf("expected ErrNoPendingReading for stale id, got %v", err)
	}
	// The pending reading survives a stale confirmation.
	if _, pending := st.Pending(); pending == nil {
		t.Error("stale confirm must not clear the pending reading")
	}
}

func TestState_DiscardPendingIsIdempotent(t *testing.T) {
	st := NewManager(40).Get("s1")
	st.DiscardPending() // no-op with nothing pending

	st.SetPending(testReading(105))
	st.DiscardPending()
	if _, pending := st.Pending(); pending != nil {
		t.Error("pending not cleared")
	}
}

func TestState_TranscriptRetentionBound(t *testing.T) {
	st := NewManager(4).Get("s1")
	for i := 0; i < 6; i++ {
		st.AppendTranscript(
			domain.StoredMessage{Role: domain.RoleUser, Content: "u" + strconv.Itoa(i)},
			domain.StoredMessage{Role: domain.RoleModel, Content: "m" + strconv.Itoa(i)},
		)
	}

	got := st.Transcript()
	if len(got) != 4 {
		t.Fatalf("expected transcript capped at 4, got %d", len(got))
	}
	if got[0].Content != "u4" || got[3].Content != "m5" {
		t.Errorf("expected oldest messages dropped, got %+v", got)
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager(40)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := "session-" + strconv.Itoa(n%4)
			for j := 0; j < 200; j++ {
				st := m.Get(key)
				id := st.SetPending(testReading(float64(60 + j)))
				st.AppendTranscript(domain.StoredMessage{Role: domain.RoleUser, Content: "x"})
				_, _ = st.CommitPending(id, "")
			}
		}(i)
	}
	wg.Wait()
}

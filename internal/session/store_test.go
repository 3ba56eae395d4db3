package session

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(timeout time.Duration) (*Store, *time.Time) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewStore(timeout)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestSessionLifecycle(t *testing.T) {
	s, _ := newTestStore(30 * time.Minute)

	se := s.GetOrCreate(1)
	require.NotEmpty(t, se.ID)
	require.Empty(t, se.Files)
	require.False(t, s.IsReadyToCommit(1))

	se = s.AddFile(1, "f1", "Movie (2021)")
	require.Len(t, se.Files, 1)
	require.Equal(t, "Movie (2021)", se.Caption)
	require.False(t, s.IsReadyToCommit(1))

	se = s.AddFile(1, "f2", "Movie (2021) part 2")
	require.Equal(t, []string{"f1", "f2"}, []string{se.Files[0].AssetRef, se.Files[1].AssetRef})
	require.Equal(t, "Movie (2021)", se.Caption, "caption keeps the first file's name")

	s.SetImage(1, "img", 1280, 720)
	require.True(t, s.IsReadyToCommit(1))

	popped, ok := s.PopForCommit(1)
	require.True(t, ok)
	require.Len(t, popped.Files, 2)
	require.Equal(t, "img", popped.Image.AssetRef)

	_, ok = s.Get(1)
	require.False(t, ok)
	_, ok = s.PopForCommit(1)
	require.False(t, ok)
}

func TestSetImageLastWriteWins(t *testing.T) {
	s, _ := newTestStore(0)

	s.SetImage(5, "first", 320, 240)
	se := s.SetImage(5, "second", 640, 480)
	require.Equal(t, "second", se.Image.AssetRef)
	require.False(t, s.IsReadyToCommit(5), "an image alone is not enough")
}

func TestDuplicateFilesAreKept(t *testing.T) {
	s, _ := newTestStore(0)

	s.AddFile(2, "same", "Same")
	se := s.AddFile(2, "same", "Same")
	require.Len(t, se.Files, 2)
}

func TestSetCaption(t *testing.T) {
	s, _ := newTestStore(0)

	s.SetCaption(3, "")
	s.SetCaption(3, "director's cut")
	se := s.AddFile(3, "f", "Film (1999)")
	require.Equal(t, "director's cut", se.Caption)
}

func TestExpiredSessionIsReplaced(t *testing.T) {
	s, now := newTestStore(30 * time.Minute)

	old := s.AddFile(1, "f1", "Old")
	*now = now.Add(31 * time.Minute)

	require.False(t, s.IsReadyToCommit(1))
	fresh := s.GetOrCreate(1)
	require.NotEqual(t, old.ID, fresh.ID)
	require.Empty(t, fresh.Files)
}

func TestExpiredSessionNotCommittable(t *testing.T) {
	s, now := newTestStore(30 * time.Minute)

	s.AddFile(1, "f1", "Old")
	s.SetImage(1, "img", 10, 10)
	*now = now.Add(31 * time.Minute)

	_, ok := s.PopForCommit(1)
	require.False(t, ok)
	se := s.SetImage(1, "img2", 10, 10)
	require.Empty(t, se.Files, "files from the expired session must not leak")
}

func TestSweep(t *testing.T) {
	s, now := newTestStore(30 * time.Minute)

	s.GetOrCreate(1)
	*now = now.Add(20 * time.Minute)
	s.GetOrCreate(2)
	*now = now.Add(15 * time.Minute)

	require.Equal(t, 1, s.Sweep())
	require.Equal(t, 1, s.Len())
	_, ok := s.Get(2)
	require.True(t, ok)
}

func TestReturnedSessionIsACopy(t *testing.T) {
	s, _ := newTestStore(0)

	se := s.AddFile(1, "f1", "A")
	se.Files[0].AssetRef = "mutated"
	se = s.SetImage(1, "img", 1, 1)
	se.Image.AssetRef = "mutated"

	got, _ := s.Get(1)
	require.Equal(t, "f1", got.Files[0].AssetRef)
	require.Equal(t, "img", got.Image.AssetRef)
}

// Any interleaving containing at least one file and one image must end ready,
// and any interleaving missing either must not.
func TestReadinessRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		s, _ := newTestStore(0)
		files, images := 0, 0
		for step := rng.Intn(8); step >= 0; step-- {
			if rng.Intn(2) == 0 {
				s.AddFile(1, "f", "F")
				files++
			} else {
				s.SetImage(1, "i", 1, 1)
				images++
			}
		}
		require.Equal(t, files > 0 && images > 0, s.IsReadyToCommit(1), "files=%d images=%d", files, images)
	}
}

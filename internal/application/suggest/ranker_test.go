package suggest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/pkg/logger"
	"github.com/doeshing/shai-bridge/internal/ports"
)

type stubHistory struct {
	mu      sync.Mutex
	records []domain.HistoryRecord
	err     error
	calls   int
	onRead  func()
}

func (s *stubHistory) Append(_ context.Context, rec domain.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *stubHistory) Records(context.Context, int, string) ([]domain.HistoryRecord, error) {
	s.mu.Lock()
	s.calls++
	records, err, hook := append([]domain.HistoryRecord(nil), s.records...), s.err, s.onRead
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return records, err
}

func (s *stubHistory) Clear(context.Context) error { return nil }
func (s *stubHistory) Path() string               { return "memory" }

func (s *stubHistory) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubFavorites struct {
	favorites []domain.Favorite
	err       error
}

func (s *stubFavorites) Favorites(context.Context) ([]domain.Favorite, error) {
	return s.favorites, s.err
}
func (s *stubFavorites) Save(context.Context, domain.Favorite) error { return nil }
func (s *stubFavorites) Remove(context.Context, string) error        { return nil }

type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRanker(h *stubHistory, f *stubFavorites, clock *fakeClock) *Ranker {
	var history ports.HistoryRepository
	if h != nil {
		history = h
	}
	var favorites ports.FavoritesRepository
	if f != nil {
		favorites = f
	}
	return NewRanker(history, favorites, logger.Nop{}, Options{Now: clock.Now})
}

func TestSuggestEmptyInputDoesNoWork(t *testing.T) {
	h := &stubHistory{records: []domain.HistoryRecord{{Command: "ls", Timestamp: epoch}}}
	r := newTestRanker(h, nil, &fakeClock{now: epoch})

	for _, input := range []string{"", "   ", "\t"} {
		got := r.Suggest(context.Background(), input, domain.CommandContext{})
		assert.Empty(t, got)
		assert.NotNil(t, got)
	}
	assert.Zero(t, h.callCount())
}

func TestFavoriteOutranksHistory(t *testing.T) {
	clock := &fakeClock{now: epoch}
	h := &stubHistory{records: []domain.HistoryRecord{
		{Command: "df -i", UserInput: "inode usage", Timestamp: epoch.Add(-time.Hour)},
	}}
	f := &stubFavorites{favorites: []domain.Favorite{
		{Name: "disk", Command: "df -h", Description: "disk usage"},
	}}
	r := newTestRanker(h, f, clock)

	got := r.Suggest(context.Background(), "df", domain.CommandContext{WorkingDir: "/home/dev", OS: "linux"})

	require.Len(t, got, 2)
	assert.Equal(t, "df -h", got[0].Command)
	assert.Equal(t, domain.ProvenanceFavorite, got[0].Provenance)
	assert.Equal(t, "df -i", got[1].Command)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestSuggestScoring(t *testing.T) {
	clock := &fakeClock{now: epoch}
	twoHoursAgo := epoch.Add(-2 * time.Hour)
	threeDaysAgo := epoch.Add(-72 * time.Hour)
	h := &stubHistory{records: []domain.HistoryRecord{
		{Command: "git status", UserInput: "show repo status", Timestamp: threeDaysAgo},
		{Command: "git status", UserInput: "what changed", Timestamp: threeDaysAgo.Add(-time.Hour)},
	}}
	f := &stubFavorites{favorites: []domain.Favorite{
		{Name: "log", Command: "git log --oneline", Description: "short log", UsageCount: 15, UpdatedAt: twoHoursAgo},
	}}
	r := newTestRanker(h, f, clock)

	got := r.Suggest(context.Background(), "git", domain.CommandContext{})

	want := []domain.Suggestion{
		{
			Command:     "git log --oneline",
			Description: "short log",
			// favorite 100 + prefix 30 + usage cap 20 + today 20
			Score:      170,
			Provenance: domain.ProvenanceFavorite,
			UsageCount: 15,
			LastUsed:   &twoHoursAgo,
		},
		{
			Command:     "git status",
			Description: "show repo status",
			// history 40 + prefix 30 + usage 4 + this week 10
			Score:      84,
			Provenance: domain.ProvenanceHistory,
			UsageCount: 2,
			LastUsed:   &threeDaysAgo,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("suggestions mismatch (-want +got):\n%s", diff)
	}
}

func TestSuggestNeverExceedsLimit(t *testing.T) {
	h := &stubHistory{}
	for i := 0; i < 20; i++ {
		h.records = append(h.records, domain.HistoryRecord{Command: fmt.Sprintf("echo %d", i), Timestamp: epoch})
	}
	r := newTestRanker(h, nil, &fakeClock{now: epoch})

	got := r.Suggest(context.Background(), "echo", domain.CommandContext{})
	assert.Len(t, got, MaxSuggestions)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestSuggestDedupesAcrossSources(t *testing.T) {
	h := &stubHistory{records: []domain.HistoryRecord{
		{Command: "make test", Timestamp: epoch.Add(-time.Minute)},
		{Command: "make test", Timestamp: epoch.Add(-2 * time.Minute)},
		{Command: "make test", Timestamp: epoch.Add(-3 * time.Minute)},
	}}
	f := &stubFavorites{favorites: []domain.Favorite{{Name: "tests", Command: "make test", UsageCount: 1}}}
	r := newTestRanker(h, f, &fakeClock{now: epoch})

	got := r.Suggest(context.Background(), "make", domain.CommandContext{})

	require.Len(t, got, 1)
	assert.Equal(t, domain.ProvenanceHistory, got[0].Provenance)
	assert.Equal(t, 3, got[0].UsageCount)
}

func TestSuggestMatchesUserInputAndSubsequence(t *testing.T) {
	h := &stubHistory{records: []domain.HistoryRecord{
		{Command: "du -sh *", UserInput: "folder sizes", Timestamp: epoch},
		{Command: "docker compose up", UserInput: "start stack", Timestamp: epoch},
	}}
	r := newTestRanker(h, nil, &fakeClock{now: epoch})

	got := r.Suggest(context.Background(), "folder", domain.CommandContext{})
	require.Len(t, got, 1)
	assert.Equal(t, "du -sh *", got[0].Command)

	got = r.Suggest(context.Background(), "dcu", domain.CommandContext{})
	require.Len(t, got, 1)
	assert.Equal(t, "docker compose up", got[0].Command)
}

func TestSuggestCacheAndInvalidation(t *testing.T) {
	clock := &fakeClock{now: epoch}
	h := &stubHistory{records: []domain.HistoryRecord{{Command: "ls -la", Timestamp: epoch}}}
	r := newTestRanker(h, nil, clock)
	cmdCtx := domain.CommandContext{WorkingDir: "/srv", OS: "linux"}

	first := r.Suggest(context.Background(), "ls", cmdCtx)
	second := r.Suggest(context.Background(), "ls", cmdCtx)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.callCount())

	// Different OS is a different key.
	r.Suggest(context.Background(), "ls", domain.CommandContext{WorkingDir: "/srv", OS: "darwin"})
	assert.Equal(t, 2, h.callCount())

	r.RecordUsage("ls -lah", cmdCtx)
	third := r.Suggest(context.Background(), "ls", cmdCtx)
	assert.Equal(t, 3, h.callCount())
	assert.NotEqual(t, first, third)

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.CacheHits)
	assert.Equal(t, uint64(3), stats.CacheMisses)
}

func TestSuggestCacheExpires(t *testing.T) {
	clock := &fakeClock{now: epoch}
	h := &stubHistory{records: []domain.HistoryRecord{{Command: "ls -la", Timestamp: epoch}}}
	r := newTestRanker(h, nil, clock)

	r.Suggest(context.Background(), "ls", domain.CommandContext{})
	clock.Advance(domain.DefaultSuggestionCacheTTL + time.Second)
	r.Suggest(context.Background(), "ls", domain.CommandContext{})

	assert.Equal(t, 2, h.callCount())
}

func TestSuggestDropsResultsComputedBeforeInvalidation(t *testing.T) {
	h := &stubHistory{records: []domain.HistoryRecord{{Command: "ls -la", Timestamp: epoch}}}
	r := newTestRanker(h, nil, &fakeClock{now: epoch})
	h.onRead = func() {
		h.onRead = nil
		r.RecordUsage("ls -1", domain.CommandContext{})
	}

	r.Suggest(context.Background(), "ls", domain.CommandContext{})

	assert.Zero(t, r.Stats().CacheEntries)
}

func TestDirectoryCandidates(t *testing.T) {
	r := newTestRanker(nil, nil, &fakeClock{now: epoch})
	r.RecordUsage("go test ./...", domain.CommandContext{WorkingDir: "/repo"})

	got := r.Suggest(context.Background(), "go", domain.CommandContext{WorkingDir: "/repo"})
	require.Len(t, got, 1)
	assert.Equal(t, domain.ProvenanceDirectory, got[0].Provenance)
	assert.Equal(t, 1, got[0].UsageCount)

	assert.Empty(t, r.Suggest(context.Background(), "go", domain.CommandContext{WorkingDir: "/elsewhere"}))
}

func TestWarmBuildsUsageFromHistory(t *testing.T) {
	h := &stubHistory{records: []domain.HistoryRecord{
		{Command: "npm run build", Directory: "/web", Timestamp: epoch},
		{Command: "npm run build", Directory: "/web", Timestamp: epoch.Add(-time.Hour)},
	}}
	r := NewRanker(h, nil, logger.Nop{}, Options{Now: (&fakeClock{now: epoch}).Now})
	require.NoError(t, r.Warm(context.Background()))
	assert.Equal(t, 1, r.Stats().TrackedUsage)

	got := r.Suggest(context.Background(), "npm", domain.CommandContext{WorkingDir: "/web"})
	require.Len(t, got, 1)
	assert.Equal(t, domain.ProvenanceDirectory, got[0].Provenance)
	assert.Equal(t, 2, got[0].UsageCount)
	// provenance 60 + prefix 30 + usage 4 + recency 20
	assert.Equal(t, 114.0, got[0].Score)
}

func TestDirectoryContextWinsTieWithHistory(t *testing.T) {
	h := &stubHistory{records: []domain.HistoryRecord{
		{Command: "make deploy", UserInput: "ship it", Directory: "/srv/app", Timestamp: epoch.Add(-time.Minute)},
	}}
	clock := &fakeClock{now: epoch}
	r := newTestRanker(h, nil, clock)
	require.NoError(t, r.Warm(context.Background()))

	tests := []struct {
		name string
		dir  string
		want domain.Provenance
	}{
		{name: "used in cwd", dir: "/srv/app", want: domain.ProvenanceDirectory},
		{name: "used elsewhere", dir: "/tmp", want: domain.ProvenanceHistory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Suggest(context.Background(), "make", domain.CommandContext{WorkingDir: tt.dir})
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Provenance)
			assert.Equal(t, "ship it", got[0].Description)
		})
	}
}

func TestSourceErrorsAreLoggedNotFatal(t *testing.T) {
	var buf bytes.Buffer
	h := &stubHistory{records: []domain.HistoryRecord{{Command: "uptime", Timestamp: epoch}}}
	f := &stubFavorites{err: errors.New("disk on fire")}
	r := NewRanker(h, f, logger.New(&buf, false), Options{Now: (&fakeClock{now: epoch}).Now})

	got := r.Suggest(context.Background(), "up", domain.CommandContext{})

	require.Len(t, got, 1)
	assert.Contains(t, buf.String(), "disk on fire")
}

func TestBudgetOverrunIsCountedAndLogged(t *testing.T) {
	var buf bytes.Buffer
	clock := &fakeClock{now: epoch, step: time.Second}
	h := &stubHistory{records: []domain.HistoryRecord{{Command: "uptime", Timestamp: epoch}}}
	r := NewRanker(h, nil, logger.New(&buf, false), Options{Now: clock.Now, Budget: 500 * time.Millisecond})

	got := r.Suggest(context.Background(), "up", domain.CommandContext{})

	assert.Len(t, got, 1)
	assert.Equal(t, uint64(1), r.Stats().Overruns)
	assert.Contains(t, buf.String(), "exceeded budget")
}

func TestReturnedSlicesAreIndependentOfCache(t *testing.T) {
	h := &stubHistory{records: []domain.HistoryRecord{{Command: "pwd", Timestamp: epoch}}}
	r := newTestRanker(h, nil, &fakeClock{now: epoch})

	first := r.Suggest(context.Background(), "pwd", domain.CommandContext{})
	first[0].Command = "mutated"

	second := r.Suggest(context.Background(), "pwd", domain.CommandContext{})
	assert.Equal(t, "pwd", second[0].Command)
}

func TestFuzzyMatch(t *testing.T) {
	tests := []struct {
		query, candidate string
		want             matchQuality
	}{
		{"LS -LA", "ls -la", matchExact},
		{"git", "git status", matchPrefix},
		{"status", "git status", matchSubstring},
		{"gst", "git status", matchSubsequence},
		{"xyz", "git status", matchNone},
		{"", "git status", matchNone},
		{"git status --long", "git", matchNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fuzzyMatch(tt.query, tt.candidate), "%q vs %q", tt.query, tt.candidate)
	}
}

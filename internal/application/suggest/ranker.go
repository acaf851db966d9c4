// Package suggest ranks completion candidates drawn from favorites, history
// and per-directory usage.
package suggest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/pkg/logger"
	"github.com/doeshing/shai-bridge/internal/ports"
)

// MaxSuggestions bounds every result list.
const MaxSuggestions = 5

const defaultHistoryLimit = 1000

var provenanceWeight = map[domain.Provenance]float64{
	domain.ProvenanceFavorite:  100,
	domain.ProvenanceDirectory: 60,
	domain.ProvenanceHistory:   40,
}

// Options tunes a Ranker. Zero values fall back to the config defaults.
type Options struct {
	CacheTTL     time.Duration
	Budget       time.Duration
	CacheEntries int
	HistoryLimit int
	Now          func() time.Time
}

// Stats reports cache effectiveness and budget overruns.
type Stats struct {
	CacheHits    uint64 `json:"cache_hits"`
	CacheMisses  uint64 `json:"cache_misses"`
	Overruns     uint64 `json:"budget_overruns"`
	CacheEntries int    `json:"cache_entries"`
	TrackedUsage int    `json:"tracked_commands"`
}

// Ranker produces at most MaxSuggestions ordered suggestions per query.
// Suggest and RecordUsage share one mutex around the usage map and cache;
// source queries and scoring run outside it.
type Ranker struct {
	history   ports.HistoryRepository
	favorites ports.FavoritesRepository
	logger    ports.Logger
	opts      Options

	mu         sync.Mutex
	usage      map[string]*domain.UsageRecord
	cache      *resultCache
	generation uint64
	stats      Stats
}

// NewRanker wires a ranker; either repository may be nil.
func NewRanker(history ports.HistoryRepository, favorites ports.FavoritesRepository, log ports.Logger, opts Options) *Ranker {
	if log == nil {
		log = logger.Nop{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = domain.DefaultSuggestionCacheTTL
	}
	if opts.Budget <= 0 {
		opts.Budget = domain.DefaultSuggestionBudget
	}
	if opts.CacheEntries <= 0 {
		opts.CacheEntries = domain.DefaultSuggestionCacheSize
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ranker{
		history:   history,
		favorites: favorites,
		logger:    log,
		opts:      opts,
		usage:     make(map[string]*domain.UsageRecord),
		cache:     newResultCache(opts.CacheTTL, opts.CacheEntries),
	}
}

// Warm rebuilds the usage aggregate from persisted history.
func (r *Ranker) Warm(ctx context.Context) error {
	if r.history == nil {
		return nil
	}
	records, err := r.history.Records(ctx, r.opts.HistoryLimit, "")
	if err != nil {
		return err
	}
	usage := make(map[string]*domain.UsageRecord)
	for _, rec := range records {
		cmd := strings.TrimSpace(rec.Command)
		if cmd == "" {
			continue
		}
		addUsage(usage, cmd, rec.Directory, rec.Timestamp)
	}

	r.mu.Lock()
	r.usage = usage
	r.cache.clear()
	r.generation++
	r.mu.Unlock()
	return nil
}

// RecordUsage bumps the usage aggregate and invalidates every cached ranking.
func (r *Ranker) RecordUsage(command string, cmdCtx domain.CommandContext) {
	command = strings.TrimSpace(command)
	if command == "" {
		return
	}
	now := r.opts.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	addUsage(r.usage, command, cmdCtx.WorkingDir, now)
	r.cache.clear()
	r.generation++
}

// Stats returns a snapshot of ranker counters.
func (r *Ranker) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.CacheEntries = r.cache.len()
	s.TrackedUsage = len(r.usage)
	return s
}

// Suggest never fails; a broken source contributes no candidates.
func (r *Ranker) Suggest(ctx context.Context, partialInput string, cmdCtx domain.CommandContext) []domain.Suggestion {
	query := strings.TrimSpace(partialInput)
	if query == "" {
		return []domain.Suggestion{}
	}
	key := cacheKey(query, cmdCtx.WorkingDir, cmdCtx.OS)
	start := r.opts.Now()

	r.mu.Lock()
	if cached, ok := r.cache.get(key, start); ok {
		r.stats.CacheHits++
		r.mu.Unlock()
		return cloneSuggestions(cached)
	}
	r.stats.CacheMisses++
	generation := r.generation
	usage := snapshotUsage(r.usage)
	r.mu.Unlock()

	// Source order is provenance order; dedupe ties keep the earlier source.
	candidates := r.favoriteCandidates(ctx, query)
	candidates = append(candidates, directoryCandidates(query, cmdCtx.WorkingDir, usage)...)
	candidates = append(candidates, r.historyCandidates(ctx, query, usage)...)

	now := r.opts.Now()
	results := rank(dedupe(candidates), now)
	elapsed := now.Sub(start)

	r.mu.Lock()
	if elapsed > r.opts.Budget {
		r.stats.Overruns++
	}
	if generation == r.generation {
		r.cache.set(key, results, now)
	}
	r.mu.Unlock()

	if elapsed > r.opts.Budget {
		r.logger.Warn("suggestion generation exceeded budget", map[string]interface{}{
			"elapsed_ms": elapsed.Milliseconds(),
			"budget_ms":  r.opts.Budget.Milliseconds(),
			"input_len":  len(query),
		})
	}
	return cloneSuggestions(results)
}

type candidate struct {
	suggestion domain.Suggestion
	match      matchQuality
	lastUsed   time.Time
}

func (r *Ranker) favoriteCandidates(ctx context.Context, query string) []candidate {
	if r.favorites == nil {
		return nil
	}
	favs, err := r.favorites.Favorites(ctx)
	if err != nil {
		r.logger.Warn("favorites source unavailable", map[string]interface{}{"error": err.Error()})
		return nil
	}
	var out []candidate
	for _, fav := range favs {
		q := bestMatch(query, fav.Command, fav.Name, fav.Description)
		if q == matchNone {
			continue
		}
		description := fav.Description
		if description == "" {
			description = fav.Name
		}
		out = append(out, candidate{
			suggestion: domain.Suggestion{
				Command:     fav.Command,
				Description: description,
				Provenance:  domain.ProvenanceFavorite,
				UsageCount:  fav.UsageCount,
			},
			match:    q,
			lastUsed: fav.UpdatedAt,
		})
	}
	return out
}

func (r *Ranker) historyCandidates(ctx context.Context, query string, usage map[string]domain.UsageRecord) []candidate {
	if r.history == nil {
		return nil
	}
	records, err := r.history.Records(ctx, r.opts.HistoryLimit, "")
	if err != nil {
		r.logger.Warn("history source unavailable", map[string]interface{}{"error": err.Error()})
		return nil
	}

	byCommand := make(map[string]*candidate)
	var order []string
	for _, rec := range records {
		cmd := strings.TrimSpace(rec.Command)
		if cmd == "" {
			continue
		}
		q := bestMatch(query, cmd, rec.UserInput)
		if q == matchNone {
			continue
		}
		c, ok := byCommand[cmd]
		if !ok {
			c = &candidate{suggestion: domain.Suggestion{
				Command:     cmd,
				Description: rec.UserInput,
				Provenance:  domain.ProvenanceHistory,
			}}
			byCommand[cmd] = c
			order = append(order, cmd)
		}
		c.suggestion.UsageCount++
		if q > c.match {
			c.match = q
		}
		if rec.Timestamp.After(c.lastUsed) {
			c.lastUsed = rec.Timestamp
			if rec.UserInput != "" {
				c.suggestion.Description = rec.UserInput
			}
		}
	}

	out := make([]candidate, 0, len(order))
	for _, cmd := range order {
		c := byCommand[cmd]
		if u, ok := usage[cmd]; ok {
			if u.Count > c.suggestion.UsageCount {
				c.suggestion.UsageCount = u.Count
			}
			if u.LastUsed.After(c.lastUsed) {
				c.lastUsed = u.LastUsed
			}
		}
		out = append(out, *c)
	}
	return out
}

func directoryCandidates(query, dir string, usage map[string]domain.UsageRecord) []candidate {
	if dir == "" {
		return nil
	}
	var out []candidate
	for cmd, u := range usage {
		if _, ok := u.Directories[dir]; !ok {
			continue
		}
		q := fuzzyMatch(query, cmd)
		if q == matchNone {
			continue
		}
		out = append(out, candidate{
			suggestion: domain.Suggestion{
				Command:    cmd,
				Provenance: domain.ProvenanceDirectory,
				UsageCount: u.Count,
			},
			match:    q,
			lastUsed: u.LastUsed,
		})
	}
	// Map iteration order is random; keep the first-source tie-break deterministic.
	sort.Slice(out, func(i, j int) bool {
		return out[i].suggestion.Command < out[j].suggestion.Command
	})
	return out
}

// dedupe keeps one candidate per command: higher usage, then more recent, then earlier source.
func dedupe(candidates []candidate) []candidate {
	best := make(map[string]int, len(candidates))
	var out []candidate
	for _, c := range candidates {
		i, ok := best[c.suggestion.Command]
		if !ok {
			best[c.suggestion.Command] = len(out)
			out = append(out, c)
			continue
		}
		cur := out[i]
		if c.suggestion.UsageCount > cur.suggestion.UsageCount ||
			(c.suggestion.UsageCount == cur.suggestion.UsageCount && c.lastUsed.After(cur.lastUsed)) {
			cur, c = c, cur
		}
		if cur.suggestion.Description == "" {
			cur.suggestion.Description = c.suggestion.Description
		}
		out[i] = cur
	}
	return out
}

func rank(candidates []candidate, now time.Time) []domain.Suggestion {
	for i := range candidates {
		c := &candidates[i]
		c.suggestion.Score = score(*c, now)
		if !c.lastUsed.IsZero() {
			t := c.lastUsed
			c.suggestion.LastUsed = &t
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.suggestion.Score != b.suggestion.Score {
			return a.suggestion.Score > b.suggestion.Score
		}
		if a.suggestion.UsageCount != b.suggestion.UsageCount {
			return a.suggestion.UsageCount > b.suggestion.UsageCount
		}
		if !a.lastUsed.Equal(b.lastUsed) {
			return a.lastUsed.After(b.lastUsed)
		}
		return a.suggestion.Command < b.suggestion.Command
	})
	if len(candidates) > MaxSuggestions {
		candidates = candidates[:MaxSuggestions]
	}
	out := make([]domain.Suggestion, len(candidates))
	for i, c := range candidates {
		out[i] = c.suggestion
	}
	return out
}

func score(c candidate, now time.Time) float64 {
	usage := float64(2 * c.suggestion.UsageCount)
	if usage > 20 {
		usage = 20
	}
	return provenanceWeight[c.suggestion.Provenance] + c.match.bonus() + usage + recencyBonus(c.lastUsed, now)
}

func recencyBonus(lastUsed, now time.Time) float64 {
	if lastUsed.IsZero() {
		return 0
	}
	age := now.Sub(lastUsed)
	switch {
	case age < 24*time.Hour:
		return 20
	case age < 7*24*time.Hour:
		return 10
	case age < 30*24*time.Hour:
		return 5
	default:
		return 0
	}
}

func addUsage(usage map[string]*domain.UsageRecord, command, dir string, at time.Time) {
	rec, ok := usage[command]
	if !ok {
		rec = &domain.UsageRecord{Command: command, Directories: make(map[string]struct{})}
		usage[command] = rec
	}
	rec.Count++
	if at.After(rec.LastUsed) {
		rec.LastUsed = at
	}
	if dir != "" {
		rec.Directories[dir] = struct{}{}
	}
}

// snapshotUsage copies the aggregate so scoring can run without the lock.
func snapshotUsage(usage map[string]*domain.UsageRecord) map[string]domain.UsageRecord {
	out := make(map[string]domain.UsageRecord, len(usage))
	for cmd, rec := range usage {
		dirs := make(map[string]struct{}, len(rec.Directories))
		for d := range rec.Directories {
			dirs[d] = struct{}{}
		}
		copied := *rec
		copied.Directories = dirs
		out[cmd] = copied
	}
	return out
}

func cloneSuggestions(in []domain.Suggestion) []domain.Suggestion {
	out := make([]domain.Suggestion, len(in))
	copy(out, in)
	return out
}

package rules

import (
	"strings"
	"sync"
	"time"

	catalogmodels "media-janitor/feature/catalog/models"
	"media-janitor/feature/rules/models"
)

// Decision is the outcome of evaluating one entry against one rule.
type Decision struct {
	Included bool `json:"included"`
	// ExcludedBy names the first filter that rejected the entry.
	ExcludedBy models.FilterName `json:"excluded_by,omitempty"`
}

// Stats accumulates evaluation outcomes for diagnostics. It has no bearing
// on decisions.
type Stats struct {
	Evaluated int64                       `json:"evaluated"`
	Included  int64                       `json:"included"`
	Excluded  map[models.FilterName]int64 `json:"excluded"`
}

// Engine evaluates rules against catalog entries.
//
// Filter predicates apply in a fixed priority order and evaluation
// short-circuits on the first enabled predicate that rejects the entry.
type Engine struct {
	mu    sync.Mutex
	stats Stats

	// now is injectable for tests.
	now func() time.Time
}

// NewEngine creates an evaluation engine.
func NewEngine() *Engine {
	return &Engine{
		stats: Stats{Excluded: make(map[models.FilterName]int64)},
		now:   time.Now,
	}
}

// Evaluate decides whether the rule matches the entry, recording which
// filter excluded it for diagnostics.
func (e *Engine) Evaluate(entry *catalogmodels.Entry, rule *models.Rule) Decision {
	decision := e.decide(entry, rule)
	e.record(decision)
	return decision
}

// Stats returns a copy of the accumulated exclusion counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := Stats{
		Evaluated: e.stats.Evaluated,
		Included:  e.stats.Included,
		Excluded:  make(map[models.FilterName]int64, len(e.stats.Excluded)),
	}
	for k, v := range e.stats.Excluded {
		out.Excluded[k] = v
	}
	return out
}

// ResetStats clears the accumulated counters.
func (e *Engine) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats = Stats{Excluded: make(map[models.FilterName]int64)}
}

func (e *Engine) record(d Decision) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Evaluated++
	if d.Included {
		e.stats.Included++
	} else {
		e.stats.Excluded[d.ExcludedBy]++
	}
}

func (e *Engine) decide(entry *catalogmodels.Entry, rule *models.Rule) Decision {
	// Protected entries are never matched, regardless of configuration.
	if entry.Protected {
		return excluded(models.FilterProtected)
	}

	if !rule.Kinds.Contains(entry.Kind) {
		return excluded(models.FilterKind)
	}

	f := rule.Filters

	if f.Age.Enabled {
		if entry.AgeDays(e.now()) < f.Age.MinDays {
			return excluded(models.FilterAge)
		}
	}

	if f.Rating.Enabled {
		// An absent rating rejects. This is the strict half of the
		// absence policy; quality absence below is deliberately lenient.
		if entry.Rating <= 0 || entry.Rating < f.Rating.Min {
			return excluded(models.FilterRating)
		}
	}

	if f.Quality.Enabled {
		if !qualityPasses(entry, f.Quality) {
			return excluded(models.FilterQuality)
		}
	}

	if f.Size.Enabled {
		gb := float64(entry.SizeBytes) / (1 << 30)
		if f.Size.MinGB > 0 && gb < f.Size.MinGB {
			return excluded(models.FilterSize)
		}
		if f.Size.MaxGB > 0 && gb > f.Size.MaxGB {
			return excluded(models.FilterSize)
		}
	}

	if f.WatchStatus.Enabled {
		if entry.WatchState() != f.WatchStatus.Status {
			return excluded(models.FilterWatchStatus)
		}
	}

	if f.Title.Enabled {
		if !titlePasses(entry.Title, f.Title) {
			return excluded(models.FilterTitle)
		}
	}

	if f.Source.Enabled {
		if !sourcePasses(entry, f.Source) {
			return excluded(models.FilterSource)
		}
	}

	if f.WatchHistory.Enabled {
		if !watchHistoryPasses(entry, f.WatchHistory, e.now()) {
			return excluded(models.FilterWatchHistory)
		}
	}

	return Decision{Included: true}
}

func excluded(name models.FilterName) Decision {
	return Decision{Included: false, ExcludedBy: name}
}

// qualityOrdinals maps quality label fragments to a fixed ordinal scale.
// Order matters: the first matching fragment wins.
var qualityOrdinals = []struct {
	fragment string
	ordinal  int
}{
	{"2160", 5},
	{"4k", 5},
	{"1080", 4},
	{"720", 3},
	{"576", 2},
	{"480", 1},
	{"sd", 1},
}

// QualityOrdinal maps a free-text quality label to the fixed ordinal scale:
// 4k/2160p=5 down to 480p/sd=1, unknown=0.
func QualityOrdinal(label string) int {
	label = strings.ToLower(label)
	for _, q := range qualityOrdinals {
		if strings.Contains(label, q.fragment) {
			return q.ordinal
		}
	}
	return 0
}

func qualityPasses(entry *catalogmodels.Entry, f models.QualityFilter) bool {
	// Entries lacking any quality data are included, not rejected.
	// Deliberate asymmetry with the rating filter above.
	if entry.Resolution == "" && entry.Quality == "" && entry.QualityProfile == "" && entry.Codec == "" {
		return true
	}

	if f.Match != "" {
		match := strings.ToLower(f.Match)
		haystacks := []string{entry.Resolution, entry.QualityProfile, entry.Quality, entry.Codec}
		found := false
		for _, h := range haystacks {
			if h != "" && strings.Contains(strings.ToLower(h), match) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.MinOrdinal > 0 || f.MaxOrdinal > 0 {
		ordinal := QualityOrdinal(entry.Resolution)
		if o := QualityOrdinal(entry.Quality); o > ordinal {
			ordinal = o
		}
		if f.MinOrdinal > 0 && ordinal < f.MinOrdinal {
			return false
		}
		if f.MaxOrdinal > 0 && ordinal > f.MaxOrdinal {
			return false
		}
	}

	return true
}

func titlePasses(title string, f models.TitleFilter) bool {
	// Both sub-conditions must hold when both are set.
	if f.Contains != "" {
		if !strings.Contains(strings.ToLower(title), strings.ToLower(f.Contains)) {
			return false
		}
	}
	if f.Exact != "" {
		if !strings.EqualFold(title, f.Exact) {
			return false
		}
	}
	return true
}

func sourcePasses(entry *catalogmodels.Entry, f models.SourceFilter) bool {
	if f.Monitored != nil && entry.Monitored != *f.Monitored {
		return false
	}
	if f.DownloadStatus != "" && !strings.EqualFold(entry.DownloadStatus, f.DownloadStatus) {
		return false
	}
	if len(f.Tags) > 0 {
		if !tagsIntersect(entry.Tags, f.Tags) {
			return false
		}
	}
	return true
}

func tagsIntersect(entryTags []string, ruleTags []string) bool {
	set := make(map[string]struct{}, len(entryTags))
	for _, t := range entryTags {
		set[strings.ToLower(t)] = struct{}{}
	}
	for _, t := range ruleTags {
		if _, ok := set[strings.ToLower(t)]; ok {
			return true
		}
	}
	return false
}

func watchHistoryPasses(entry *catalogmodels.Entry, f models.WatchHistoryFilter, now time.Time) bool {
	if f.MaxViews > 0 && entry.ViewCount > f.MaxViews {
		return false
	}
	if f.MinViews > 0 && entry.ViewCount < f.MinViews {
		return false
	}
	if f.MinDaysSincePlay > 0 && entry.LastPlayedAt != nil {
		days := int(now.Sub(*entry.LastPlayedAt).Hours() / 24)
		if days < f.MinDaysSincePlay {
			return false
		}
	}
	if f.MinWatchPercent > 0 && entry.DurationSec > 0 {
		percent := float64(entry.WatchTimeSec) / float64(entry.DurationSec) * 100
		if percent < f.MinWatchPercent {
			return false
		}
	}
	return true
}

package zombie

import (
	"errors"
	"pvz/internal/nostr"
	"sort"
)

const (
	secondsPerDay = 86400

	// ConservativeFloorDays marks anything more recent as active no matter
	// how the configured thresholds are set.
	ConservativeFloorDays = 120

	// SuspicionWindowDays is how recent a post after a deletion marker must
	// be for the account to be treated as not deleted.
	SuspicionWindowDays = 7
)

var ErrNoPubkeys = errors.New("no pubkeys to scan")

type Category string

const (
	CategoryActive  Category = "active"
	CategoryFresh   Category = "fresh"
	CategoryRotting Category = "rotting"
	CategoryAncient Category = "ancient"
	CategoryBurned  Category = "burned"
)

// Categories lists every category, healthiest first.
var Categories = []Category{CategoryActive, CategoryFresh, CategoryRotting, CategoryAncient, CategoryBurned}

// Activity is the part of an event the classifier looks at.
type Activity struct {
	ID        string `json:"id"`
	Kind      int    `json:"kind"`
	CreatedAt int64  `json:"created_at"`
	Content   string `json:"content"`
}

func activityFrom(ev nostr.Event) Activity {
	return Activity{ID: ev.ID, Kind: ev.Kind, CreatedAt: ev.CreatedAt, Content: ev.Content}
}

// ActivityMap maps a pubkey to its recent events, newest first.
type ActivityMap map[string][]Activity

// Empty returns the pubkeys without any event, sorted.
func (m ActivityMap) Empty() []string {
	var out []string
	for pk, evs := range m {
		if len(evs) == 0 {
			out = append(out, pk)
		}
	}
	sort.Strings(out)
	return out
}

// Merge adds src into m keeping at most limit events per pubkey. It never
// drops a pubkey and never turns a non-empty list into an empty one.
func (m ActivityMap) Merge(src ActivityMap, limit int) {
	for pk, evs := range src {
		m.add(pk, evs, limit)
	}
}

func (m ActivityMap) add(pubkey string, evs []Activity, limit int) {
	current, ok := m[pubkey]
	if !ok {
		current = []Activity{}
	}
	if len(evs) == 0 {
		m[pubkey] = current
		return
	}

	seen := make(map[string]struct{}, len(current))
	merged := make([]Activity, 0, len(current)+len(evs))
	for _, a := range current {
		seen[a.ID] = struct{}{}
		merged = append(merged, a)
	}
	for _, a := range evs {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		merged = append(merged, a)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].CreatedAt != merged[j].CreatedAt {
			return merged[i].CreatedAt > merged[j].CreatedAt
		}
		return merged[i].ID < merged[j].ID
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	m[pubkey] = merged
}

type Thresholds struct {
	Fresh   int `json:"fresh"`
	Rotting int `json:"rotting"`
	Ancient int `json:"ancient"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Fresh: 90, Rotting: 180, Ancient: 365}
}

type DeletionInfo struct {
	MarkedDeletedAt             int64 `json:"markedDeletedAt"`
	DeletionAge                 int64 `json:"deletionAge"`
	ProfileUpdatesAfterDeletion int   `json:"profileUpdatesAfterDeletion"`
}

type Result struct {
	Pubkey            string        `json:"pubkey"`
	Category          Category      `json:"category"`
	LastActivity      *int64        `json:"lastActivity"`
	DaysSinceActivity *float64      `json:"daysSinceActivity"`
	Confidence        float64       `json:"confidence"`
	EventCount        int           `json:"eventCount"`
	DeletionInfo      *DeletionInfo `json:"deletionInfo,omitempty"`
}

// Classification holds every scanned account in exactly one category.
type Classification struct {
	Active  []Result `json:"active"`
	Fresh   []Result `json:"fresh"`
	Rotting []Result `json:"rotting"`
	Ancient []Result `json:"ancient"`
	Burned  []Result `json:"burned"`
}

func NewClassification() *Classification {
	return &Classification{
		Active:  []Result{},
		Fresh:   []Result{},
		Rotting: []Result{},
		Ancient: []Result{},
		Burned:  []Result{},
	}
}

func (c *Classification) bucket(cat Category) *[]Result {
	switch cat {
	case CategoryFresh:
		return &c.Fresh
	case CategoryRotting:
		return &c.Rotting
	case CategoryAncient:
		return &c.Ancient
	case CategoryBurned:
		return &c.Burned
	default:
		return &c.Active
	}
}

func (c *Classification) Add(r Result) {
	b := c.bucket(r.Category)
	*b = append(*b, r)
}

func (c *Classification) Results(cat Category) []Result {
	return *c.bucket(cat)
}

// Find returns the result for pubkey.
func (c *Classification) Find(pubkey string) (Result, bool) {
	for _, cat := range Categories {
		for _, r := range c.Results(cat) {
			if r.Pubkey == pubkey {
				return r, true
			}
		}
	}
	return Result{}, false
}

func (c *Classification) Counts() map[Category]int {
	counts := make(map[Category]int, len(Categories))
	for _, cat := range Categories {
		counts[cat] = len(c.Results(cat))
	}
	return counts
}

func (c *Classification) Total() int {
	total := 0
	for _, n := range c.Counts() {
		total += n
	}
	return total
}

// Zombies is the number of accounts outside the active category.
func (c *Classification) Zombies() int {
	return c.Total() - len(c.Active)
}

package zombie

import (
	"math"
	"pvz/internal/nostr"
	"sort"
)

// Classifier assigns each account to exactly one category. The outcome
// depends only on the evidence, the thresholds and the clock.
type Classifier struct {
	clock Clock
	lists RelayListSource
}

// NewClassifier builds a classifier. lists is optional and only feeds the
// confidence score.
func NewClassifier(clock Clock, lists RelayListSource) *Classifier {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Classifier{clock: clock, lists: lists}
}

// Classify buckets every pubkey of activity. profiles may be nil, in which
// case no account can be burned.
func (c *Classifier) Classify(activity ActivityMap, profiles map[string][]nostr.Event, thresholds Thresholds, listener ProgressListener) *Classification {
	listener = listenerOrNop(listener)
	now := c.clock.Now().Unix()

	pubkeys := make([]string, 0, len(activity))
	for pk := range activity {
		pubkeys = append(pubkeys, pk)
	}
	sort.Strings(pubkeys)

	out := NewClassification()
	zombies := 0
	for i, pk := range pubkeys {
		var history []nostr.Event
		if profiles != nil {
			history = profiles[pk]
		}
		r := c.classify(pk, activity[pk], profiles != nil, history, thresholds, now)
		out.Add(r)

		if r.Category != CategoryActive {
			zombies++
			listener.OnProgress(Progress{Stage: StageClassify, Processed: i + 1, Total: len(pubkeys), ZombiesFound: zombies})
		}
	}
	listener.OnProgress(Progress{Stage: StageClassify, Processed: len(pubkeys), Total: len(pubkeys), ZombiesFound: zombies})
	return out
}

// ClassifyOne classifies a single account at the clock's current time.
func (c *Classifier) ClassifyOne(pubkey string, events []Activity, history []nostr.Event, thresholds Thresholds) Result {
	return c.classify(pubkey, events, history != nil, history, thresholds, c.clock.Now().Unix())
}

func (c *Classifier) classify(pubkey string, events []Activity, withProfiles bool, history []nostr.Event, t Thresholds, now int64) Result {
	r := Result{Pubkey: pubkey, EventCount: len(events)}

	var newest *Activity
	for i := range events {
		if newest == nil || events[i].CreatedAt > newest.CreatedAt {
			newest = &events[i]
		}
	}
	if newest != nil {
		last := newest.CreatedAt
		days := float64(now-last) / secondsPerDay
		r.LastActivity = &last
		r.DaysSinceActivity = &days
	}

	profiles := parseProfiles(history)
	r.Confidence = c.confidence(pubkey, events, profiles, now)

	if withProfiles {
		if tl, deleted := timelineOf(profiles); deleted && !postedAfterDeletion(events, tl, now) {
			r.Category = CategoryBurned
			r.DeletionInfo = &DeletionInfo{
				MarkedDeletedAt:             tl.markedDeletedAt,
				DeletionAge:                 now - tl.markedDeletedAt,
				ProfileUpdatesAfterDeletion: tl.updatesAfter,
			}
			return r
		}
	}

	if r.DaysSinceActivity == nil {
		r.Category = CategoryAncient
		return r
	}
	r.Category = ladder(*r.DaysSinceActivity, t)
	return r
}

// postedAfterDeletion reports a post newer than the first deletion marker
// that is also inside the suspicion window.
func postedAfterDeletion(events []Activity, tl deletionTimeline, now int64) bool {
	post, ok := latestPost(events)
	if !ok || post.CreatedAt <= tl.markedDeletedAt {
		return false
	}
	return now-post.CreatedAt <= SuspicionWindowDays*secondsPerDay
}

// ladder maps days since the last event to a category. Anything below the
// conservative floor is active; with a fresh threshold above the floor, the
// gap between the two is active too.
func ladder(days float64, t Thresholds) Category {
	switch {
	case days < ConservativeFloorDays:
		return CategoryActive
	case days >= float64(t.Ancient):
		return CategoryAncient
	case days >= float64(t.Rotting):
		return CategoryRotting
	case days >= float64(t.Fresh):
		return CategoryFresh
	default:
		return CategoryActive
	}
}

func (c *Classifier) confidence(pubkey string, events []Activity, profiles []parsedProfile, now int64) float64 {
	score := 0.5

	switch n := len(events); {
	case n >= 10:
		score += 0.2
	case n >= 5:
		score += 0.1
	case n == 0:
		score -= 0.1
	}

	if c.lists != nil {
		if _, ok := c.lists.RelayList(pubkey); ok {
			score += 0.2
		} else {
			score -= 0.2
		}
	}

	if len(profiles) > 0 {
		p := profiles[0].content
		if p.name != "" || p.displayName != "" {
			score += 0.1
		}
		if p.about != "" || p.picture != "" {
			score += 0.05
		}
	}

	if len(events) > 0 {
		newest, oldest := events[0].CreatedAt, events[0].CreatedAt
		for _, ev := range events {
			newest = max(newest, ev.CreatedAt)
			oldest = min(oldest, ev.CreatedAt)
		}
		if newest-oldest > 30*secondsPerDay {
			score += 0.1
		}
		if now-oldest < 30*secondsPerDay {
			score -= 0.1
		}
	}

	score = math.Round(score*100) / 100
	return math.Min(0.9, math.Max(0.1, score))
}

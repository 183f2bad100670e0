package zombie

import (
	"pvz/internal/nostr"
	"pvz/internal/structures"
	"time"
)

// Pass names.
const (
	PassBroad           = "broad"
	PassPreferredRelays = "preferred-relays"
	PassExhaustive      = "exhaustive"
	PassExhaustiveNotes = "exhaustive-notes"
)

// Pass is one wave of relay queries over the accounts that are still empty.
type Pass struct {
	Name      string
	BatchSize int
	Timeout   time.Duration
	Delay     time.Duration

	// Filter builds the REQ filter for one batch of authors.
	Filter func(authors []string, now time.Time) nostr.Filter

	// Relays picks the relays for one account. ok=false leaves the account
	// out of the pass. A nil Relays queries the default relays.
	Relays func(pubkey string) (relays []string, ok bool)
}

type PassStats struct {
	Name     string `json:"name"`
	Queried  int    `json:"queried"`
	Resolved int    `json:"resolved"`
	Batches  int    `json:"batches"`
	Timeouts int    `json:"timeouts"`
	Failures int    `json:"failures"`
}

// Settings tunes the passes. Zero fields take the defaults below.
type Settings struct {
	BatchSize         int
	BatchDelay        time.Duration
	BatchTimeout      time.Duration
	WindowDays        int
	EventLimit        int
	RetryWindowDays   int
	RetryTimeout      time.Duration
	ExhaustiveLimit   int
	ExhaustiveTimeout time.Duration
	NotesBatchSize    int
	NotesLimit        int
}

func DefaultSettings() Settings {
	return Settings{
		BatchSize:         25,
		BatchDelay:        300 * time.Millisecond,
		BatchTimeout:      15 * time.Second,
		WindowDays:        120,
		EventLimit:        10,
		RetryWindowDays:   180,
		RetryTimeout:      5 * time.Second,
		ExhaustiveLimit:   500,
		ExhaustiveTimeout: 15 * time.Second,
		NotesBatchSize:    3,
		NotesLimit:        1000,
	}
}

func SettingsFromConfig(conf *structures.ScanConfig) Settings {
	s := DefaultSettings()
	setInt(&s.BatchSize, conf.BatchSize)
	setDuration(&s.BatchDelay, conf.BatchDelay)
	setDuration(&s.BatchTimeout, conf.BatchTimeout)
	setInt(&s.WindowDays, conf.WindowDays)
	setInt(&s.EventLimit, conf.EventLimit)
	setInt(&s.RetryWindowDays, conf.RetryWindowDays)
	setDuration(&s.RetryTimeout, conf.RetryTimeout)
	setInt(&s.ExhaustiveLimit, conf.ExhaustiveLimit)
	setDuration(&s.ExhaustiveTimeout, conf.ExhaustiveTimeout)
	setInt(&s.NotesBatchSize, conf.NotesBatchSize)
	setInt(&s.NotesLimit, conf.NotesLimit)
	return s
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func since(now time.Time, days int) *int64 {
	ts := now.Unix() - int64(days)*secondsPerDay
	return &ts
}

// BroadPass scans the default relays in batches over the recent window.
func BroadPass(s Settings, limit int) Pass {
	return Pass{
		Name:      PassBroad,
		BatchSize: s.BatchSize,
		Timeout:   s.BatchTimeout,
		Delay:     s.BatchDelay,
		Filter: func(authors []string, now time.Time) nostr.Filter {
			return nostr.Filter{
				Kinds:   ActivityKinds,
				Authors: authors,
				Since:   since(now, s.WindowDays),
				Limit:   len(authors) * limit,
			}
		},
	}
}

// PreferredRelaysPass queries each account on its own NIP-65 write relays.
// Accounts without a known relay list are skipped.
func PreferredRelaysPass(s Settings, limit int, lists RelayListSource) Pass {
	return Pass{
		Name:      PassPreferredRelays,
		BatchSize: 1,
		Timeout:   s.RetryTimeout,
		Filter: func(authors []string, now time.Time) nostr.Filter {
			return nostr.Filter{
				Kinds:   ActivityKinds,
				Authors: authors,
				Since:   since(now, s.RetryWindowDays),
				Limit:   limit,
			}
		},
		Relays: func(pubkey string) ([]string, bool) {
			if lists == nil {
				return nil, false
			}
			rl, ok := lists.RelayList(pubkey)
			if !ok || len(rl.Write) == 0 {
				return nil, false
			}
			return rl.Write, true
		},
	}
}

// ExhaustivePasses search all of history: first every known kind one account
// at a time, then text notes only in small batches.
func ExhaustivePasses(s Settings, defaults []string, lists RelayListSource) []Pass {
	relays := func(pubkey string) ([]string, bool) {
		out := append([]string(nil), defaults...)
		if lists != nil {
			if rl, ok := lists.RelayList(pubkey); ok {
				out = append(out, rl.Write...)
			}
		}
		return out, true
	}

	return []Pass{
		{
			Name:      PassExhaustive,
			BatchSize: 1,
			Timeout:   s.ExhaustiveTimeout,
			Filter: func(authors []string, _ time.Time) nostr.Filter {
				return nostr.Filter{
					Kinds:   ExhaustiveKinds,
					Authors: authors,
					Limit:   s.ExhaustiveLimit,
				}
			},
			Relays: relays,
		},
		{
			Name:      PassExhaustiveNotes,
			BatchSize: s.NotesBatchSize,
			Timeout:   s.ExhaustiveTimeout,
			Filter: func(authors []string, _ time.Time) nostr.Filter {
				return nostr.Filter{
					Kinds:   []int{nostr.KindTextNote},
					Authors: authors,
					Limit:   s.NotesLimit,
				}
			},
			Relays: relays,
		},
	}
}

// Package nostr implements the small part of NIP-01 the scanner needs:
// events, filters and read-only subscriptions against relays.
package nostr

import (
	"errors"
	"sort"
)

const (
	KindProfile        = 0
	KindTextNote       = 1
	KindRecommendRelay = 2
	KindContacts       = 3
	KindEncryptedDM    = 4
	KindDeletion       = 5
	KindRepost         = 6
	KindReaction       = 7
	KindBadgeAward     = 8
	KindSealedDM       = 14
	KindGenericRepost  = 16
	KindChannelMessage = 42
	KindFileMetadata   = 1063
	KindComment        = 1111
	KindZapRequest     = 9734
	KindZap            = 9735
	KindHighlight      = 9802
	KindMuteList       = 10000
	KindPinList        = 10001
	KindRelayList      = 10002
	KindFollowSets     = 30000
	KindLongForm       = 30023
	KindLongFormDraft  = 30024
	KindLiveEvent      = 30311
)

var ErrInvalidPubkey = errors.New("invalid pubkey")

type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Filter is a NIP-01 REQ filter.
type Filter struct {
	IDs     []string `json:"ids,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Since   *int64   `json:"since,omitempty"`
	Until   *int64   `json:"until,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// Matches reports whether ev satisfies the filter. Relays are not trusted to
// honour filters exactly.
func (f Filter) Matches(ev Event) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, ev.ID) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, ev.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !contains(f.Authors, ev.PubKey) {
		return false
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}
	return true
}

// ValidPubkey reports whether s is a 64 char lowercase hex public key.
func ValidPubkey(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// SortNewestFirst orders events by created_at descending, ties broken by id.
func SortNewestFirst(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})
}

// TagValues returns the first value of every tag named name.
func (e Event) TagValues(name string) []string {
	var out []string
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			out = append(out, tag[1])
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}

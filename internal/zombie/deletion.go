package zombie

import (
	"pvz/internal/nostr"
	"sort"

	json "github.com/goccy/go-json"
)

type profileContent struct {
	deleted     bool
	name        string
	displayName string
	about       string
	picture     string
}

// parseProfile decodes kind 0 content. Only a literal boolean true counts as
// deleted.
func parseProfile(content string) (profileContent, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return profileContent{}, false
	}
	str := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}
	deleted, _ := raw["deleted"].(bool)
	return profileContent{
		deleted:     deleted,
		name:        str("name"),
		displayName: str("display_name"),
		about:       str("about"),
		picture:     str("picture"),
	}, true
}

type parsedProfile struct {
	createdAt int64
	content   profileContent
}

// parseProfiles decodes the profile history newest first, skipping events
// whose content is not valid JSON.
func parseProfiles(events []nostr.Event) []parsedProfile {
	out := make([]parsedProfile, 0, len(events))
	for _, ev := range events {
		if ev.Kind != nostr.KindProfile {
			continue
		}
		content, ok := parseProfile(ev.Content)
		if !ok {
			continue
		}
		out = append(out, parsedProfile{createdAt: ev.CreatedAt, content: content})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].createdAt > out[j].createdAt })
	return out
}

type deletionTimeline struct {
	markedDeletedAt int64
	updatesAfter    int
}

// timelineOf reports whether the latest profile is marked deleted and, if so,
// when the account was first marked deleted and how many profile updates
// followed that first marker.
func timelineOf(profiles []parsedProfile) (deletionTimeline, bool) {
	if len(profiles) == 0 || !profiles[0].content.deleted {
		return deletionTimeline{}, false
	}

	first := profiles[0].createdAt
	for _, p := range profiles {
		if p.content.deleted && p.createdAt < first {
			first = p.createdAt
		}
	}

	updates := 0
	for _, p := range profiles {
		if p.createdAt > first {
			updates++
		}
	}
	return deletionTimeline{markedDeletedAt: first, updatesAfter: updates}, true
}

// latestPost is the newest non profile event.
func latestPost(events []Activity) (Activity, bool) {
	var best Activity
	found := false
	for _, ev := range events {
		if ev.Kind == nostr.KindProfile {
			continue
		}
		if !found || ev.CreatedAt > best.CreatedAt {
			best = ev
			found = true
		}
	}
	return best, found
}

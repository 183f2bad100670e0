package nostr

import "strings"

// RelayList is an account's NIP-65 relay preference.
type RelayList struct {
	Read  []string `json:"read"`
	Write []string `json:"write"`
}

// ParseRelayList reads the "r" tags of a kind 10002 event. A tag without a
// marker means the relay is used for both reading and writing.
func ParseRelayList(ev Event) *RelayList {
	rl := &RelayList{}
	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[0] != "r" {
			continue
		}
		url := NormalizeURL(tag[1])
		if url == "" {
			continue
		}
		marker := ""
		if len(tag) >= 3 {
			marker = tag[2]
		}
		switch marker {
		case "read":
			rl.Read = appendUnique(rl.Read, url)
		case "write":
			rl.Write = appendUnique(rl.Write, url)
		default:
			rl.Read = appendUnique(rl.Read, url)
			rl.Write = appendUnique(rl.Write, url)
		}
	}
	return rl
}

// NormalizeURL lowercases the scheme and host part and strips a trailing
// slash. Non websocket urls yield "".
func NormalizeURL(url string) string {
	url = strings.TrimSpace(url)
	lower := strings.ToLower(url)
	if !strings.HasPrefix(lower, "wss://") && !strings.HasPrefix(lower, "ws://") {
		return ""
	}
	hostStart := strings.Index(lower, "://") + 3
	if hostStart >= len(url) {
		return ""
	}
	if i := strings.Index(url[hostStart:], "/"); i >= 0 {
		split := hostStart + i
		url = lower[:split] + url[split:]
	} else {
		url = lower
	}
	return strings.TrimRight(url, "/")
}

func appendUnique(list []string, s string) []string {
	if contains(list, s) {
		return list
	}
	return append(list, s)
}

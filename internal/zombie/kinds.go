package zombie

import "pvz/internal/nostr"

// ActivityKinds are the event kinds that count as a sign of life in the
// broad and preferred relay passes.
var ActivityKinds = []int{
	nostr.KindProfile,
	nostr.KindTextNote,
	nostr.KindContacts,
	nostr.KindEncryptedDM,
	nostr.KindDeletion,
	nostr.KindRepost,
	nostr.KindReaction,
	nostr.KindSealedDM,
	nostr.KindGenericRepost,
	nostr.KindZapRequest,
	nostr.KindZap,
	nostr.KindRelayList,
	nostr.KindLongForm,
	nostr.KindLiveEvent,
}

// ExhaustiveKinds is the superset used when an account is still empty after
// the cheaper passes.
var ExhaustiveKinds = append(append([]int(nil), ActivityKinds...),
	nostr.KindRecommendRelay,
	nostr.KindBadgeAward,
	nostr.KindChannelMessage,
	nostr.KindFileMetadata,
	nostr.KindComment,
	nostr.KindHighlight,
	nostr.KindMuteList,
	nostr.KindPinList,
	nostr.KindFollowSets,
	nostr.KindLongFormDraft,
)

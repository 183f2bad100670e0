package zombie

// Stage names reported through ProgressListener.
const (
	StageClassify = "classify"
)

// Progress is one progress update. During the collection passes
// ZombiesFound counts the scanned accounts that still have no event at all;
// it only shrinks from one pass to the next. During classification it counts
// the accounts classified outside active so far.
type Progress struct {
	Stage        string `json:"stage"`
	Processed    int    `json:"processed"`
	Total        int    `json:"total"`
	ZombiesFound int    `json:"zombiesFound"`
}

// ProgressListener observes a running scan. It must not block for long:
// it is called synchronously at batch boundaries.
type ProgressListener interface {
	OnProgress(p Progress)
}

type ProgressFunc func(p Progress)

func (f ProgressFunc) OnProgress(p Progress) { f(p) }

// ChannelProgress forwards progress to a channel, dropping updates when the
// channel is full.
type ChannelProgress chan<- Progress

func (c ChannelProgress) OnProgress(p Progress) {
	select {
	case c <- p:
	default:
	}
}

type nopProgress struct{}

func (nopProgress) OnProgress(Progress) {}

// NopProgress discards progress updates.
var NopProgress ProgressListener = nopProgress{}

func listenerOrNop(l ProgressListener) ProgressListener {
	if l == nil {
		return NopProgress
	}
	return l
}

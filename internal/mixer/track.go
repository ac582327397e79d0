package mixer

// TrackID identifies a track for the lifetime of its mixer.
type TrackID uint64

type track struct {
	id         TrackID
	name       string
	samples    []int16
	pos        int
	factor     float64
	started    bool
	onStart    func()
	onComplete func()
	done       chan struct{}
}

func (t *track) remaining() int { return len(t.samples) - t.pos }

func (t *track) finished() bool { return t.pos >= len(t.samples) }

// TrackOption customises a track at enqueue time.
type TrackOption func(*track)

func WithName(name string) TrackOption {
	return func(t *track) { t.name = name }
}

// OnStart runs once, the first time the track is mixed from position 0.
func OnStart(fn func()) TrackOption {
	return func(t *track) { t.onStart = fn }
}

// OnComplete runs once when the track plays to its end or is skipped. It
// does not run when the track is cleared.
func OnComplete(fn func()) TrackOption {
	return func(t *track) { t.onComplete = fn }
}

// Handle is the caller's view of an enqueued track.
type Handle struct {
	id   TrackID
	name string
	done <-chan struct{}
}

func (h Handle) ID() TrackID { return h.id }

func (h Handle) Name() string { return h.name }

// Done is closed when the track leaves the mixer for any reason.
func (h Handle) Done() <-chan struct{} { return h.done }

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giledward/wallmusic/internal/media"
	"github.com/giledward/wallmusic/internal/util"
)

const (
	// DefaultPollInterval is used when no interval is configured.
	DefaultPollInterval = time.Second
	// MinPollInterval is the floor applied to configured intervals.
	MinPollInterval = 200 * time.Millisecond
)

// ClampInterval enforces the minimum polling interval.
func ClampInterval(d time.Duration) time.Duration {
	if d < MinPollInterval {
		return MinPollInterval
	}
	return d
}

// Subscriber receives the new track, or nil when nothing is playing.
type Subscriber func(ctx context.Context, track *media.Track) error

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	*time.Ticker
}

func (t realTicker) C() <-chan time.Time {
	return t.Ticker.C
}

// Options tunes a Watcher.
type Options struct {
	Interval time.Duration
	Now      func() time.Time
}

// Watcher detects the current track and notifies subscribers once per
// distinct playback state.
type Watcher struct {
	source   Source
	logger   *util.Logger
	interval time.Duration
	now      func() time.Time

	subMu       sync.Mutex
	subscribers []Subscriber

	// detectMu serialises detection; lastIdentity is only touched under it.
	detectMu     sync.Mutex
	lastIdentity media.Identity
	lastTrack    *media.Track

	wake           chan struct{}
	pendingRefresh atomic.Bool

	regMu sync.Mutex
	regs  []Registration

	stopOnce sync.Once
	done     chan struct{}

	tickerFactory func(time.Duration) ticker
}

// NewWatcher creates a watcher polling source.
func NewWatcher(source Source, logger *util.Logger, opts Options) *Watcher {
	interval := opts.Interval
	if interval == 0 {
		interval = DefaultPollInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Watcher{
		source:   source,
		logger:   logger,
		interval: ClampInterval(interval),
		now:      now,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		tickerFactory: func(d time.Duration) ticker {
			return realTicker{time.NewTicker(d)}
		},
	}
}

// Interval returns the effective polling interval.
func (w *Watcher) Interval() time.Duration {
	return w.interval
}

// Subscribe registers fn; subscribers run sequentially in registration order.
func (w *Watcher) Subscribe(fn Subscriber) {
	w.subMu.Lock()
	w.subscribers = append(w.subscribers, fn)
	w.subMu.Unlock()
}

// Start connects the source, registers push handlers when the source supports
// them and performs the initial detection pass.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.source.Connect(ctx); err != nil {
		return fmt.Errorf("connect media session: %w", err)
	}
	if notifier, ok := w.source.(Notifier); ok {
		for _, kind := range []EventKind{EventSessionChanged, EventMediaPropertiesChanged, EventPlaybackInfoChanged} {
			kind := kind
			reg, err := notifier.Register(kind, func() { w.enqueue(kind) })
			if err != nil {
				w.logger.Warnf("register %s handler: %v; relying on polling", kind, err)
				continue
			}
			w.regMu.Lock()
			w.regs = append(w.regs, reg)
			w.regMu.Unlock()
		}
	} else {
		w.logger.Debugf("media source has no push events; polling every %s", w.interval)
	}
	if err := w.source.RefreshSession(ctx); err != nil {
		w.logger.Warnf("select media session: %v", err)
	}
	if err := w.PollOnce(ctx); err != nil {
		w.logger.Warnf("initial detection failed: %v", err)
	}
	return nil
}

// enqueue runs on the source goroutine; it only records the request and wakes Run.
func (w *Watcher) enqueue(kind EventKind) {
	if kind == EventSessionChanged {
		w.pendingRefresh.Store(true)
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// RequestRefresh asks the run loop to re-acquire the session and poll.
func (w *Watcher) RequestRefresh() {
	w.enqueue(EventSessionChanged)
}

// Run drives detection until Stop is called or ctx is cancelled. Timer ticks
// and push events both end up in PollOnce.
func (w *Watcher) Run(ctx context.Context) error {
	tick := w.tickerFactory(w.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case <-tick.C():
			if err := w.PollOnce(ctx); err != nil {
				w.logger.Debugf("poll failed: %v", err)
			}
		case <-w.wake:
			if w.pendingRefresh.Swap(false) {
				if err := w.source.RefreshSession(ctx); err != nil {
					w.logger.Warnf("refresh media session: %v", err)
				}
			}
			if err := w.PollOnce(ctx); err != nil {
				w.logger.Debugf("event-triggered poll failed: %v", err)
			}
		}
	}
}

// PollOnce reads the current session and notifies subscribers if the track
// identity changed since the last emission. It is safe for concurrent use.
func (w *Watcher) PollOnce(ctx context.Context) error {
	w.detectMu.Lock()
	defer w.detectMu.Unlock()

	props, ok, err := w.source.Current(ctx)
	if err != nil {
		w.logger.Warnf("read media session: %v", err)
		return err
	}
	var track *media.Track
	if ok {
		track = media.NewTrack(props, w.now())
	}
	identity := media.IdentityOf(track)
	if identity == w.lastIdentity {
		w.logger.Tracef("track unchanged: %s", track)
		return nil
	}
	w.lastIdentity = identity
	w.lastTrack = track
	w.logger.Debugf("track changed: %s (playing=%t)", track, track != nil && track.Playing)
	w.emit(ctx, track)
	return nil
}

// Current returns the most recently emitted track.
func (w *Watcher) Current() *media.Track {
	w.detectMu.Lock()
	defer w.detectMu.Unlock()
	return media.Clone(w.lastTrack)
}

// Replay re-delivers the last emitted track, for example after the
// configuration behind the subscribers changed. Before the first emission it
// delivers "no media".
func (w *Watcher) Replay(ctx context.Context) {
	w.detectMu.Lock()
	defer w.detectMu.Unlock()
	w.emit(ctx, w.lastTrack)
}

func (w *Watcher) emit(ctx context.Context, track *media.Track) {
	w.subMu.Lock()
	subs := append([]Subscriber(nil), w.subscribers...)
	w.subMu.Unlock()
	for i, sub := range subs {
		if err := invoke(ctx, sub, track); err != nil {
			w.logger.Errorf("track change subscriber #%d failed for %s: %v", i+1, track, err)
		}
	}
}

func invoke(ctx context.Context, sub Subscriber, track *media.Track) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sub(ctx, media.Clone(track))
}

// Stop unregisters push handlers, halts Run and closes the source. It is idempotent.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.regMu.Lock()
		regs := w.regs
		w.regs = nil
		w.regMu.Unlock()
		var errs []error
		if notifier, ok := w.source.(Notifier); ok {
			for _, reg := range regs {
				if uerr := notifier.Unregister(reg); uerr != nil {
					errs = append(errs, fmt.Errorf("unregister %s: %w", reg.Kind, uerr))
				}
			}
		}
		if cerr := w.source.Close(); cerr != nil {
			errs = append(errs, fmt.Errorf("close media session: %w", cerr))
		}
		err = errors.Join(errs...)
	})
	return err
}

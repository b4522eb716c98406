package chamber

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/karaktaka/pandaproxy/internal/chamberproto"
	"github.com/karaktaka/pandaproxy/internal/netutil"
)

// subscriberCloseDrain bounds how long a dropped subscriber connection is
// drained before the final Close.
const subscriberCloseDrain = 500 * time.Millisecond

type eventKind int

const (
	eventAdd eventKind = iota
	eventRemove
	eventDrainAll
)

type subscriberEvent struct {
	kind eventKind
	sub  *subscriber
}

// publisher owns the subscriber set exclusively; it is the only goroutine
// that reads or mutates it. Accept goroutines post add events; subscriber
// writer goroutines post remove events when they exit; the upstream
// session manager posts a drain-all event when the link fails. Each send
// blocks until the publisher takes it or has stopped, so a shutting-down
// publisher never stalls a caller.
type publisher struct {
	logger *slog.Logger

	events chan subscriberEvent
	frames chan frameMsg

	subs map[*subscriber]struct{}

	// firstSubscriber is closed exactly once, the first time the
	// subscriber count transitions from 0 to 1, to lazily kick off the
	// upstream session and avoid dialing the printer with nobody watching.
	firstSubscriber chan struct{}
	armed           bool

	// subCount mirrors len(subs) for lock-free reads from other goroutines
	// (observability's StatsReporter); written only by the owning run
	// goroutine inside handleEvent and drainAll.
	subCount atomic.Int32

	done chan struct{}
}

type frameMsg struct {
	magic   [4]byte
	payload []byte
}

func newPublisher(logger *slog.Logger) *publisher {
	return &publisher{
		logger:          logger,
		events:          make(chan subscriberEvent, 32),
		frames:          make(chan frameMsg, 1),
		subs:            make(map[*subscriber]struct{}),
		firstSubscriber: make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// postAdd registers a new subscriber. Safe to call from any goroutine.
func (p *publisher) postAdd(s *subscriber) {
	select {
	case p.events <- subscriberEvent{kind: eventAdd, sub: s}:
	case <-p.done:
	}
}

// postRemove asks the publisher to drop a subscriber. Best-effort: if the
// publisher has already stopped, the subscriber's writer goroutine has
// already exited on its own and there is nothing left to clean up.
func (p *publisher) postRemove(s *subscriber) {
	select {
	case p.events <- subscriberEvent{kind: eventRemove, sub: s}:
	case <-p.done:
	}
}

// requestDrainAll asks the publisher to disconnect every current
// subscriber without stopping its event loop, so the next upstream
// session starts with a clean subscriber set. Best-effort, like
// postRemove: if the publisher has already stopped there is nothing left
// to drain.
func (p *publisher) requestDrainAll() {
	select {
	case p.events <- subscriberEvent{kind: eventDrainAll}:
	case <-p.done:
	}
}

// publishFrame hands a decoded upstream frame to the publisher. Blocks
// briefly if the publisher is busy; the frames channel has depth 1 so a
// stalled publisher cannot build unbounded backlog from the upstream
// reader.
func (p *publisher) publishFrame(magic [4]byte, payload []byte) {
	select {
	case p.frames <- frameMsg{magic: magic, payload: payload}:
	case <-p.done:
	}
}

// run is the publisher's event loop. It exits when stopCh is closed,
// after closing and waiting out every subscriber.
func (p *publisher) run(stopCh <-chan struct{}) {
	defer close(p.done)

	for {
		select {
		case ev := <-p.events:
			p.handleEvent(ev)

		case fr := <-p.frames:
			p.broadcast(fr)

		case <-stopCh:
			p.drainAll()
			return
		}
	}
}

func (p *publisher) handleEvent(ev subscriberEvent) {
	switch ev.kind {
	case eventAdd:
		p.subs[ev.sub] = struct{}{}
		p.subCount.Store(int32(len(p.subs)))
		p.logger.Debug("subscriber attached", "addr", ev.sub.addr, "count", len(p.subs))
		if len(p.subs) == 1 && !p.armed {
			p.armed = true
			close(p.firstSubscriber)
		}
	case eventRemove:
		if _, ok := p.subs[ev.sub]; ok {
			delete(p.subs, ev.sub)
			p.subCount.Store(int32(len(p.subs)))
			p.logger.Debug("subscriber detached", "addr", ev.sub.addr, "count", len(p.subs))
		}
	case eventDrainAll:
		if len(p.subs) > 0 {
			p.logger.Debug("draining all subscribers", "count", len(p.subs))
		}
		p.drainAll()
	}
}

func (p *publisher) broadcast(fr frameMsg) {
	encoded := chamberproto.EncodeFrame(fr.magic, fr.payload)
	for s := range p.subs {
		s.enqueue(encoded)
	}
}

func (p *publisher) drainAll() {
	for s := range p.subs {
		s.stop()
		if err := netutil.GracefulClose(s.conn, subscriberCloseDrain); err != nil {
			p.logger.Debug("subscriber close error", "addr", s.addr, "error", err)
		}
	}
	p.subs = make(map[*subscriber]struct{})
	p.subCount.Store(0)
}


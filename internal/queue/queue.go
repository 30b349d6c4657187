// Package queue implements TranscriptionQueue: an in-order,
// session-generation-guarded result stream (spec §4.6).
package queue

import (
	"context"
	"sync"
)

// Ticket identifies one slot in the delivery order. Tickets are totally
// ordered by (Session, Seq) and must be returned exactly once via either
// SubmitResult or MarkFailed.
type Ticket struct {
	Session uint64
	Seq     uint64
}

// Less reports whether t sorts before o under (session, seq) order.
func (t Ticket) Less(o Ticket) bool {
	if t.Session != o.Session {
		return t.Session < o.Session
	}
	return t.Seq < o.Seq
}

// Queue is the ordered, session-guarded delivery stream described in
// spec §4.6.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	sessionGeneration  uint64
	nextSeq            uint64
	emittedUpTo        uint64
	pending            map[uint64]*string // nil value => failed
	signaledCompletion bool
	sessionStarted     bool

	// buffered text for the stable stream handle; persists across reset()
	// per spec ("textStream() ... never replaces the live consumer's
	// continuation").
	buffer       []string
	streamClosed bool
	stream       *Stream

	completionWaiters int
}

// New creates an empty Queue at session generation 0.
func New() *Queue {
	q := &Queue{pending: make(map[uint64]*string)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// CurrentSessionGeneration returns the active session generation.
func (q *Queue) CurrentSessionGeneration() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sessionGeneration
}

// NextSequence issues the next ticket for the current session.
func (q *Queue) NextSequence() Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sessionStarted = true
	t := Ticket{Session: q.sessionGeneration, Seq: q.nextSeq}
	q.nextSeq++
	return t
}

// SubmitResult resolves ticket with text. Stale-session tickets are
// silently discarded; resolving an already-emitted seq is an idempotent
// no-op.
func (q *Queue) SubmitResult(ticket Ticket, text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resolve(ticket, &text)
}

// MarkFailed resolves ticket as failed: the advance loop skips it as if it
// had emitted nothing.
func (q *Queue) MarkFailed(ticket Ticket) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resolve(ticket, nil)
}

func (q *Queue) resolve(ticket Ticket, text *string) {
	if ticket.Session != q.sessionGeneration {
		return // stale cross-session result
	}
	if ticket.Seq < q.emittedUpTo {
		return // already flushed
	}
	if _, exists := q.pending[ticket.Seq]; exists {
		return // idempotent: already resolved, not yet flushed
	}

	q.pending[ticket.Seq] = text
	q.advance()
	q.cond.Broadcast()
}

// advance flushes consecutive resolved seqs starting at emittedUpTo,
// appending non-empty texts to the stable stream buffer. Must be called
// with q.mu held.
func (q *Queue) advance() {
	for {
		val, ok := q.pending[q.emittedUpTo]
		if !ok {
			break
		}
		delete(q.pending, q.emittedUpTo)
		if val != nil && *val != "" {
			q.buffer = append(q.buffer, *val)
		}
		q.emittedUpTo++
	}
	q.maybeSignalCompletion()
}

func (q *Queue) maybeSignalCompletion() {
	if !q.signaledCompletion && q.sessionStarted && q.emittedUpTo == q.nextSeq {
		q.signaledCompletion = true
	}
}

// GetPendingCount returns the number of issued tickets for the current
// session that have not yet been resolved (submitted or failed).
func (q *Queue) GetPendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	resolvedUnflushed := len(q.pending)
	outstanding := int(q.nextSeq-q.emittedUpTo) - resolvedUnflushed
	if outstanding < 0 {
		outstanding = 0
	}
	return outstanding
}

// Reset increments the session generation, drops all pending state, and
// zeroes nextSeq/emittedUpTo. It never touches the stream buffer (a live
// consumer keeps its continuation) nor any other injected collaborator.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sessionGeneration++
	q.nextSeq = 0
	q.emittedUpTo = 0
	q.pending = make(map[uint64]*string)
	q.signaledCompletion = false
	q.sessionStarted = false
	q.cond.Broadcast()
}

// TextStream returns a stable handle to the lazy sequence of flushed
// texts. Repeated calls return the same handle.
func (q *Queue) TextStream() *Stream {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stream == nil {
		q.stream = &Stream{q: q}
	}
	return q.stream
}

// FinishStream ends the stream: it resumes any completion waiter and
// causes Next to return ok=false once the buffer drains.
func (q *Queue) FinishStream() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.streamClosed = true
	q.cond.Broadcast()
}

// WaitForCompletion blocks until the queue's completion signal is set,
// FinishStream is called, or ctx is done. It does not record which session
// was active when the call started.
func (q *Queue) WaitForCompletion(ctx context.Context) error {
	done := make(chan struct{})
	stop := make(chan struct{})
	go func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		for !q.signaledCompletion && !q.streamClosed {
			waitCond(q.cond, stop)
			select {
			case <-stop:
				return
			default:
			}
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		close(stop)
		q.cond.Broadcast() // wake the waiting goroutine so it can observe stop
		return ctx.Err()
	}
}

// waitCond wraps cond.Wait with an escape hatch: it still requires the
// caller to re-check the predicate, but lets WaitForCompletion's goroutine
// notice cancellation promptly via a broadcast rather than blocking
// forever on a cond nobody will signal again.
func waitCond(cond *sync.Cond, stop <-chan struct{}) {
	select {
	case <-stop:
		return
	default:
	}
	cond.Wait()
}

// Stream is the stable handle returned by Queue.TextStream.
type Stream struct {
	q *Queue
}

// Next blocks until a text is available, the stream finishes, or ctx is
// done. ok is false once the stream has finished and the buffer is
// drained.
func (s *Stream) Next(ctx context.Context) (text string, ok bool, err error) {
	q := s.q
	type result struct {
		text string
		ok   bool
	}
	resCh := make(chan result, 1)
	stop := make(chan struct{})

	go func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		for {
			if len(q.buffer) > 0 {
				v := q.buffer[0]
				q.buffer = q.buffer[1:]
				resCh <- result{text: v, ok: true}
				return
			}
			if q.streamClosed {
				resCh <- result{ok: false}
				return
			}
			select {
			case <-stop:
				return
			default:
			}
			q.cond.Wait()
		}
	}()

	select {
	case r := <-resCh:
		return r.text, r.ok, nil
	case <-ctx.Done():
		close(stop)
		q.cond.Broadcast()
		return "", false, ctx.Err()
	}
}

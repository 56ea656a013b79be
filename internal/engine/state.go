// Package engine is the C7 transaction state machine: it drives one
// operation per context from URL assembly through DNS resolution, connect,
// HTTP send/receive, to a terminal outcome.
//
// Grounded on the teacher's internal/single/core/client_lifecycle.go and
// internal/shared/connection.go for the mutex-guarded lifecycle shape and
// structured zerolog event style, and on franz-go's broker connection
// bookkeeping (dial-once, reuse-on-success, tear-down-on-any-error) for the
// transport-reuse policy spec §4.6 calls for. The publish status/reason
// extraction and tie-break rule are ported from
// original_source/core/pubnub_ccore_pubsub.c.
package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/adred-codev/pubnub-go/internal/outcome"
)

// State names one point in the per-transaction FSM (spec §4.6).
type State int

const (
	StateIdle State = iota
	StateURLBuilt
	StateResolving
	StateConnecting
	StateTLSHandshake
	StateSendingRequest
	StateRecvStatus
	StateRecvHeaders
	StateRecvBody
	StateParsing
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateURLBuilt:
		return "url_built"
	case StateResolving:
		return "resolving"
	case StateConnecting:
		return "connecting"
	case StateTLSHandshake:
		return "tls_handshake"
	case StateSendingRequest:
		return "sending_request"
	case StateRecvStatus:
		return "recv_status"
	case StateRecvHeaders:
		return "recv_headers"
	case StateRecvBody:
		return "recv_body"
	case StateParsing:
		return "parsing"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Kind names the transaction occupying the slot (invariant I1).
type Kind int

const (
	KindNone Kind = iota
	KindPublish
	KindSubscribe
	KindTime
	KindHistory
	KindMessageCounts
	KindChannelGroupAdd
	KindChannelGroupRemove
	KindChannelGroupRemoveGroup
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindPublish:
		return "publish"
	case KindSubscribe:
		return "subscribe"
	case KindTime:
		return "time"
	case KindHistory:
		return "history"
	case KindMessageCounts:
		return "message_counts"
	case KindChannelGroupAdd:
		return "channel_group_add"
	case KindChannelGroupRemove:
		return "channel_group_remove"
	case KindChannelGroupRemoveGroup:
		return "channel_group_remove_group"
	default:
		return "unknown"
	}
}

// NotifyMode selects how a Transaction reports completion (spec §4.6).
type NotifyMode int

const (
	// ModeSync: an operation runs on the calling goroutine and returns once
	// the transaction reaches StateTerminal.
	ModeSync NotifyMode = iota
	// ModeCallback: an operation returns outcome.Started immediately and
	// runs in a goroutine of its own, which invokes the registered callback
	// once it finishes.
	ModeCallback
)

// Result is the terminal outcome of one transaction.
type Result struct {
	Outcome       outcome.Kind
	HTTPCode      int
	PublishCode   int
	PublishReason outcome.PublishReason
	Body          []byte
	// Timetoken is set by subscribe transactions on success; it must be
	// read before the caller reuses or discards the transaction (I3).
	Timetoken string
}

// Transaction drives one request for one Context. A Transaction is not
// reused across requests; the Context allocates a fresh one per operation
// but reuses the underlying *Pool entry.
type Transaction struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state State
	kind  Kind

	cancelRequested bool
	result          Result
	logger          zerolog.Logger
}

// New creates a Transaction in StateIdle for the given Kind.
func New(kind Kind, logger zerolog.Logger) *Transaction {
	t := &Transaction{
		state:  StateIdle,
		kind:   kind,
		logger: logger.With().Str("transaction_kind", kind.String()).Logger(),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// State returns the transaction's current FSM state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// setState transitions the FSM and, on entering StateTerminal, wakes any
// Await waiter. It does not touch the recorded outcome; the override to
// outcome.Cancelled on a pending cancellation happens in finish.
func (t *Transaction) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.logger.Debug().Str("state", s.String()).Msg("transaction state transition")
	if s == StateTerminal {
		t.cond.Broadcast()
	}
	t.mu.Unlock()
}

// Cancel is edge-triggered (spec §4.6): it is a no-op when the transaction
// is idle or already terminal, and otherwise marks cancellation pending and
// cancels ctxCancel, which interrupts whatever blocking syscall (DNS recv,
// TCP connect, HTTP read) is currently in flight.
func (t *Transaction) Cancel(ctxCancel context.CancelFunc) {
	t.mu.Lock()
	state := t.state
	if state == StateIdle || state == StateTerminal {
		t.mu.Unlock()
		return
	}
	t.cancelRequested = true
	t.mu.Unlock()
	if ctxCancel != nil {
		ctxCancel()
	}
}

// finishCancelled reports whether Cancel has been requested; it records
// nothing. deadlineErr checks it before ctx.Err(), so a cancellation
// reports CANCELLED even if the underlying I/O layer surfaced a generic
// "use of closed connection" error instead.
func (t *Transaction) finishCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelRequested
}

// Await blocks until the transaction reaches StateTerminal and returns its
// Result. Used by ModeSync callers and by ModeCallback internals waiting
// for their own goroutine.
func (t *Transaction) Await() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.state != StateTerminal {
		t.cond.Wait()
	}
	return t.result
}

// finish records res and transitions to StateTerminal exactly once, and
// returns the result actually stored — which may differ from res when a
// pending cancellation overrides it to outcome.Cancelled, or from an earlier
// call that already won the race to StateTerminal. Callers that hand res
// straight back to a ModeSync caller must use the returned value, not their
// own res, so that a caller and Await() never disagree about the outcome.
func (t *Transaction) finish(res Result) Result {
	t.mu.Lock()
	if t.state == StateTerminal {
		stored := t.result
		t.mu.Unlock()
		return stored
	}
	if t.cancelRequested && res.Outcome != outcome.Cancelled {
		res.Outcome = outcome.Cancelled
	}
	t.result = res
	t.state = StateTerminal
	t.logger.Info().
		Str("outcome", res.Outcome.String()).
		Int("http_code", res.HTTPCode).
		Msg("transaction finished")
	t.cond.Broadcast()
	t.mu.Unlock()
	return res
}

// timeoutResult is the canonical TIMEOUT result, shared by every step that
// can expire a deadline (spec §4.6 "every blocking wait has a caller-
// specified deadline").
func timeoutResult() Result { return Result{Outcome: outcome.Timeout} }

// deadlineErr classifies a context error into the matching outcome, used by
// every I/O step (resolve, connect, send, recv) so timeouts and
// cancellations are reported uniformly regardless of which step they
// interrupted.
func deadlineErr(ctx context.Context, t *Transaction) (Result, bool) {
	if t.finishCancelled() {
		return Result{Outcome: outcome.Cancelled}, true
	}
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return timeoutResult(), true
	case context.Canceled:
		return Result{Outcome: outcome.Cancelled}, true
	default:
		return Result{}, false
	}
}

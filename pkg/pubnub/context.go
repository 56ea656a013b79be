// Package pubnub is the public façade (C10): it exposes a Context type
// that owns exactly one in-flight transaction at a time and wraps
// internal/engine's FSM in the enforcement spec §4.9 describes (validate
// handle, lock, reject overlap with IN_PROGRESS, run, record outcome,
// unlock).
//
// Grounded on the teacher's internal/single/core/client_lifecycle.go for
// the mutex-guarded lifecycle and sync.Once-guarded teardown idiom, scaled
// down from one Server owning many Clients to one Context owning one
// transaction slot.
package pubnub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adred-codev/pubnub-go/internal/authtoken"
	"github.com/adred-codev/pubnub-go/internal/engine"
	"github.com/adred-codev/pubnub-go/internal/health"
	"github.com/adred-codev/pubnub-go/internal/metrics"
	"github.com/adred-codev/pubnub-go/internal/outcome"
	"github.com/adred-codev/pubnub-go/internal/resolver"
)

// NotifyMode selects synchronous vs callback transaction completion (spec
// §4.6, §5).
type NotifyMode = engine.NotifyMode

const (
	ModeSync     = engine.ModeSync
	ModeCallback = engine.ModeCallback
)

// Options configures a Context at Init time. The library reads no
// environment variables (spec §6); every setting must be supplied here or
// through a later SetXxx call.
type Options struct {
	PublishKey   string
	SubscribeKey string
	AuthKey      string
	UUID         string
	Origin       string // defaults to "pubsub.pubnub.com"
	Scheme       string // "https" or "http"; defaults to "https"
	DNSServer    string // "host:port"; defaults to "1.1.1.1:53"; unused for a literal-IP Origin
	Mode         NotifyMode
	Callback     func(kind engine.Kind, res engine.Result)

	TransactionTimeout time.Duration // per-transaction deadline; defaults to 10s
	SubscribeTimeout   time.Duration // long-poll deadline; defaults to 280s
	MaxURLLen          int           // 0 = unbounded
	GzipMinSize        int           // message size at or above which POST_GZIP is attempted; defaults to 200

	Registry *metrics.Registry // optional; nil disables metrics

	// AdaptivePacing, when non-zero, is the smoothed host CPU percentage
	// above which a ModeCallback subscribe defers issuing its next long-poll
	// rather than piling another goroutine onto an already-saturated host.
	AdaptivePacing float64

	// AuthTokenSecret, when set, lets the caller mint its own grant tokens
	// for this context's subscribe key via MintAuthToken. The engine still
	// treats the resulting token as an opaque "auth" string (spec §4.6).
	AuthTokenSecret string
}

func (o *Options) withDefaults() {
	if o.Origin == "" {
		o.Origin = "pubsub.pubnub.com"
	}
	if o.Scheme == "" {
		o.Scheme = "https"
	}
	if o.UUID == "" {
		o.UUID = uuid.NewString()
	}
	if o.TransactionTimeout <= 0 {
		o.TransactionTimeout = 10 * time.Second
	}
	if o.SubscribeTimeout <= 0 {
		o.SubscribeTimeout = 280 * time.Second
	}
	if o.GzipMinSize <= 0 {
		o.GzipMinSize = 200
	}
}

// Context is one independent client instance (spec §3). It is safe to call
// operations from any goroutine, but only one transaction is ever in
// flight (invariant I1); a concurrent call while one is in progress returns
// outcome.InProgress without disturbing the first.
type Context struct {
	mu   sync.Mutex
	opts Options

	resolver *resolver.Resolver
	pool     *engine.Pool
	logger   zerolog.Logger

	current     *engine.Transaction
	currentKind engine.Kind
	cancelFn    context.CancelFunc

	timetoken string

	rxQueue        []ReceivedMessage
	lastGetChannel string

	lastResult Result

	cpuPacer  *health.CPUPacer
	pacerOnce sync.Once
	authMgr   *authtoken.Manager

	freeOnce sync.Once
	freed    bool
}

// Result is the public outcome of the most recently finished operation.
type Result struct {
	Outcome       outcome.Kind
	HTTPCode      int
	PublishCode   int
	PublishReason outcome.PublishReason
	Body          []byte
	Messages      []ReceivedMessage
	Timetoken     string
}

// ReceivedMessage mirrors engine.ReceivedMessage in the public surface.
type ReceivedMessage struct {
	Channel string
	Payload []byte
}

// Init allocates and configures a new Context (spec §3 "allocate" +
// "init" combined, since this implementation has no separate slab
// allocator to model).
func Init(opts Options, logger zerolog.Logger) (*Context, error) {
	opts.withDefaults()
	if opts.PublishKey == "" && opts.SubscribeKey == "" {
		return nil, errors.New("pubnub: at least one of PublishKey/SubscribeKey is required")
	}

	var res *resolver.Resolver
	if opts.DNSServer != "" {
		res = resolver.New(opts.DNSServer, 5, 10)
	} else {
		res = resolver.New("1.1.1.1:53", 5, 10)
	}

	var pacer *health.CPUPacer
	if opts.AdaptivePacing > 0 {
		pacer = health.NewCPUPacer(opts.AdaptivePacing)
	}
	var authMgr *authtoken.Manager
	if opts.AuthTokenSecret != "" {
		authMgr = authtoken.NewManager(opts.AuthTokenSecret)
	}

	return &Context{
		opts:      opts,
		resolver:  res,
		pool:      engine.NewPool(),
		logger:    logger.With().Str("uuid", opts.UUID).Logger(),
		timetoken: "0",
		cpuPacer:  pacer,
		authMgr:   authMgr,
	}, nil
}

// MintAuthToken issues a signed grant token scoped to channelGrants and
// groupGrants (spec §9 supplement), valid for ttl and optionally restricted
// to authorizedUUID. Requires Options.AuthTokenSecret to have been set at
// Init; the returned string is passed to SetAuthToken like any other auth
// key.
func (c *Context) MintAuthToken(channelGrants, groupGrants []authtoken.ResourceGrant, authorizedUUID string, ttl time.Duration) (string, error) {
	if c.authMgr == nil {
		return "", errors.New("pubnub: Options.AuthTokenSecret not configured")
	}
	return c.authMgr.Grant(channelGrants, groupGrants, authorizedUUID, ttl)
}

// SetAuthToken installs a minted or opaque auth token for subsequent
// operations. The engine treats "auth" as an opaque string regardless of
// its origin (spec §4.6), so this is SetAuth under the name callers who
// mint tokens via MintAuthToken expect.
func (c *Context) SetAuthToken(token string) outcome.Kind {
	return c.SetAuth(token)
}

// ensurePacerRunning lazily starts the background CPU sampler the first
// time a callback-mode operation that honors AdaptivePacing runs; a
// never-started pacer never blocks anything (ShouldPause fails open).
func (c *Context) ensurePacerRunning() {
	if c.cpuPacer == nil {
		return
	}
	c.pacerOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for range ticker.C {
				c.cpuPacer.Sample()
			}
		}()
	})
}

// SetOrigin changes the origin host used by subsequent operations. Illegal
// while a transaction is in flight.
func (c *Context) SetOrigin(origin string) outcome.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return outcome.InProgress
	}
	c.opts.Origin = origin
	return outcome.OK
}

func (c *Context) SetAuth(authKey string) outcome.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return outcome.InProgress
	}
	c.opts.AuthKey = authKey
	return outcome.OK
}

func (c *Context) SetUUID(id string) outcome.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return outcome.InProgress
	}
	c.opts.UUID = id
	return outcome.OK
}

// SetNonBlockingIO toggles between ModeSync and ModeCallback. Illegal while
// a transaction is in flight.
func (c *Context) SetNonBlockingIO(mode NotifyMode, callback func(engine.Kind, engine.Result)) outcome.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return outcome.InProgress
	}
	c.opts.Mode = mode
	c.opts.Callback = callback
	return outcome.OK
}

// LastResult returns the outcome of the most recently finished operation
// (spec §4.9 "last_result").
func (c *Context) LastResult() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult
}

// LastHTTPCode returns the HTTP status code of the most recently finished
// operation, or 0 if none has completed.
func (c *Context) LastHTTPCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult.HTTPCode
}

// LastPublishResult returns the publish-specific sub-result of the most
// recently finished publish operation.
func (c *Context) LastPublishResult() (code int, reason outcome.PublishReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult.PublishCode, c.lastResult.PublishReason
}

// Get pops and returns the payload of the oldest undelivered message (spec
// §4.9 "get"): the only operation besides GetChannel that returns data
// without running a transaction. Returns a null slice once the queue
// Subscribe last filled is drained.
func (c *Context) Get() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.rxQueue) == 0 {
		return nil
	}
	msg := c.rxQueue[0]
	c.rxQueue = c.rxQueue[1:]
	c.lastGetChannel = msg.Channel
	return msg.Payload
}

// GetChannel reports which channel the message most recently returned by
// Get arrived on (spec §4.9 "get_channel"); empty before the first Get.
func (c *Context) GetChannel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastGetChannel
}

// Cancel interrupts the in-flight transaction, if any (edge-triggered, spec
// §4.6). A no-op when idle.
func (c *Context) Cancel() {
	c.mu.Lock()
	txn := c.current
	cancelFn := c.cancelFn
	c.mu.Unlock()
	if txn != nil {
		txn.Cancel(cancelFn)
	}
}

// Free cancels any in-flight transaction, waits for it to reach a terminal
// state, and tears down pooled connections. Safe to call more than once
// (spec §3 "free").
func (c *Context) Free() {
	c.freeOnce.Do(func() {
		c.Cancel()
		c.mu.Lock()
		txn := c.current
		c.mu.Unlock()
		if txn != nil {
			txn.Await()
		}
		c.pool.CloseAll()
		c.mu.Lock()
		c.freed = true
		c.mu.Unlock()
	})
}

// beginTransaction enforces invariant I1 (spec §4.9 steps 1-3): it
// validates the handle, locks, and rejects an overlapping call with
// outcome.InProgress while leaving the in-flight transaction untouched.
// On success it returns the new Transaction and a release func the caller
// must defer-call once the transaction reaches StateTerminal.
func (c *Context) beginTransaction(kind engine.Kind, timeout time.Duration) (*engine.Transaction, context.Context, func(), outcome.Kind) {
	c.mu.Lock()
	if c.freed {
		c.mu.Unlock()
		return nil, nil, nil, outcome.InvalidParameters
	}
	if c.current != nil {
		c.mu.Unlock()
		return nil, nil, nil, outcome.InProgress
	}
	txn := engine.New(kind, c.logger)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	c.current = txn
	c.currentKind = kind
	c.cancelFn = cancel
	c.mu.Unlock()

	release := func() {
		cancel()
		c.mu.Lock()
		c.current = nil
		c.currentKind = engine.KindNone
		c.cancelFn = nil
		c.mu.Unlock()
	}
	return txn, ctx, release, outcome.Started
}

func (c *Context) recordResult(r Result) {
	c.mu.Lock()
	c.lastResult = r
	c.mu.Unlock()
}

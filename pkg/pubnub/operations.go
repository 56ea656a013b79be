package pubnub

import (
	"fmt"
	"time"

	"github.com/adred-codev/pubnub-go/internal/engine"
	"github.com/adred-codev/pubnub-go/internal/history"
	"github.com/adred-codev/pubnub-go/internal/outcome"
	"github.com/adred-codev/pubnub-go/internal/urlenc"
)

// PublishOptions carries per-call publish settings (spec §6).
type PublishOptions struct {
	Store     bool
	Replicate bool
	Meta      string
	CipherKey string
	TTL       int
}

// Publish sends one message to channel. Per invariant I1, a call made while
// another transaction is in flight returns outcome.InProgress immediately.
func (c *Context) Publish(channel string, message []byte, _ PublishOptions) Result {
	txn, ctx, release, started := c.beginTransaction(engine.KindPublish, c.opts.TransactionTimeout)
	if started == outcome.InProgress || started == outcome.InvalidParameters {
		return Result{Outcome: started}
	}
	defer release()

	run := func() Result {
		start := time.Now()
		res := engine.RunPublish(ctx, txn, c.resolver, c.pool, engine.PublishRequest{
			Scheme:       c.opts.Scheme,
			Origin:       c.opts.Origin,
			PublishKey:   c.opts.PublishKey,
			SubscribeKey: c.opts.SubscribeKey,
			Channel:      channel,
			Message:      message,
			Params:       c.baseParams(),
			MaxURLLen:    c.opts.MaxURLLen,
			GzipMinSize:  c.opts.GzipMinSize,
			Deadline:     c.opts.TransactionTimeout,
		})
		c.observe(engine.KindPublish, res.Outcome, time.Since(start))
		out := Result{
			Outcome:       res.Outcome,
			HTTPCode:      res.HTTPCode,
			PublishCode:   res.PublishCode,
			PublishReason: res.PublishReason,
			Body:          res.Body,
		}
		c.recordResult(out)
		return out
	}

	return c.dispatch(run)
}

// Subscribe long-polls channels (and optionally a channel-group) for new
// messages, advancing the stored timetoken on success and preserving it on
// failure (invariant I3). channelTimetokens, when non-empty, carries
// independent per-channel resume points (spec §9 supplement) instead of the
// single shared timetoken this Context otherwise tracks.
//
// Received messages are queued for Get/GetChannel to drain one at a time;
// the same batch is also returned in Result.Messages. Per spec §4.9, a Subscribe
// issued before that queue is fully drained is rejected synchronously with
// outcome.RxBuffNotEmpty rather than starting a transaction.
func (c *Context) Subscribe(channels []string, channelGroup, channelTimetokens string) Result {
	c.mu.Lock()
	if len(c.rxQueue) > 0 {
		c.mu.Unlock()
		return Result{Outcome: outcome.RxBuffNotEmpty}
	}
	c.mu.Unlock()

	txn, ctx, release, started := c.beginTransaction(engine.KindSubscribe, c.opts.SubscribeTimeout)
	if started == outcome.InProgress || started == outcome.InvalidParameters {
		return Result{Outcome: started}
	}
	defer release()

	run := func() Result {
		c.mu.Lock()
		tt := c.timetoken
		c.mu.Unlock()

		if c.opts.Mode == ModeCallback && c.cpuPacer != nil {
			c.ensurePacerRunning()
			c.cpuPacer.WaitUntilReady(time.Now().Add(c.opts.SubscribeTimeout), 50*time.Millisecond)
		}

		start := time.Now()
		res, sub := engine.RunSubscribe(ctx, txn, c.resolver, c.pool, engine.SubscribeRequest{
			Scheme:            c.opts.Scheme,
			Origin:            c.opts.Origin,
			SubscribeKey:      c.opts.SubscribeKey,
			Channels:          channels,
			ChannelGroup:      channelGroup,
			Timetoken:         tt,
			ChannelTimetokens: channelTimetokens,
			Params:            c.baseParams(),
			MaxURLLen:         c.opts.MaxURLLen,
			Deadline:          c.opts.SubscribeTimeout,
		})
		c.observe(engine.KindSubscribe, res.Outcome, time.Since(start))

		out := Result{
			Outcome:  res.Outcome,
			HTTPCode: res.HTTPCode,
			Body:     res.Body,
		}
		if res.Outcome == outcome.OK {
			received := make([]ReceivedMessage, len(sub.Messages))
			for i, m := range sub.Messages {
				received[i] = ReceivedMessage{Channel: m.Channel, Payload: m.Payload}
			}
			c.mu.Lock()
			c.timetoken = sub.Timetoken
			c.rxQueue = append(c.rxQueue, received...)
			c.mu.Unlock()
			out.Timetoken = sub.Timetoken
			out.Messages = received
		}
		c.recordResult(out)
		return out
	}

	return c.dispatch(run)
}

// Time fetches server time (spec §4.9): a plain GET with no channel
// argument to encode.
func (c *Context) Time() Result {
	txn, ctx, release, started := c.beginTransaction(engine.KindTime, c.opts.TransactionTimeout)
	if started == outcome.InProgress || started == outcome.InvalidParameters {
		return Result{Outcome: started}
	}
	defer release()

	run := func() Result {
		start := time.Now()
		res := engine.RunSimpleGet(ctx, txn, c.resolver, c.pool, engine.SimpleGetRequest{
			Scheme:    c.opts.Scheme,
			Origin:    c.opts.Origin,
			Path:      "/time/0",
			Params:    c.baseParams(),
			MaxURLLen: c.opts.MaxURLLen,
			Deadline:  c.opts.TransactionTimeout,
		})
		c.observe(engine.KindTime, res.Outcome, time.Since(start))
		out := Result{Outcome: res.Outcome, HTTPCode: res.HTTPCode, Body: res.Body}
		c.recordResult(out)
		return out
	}

	return c.dispatch(run)
}

// HistoryResult is the decoded advanced-history / message-counts response
// (spec §4.8), with both views available: Decoded is response order as the
// server sent it; ByChannel is reordered to match the channels argument,
// with history.AbsentCount standing in for any channel the server's
// response omitted.
type HistoryResult struct {
	Outcome   outcome.Kind
	HTTPCode  int
	Decoded   []history.ChannelCount
	ByChannel []history.ChannelCount
}

// MessageCounts fetches per-channel unread counts. Exactly one of
// timetoken or channelTimetokens must be non-empty (spec §4.8); passing
// both, or neither, is outcome.InvalidParameters.
func (c *Context) MessageCounts(channels []string, timetoken, channelTimetokens string) HistoryResult {
	if (timetoken != "") == (channelTimetokens != "") {
		return HistoryResult{Outcome: outcome.InvalidParameters}
	}

	txn, ctx, release, started := c.beginTransaction(engine.KindMessageCounts, c.opts.TransactionTimeout)
	if started == outcome.InProgress || started == outcome.InvalidParameters {
		return HistoryResult{Outcome: started}
	}
	defer release()

	encodedChannels, err := urlenc.EncodeChannelList(channels, c.opts.MaxURLLen)
	if err != nil {
		return HistoryResult{Outcome: outcome.URLEncodedTooLong}
	}
	path := fmt.Sprintf("/v3/history/sub-key/%s/channels-with-messages/%s", c.opts.SubscribeKey, encodedChannels)

	params := c.baseParams()
	params.Timetoken = timetoken
	params.ChannelTimetokens = channelTimetokens

	run := func() HistoryResult {
		start := time.Now()
		res := engine.RunSimpleGet(ctx, txn, c.resolver, c.pool, engine.SimpleGetRequest{
			Scheme:    c.opts.Scheme,
			Origin:    c.opts.Origin,
			Path:      path,
			Params:    params,
			MaxURLLen: c.opts.MaxURLLen,
			Deadline:  c.opts.TransactionTimeout,
		})
		c.observe(engine.KindMessageCounts, res.Outcome, time.Since(start))
		if res.Outcome != outcome.OK {
			return HistoryResult{Outcome: res.Outcome, HTTPCode: res.HTTPCode}
		}
		decoded, kind, decodeErr := history.Decode(res.Body)
		if decodeErr != nil || kind != outcome.OK {
			return HistoryResult{Outcome: kind, HTTPCode: res.HTTPCode}
		}
		responseOrder := make([]history.ChannelCount, len(decoded))
		history.FillInResponseOrder(decoded, responseOrder)
		return HistoryResult{
			Outcome:   outcome.OK,
			HTTPCode:  res.HTTPCode,
			Decoded:   responseOrder,
			ByChannel: history.CountsForChannels(decoded, channels),
		}
	}

	return c.dispatchHistory(run)
}

// AddChannelToGroup, RemoveChannelFromGroup, and RemoveChannelGroup are
// distinct transactions that mutate channel-group membership server-side;
// per spec §4.7 a propagation delay follows before a subsequent subscribe
// observes the change, a server-side property this client cannot shorten.
func (c *Context) AddChannelToGroup(channel, group string) Result {
	return c.channelGroupOp(engine.KindChannelGroupAdd, group, channel, "add")
}

func (c *Context) RemoveChannelFromGroup(channel, group string) Result {
	return c.channelGroupOp(engine.KindChannelGroupRemove, group, channel, "remove")
}

func (c *Context) RemoveChannelGroup(group string) Result {
	return c.channelGroupOp(engine.KindChannelGroupRemoveGroup, group, "", "")
}

func (c *Context) channelGroupOp(kind engine.Kind, group, channel, verb string) Result {
	txn, ctx, release, started := c.beginTransaction(kind, c.opts.TransactionTimeout)
	if started == outcome.InProgress || started == outcome.InvalidParameters {
		return Result{Outcome: started}
	}
	defer release()

	encodedGroup, err := urlenc.EncodeString(group, 0)
	if err != nil {
		return Result{Outcome: outcome.URLEncodedTooLong}
	}
	path := fmt.Sprintf("/v1/channel-registration/sub-key/%s/channel-group/%s", c.opts.SubscribeKey, encodedGroup)
	if kind == engine.KindChannelGroupRemoveGroup {
		path += "/remove"
	}

	params := c.baseParams()
	if channel != "" {
		switch verb {
		case "add":
			params.Add = channel
		case "remove":
			params.Remove = channel
		}
	}

	run := func() Result {
		start := time.Now()
		res := engine.RunSimpleGet(ctx, txn, c.resolver, c.pool, engine.SimpleGetRequest{
			Scheme:    c.opts.Scheme,
			Origin:    c.opts.Origin,
			Path:      path,
			Params:    params,
			MaxURLLen: c.opts.MaxURLLen,
			Deadline:  c.opts.TransactionTimeout,
		})
		c.observe(kind, res.Outcome, time.Since(start))
		out := Result{Outcome: res.Outcome, HTTPCode: res.HTTPCode, Body: res.Body}
		c.recordResult(out)
		return out
	}

	return c.dispatch(run)
}

// observe records one finished transaction's kind, outcome, and duration
// against Options.Registry, when configured; a nil Registry makes this a
// no-op so metrics stay entirely optional (ambient, never required).
func (c *Context) observe(kind engine.Kind, out outcome.Kind, d time.Duration) {
	if c.opts.Registry == nil {
		return
	}
	c.opts.Registry.ObserveTransaction(kind.String(), out.String(), d.Seconds())
}

func (c *Context) baseParams() engine.URLParams {
	return engine.URLParams{
		Auth:  c.opts.AuthKey,
		UUID:  c.opts.UUID,
		PNSDK: "PubNub-Go/1.0",
	}
}

// dispatch runs fn either synchronously (blocking until terminal) or as a
// goroutine that invokes opts.Callback once finished (spec §4.6's two
// notification modes).
func (c *Context) dispatch(fn func() Result) Result {
	if c.opts.Mode == ModeCallback {
		go func() {
			res := fn()
			if c.opts.Callback != nil {
				c.opts.Callback(c.currentKindSnapshot(), toEngineResult(res))
			}
		}()
		return Result{Outcome: outcome.Started}
	}
	return fn()
}

func (c *Context) dispatchHistory(fn func() HistoryResult) HistoryResult {
	if c.opts.Mode == ModeCallback {
		go func() { _ = fn() }()
		return HistoryResult{Outcome: outcome.Started}
	}
	return fn()
}

func (c *Context) currentKindSnapshot() engine.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentKind
}

func toEngineResult(r Result) engine.Result {
	return engine.Result{
		Outcome:       r.Outcome,
		HTTPCode:      r.HTTPCode,
		PublishCode:   r.PublishCode,
		PublishReason: r.PublishReason,
		Body:          r.Body,
		Timetoken:     r.Timetoken,
	}
}

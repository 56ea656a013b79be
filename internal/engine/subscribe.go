// Subscribe-specific transaction wiring (C8), layered on the same FSM steps
// RunPublish uses. Grounded on the teacher's internal/single/messaging/
// message.go for the envelope-splitting shape (it walks a decoded frame and
// emits one event per logical message) adapted here to timetoken semantics
// instead of sequence numbers.
package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/adred-codev/pubnub-go/internal/jsonskim"
	"github.com/adred-codev/pubnub-go/internal/outcome"
	"github.com/adred-codev/pubnub-go/internal/resolver"
	"github.com/adred-codev/pubnub-go/internal/urlenc"
)

// ReceivedMessage is one (channel, payload) pair sliced out of a subscribe
// response (spec §3 "Message batch").
type ReceivedMessage struct {
	Channel string
	Payload []byte
}

// SubscribeRequest carries everything needed to run one subscribe
// transaction.
type SubscribeRequest struct {
	Scheme       string
	Origin       string
	SubscribeKey string
	Channels     []string
	ChannelGroup string
	Timetoken    string

	// ChannelTimetokens carries independent per-channel timetokens (spec §9
	// supplement, seen in original_source/core/pubnub_advanced_history.*):
	// when set, it is sent instead of the single shared Timetoken so each
	// channel in Channels resumes from its own stream position.
	ChannelTimetokens string

	Params    URLParams
	MaxURLLen int
	Deadline  time.Duration
}

// SubscribeResult is the decoded outcome of a successful subscribe: the new
// timetoken and the message batch. On failure the caller must keep using
// the Timetoken it already had (invariant I3) — RunSubscribe never returns
// a Timetoken on a non-OK Result.
type SubscribeResult struct {
	Timetoken string
	Messages  []ReceivedMessage
}

// RunSubscribe drives one subscribe transaction. The first call on a fresh
// context should pass Timetoken "0" (spec §4.7): this "connects" and
// returns immediately with an empty batch, establishing the stream
// position; subsequent calls long-poll until a message arrives or the
// deadline elapses.
func RunSubscribe(parent context.Context, txn *Transaction, res *resolver.Resolver, pool *Pool, req SubscribeRequest) (Result, SubscribeResult) {
	ctx, cancel := pacedDeadline(parent, req.Deadline)
	defer cancel()

	txn.setState(StateURLBuilt)

	encodedChannels, err := urlenc.EncodeChannelList(req.Channels, 0)
	if err != nil {
		return fail(txn, outcome.InvalidChannel, err), SubscribeResult{}
	}
	if encodedChannels == "" {
		encodedChannels = ","
	}

	path := fmt.Sprintf("/v2/subscribe/%s/%s/0", req.SubscribeKey, encodedChannels)
	params := req.Params
	params.Timetoken = req.Timetoken
	params.ChannelTimetokens = req.ChannelTimetokens
	params.ChannelGroup = req.ChannelGroup

	fullURL, err := BuildURL(req.Scheme, req.Origin, path, params, req.MaxURLLen)
	if err != nil {
		return fail(txn, outcome.URLEncodedTooLong, err), SubscribeResult{}
	}

	txn.setState(StateResolving)
	host, port, splitErr := net.SplitHostPort(req.Origin)
	if splitErr != nil {
		host = req.Origin
		port = "443"
		if req.Scheme == "http" {
			port = "80"
		}
	}
	if r, ok := deadlineErr(ctx, txn); ok {
		return finishResult(txn, r), SubscribeResult{}
	}

	txn.setState(StateConnecting)
	conn, ok := pool.Take(req.Origin)
	if !ok {
		useTLS := req.Scheme == "https"
		if useTLS {
			txn.setState(StateTLSHandshake)
		}
		conn, err = Dial(ctx, res, host, port, useTLS)
		if err != nil {
			if r, hit := deadlineErr(ctx, txn); hit {
				return finishResult(txn, r), SubscribeResult{}
			}
			return fail(txn, outcome.ConnectFailed, err), SubscribeResult{}
		}
	}
	stopWatch := WatchCancellation(ctx, conn.netConn)

	txn.setState(StateSendingRequest)
	parsedURL, err := url.Parse(fullURL)
	if err != nil {
		stopWatch()
		conn.Close()
		return fail(txn, outcome.FormatError, err), SubscribeResult{}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, parsedURL.RequestURI(), nil)
	if err != nil {
		stopWatch()
		conn.Close()
		return fail(txn, outcome.FormatError, err), SubscribeResult{}
	}
	httpReq.Host = req.Origin

	resp, err := SendRequest(ctx, conn, httpReq)
	if err != nil {
		stopWatch()
		conn.Close()
		if r, hit := deadlineErr(ctx, txn); hit {
			return finishResult(txn, r), SubscribeResult{}
		}
		return fail(txn, outcome.ConnectFailed, err), SubscribeResult{}
	}

	txn.setState(StateRecvStatus)
	txn.setState(StateRecvHeaders)
	txn.setState(StateRecvBody)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	stopWatch()
	if err != nil {
		conn.Close()
		if r, hit := deadlineErr(ctx, txn); hit {
			return finishResult(txn, r), SubscribeResult{}
		}
		return fail(txn, outcome.HTTPError, err), SubscribeResult{}
	}

	txn.setState(StateParsing)
	if resp.StatusCode >= 400 {
		pool.Put(conn)
		return finishResult(txn, Result{Outcome: outcome.HTTPError, HTTPCode: resp.StatusCode, Body: body}), SubscribeResult{}
	}

	subRes, ok := decodeSubscribeBody(body)
	if !ok {
		pool.Put(conn)
		return finishResult(txn, Result{Outcome: outcome.FormatError, HTTPCode: resp.StatusCode, Body: body}), SubscribeResult{}
	}

	pool.Put(conn)
	result := finishResult(txn, Result{
		Outcome:   outcome.OK,
		HTTPCode:  resp.StatusCode,
		Body:      body,
		Timetoken: subRes.Timetoken,
	})
	if result.Outcome != outcome.OK {
		// A cancellation that won the race in finish must not hand back
		// the new timetoken (invariant I3).
		return result, SubscribeResult{}
	}
	return result, subRes
}

// decodeSubscribeBody implements spec §4.7 step 2: slice the response's "m"
// array into (channel, payload) pairs, zero-copy via internal/jsonskim, and
// read the new timetoken out of "t":{"t":"..."}.
func decodeSubscribeBody(body []byte) (SubscribeResult, bool) {
	ttSlice, ok := jsonskim.Field(body, "t")
	if !ok {
		return SubscribeResult{}, false
	}
	ttRaw := ttSlice.Bytes(body)
	innerTT, ok := jsonskim.Field(ttRaw, "t")
	if !ok {
		return SubscribeResult{}, false
	}
	newTimetoken := trimQuotes(innerTT.String(ttRaw))

	elems, ok := jsonskim.Elements(body, "m")
	if !ok {
		// An empty or absent "m" is valid (e.g. the initial "0" connect).
		return SubscribeResult{Timetoken: newTimetoken}, true
	}

	messages := make([]ReceivedMessage, 0, len(elems))
	for _, el := range elems {
		raw := el.Bytes(body)
		chSlice, ok := jsonskim.Field(raw, "c")
		if !ok {
			continue
		}
		dSlice, ok := jsonskim.Field(raw, "d")
		if !ok {
			continue
		}
		messages = append(messages, ReceivedMessage{
			Channel: trimQuotes(chSlice.String(raw)),
			Payload: dSlice.Bytes(raw),
		})
	}

	return SubscribeResult{Timetoken: newTimetoken, Messages: messages}, true
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

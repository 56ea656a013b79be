package engine

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/adred-codev/pubnub-go/internal/outcome"
	"github.com/adred-codev/pubnub-go/internal/resolver"
)

// SimpleGetRequest runs a plain GET transaction whose path is already fully
// assembled (time, history/message-counts, and channel-group membership
// operations, none of which carry a single percent-encodable channel
// argument the way publish and subscribe do — spec §4.9's "time",
// "message-counts", and channel-group add/remove operations). Callers are
// responsible for percent-encoding any user-supplied path segment with
// internal/urlenc before handing it to Path.
type SimpleGetRequest struct {
	Scheme    string
	Origin    string
	Path      string // already percent-encoded, leading slash included
	Params    URLParams
	MaxURLLen int
	Deadline  time.Duration
}

// RunSimpleGet drives the same connect/send/recv/parse FSM steps as
// RunPublish, without the publish-specific body construction or status
// array decoding: callers (Time, MessageCounts, channel-group operations)
// decode resp.Body themselves.
func RunSimpleGet(parent context.Context, txn *Transaction, res *resolver.Resolver, pool *Pool, req SimpleGetRequest) Result {
	ctx, cancel := pacedDeadline(parent, req.Deadline)
	defer cancel()

	txn.setState(StateURLBuilt)

	fullURL, err := BuildURL(req.Scheme, req.Origin, req.Path, req.Params, req.MaxURLLen)
	if err != nil {
		return finishResult(txn, Result{Outcome: outcome.URLEncodedTooLong})
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
		return finishResult(txn, r)
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
				return finishResult(txn, r)
			}
			return finishResult(txn, Result{Outcome: outcome.ConnectFailed})
		}
	}
	stopWatch := WatchCancellation(ctx, conn.netConn)

	txn.setState(StateSendingRequest)
	parsedURL, err := url.Parse(fullURL)
	if err != nil {
		stopWatch()
		conn.Close()
		return finishResult(txn, Result{Outcome: outcome.FormatError})
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, parsedURL.RequestURI(), nil)
	if err != nil {
		stopWatch()
		conn.Close()
		return finishResult(txn, Result{Outcome: outcome.FormatError})
	}
	httpReq.Host = req.Origin

	resp, err := SendRequest(ctx, conn, httpReq)
	if err != nil {
		stopWatch()
		conn.Close()
		if r, hit := deadlineErr(ctx, txn); hit {
			return finishResult(txn, r)
		}
		return finishResult(txn, Result{Outcome: outcome.ConnectFailed})
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
			return finishResult(txn, r)
		}
		return finishResult(txn, Result{Outcome: outcome.HTTPError})
	}

	txn.setState(StateParsing)
	pool.Put(conn)

	if resp.StatusCode >= 400 {
		return finishResult(txn, Result{Outcome: outcome.HTTPError, HTTPCode: resp.StatusCode, Body: body})
	}
	return finishResult(txn, Result{Outcome: outcome.OK, HTTPCode: resp.StatusCode, Body: body})
}

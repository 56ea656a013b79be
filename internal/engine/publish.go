package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/adred-codev/pubnub-go/internal/gzipenc"
	"github.com/adred-codev/pubnub-go/internal/jsonskim"
	"github.com/adred-codev/pubnub-go/internal/outcome"
	"github.com/adred-codev/pubnub-go/internal/resolver"
	"github.com/adred-codev/pubnub-go/internal/urlenc"
)

// PublishMethod selects how the message body reaches the server (spec §9
// supplement: the original picks GET/POST/POST_GZIP by body size and
// compressibility rather than always using one verb).
type PublishMethod int

const (
	PublishMethodGET PublishMethod = iota
	PublishMethodPOST
	PublishMethodPOSTGzip
)

// ChoosePublishMethod mirrors original_source/core/pubnub_ccore_pubsub.c's
// selection: GET for empty bodies and bodies shorter than gzipThreshold,
// POST_GZIP for everything else. It never returns POST itself; RunPublish
// downgrades POST_GZIP to POST when the gzip result does not clear the
// compression threshold. gzipThreshold is the minimum body size worth even
// attempting compression for.
func ChoosePublishMethod(messageLen int, gzipThreshold int) PublishMethod {
	if messageLen <= 0 {
		return PublishMethodGET
	}
	if messageLen < gzipThreshold {
		return PublishMethodGET
	}
	return PublishMethodPOSTGzip
}

// PublishRequest carries everything needed to run one publish transaction.
type PublishRequest struct {
	Scheme       string
	Origin       string
	PublishKey   string
	SubscribeKey string
	Channel      string // already validated, not yet percent-encoded
	Message      []byte // raw JSON message bytes
	Params       URLParams
	MaxURLLen    int
	GzipMinSize  int
	Deadline     time.Duration
	DNSServer    string
}

// RunPublish drives a publish transaction start-to-finish: URL build ->
// resolve -> connect -> send -> recv -> parse, synchronously. A Context
// wraps this in sync/callback notification per spec §4.6; RunPublish itself
// always runs on the calling goroutine, which is how ModeSync and
// ModeCallback both end up using it (the latter simply from inside a
// spawned goroutine).
func RunPublish(parent context.Context, txn *Transaction, res *resolver.Resolver, pool *Pool, req PublishRequest) Result {
	ctx, cancel := pacedDeadline(parent, req.Deadline)
	defer cancel()

	txn.setState(StateURLBuilt)

	encodedChannel, err := urlenc.EncodeString(req.Channel, 0)
	if err != nil {
		return fail(txn, outcome.InvalidChannel, err)
	}

	method := ChoosePublishMethod(len(req.Message), req.GzipMinSize)
	var body []byte
	var gz gzipenc.Result
	if method == PublishMethodPOSTGzip {
		gz, err = gzipenc.Compress(req.Message)
		if err != nil {
			return fail(txn, outcome.BadCompression, err)
		}
		if !gz.Compressed {
			method = PublishMethodPOST
		}
	}

	var path string
	switch method {
	case PublishMethodGET:
		encodedMsg, err := urlenc.Encode(req.Message, 0)
		if err != nil {
			return fail(txn, outcome.URLEncodedTooLong, err)
		}
		path = fmt.Sprintf("/publish/%s/%s/0/%s/0/%s",
			req.PublishKey, req.SubscribeKey, encodedChannel, string(encodedMsg))
	case PublishMethodPOST, PublishMethodPOSTGzip:
		path = fmt.Sprintf("/publish/%s/%s/0/%s/0", req.PublishKey, req.SubscribeKey, encodedChannel)
		if method == PublishMethodPOSTGzip {
			body = gz.Framed
		} else {
			body = req.Message
		}
	}

	fullURL, err := BuildURL(req.Scheme, req.Origin, path, req.Params, req.MaxURLLen)
	if err != nil {
		return fail(txn, outcome.URLEncodedTooLong, err)
	}

	txn.setState(StateResolving)
	host, port, err := net.SplitHostPort(req.Origin)
	if err != nil {
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
			return fail(txn, outcome.ConnectFailed, err)
		}
	}
	stopWatch := WatchCancellation(ctx, conn.netConn)

	txn.setState(StateSendingRequest)
	httpMethod := http.MethodGet
	var bodyReader io.Reader
	if method != PublishMethodGET {
		httpMethod = http.MethodPost
		bodyReader = newByteReader(body)
	}
	parsedURL, err := url.Parse(fullURL)
	if err != nil {
		stopWatch()
		conn.Close()
		return fail(txn, outcome.FormatError, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, httpMethod, parsedURL.RequestURI(), bodyReader)
	if err != nil {
		stopWatch()
		conn.Close()
		return fail(txn, outcome.FormatError, err)
	}
	httpReq.Host = req.Origin
	if method == PublishMethodPOSTGzip {
		httpReq.Header.Set("Content-Encoding", "gzip")
	}
	if method != PublishMethodGET {
		httpReq.ContentLength = int64(len(body))
	}

	resp, err := SendRequest(ctx, conn, httpReq)
	if err != nil {
		stopWatch()
		conn.Close()
		if r, hit := deadlineErr(ctx, txn); hit {
			return finishResult(txn, r)
		}
		return fail(txn, outcome.ConnectFailed, err)
	}

	txn.setState(StateRecvStatus)
	txn.setState(StateRecvHeaders)
	txn.setState(StateRecvBody)
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	stopWatch()
	if err != nil {
		conn.Close()
		if r, hit := deadlineErr(ctx, txn); hit {
			return finishResult(txn, r)
		}
		return fail(txn, outcome.HTTPError, err)
	}

	txn.setState(StateParsing)

	// Tie-break rule (spec §4.6): an HTTP error status and a parse error
	// both resolve to PUBLISH_FAILED, with the HTTP code still surfaced.
	// When an HTTP error body still parses as a publish status array, its
	// code and sub-reason are surfaced alongside the HTTP code.
	status, parseOK := jsonskim.ParsePublishStatus(respBody)
	if resp.StatusCode >= 400 {
		pool.Put(conn)
		failed := Result{
			Outcome:  outcome.PublishFailed,
			HTTPCode: resp.StatusCode,
			Body:     respBody,
		}
		if parseOK {
			failed.PublishCode = status.Code
			failed.PublishReason = outcome.ClassifyPublishReason(status.Reason)
		}
		return finishResult(txn, failed)
	}
	if !parseOK {
		pool.Put(conn)
		return finishResult(txn, Result{
			Outcome:  outcome.PublishFailed,
			HTTPCode: resp.StatusCode,
			Body:     respBody,
		})
	}

	pool.Put(conn)
	out := outcome.OK
	reason := outcome.PublishReasonNone
	if status.Code != 1 {
		out = outcome.PublishFailed
		reason = outcome.ClassifyPublishReason(status.Reason)
	}
	return finishResult(txn, Result{
		Outcome:       out,
		HTTPCode:      resp.StatusCode,
		PublishCode:   status.Code,
		PublishReason: reason,
		Body:          respBody,
	})
}

func fail(txn *Transaction, kind outcome.Kind, _ error) Result {
	return finishResult(txn, Result{Outcome: kind})
}

func finishResult(txn *Transaction, res Result) Result {
	return txn.finish(res)
}

// newByteReader avoids importing bytes just for a one-line wrapper at each
// call site.
func newByteReader(b []byte) io.Reader {
	return &byteReader{b: b}
}

type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

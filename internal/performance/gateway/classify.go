package gateway

import (
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// CacheStatusHeader reports the gateway cache outcome.
	CacheStatusHeader = "X-Cache-Status"

	// LegacyCacheHeader is the cache header of older gateway builds.
	LegacyCacheHeader = "X-AirBrx-Cache"

	// CacheHit is the header value marking a cache hit.
	CacheHit = "HIT"

	// MaxSuccessDuration bounds the latency of a successful query.
	MaxSuccessDuration = 5 * time.Second
)

// Response is what the query executor observed for one request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration

	// Err is set for transport failures and timeouts.
	Err error
}

// ExecutionResult is the classified outcome of one query.
type ExecutionResult struct {
	Success    bool
	Duration   time.Duration
	CacheHit   bool
	StatusCode int
}

// Classify decides whether a gateway response counts as a successful query.
//
// A query succeeds when all of these hold:
//   - no transport error and status 200
//   - the body is JSON whose "data" or "result" field is truthy
//   - the duration is below MaxSuccessDuration
//
// Truthiness follows JavaScript: null, false, 0 and "" are falsy, while
// any array or object (even empty) is truthy.
func Classify(r Response) ExecutionResult {
	result := ExecutionResult{
		Duration:   r.Duration,
		StatusCode: r.StatusCode,
		CacheHit:   isCacheHit(r.Header),
	}

	if r.Err != nil {
		return result
	}

	result.Success = r.StatusCode == http.StatusOK &&
		hasPayload(r.Body) &&
		r.Duration < MaxSuccessDuration

	return result
}

func isCacheHit(h http.Header) bool {
	if h == nil {
		return false
	}
	return h.Get(CacheStatusHeader) == CacheHit || h.Get(LegacyCacheHeader) == CacheHit
}

func hasPayload(body []byte) bool {
	if !gjson.ValidBytes(body) {
		return false
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return false
	}

	return truthy(doc.Get("data")) || truthy(doc.Get("result"))
}

func truthy(v gjson.Result) bool {
	if !v.Exists() {
		return false
	}

	switch v.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.True, gjson.JSON:
		return true
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		return v.Str != ""
	default:
		return false
	}
}

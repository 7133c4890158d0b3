package httpclient

import "github.com/nxweb/nxweb/internal/arena"

// idempotentMethods are the methods spec.md §4.6's retry policy applies
// to; a failed non-idempotent request (POST, PATCH) is never retried.
var idempotentMethods = map[string]bool{
	"GET": true, "HEAD": true, "PUT": true, "DELETE": true, "OPTIONS": true,
}

// SendWithRetry acquires a connection from pool for addr, sends req, and
// on failure retries up to RetryCount more times against a fresh
// connection if req's method is idempotent, per spec.md §4.6. onDone is
// called exactly once with the final outcome.
func SendWithRetry(pool *ProxyPool, addr string, a *arena.Arena, req *Request, onDone func(*Response, error)) {
	attempt(pool, addr, a, req, 0, onDone)
}

func attempt(pool *ProxyPool, addr string, a *arena.Arena, req *Request, tries int, onDone func(*Response, error)) {
	pc, err := pool.Acquire(addr, a)
	if err != nil {
		onDone(nil, err)
		return
	}

	pc.proto.Send(req, func(resp *Response, err error) {
		if err != nil {
			pool.Discard(pc)
			if idempotentMethods[req.Method] && tries < RetryCount {
				attempt(pool, addr, a, req, tries+1, onDone)
				return
			}
			onDone(nil, err)
			return
		}
		pool.Release(pc)
		onDone(resp, nil)
	})
}

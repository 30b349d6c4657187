package auth

import (
	"context"
	"net"
	"net/http"
	"sync"
)

// CallbackServer is the loopback OAuth callback receiver (spec §4.10): it
// binds a single ephemeral port and expects exactly one request on
// /auth/callback?code=...&state=....
type CallbackServer struct {
	listener      net.Listener
	server        *http.Server
	expectedState string

	resultCh    chan string
	resolveOnce sync.Once
	stopOnce    sync.Once
}

// NewCallbackServer binds a loopback listener on an OS-assigned port and
// starts serving immediately.
func NewCallbackServer(expectedState string) (*CallbackServer, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &CallbackServer{
		listener:      listener,
		expectedState: expectedState,
		resultCh:      make(chan string, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/callback", s.handleCallback)
	s.server = &http.Server{Handler: mux}

	go s.server.Serve(listener)
	return s, nil
}

// Addr returns the loopback address ("127.0.0.1:PORT") the server is
// listening on, for building a redirect_uri.
func (s *CallbackServer) Addr() string {
	return s.listener.Addr().String()
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	state := q.Get("state")

	if state == "" || state != s.expectedState || code == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
	s.resolve(code)
}

// resolve delivers code to the waiter exactly once; subsequent calls
// (whether from a second request or from Stop) are no-ops.
func (s *CallbackServer) resolve(code string) {
	s.resolveOnce.Do(func() {
		s.resultCh <- code
	})
}

// WaitForCallback blocks until a valid callback arrives, ctx is cancelled,
// or Stop is called. ok is false on cancellation, timeout, or a Stop with
// no prior callback.
func (s *CallbackServer) WaitForCallback(ctx context.Context) (code string, ok bool) {
	select {
	case code := <-s.resultCh:
		return code, code != ""
	case <-ctx.Done():
		return "", false
	}
}

// Stop shuts the server down and, if no callback ever arrived, resumes the
// waiter with no result. Idempotent: concurrent callers only ever resume
// the waiter once between them.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		s.server.Close()
	})
	s.resolve("")
}

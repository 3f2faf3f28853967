package httpserver

import "net/http"

// Routes aggregates handlers for HTTP server. Handlers under Authed are
// wrapped with the auth middleware before registration.
type Routes struct {
	Signup http.HandlerFunc
	Login  http.HandlerFunc

	WalletMe           http.HandlerFunc
	WalletDeposit      http.HandlerFunc
	WalletTransactions http.HandlerFunc

	ReadingsRequest http.HandlerFunc
	ReadingsAccept  http.HandlerFunc
	ReadingsGet     http.HandlerFunc
	ReadingsMe      http.HandlerFunc
	ReadingsActive  http.HandlerFunc
	ReadingsPause   http.HandlerFunc
	ReadingsResume  http.HandlerFunc
	ReadingsEnd     http.HandlerFunc

	ChatMessage http.HandlerFunc
	ChatHistory http.HandlerFunc

	ReadersOnline http.HandlerFunc

	ReadingsWS http.HandlerFunc

	Health  http.HandlerFunc
	Metrics http.Handler
}

// NewRouter wires all HTTP routes. authed wraps a handler with token
// verification; pass the identity function to disable it (tests).
func NewRouter(routes Routes, authed func(http.HandlerFunc) http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()

	register := func(pattern, expected string, h http.HandlerFunc, protected bool) {
		if h == nil {
			return
		}
		if protected && authed != nil {
			h = authed(h)
		}
		mux.Handle(pattern, method(expected, h))
	}

	register("/auth/signup", http.MethodPost, routes.Signup, false)
	register("/auth/login", http.MethodPost, routes.Login, false)

	register("/wallet/me", http.MethodGet, routes.WalletMe, true)
	register("/wallet/me/deposit", http.MethodPost, routes.WalletDeposit, true)
	register("/wallet/me/transactions", http.MethodGet, routes.WalletTransactions, true)

	register("/readings/request", http.MethodPost, routes.ReadingsRequest, true)
	register("/readings/accept", http.MethodPost, routes.ReadingsAccept, true)
	register("/readings/get", http.MethodGet, routes.ReadingsGet, true)
	register("/readings/me", http.MethodGet, routes.ReadingsMe, true)
	register("/readings/active", http.MethodGet, routes.ReadingsActive, true)
	register("/readings/pause", http.MethodPost, routes.ReadingsPause, true)
	register("/readings/resume", http.MethodPost, routes.ReadingsResume, true)
	register("/readings/end", http.MethodPost, routes.ReadingsEnd, true)

	register("/readings/chat/message", http.MethodPost, routes.ChatMessage, true)
	register("/readings/chat/history", http.MethodGet, routes.ChatHistory, true)

	register("/readers/online", http.MethodGet, routes.ReadersOnline, false)

	register("/readings/ws", http.MethodGet, routes.ReadingsWS, true)

	register("/health", http.MethodGet, routes.Health, false)
	if routes.Metrics != nil {
		mux.Handle("/metrics", method(http.MethodGet, routes.Metrics.ServeHTTP))
	}

	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}

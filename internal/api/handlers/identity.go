package handlers

import "net/http"

// Identity headers injected by the authenticating reverse proxy. The API
// trusts them; it is never exposed without the proxy in front.
const (
	userIDHeader   = "X-User-ID"
	churchIDHeader = "X-Church-ID"
)

func requestUserID(r *http.Request) string {
	return r.Header.Get(userIDHeader)
}

func requestChurchID(r *http.Request) string {
	return r.Header.Get(churchIDHeader)
}

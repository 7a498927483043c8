package httpx

import "net/http"

type headerTransport struct {
	header    string
	value     string
	transport http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.value == "" {
		return t.transport.RoundTrip(req)
	}
	reqCopy := req.Clone(req.Context())
	reqCopy.Header.Set(t.header, t.value)
	return t.transport.RoundTrip(reqCopy)
}

// WithHeaderAuth sets header on every outbound request, e.g. X-API-KEY.
// An empty value sends nothing.
func WithHeaderAuth(header, value string) Option {
	return WithTransport(func(rt http.RoundTripper) http.RoundTripper {
		return &headerTransport{header: header, value: value, transport: rt}
	})
}

// WithAuthToken sends a bearer token.
func WithAuthToken(token string) Option {
	if token == "" {
		return WithHeaderAuth("Authorization", "")
	}
	return WithHeaderAuth("Authorization", "Bearer "+token)
}

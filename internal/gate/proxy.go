package gate

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"chabaqa/backend/internal/envelope"
)

// NewProxy forwards requests to upstream, keeping the original Host.
func NewProxy(upstream *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host
		},
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.ErrorContext(r.Context(), "gate: upstream error", "path", r.URL.Path, "error", err)
			envelope.WriteError(w, http.StatusBadGateway, envelope.CodeUnavailable, "upstream unavailable", nil)
		},
	}
}

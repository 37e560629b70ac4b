// Gate runs the edge auth gate: a reverse proxy in front of the web app that redirects or
// annotates each navigable request, and hosts the sign-in actions under /actions.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"chabaqa/backend/internal/authclient"
	"chabaqa/backend/internal/config"
	"chabaqa/backend/internal/gate"
	"chabaqa/backend/internal/logging"
	"chabaqa/backend/internal/metrics"
	"chabaqa/backend/internal/policy/engine"
	"chabaqa/backend/internal/routes"
	"chabaqa/backend/internal/security"
	"chabaqa/backend/internal/server/middleware"
	"chabaqa/backend/internal/signin"
	telemetryotel "chabaqa/backend/internal/telemetry/otel"
	"chabaqa/backend/internal/tokenstore"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg, "chabaqa-gate")

	if err := run(cfg); err != nil {
		slog.Error("gate exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "chabaqa-gate",
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() { _ = providers.Shutdown(context.Background()) }()

	tokens, err := security.ProviderFromConfig(cfg)
	if err != nil {
		return err
	}
	upstream, err := url.Parse(cfg.GateUpstreamURL)
	if err != nil {
		return err
	}

	var rules gate.RuleSource = gate.StaticRules{C: routes.Default()}
	if cfg.RoutesFile != "" {
		w, err := routes.NewWatcher(cfg.RoutesFile, slog.Default())
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				slog.Error("routes watcher stopped", "error", err)
			}
		}()
		rules = w
	}

	var authz engine.RouteAuthorizer = engine.StaticAuthorizer{}
	if cfg.GatePolicyEngine == "opa" {
		opa, err := engine.NewOPAAuthorizerFromFile(ctx, cfg.GatePolicyFile)
		if err != nil {
			return err
		}
		authz = opa
		slog.Info("gate: OPA policy enabled", "file", cfg.GatePolicyFile)
	}

	reg, m := metrics.NewRegistry()
	cookies := tokenstore.Cookies{
		Domain:     cfg.CookieDomain,
		Secure:     cfg.IsProduction(),
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	}
	g := gate.New(tokens, rules, gate.Options{
		Paths: gate.Paths{
			SignIn:      cfg.SignInPath,
			Explore:     cfg.ExplorePath,
			CreatorHome: cfg.CreatorHomePath,
			Landing:     cfg.LandingPath,
		},
		Authorizer: authz,
		Cookies:    cookies,
		Recorder:   m,
	})
	edgeProxies, err := middleware.ParseTrustedProxies(cfg.GateTrustedProxyList())
	if err != nil {
		return err
	}
	actions := signin.NewHandler(signin.NewFlow(authclient.New(cfg.BackendURL)), cookies, cfg.SignInPath).
		WithTrustedProxies(edgeProxies)

	srv := &http.Server{
		Addr:              cfg.GateAddr,
		Handler:           newRouter(g, actions, gate.NewProxy(upstream), m, metrics.Handler(reg)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gate listening", "addr", cfg.GateAddr, "upstream", upstream.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down gate...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRouter serves health and metrics, the sign-in actions, and sends everything else
// through the gate to upstream.
func newRouter(g *gate.Gate, actions *signin.Handler, upstream http.Handler, m *metrics.Metrics, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(m.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
	r.Mount("/actions", actions.Routes())
	r.Handle("/*", g.Middleware(upstream))

	return otelhttp.NewHandler(r, "chabaqa-gate")
}

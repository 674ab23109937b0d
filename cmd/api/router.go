package main

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/promo-pricing/internal/audit"
	"github.com/noah-isme/promo-pricing/internal/config"
	"github.com/noah-isme/promo-pricing/internal/health"
	"github.com/noah-isme/promo-pricing/internal/obs"
	"github.com/noah-isme/promo-pricing/internal/quote"
	"github.com/noah-isme/promo-pricing/internal/ratelimit"
	"github.com/noah-isme/promo-pricing/internal/security"
)

type routerDeps struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Quotes      *quote.Handler
	Audits      audit.AdminHandler
	Health      health.Handler
	Limiter     *limiter.Limiter
	HTTPMetrics *obs.HTTPMetrics
	Metrics     http.Handler
	Tracing     bool
	AdminUser   string
	AdminPass   string
	Pprof       bool
}

func newRouter(d routerDeps) http.Handler {
	cfg := d.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if d.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if d.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(security.CORS(strings.Join(cfg.CORSAllowedOrigins, ",")))
	r.Use(security.Headers{Enable: cfg.SecurityHeadersEnabled, EnableHSTS: cfg.HSTSEnabled}.Middleware)

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}
	if d.Pprof {
		r.Mount("/debug/pprof", basicAuth(newPprofMux(), d.AdminUser, d.AdminPass))
	}

	r.Get("/health/live", d.Health.Live)
	r.Get("/health/ready", d.Health.Ready)

	limited := ratelimit.Handler{
		Limiter: d.Limiter,
		OnError: func(err error) {
			d.Logger.Warn().Err(err).Msg("rate limiter unavailable")
		},
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Group(func(q chi.Router) {
			q.Use(limited.Middleware)
			q.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
			d.Quotes.Routes(q)
		})
		v.Get("/pricing/rules", d.Quotes.Rules)

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(func(next http.Handler) http.Handler {
				return basicAuth(next, d.AdminUser, d.AdminPass)
			})
			admin.Get("/quote-audits", d.Audits.List)
		})
	})

	return r
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	return mux
}

// basicAuth guards handler when user is set and passes through otherwise.
func basicAuth(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

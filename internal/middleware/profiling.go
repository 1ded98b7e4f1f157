package middleware

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strings"
)

const pprofPrefix = "/debug/pprof"

// ProfilingConfig configures the profiling middleware.
type ProfilingConfig struct {
	// Enabled exposes /debug/pprof/*. Ignored in production.
	Enabled bool

	// Environment is checked so a stray flag cannot expose pprof in production.
	Environment string
}

// profilingAllowed reports whether pprof routes should be mounted.
func (c ProfilingConfig) profilingAllowed() bool {
	if !c.Enabled {
		return false
	}
	return c.Environment != "production" && c.Environment != "prod"
}

// Profiling mounts the net/http/pprof handlers under /debug/pprof when
// enabled outside production. Other paths go to next.
func Profiling(config ProfilingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !config.Enabled {
			return next
		}
		if !config.profilingAllowed() {
			slog.Error("profiling refused in production environment", "environment", config.Environment)
			return next
		}

		slog.Warn("profiling endpoints enabled",
			"environment", config.Environment,
			"endpoints", pprofPrefix+"/*",
		)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, pprofPrefix) {
				next.ServeHTTP(w, r)
				return
			}
			switch r.URL.Path {
			case pprofPrefix + "/cmdline":
				pprof.Cmdline(w, r)
			case pprofPrefix + "/profile":
				pprof.Profile(w, r)
			case pprofPrefix + "/symbol":
				pprof.Symbol(w, r)
			case pprofPrefix + "/trace":
				pprof.Trace(w, r)
			default:
				pprof.Index(w, r)
			}
		})
	}
}

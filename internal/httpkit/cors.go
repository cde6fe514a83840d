package httpkit

import (
	"net/http"
	"strconv"
	"strings"
)

type CORSOptions struct {
	// AllowedOrigins lists exact origins; "*" allows any origin.
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAgeSeconds    int
}

// corsPolicy is CORSOptions with every header value rendered once.
type corsPolicy struct {
	anyOrigin   bool
	origins     map[string]struct{}
	methods     string
	headers     string
	exposed     string
	maxAge      string
	credentials bool
}

func newCORSPolicy(opt CORSOptions) *corsPolicy {
	p := &corsPolicy{
		origins:     make(map[string]struct{}),
		methods:     joinOr(opt.AllowedMethods, "GET, POST, OPTIONS"),
		headers:     joinOr(opt.AllowedHeaders, "Content-Type, Authorization, Accept"),
		exposed:     strings.Join(opt.ExposedHeaders, ", "),
		maxAge:      "600",
		credentials: opt.AllowCredentials,
	}
	if opt.MaxAgeSeconds > 0 {
		p.maxAge = strconv.Itoa(opt.MaxAgeSeconds)
	}
	for _, o := range opt.AllowedOrigins {
		switch o = strings.TrimSpace(o); o {
		case "":
		case "*":
			p.anyOrigin = true
		default:
			p.origins[o] = struct{}{}
		}
	}
	return p
}

func (p *corsPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.anyOrigin {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

// allowOrigin is the Access-Control-Allow-Origin value. Credentialed
// responses must echo the origin; otherwise a wildcard policy answers "*".
func (p *corsPolicy) allowOrigin(origin string) string {
	if p.anyOrigin && !p.credentials {
		return "*"
	}
	return origin
}

// CORS answers preflight requests and decorates responses for allowed
// origins. Preflights from other origins are refused with 403.
func CORS(opt CORSOptions) func(http.Handler) http.Handler {
	p := newCORSPolicy(opt)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			h := w.Header()

			if origin != "" {
				h.Add("Vary", "Origin")
			}
			if !p.allows(origin) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", p.allowOrigin(origin))
			if p.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if preflight {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Set("Access-Control-Allow-Methods", p.methods)
				h.Set("Access-Control-Allow-Headers", p.headers)
				h.Set("Access-Control-Max-Age", p.maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if p.exposed != "" {
				h.Set("Access-Control-Expose-Headers", p.exposed)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func joinOr(list []string, fallback string) string {
	if len(list) == 0 {
		return fallback
	}
	return strings.Join(list, ", ")
}

package api

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	// AllowOrigins lists permitted origins. "*" permits any.
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// DefaultCORSConfig returns a permissive config for a local dev tool.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization", "Accept", "Origin", RequestIDHeader},
		MaxAge:       86400,
	}
}

type corsHeaders struct {
	origins []string
	methods string
	headers string
	maxAge  string
}

func (c CORSConfig) compile() corsHeaders {
	return corsHeaders{
		origins: c.AllowOrigins,
		methods: strings.Join(c.AllowMethods, ", "),
		headers: strings.Join(c.AllowHeaders, ", "),
		maxAge:  strconv.Itoa(c.MaxAge),
	}
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when the origin is not permitted.
func (h corsHeaders) allowOrigin(origin string) string {
	if slices.Contains(h.origins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(h.origins, origin) {
		return origin
	}
	return ""
}

func (h corsHeaders) apply(set func(key, value string), origin string) {
	allowed := h.allowOrigin(origin)
	if allowed == "" {
		return
	}
	set("Access-Control-Allow-Origin", allowed)
	if allowed != "*" {
		set("Vary", "Origin")
	}
	set("Access-Control-Allow-Methods", h.methods)
	set("Access-Control-Allow-Headers", h.headers)
	set("Access-Control-Max-Age", h.maxAge)
}

// NewCORSMiddleware creates CORS middleware with the given configuration.
func NewCORSMiddleware(config CORSConfig) func(huma.Context, func(huma.Context)) {
	h := config.compile()
	return func(ctx huma.Context, next func(huma.Context)) {
		h.apply(ctx.SetHeader, ctx.Header("Origin"))
		if ctx.Method() == http.MethodOptions {
			ctx.SetStatus(http.StatusNoContent)
			return
		}
		next(ctx)
	}
}

// AddCORSHandler answers preflight requests on the mux, since Huma
// middleware does not see OPTIONS requests before routing.
func AddCORSHandler(mux *http.ServeMux, config CORSConfig) {
	h := config.compile()
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {
		h.apply(w.Header().Set, r.Header.Get("Origin"))
		w.WriteHeader(http.StatusNoContent)
	})
}

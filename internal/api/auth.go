package api

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"salonbook/internal/config"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	adminPrefix           = "/api/v1/admin/"

	permReadReservations   = "read:reservations"
	permWriteReservations  = "write:reservations"
	permExportReservations = "export:reservations"

	clientKeyUnknown = "unknown"
)

var (
	errMissingKey       = errors.New("missing api key headers")
	errInvalidKey       = errors.New("invalid api key")
	errInvalidExtra     = errors.New("invalid extra header")
	errPermissionDenied = errors.New("permission denied")
)

// HTTPAuth checks API keys on admin routes and rate limits every caller,
// keyed by API key when present and by remote address otherwise.
type HTTPAuth struct {
	cfg         config.APIConfig
	clients     map[string]config.APIClientKey
	keyHeader   string
	extraHeader string
	limiters    *keyedLimiters
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}

	keyHeader := strings.ToLower(strings.TrimSpace(cfg.Auth.HeaderAPIKey))
	if keyHeader == "" {
		keyHeader = apiKeyHeaderDefault
	}
	extraHeader := strings.ToLower(strings.TrimSpace(cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}

	return &HTTPAuth{
		cfg:         cfg,
		clients:     m,
		keyHeader:   keyHeader,
		extraHeader: extraHeader,
		limiters:    newKeyedLimiters(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Auth.Enabled && strings.HasPrefix(r.URL.Path, adminPrefix) {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if !a.limiters.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKey := strings.TrimSpace(r.Header.Get(a.keyHeader))
	extra := strings.TrimSpace(r.Header.Get(a.extraHeader))
	if apiKey == "" || extra == "" {
		return errMissingKey
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return errInvalidKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return errInvalidExtra
	}
	return checkPermissions(client, r)
}

func checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermission(r)
	// an empty permission list allows everything
	if required == "" || len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermission(r *http.Request) string {
	switch {
	case !strings.HasPrefix(r.URL.Path, adminPrefix):
		return ""
	case strings.HasSuffix(r.URL.Path, "/export"):
		return permExportReservations
	case r.Method == http.MethodGet:
		return permReadReservations
	default:
		return permWriteReservations
	}
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.keyHeader)); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

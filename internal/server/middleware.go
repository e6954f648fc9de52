package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"permitflow/internal"
	"permitflow/pkg/types"

	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	contextKeyOfficerRole contextKey = "officer_role"
	contextKeyOfficerName contextKey = "officer_name"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Service) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("http request")
	})
}

// RequireOfficer verifies the officer's access token when an issuer is
// configured. The token's role claim becomes the only role the request may
// act as.
func (s *Service) RequireOfficer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.JWKS == nil {
			next.ServeHTTP(w, r)
			return
		}

		accessToken := s.accessToken(r)
		if accessToken == "" {
			s.writeError(w, r, types.ErrUnauthorizedActor)
			return
		}

		set, err := s.deps.JWKS.Lookup(r.Context(), s.deps.JWKSURL)
		if err != nil {
			s.logger.WithError(err).Error("failed to fetch JWKS")
			s.writeError(w, r, err)
			return
		}

		token, err := jwt.Parse(
			[]byte(accessToken),
			jwt.WithKeySet(set),
			jwt.WithValidate(true),
		)
		if err != nil {
			s.logger.WithError(err).Warn("failed to parse officer token")
			s.writeError(w, r, types.ErrUnauthorizedActor)
			return
		}

		var role string
		if err := token.Get(s.config.AuthRoleClaim, &role); err != nil || !types.ParseRole(role).Reviewer() {
			s.logger.WithField("claim", s.config.AuthRoleClaim).Warn("officer token carries no reviewer role")
			s.writeError(w, r, types.ErrUnauthorizedActor)
			return
		}

		var name string
		if err := token.Get("name", &name); err != nil {
			name, _ = token.Subject()
		}

		ctx := r.Context()
		ctx = context.WithValue(ctx, contextKeyOfficerRole, types.ParseRole(role))
		ctx = context.WithValue(ctx, contextKeyOfficerName, name)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Service) accessToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}

	if s.cookie == nil {
		return ""
	}
	cookie, err := r.Cookie(internal.COOKIE_ACCESS_TOKEN_NAME)
	if err != nil {
		return ""
	}

	var accessToken string
	if err := s.cookie.Decode(internal.COOKIE_ACCESS_TOKEN_NAME, cookie.Value, &accessToken); err != nil {
		s.logger.WithError(err).Warn("failed to decrypt access token cookie")
		return ""
	}
	return accessToken
}

// officerRole checks the claimed role against the verified token, if any.
func officerRole(ctx context.Context, claimed types.Role) error {
	verified, ok := ctx.Value(contextKeyOfficerRole).(types.Role)
	if !ok {
		return nil
	}
	if verified != claimed {
		return types.ErrUnauthorizedActor
	}
	return nil
}

// officerName prefers the name on the verified token over the one supplied
// in the request.
func officerName(ctx context.Context, supplied string) string {
	if name, _ := ctx.Value(contextKeyOfficerName).(string); name != "" {
		return name
	}
	return strings.TrimSpace(supplied)
}

func (s *Service) StripTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path != "/" && strings.HasSuffix(path, "/") {
			newURL := *r.URL
			newURL.Path = strings.TrimSuffix(path, "/")

			http.Redirect(w, r, newURL.String(), http.StatusMovedPermanently)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// readBody keeps the raw bytes for signature checks.
func readBody(r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, limit))
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/model"
	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/store"
)

const (
	sessionCookie     = "sessionid"
	defaultSessionTTL = 14 * 24 * time.Hour
)

type Server struct {
	store         *store.Store
	logger        *slog.Logger
	tracer        trace.Tracer
	sessionTTL    time.Duration
	secureCookies bool
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithSecureCookies marks the session cookie Secure, for deployments behind TLS.
func WithSecureCookies(secure bool) Option {
	return func(s *Server) {
		s.secureCookies = secure
	}
}

func New(st *store.Store, opts ...Option) *Server {
	s := &Server{
		store:      st,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:     otel.Tracer("github.com/Rodney-akong/Alx-DjangoLearnLab/internal/api"),
		sessionTTL: defaultSessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// path makes the trailing slash optional on a route pattern.
func path(p string) string {
	return p + "{slash:/?}"
}

// viewset is the set of handlers behind a router-registered resource.
type viewset struct {
	list, create, retrieve, update, destroy http.HandlerFunc
}

// registerViewset maps prefix and prefix/{id} to v, guarding every handler with perm.
func registerViewset(r *mux.Router, prefix string, v viewset, perm func(http.HandlerFunc) http.HandlerFunc) {
	r.HandleFunc(path(prefix), perm(v.list)).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc(path(prefix), perm(v.create)).Methods(http.MethodPost)
	r.HandleFunc(path(prefix), perm(allow(http.MethodGet, http.MethodHead, http.MethodPost))).Methods(http.MethodOptions)
	item := prefix + "/{id:[0-9]+}"
	r.HandleFunc(path(item), perm(v.retrieve)).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc(path(item), perm(v.update)).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc(path(item), perm(v.destroy)).Methods(http.MethodDelete)
	r.HandleFunc(path(item), perm(allow(http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodDelete))).Methods(http.MethodOptions)
}

// allow answers an OPTIONS request with the methods a route accepts.
func allow(methods ...string) http.HandlerFunc {
	methods = append(methods, http.MethodOptions)
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Allow", strings.Join(methods, ", "))
		respondJSON(w, http.StatusOK, map[string][]string{"methods": methods})
	}
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "Not found.")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method \"%s\" not allowed.", r.Method))
	})
	r.Use(s.tracing, s.authenticate)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet, http.MethodHead)

	books := viewset{
		list:     s.listBooks,
		create:   s.createBook,
		retrieve: s.getBook,
		update:   s.updateBook,
		destroy:  s.deleteBook,
	}
	// Generic-view routes; without a path id the handlers read ?id= or the body.
	r.HandleFunc(path("/books/create"), s.requireAuth(s.createBook)).Methods(http.MethodPost)
	r.HandleFunc(path("/books/detail"), s.readOnlyOrAuth(s.getBook)).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc(path("/books/update"), s.requireAuth(s.updateBook)).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc(path("/books/delete"), s.requireAuth(s.deleteBook)).Methods(http.MethodDelete)
	r.HandleFunc(path("/books/{id:[0-9]+}/update"), s.requireAuth(s.updateBook)).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc(path("/books/{id:[0-9]+}/delete"), s.requireAuth(s.deleteBook)).Methods(http.MethodDelete)
	registerViewset(r, "/books", books, s.readOnlyOrAuth)
	registerViewset(r, "/books_all", books, s.requireAuth)

	registerViewset(r, "/authors", viewset{
		list:     s.listAuthors,
		create:   s.createAuthor,
		retrieve: s.getAuthor,
		update:   s.updateAuthor,
		destroy:  s.deleteAuthor,
	}, s.readOnlyOrAuth)
	r.HandleFunc(path("/authors/{id:[0-9]+}/books"), s.listAuthorBooks).Methods(http.MethodGet, http.MethodHead)

	registerViewset(r, "/posts", viewset{
		list:     s.listPosts,
		create:   s.createPost,
		retrieve: s.getPost,
		update:   s.updatePost,
		destroy:  s.deletePost,
	}, s.readOnlyOrAuth)
	r.HandleFunc(path("/users/{id:[0-9]+}/posts"), s.listUserPosts).Methods(http.MethodGet, http.MethodHead)

	r.HandleFunc(path("/auth/token"), s.obtainToken).Methods(http.MethodPost)
	r.HandleFunc(path("/register"), s.registerForm).Methods(http.MethodGet)
	r.HandleFunc(path("/register"), s.register).Methods(http.MethodPost)
	r.HandleFunc(path("/login"), s.loginForm).Methods(http.MethodGet)
	r.HandleFunc(path("/login"), s.login).Methods(http.MethodPost)
	r.HandleFunc(path("/logout"), s.logout).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc(path("/profile"), s.loginRequired(s.profile)).Methods(http.MethodGet)
	r.HandleFunc(path("/profile"), s.loginRequired(s.updateProfile)).Methods(http.MethodPost)

	return s.loggingMiddleware(r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		ctx, span := s.tracer.Start(r.Context(), r.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
			),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
	})
}

type contextKey string

const userKey contextKey = "user"

// authenticate resolves the caller from an API token or the session cookie.
// A token that does not resolve is rejected outright; a stale session cookie
// just leaves the request anonymous.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		parts := strings.Fields(auth)
		if len(parts) > 0 && (strings.EqualFold(parts[0], "Token") || strings.EqualFold(parts[0], "Bearer")) {
			if len(parts) != 2 {
				respondError(w, http.StatusUnauthorized, "Invalid token header.")
				return
			}
			user, err := s.store.UserByToken(ctx, parts[1])
			if err != nil {
				if errors.Is(err, store.ErrUnauthorized) {
					respondError(w, http.StatusUnauthorized, "Invalid token.")
					return
				}
				s.handleStoreErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, userKey, user)))
			return
		}

		if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
			user, err := s.store.UserBySession(ctx, c.Value)
			switch {
			case err == nil:
				ctx = context.WithValue(ctx, userKey, user)
			case !errors.Is(err, store.ErrUnauthorized):
				s.handleStoreErr(w, r, err)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromRequest(r *http.Request) (model.User, bool) {
	u, ok := r.Context().Value(userKey).(model.User)
	return u, ok
}

// requireAuth lets only identified callers through.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := userFromRequest(r); !ok {
			w.Header().Set("WWW-Authenticate", `Token realm="api"`)
			respondError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		next(w, r)
	}
}

// readOnlyOrAuth lets anyone read and requires an identity for writes.
func (s *Server) readOnlyOrAuth(next http.HandlerFunc) http.HandlerFunc {
	guarded := s.requireAuth(next)
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next(w, r)
		default:
			guarded(w, r)
		}
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "health check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStoreErr(w http.ResponseWriter, r *http.Request, err error) {
	var verrs model.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		respondJSON(w, http.StatusBadRequest, verrs)
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not found.")
	case errors.Is(err, store.ErrUnauthorized):
		respondError(w, http.StatusForbidden, "You do not have permission to perform this action.")
	case errors.Is(err, store.ErrConflict):
		respondError(w, http.StatusConflict, "A conflicting record already exists.")
	case errors.Is(err, context.Canceled):
		s.logger.InfoContext(r.Context(), "request canceled", "path", r.URL.Path)
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "A server error occurred.")
	}
}

// decodeJSON reads the request body as an object of raw fields. An empty body
// decodes to an empty object; form-encoded bodies are accepted as strings.
func decodeJSON(r *http.Request) (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	if isFormRequest(r) {
		values, err := formValues(r)
		if err != nil {
			return nil, err
		}
		for k := range values {
			raw, _ := json.Marshal(values.Get(k))
			out[k] = raw
		}
		return out, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("error reading request body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, errors.New("Invalid data. Expected a dictionary.")
		}
		return nil, fmt.Errorf("JSON parse error - %v", err)
	}
	return out, nil
}

func isFormRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(ct, "multipart/form-data")
}

// formValues returns submitted fields from a form post or a flat JSON object.
func formValues(r *http.Request) (url.Values, error) {
	ct := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(ct, "multipart/form-data"):
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			return nil, fmt.Errorf("error parsing form: %w", err)
		}
		return r.PostForm, nil
	case strings.HasPrefix(ct, "application/json"):
		var raw map[string]any
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("JSON parse error - %v", err)
		}
		values := url.Values{}
		for k, v := range raw {
			if v == nil {
				continue
			}
			values.Set(k, fmt.Sprint(v))
		}
		return values, nil
	default:
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("error parsing form: %w", err)
		}
		return r.PostForm, nil
	}
}

// lookupID finds the target object's id: the path segment first, then the
// id query parameter, then an id field in the body.
func lookupID(r *http.Request, body map[string]json.RawMessage) (int64, bool) {
	if raw, ok := mux.Vars(r)["id"]; ok {
		id, err := strconv.ParseInt(raw, 10, 64)
		return id, err == nil
	}
	if raw := r.URL.Query().Get("id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		return id, err == nil
	}
	if raw, ok := body["id"]; ok {
		var id int64
		if err := json.Unmarshal(raw, &id); err == nil {
			return id, true
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			return id, err == nil
		}
	}
	return 0, false
}

// listParams reads search, ordering, pagination and the given filter names
// from the query string.
func listParams(r *http.Request, filters []string) store.ListParams {
	q := r.URL.Query()
	p := store.ListParams{
		Search:  q.Get("search"),
		Filters: map[string]string{},
	}
	if raw := q.Get("ordering"); raw != "" {
		p.Ordering = strings.Split(raw, ",")
	}
	p.Limit, _ = strconv.Atoi(q.Get("limit"))
	p.Offset, _ = strconv.Atoi(q.Get("offset"))
	for _, name := range filters {
		if v := q.Get(name); v != "" {
			p.Filters[name] = v
		}
	}
	return p
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"detail": msg})
}

package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/model"
	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/store"
)

const (
	loginURL   = "/login/"
	profileURL = "/profile/"

	msgBadLogin      = "Please enter a correct username and password. Note that both fields may be case-sensitive."
	msgBadCredential = "Unable to log in with provided credentials."
)

// loginRequired sends anonymous callers to the login page, remembering where
// they were headed.
func (s *Server) loginRequired(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := userFromRequest(r); !ok {
			http.Redirect(w, r, loginURL+"?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next(w, r)
	}
}

// safeNext accepts only same-site relative paths as a redirect target.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, `/\`) {
		return profileURL
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return profileURL
	}
	return next
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, user model.User) error {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		if err := s.store.DeleteSession(r.Context(), c.Value); err != nil {
			return err
		}
	}
	token, err := s.store.CreateSession(r.Context(), user.ID, s.sessionTTL)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Server) registerForm(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{
		"fields": {"username", "email", "password1", "password2"},
	})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	values, err := formValues(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := s.store.CreateUser(r.Context(), model.RegisterInput{
		Username:  values.Get("username"),
		Email:     values.Get("email"),
		Password1: values.Get("password1"),
		Password2: values.Get("password2"),
	})
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "user registered", "user_id", user.ID, "username", user.Username)
	if err := s.startSession(w, r, user); err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	http.Redirect(w, r, profileURL, http.StatusFound)
}

func (s *Server) loginForm(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"fields": []string{"username", "password"},
		"next":   safeNext(r.URL.Query().Get("next")),
	})
}

// credentials reads username and password, reporting missing ones as field errors.
func credentials(values url.Values) (string, string, model.ValidationErrors) {
	errs := model.ValidationErrors{}
	username, password := strings.TrimSpace(values.Get("username")), values.Get("password")
	if username == "" {
		errs.Add("username", "This field is required.")
	}
	if password == "" {
		errs.Add("password", "This field is required.")
	}
	return username, password, errs
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	values, err := formValues(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	username, password, errs := credentials(values)
	if len(errs) > 0 {
		respondJSON(w, http.StatusBadRequest, errs)
		return
	}
	user, err := s.store.Authenticate(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, store.ErrUnauthorized) {
			respondJSON(w, http.StatusBadRequest, model.ValidationErrors{model.NonFieldErrors: {msgBadLogin}})
			return
		}
		s.handleStoreErr(w, r, err)
		return
	}
	if err := s.startSession(w, r, user); err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	next := values.Get("next")
	if next == "" {
		next = r.URL.Query().Get("next")
	}
	http.Redirect(w, r, safeNext(next), http.StatusFound)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		if err := s.store.DeleteSession(r.Context(), c.Value); err != nil {
			s.handleStoreErr(w, r, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, loginURL, http.StatusFound)
}

type profileResponse struct {
	User    model.User    `json:"user"`
	Profile model.Profile `json:"profile"`
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromRequest(r)
	p, err := s.store.Profile(r.Context(), user.ID)
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profileResponse{User: user, Profile: p})
}

// updateProfile changes only the fields present in the submission.
func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromRequest(r)
	values, err := formValues(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	field := func(name string) *string {
		if _, ok := values[name]; !ok {
			return nil
		}
		v := values.Get(name)
		return &v
	}
	_, _, err = s.store.UpdateProfile(r.Context(), user.ID, model.ProfileInput{
		Bio:    field("bio"),
		Avatar: field("avatar"),
		Email:  field("email"),
	})
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	http.Redirect(w, r, profileURL, http.StatusFound)
}

// obtainToken exchanges credentials for an API token. Each call replaces the
// user's previous token.
func (s *Server) obtainToken(w http.ResponseWriter, r *http.Request) {
	values, err := formValues(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	username, password, errs := credentials(values)
	if len(errs) > 0 {
		respondJSON(w, http.StatusBadRequest, errs)
		return
	}
	user, err := s.store.Authenticate(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, store.ErrUnauthorized) {
			respondJSON(w, http.StatusBadRequest, model.ValidationErrors{model.NonFieldErrors: {msgBadCredential}})
			return
		}
		s.handleStoreErr(w, r, err)
		return
	}
	token, err := s.store.IssueToken(r.Context(), user.ID)
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

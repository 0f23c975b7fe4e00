package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/model"
)

var userColumns = []string{"id", "username", "email", "password_hash", "date_joined"}

const (
	msgUsernameTaken = "A user with that username already exists."
	msgEmailTaken    = "A user with that email already exists."
)

// CreateUser registers a new identity. The user row and its profile are
// written in the same transaction, so every user has exactly one profile.
func (s *Store) CreateUser(ctx context.Context, in model.RegisterInput) (u model.User, err error) {
	ctx, done := s.observe(ctx, "CreateUser")
	defer func() { done(err) }()

	if err := in.Validate().Err(); err != nil {
		return model.User{}, err
	}
	email, _ := model.NormalizeEmail(in.Email)

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password1), s.hashCost)
	if err != nil {
		return model.User{}, errors.Wrap(err, "error hashing password")
	}

	u = model.User{
		Username:     strings.TrimSpace(in.Username),
		Email:        email,
		PasswordHash: string(hash),
		DateJoined:   s.clock(),
	}

	err = s.withTx(ctx, "create user", func(tx *sqlx.Tx) error {
		errs := model.ValidationErrors{}
		taken, err := s.exists(ctx, tx, "users", sq.Eq{"username": u.Username})
		if err != nil {
			return errors.Wrap(err, "error checking username")
		}
		if taken {
			errs.Add("username", msgUsernameTaken)
		}
		taken, err = s.exists(ctx, tx, "users", sq.Eq{"LOWER(email)": strings.ToLower(u.Email)})
		if err != nil {
			return errors.Wrap(err, "error checking email")
		}
		if taken {
			errs.Add("email", msgEmailTaken)
		}
		if err := errs.Err(); err != nil {
			return err
		}

		id, err := s.insert(ctx, tx, s.sb.Insert("users").
			Columns("username", "email", "password_hash", "date_joined").
			Values(u.Username, u.Email, u.PasswordHash, u.DateJoined))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return errors.Wrap(err, "error creating user")
		}
		u.ID = id

		if _, err := s.insert(ctx, tx, s.sb.Insert("profiles").Columns("user_id", "bio").Values(id, "")); err != nil {
			return errors.Wrap(err, "error creating profile")
		}
		return nil
	})
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (s *Store) User(ctx context.Context, id int64) (u model.User, err error) {
	ctx, done := s.observe(ctx, "User")
	defer func() { done(err) }()

	return s.user(ctx, s.db, sq.Eq{"id": id})
}

func (s *Store) UserByUsername(ctx context.Context, username string) (u model.User, err error) {
	ctx, done := s.observe(ctx, "UserByUsername")
	defer func() { done(err) }()

	return s.user(ctx, s.db, sq.Eq{"username": strings.TrimSpace(username)})
}

func (s *Store) user(ctx context.Context, q sqlx.QueryerContext, where sq.Sqlizer) (model.User, error) {
	var u model.User
	if err := s.get(ctx, q, &u, s.sb.Select(userColumns...).From("users").Where(where)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, errors.Wrap(err, "error getting user")
	}
	return u, nil
}

// unusableHash is compared against when the username is unknown, at the
// store's hashing cost, so a failed lookup takes as long as a wrong password.
func (s *Store) unusableHash() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("unusable-password"), s.hashCost)
	})
	return s.dummyHash
}

// Authenticate checks username and password against the stored hash.
func (s *Store) Authenticate(ctx context.Context, username, password string) (u model.User, err error) {
	ctx, done := s.observe(ctx, "Authenticate")
	defer func() { done(err) }()

	u, err = s.user(ctx, s.db, sq.Eq{"username": strings.TrimSpace(username)})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.unusableHash(), []byte(password))
			return model.User{}, ErrUnauthorized
		}
		return model.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return model.User{}, ErrUnauthorized
	}
	return u, nil
}

// DeleteUser removes the user. Profile, posts, sessions and tokens go with it.
func (s *Store) DeleteUser(ctx context.Context, id int64) (err error) {
	ctx, done := s.observe(ctx, "DeleteUser")
	defer func() { done(err) }()

	n, err := s.exec(ctx, s.db, s.sb.Delete("users").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "error deleting user")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Profile returns the user's profile, recreating it if it has gone missing.
func (s *Store) Profile(ctx context.Context, userID int64) (p model.Profile, err error) {
	ctx, done := s.observe(ctx, "Profile")
	defer func() { done(err) }()

	err = s.withTx(ctx, "ensure profile", func(tx *sqlx.Tx) error {
		p, err = s.ensureProfile(ctx, tx, userID)
		return err
	})
	return p, err
}

func (s *Store) ensureProfile(ctx context.Context, tx *sqlx.Tx, userID int64) (model.Profile, error) {
	if _, err := s.user(ctx, tx, sq.Eq{"id": userID}); err != nil {
		return model.Profile{}, err
	}
	_, err := s.exec(ctx, tx, s.sb.Insert("profiles").
		Columns("user_id", "bio").
		Values(userID, "").
		Suffix("ON CONFLICT (user_id) DO NOTHING"))
	if err != nil {
		return model.Profile{}, errors.Wrap(err, "error repairing profile")
	}
	var p model.Profile
	q := s.sb.Select("id", "user_id", "bio", "avatar").From("profiles").Where(sq.Eq{"user_id": userID})
	if err := s.get(ctx, tx, &p, q); err != nil {
		return model.Profile{}, errors.Wrap(err, "error getting profile")
	}
	return p, nil
}

// UpdateProfile applies a partial update to the profile and, when an email is
// given, to the user's email. The email must stay unique among other users.
func (s *Store) UpdateProfile(ctx context.Context, userID int64, in model.ProfileInput) (u model.User, p model.Profile, err error) {
	ctx, done := s.observe(ctx, "UpdateProfile")
	defer func() { done(err) }()

	if err := in.Validate().Err(); err != nil {
		return model.User{}, model.Profile{}, err
	}

	err = s.withTx(ctx, "update profile", func(tx *sqlx.Tx) error {
		p, err = s.ensureProfile(ctx, tx, userID)
		if err != nil {
			return err
		}
		u, err = s.user(ctx, tx, sq.Eq{"id": userID})
		if err != nil {
			return err
		}

		if in.Email != nil {
			email, _ := model.NormalizeEmail(*in.Email)
			taken, err := s.exists(ctx, tx, "users", sq.And{
				sq.Eq{"LOWER(email)": strings.ToLower(email)},
				sq.NotEq{"id": userID},
			})
			if err != nil {
				return errors.Wrap(err, "error checking email")
			}
			if taken {
				return model.ValidationErrors{"email": {msgEmailTaken}}
			}
			if _, err := s.exec(ctx, tx, s.sb.Update("users").Set("email", email).Where(sq.Eq{"id": userID})); err != nil {
				if isUniqueViolation(err) {
					return model.ValidationErrors{"email": {msgEmailTaken}}
				}
				return errors.Wrap(err, "error updating email")
			}
			u.Email = email
		}

		if in.Bio != nil {
			p.Bio = *in.Bio
		}
		if in.Avatar != nil {
			if a := strings.TrimSpace(*in.Avatar); a != "" {
				p.Avatar = &a
			} else {
				p.Avatar = nil
			}
		}
		_, err = s.exec(ctx, tx, s.sb.Update("profiles").
			Set("bio", p.Bio).
			Set("avatar", p.Avatar).
			Where(sq.Eq{"id": p.ID}))
		if err != nil {
			return errors.Wrap(err, "error updating profile")
		}
		return nil
	})
	if err != nil {
		return model.User{}, model.Profile{}, err
	}
	return u, p, nil
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateSession opens a server-side session for userID and returns the
// opaque session key. Only the key's hash is stored.
func (s *Store) CreateSession(ctx context.Context, userID int64, ttl time.Duration) (token string, err error) {
	ctx, done := s.observe(ctx, "CreateSession")
	defer func() { done(err) }()

	token = newToken()
	now := s.clock()
	_, err = s.exec(ctx, s.db, s.sb.Insert("sessions").
		Columns("token_hash", "user_id", "created_at", "expires_at").
		Values(hashToken(token), userID, now, now.Add(ttl)))
	if err != nil {
		return "", errors.Wrap(err, "error creating session")
	}
	return token, nil
}

func (s *Store) UserBySession(ctx context.Context, token string) (u model.User, err error) {
	ctx, done := s.observe(ctx, "UserBySession")
	defer func() { done(err) }()

	q := s.sb.Select("u.id", "u.username", "u.email", "u.password_hash", "u.date_joined").
		From("sessions s").
		Join("users u ON u.id = s.user_id").
		Where(sq.Eq{"s.token_hash": hashToken(token)}).
		Where(sq.Gt{"s.expires_at": s.clock()})
	if err := s.get(ctx, s.db, &u, q); err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.User{}, ErrUnauthorized
		}
		return model.User{}, errors.Wrap(err, "error resolving session")
	}
	return u, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) (err error) {
	ctx, done := s.observe(ctx, "DeleteSession")
	defer func() { done(err) }()

	if _, err := s.exec(ctx, s.db, s.sb.Delete("sessions").Where(sq.Eq{"token_hash": hashToken(token)})); err != nil {
		return errors.Wrap(err, "error deleting session")
	}
	return nil
}

// PurgeSessions deletes expired sessions and reports how many were removed.
func (s *Store) PurgeSessions(ctx context.Context) (n int64, err error) {
	ctx, done := s.observe(ctx, "PurgeSessions")
	defer func() { done(err) }()

	n, err = s.exec(ctx, s.db, s.sb.Delete("sessions").Where(sq.LtOrEq{"expires_at": s.clock()}))
	if err != nil {
		return 0, errors.Wrap(err, "error purging sessions")
	}
	return n, nil
}

// IssueToken creates a new API token for userID, replacing any previous one.
func (s *Store) IssueToken(ctx context.Context, userID int64) (token string, err error) {
	ctx, done := s.observe(ctx, "IssueToken")
	defer func() { done(err) }()

	token = newToken()
	err = s.withTx(ctx, "issue token", func(tx *sqlx.Tx) error {
		if _, err := s.exec(ctx, tx, s.sb.Delete("auth_tokens").Where(sq.Eq{"user_id": userID})); err != nil {
			return errors.Wrap(err, "error revoking token")
		}
		_, err := s.exec(ctx, tx, s.sb.Insert("auth_tokens").
			Columns("token_hash", "user_id", "created_at").
			Values(hashToken(token), userID, s.clock()))
		if err != nil {
			return errors.Wrap(err, "error creating token")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *Store) UserByToken(ctx context.Context, token string) (u model.User, err error) {
	ctx, done := s.observe(ctx, "UserByToken")
	defer func() { done(err) }()

	q := s.sb.Select("u.id", "u.username", "u.email", "u.password_hash", "u.date_joined").
		From("auth_tokens t").
		Join("users u ON u.id = t.user_id").
		Where(sq.Eq{"t.token_hash": hashToken(token)})
	if err := s.get(ctx, s.db, &u, q); err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.User{}, ErrUnauthorized
		}
		return model.User{}, errors.Wrap(err, "error resolving token")
	}
	return u, nil
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/model"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC)}

	s, err := Open(ctx, DriverSQLite, ":memory:", WithBcryptCost(bcrypt.MinCost), WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s, clock
}

func ptr[T any](v T) *T { return &v }

func mustAuthor(t *testing.T, s *Store, name string) model.Author {
	t.Helper()
	a, err := s.CreateAuthor(context.Background(), model.AuthorInput{Name: ptr(name)})
	require.NoError(t, err)
	return a
}

func mustBook(t *testing.T, s *Store, title string, year int, authorID int64, published *model.Date) model.Book {
	t.Helper()
	in := model.BookInput{
		Title:           ptr(title),
		PublicationYear: ptr(year),
		Author:          ptr(authorID),
	}
	if published != nil {
		in.PublishedDate = model.Nullable[model.Date]{Set: true, Value: published}
	}
	b, err := s.CreateBook(context.Background(), in)
	require.NoError(t, err)
	return b
}

func mustUser(t *testing.T, s *Store, username string) model.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), model.RegisterInput{
		Username:  username,
		Email:     username + "@example.com",
		Password1: "correct-horse-battery",
		Password2: "correct-horse-battery",
	})
	require.NoError(t, err)
	return u
}

func titles(books []model.Book) []string {
	out := make([]string, len(books))
	for i, b := range books {
		out[i] = b.Title
	}
	return out
}

func validationErrs(t *testing.T, err error) model.ValidationErrors {
	t.Helper()
	var verrs model.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	return verrs
}

func TestMigrateIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestBookLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	author := mustAuthor(t, s, "William Vincent")
	published := model.NewDate(2020, time.March, 1)
	created := mustBook(t, s, "Django for APIs", 2020, author.ID, &published)
	assert.NotZero(t, created.ID)

	got, err := s.Book(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	books, err := s.ListBooks(ctx, ListParams{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Django for APIs"}, titles(books))

	require.NoError(t, s.DeleteBook(ctx, created.ID))
	_, err = s.Book(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteBook(ctx, created.ID), ErrNotFound)
}

func TestDeleteAuthorCascadesToBooks(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	author := mustAuthor(t, s, "Zed Shaw")
	other := mustAuthor(t, s, "William Vincent")
	b1 := mustBook(t, s, "Learn Python the Hard Way", 2013, author.ID, nil)
	mustBook(t, s, "Learn Ruby the Hard Way", 2014, author.ID, nil)
	mustBook(t, s, "Django for APIs", 2020, other.ID, nil)

	require.NoError(t, s.DeleteAuthor(ctx, author.ID))

	books, err := s.ListBooks(ctx, ListParams{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Django for APIs"}, titles(books))
	_, err = s.Book(ctx, b1.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteAuthor(ctx, author.ID), ErrNotFound)
}

func TestCreateBookValidation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	author := mustAuthor(t, s, "Someone")

	_, err := s.CreateBook(ctx, model.BookInput{Title: ptr("Tomorrow"), PublicationYear: ptr(2025), Author: ptr(author.ID)})
	verrs := validationErrs(t, err)
	assert.Equal(t, []string{"Publication year cannot be in the future."}, verrs["publication_year"])

	_, err = s.CreateBook(ctx, model.BookInput{Title: ptr("Today"), PublicationYear: ptr(2024), Author: ptr(author.ID)})
	require.NoError(t, err)

	_, err = s.CreateBook(ctx, model.BookInput{Title: ptr("Orphan"), PublicationYear: ptr(2000), Author: ptr(int64(999))})
	verrs = validationErrs(t, err)
	assert.Equal(t, []string{model.InvalidPK(999)}, verrs["author"])

	books, err := s.ListBooks(ctx, ListParams{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Today"}, titles(books))
}

func TestUpdateBook(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	author := mustAuthor(t, s, "A")
	other := mustAuthor(t, s, "B")
	published := model.NewDate(2019, time.June, 15)
	b := mustBook(t, s, "Old Title", 2019, author.ID, &published)

	patched, err := s.UpdateBook(ctx, b.ID, model.BookInput{Title: ptr("New Title")}, true)
	require.NoError(t, err)
	assert.Equal(t, "New Title", patched.Title)
	assert.Equal(t, 2019, patched.PublicationYear)
	assert.Equal(t, &published, patched.PublishedDate)

	_, err = s.UpdateBook(ctx, b.ID, model.BookInput{Title: ptr("Only Title")}, false)
	verrs := validationErrs(t, err)
	assert.Contains(t, verrs, "publication_year")
	assert.Contains(t, verrs, "author")

	replaced, err := s.UpdateBook(ctx, b.ID, model.BookInput{
		Title:           ptr("Replaced"),
		PublicationYear: ptr(2001),
		Author:          ptr(other.ID),
		PublishedDate:   model.Nullable[model.Date]{Set: true},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, other.ID, replaced.AuthorID)
	assert.Nil(t, replaced.PublishedDate)

	stored, err := s.Book(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, replaced, stored)

	_, err = s.UpdateBook(ctx, b.ID, model.BookInput{Author: ptr(int64(404))}, true)
	verrs = validationErrs(t, err)
	assert.Equal(t, []string{model.InvalidPK(404)}, verrs["author"])

	_, err = s.UpdateBook(ctx, 12345, model.BookInput{Title: ptr("x")}, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListBooksSearch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	vincent := mustAuthor(t, s, "William Vincent")
	shaw := mustAuthor(t, s, "Zed Shaw")
	mustBook(t, s, "Django for APIs", 2020, vincent.ID, nil)
	mustBook(t, s, "Learn Python the Hard Way", 2013, shaw.ID, nil)

	for search, want := range map[string][]string{
		"django":      {"Django for APIs"},
		"DJANGO":      {"Django for APIs"},
		"zed":         {"Learn Python the Hard Way"},
		"learn hard":  {"Learn Python the Hard Way"},
		"learn apis":  {},
		"100%":        {},
		"":            {"Django for APIs", "Learn Python the Hard Way"},
		"the":         {"Learn Python the Hard Way"},
		"william,api": {"Django for APIs"},
	} {
		books, err := s.ListBooks(ctx, ListParams{Search: search})
		require.NoError(t, err, search)
		assert.Equal(t, want, titles(books), "search %q", search)
	}
}

func TestListBooksSearchFoldsUnicode(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a := mustAuthor(t, s, "Henri Bergson")
	mustBook(t, s, "Élan Vital", 1907, a.ID, nil)
	mustBook(t, s, "Matter and Memory", 1896, a.ID, nil)

	for _, search := range []string{"Élan", "élan", "ÉLAN", "vital"} {
		books, err := s.ListBooks(ctx, ListParams{Search: search})
		require.NoError(t, err, search)
		assert.Equal(t, []string{"Élan Vital"}, titles(books), "search %q", search)
	}

	authors, err := s.ListAuthors(ctx, ListParams{Search: "BERGSON"})
	require.NoError(t, err)
	require.Len(t, authors, 1)
}

func TestListBooksFiltersAndOrdering(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	author := mustAuthor(t, s, "A")
	other := mustAuthor(t, s, "B")
	d1, d2, d3 := model.NewDate(2020, time.March, 1), model.NewDate(2019, time.June, 15), model.NewDate(2013, time.October, 1)
	mustBook(t, s, "Beta", 2019, author.ID, &d2)
	mustBook(t, s, "Gamma", 2013, other.ID, &d3)
	mustBook(t, s, "Alpha", 2020, author.ID, &d1)

	books, err := s.ListBooks(ctx, ListParams{Ordering: []string{"-published_date"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, titles(books))

	books, err = s.ListBooks(ctx, ListParams{Ordering: []string{"publication_year"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Gamma", "Beta", "Alpha"}, titles(books))

	books, err = s.ListBooks(ctx, ListParams{Ordering: []string{"nonsense"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, titles(books))

	books, err = s.ListBooks(ctx, ListParams{Filters: map[string]string{"author": "1"}, Ordering: []string{"-title"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Beta", "Alpha"}, titles(books))

	books, err = s.ListBooks(ctx, ListParams{Filters: map[string]string{"publication_year": "2013", "title": "Gamma"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Gamma"}, titles(books))

	books, err = s.ListBooks(ctx, ListParams{Filters: map[string]string{"unknown": "x"}})
	require.NoError(t, err)
	assert.Len(t, books, 3)

	_, err = s.ListBooks(ctx, ListParams{Filters: map[string]string{"publication_year": "recent"}})
	verrs := validationErrs(t, err)
	assert.Equal(t, []string{"Enter a number."}, verrs["publication_year"])

	books, err = s.ListBooks(ctx, ListParams{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Beta", "Gamma"}, titles(books))

	books, err = s.ListBooks(ctx, ListParams{Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"Gamma"}, titles(books))
}

func TestListAuthorsNestsBooks(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	zed := mustAuthor(t, s, "Zed Shaw")
	mustAuthor(t, s, "Anne Empty")
	mustBook(t, s, "Learn Ruby the Hard Way", 2014, zed.ID, nil)
	mustBook(t, s, "Learn Python the Hard Way", 2013, zed.ID, nil)

	authors, err := s.ListAuthors(ctx, ListParams{})
	require.NoError(t, err)
	require.Len(t, authors, 2)
	assert.Equal(t, "Anne Empty", authors[0].Name)
	assert.Empty(t, authors[0].Books)
	assert.NotNil(t, authors[0].Books)
	assert.Equal(t, []string{"Learn Python the Hard Way", "Learn Ruby the Hard Way"}, titles(authors[1].Books))

	authors, err = s.ListAuthors(ctx, ListParams{Search: "zed"})
	require.NoError(t, err)
	require.Len(t, authors, 1)

	updated, err := s.UpdateAuthor(ctx, zed.ID, model.AuthorInput{Name: ptr("Zed A. Shaw")}, false)
	require.NoError(t, err)
	assert.Equal(t, "Zed A. Shaw", updated.Name)
	assert.Len(t, updated.Books, 2)

	_, err = s.UpdateAuthor(ctx, zed.ID, model.AuthorInput{}, false)
	assert.Contains(t, validationErrs(t, err), "name")
}

func TestPostOwnership(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")

	post, err := s.CreatePost(ctx, alice.ID, model.PostInput{Title: ptr("Hello"), Content: ptr("First post")})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, post.AuthorID)
	assert.True(t, post.PublishedDate.Equal(clock.now))

	_, err = s.UpdatePost(ctx, post.ID, bob.ID, model.PostInput{Title: ptr("Hijacked")}, true)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, s.DeletePost(ctx, post.ID, bob.ID), ErrUnauthorized)

	clock.Advance(time.Hour)
	updated, err := s.UpdatePost(ctx, post.ID, alice.ID, model.PostInput{Title: ptr("Hello again")}, true)
	require.NoError(t, err)
	assert.Equal(t, "Hello again", updated.Title)
	assert.Equal(t, "First post", updated.Content)
	assert.True(t, updated.PublishedDate.Equal(post.PublishedDate))

	stored, err := s.Post(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello again", stored.Title)
	assert.True(t, stored.PublishedDate.Equal(post.PublishedDate))

	require.NoError(t, s.DeletePost(ctx, post.ID, alice.ID))
	_, err = s.Post(ctx, post.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPostsOrderingAndFilters(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")

	for _, p := range []struct {
		author int64
		title  string
	}{
		{alice.ID, "first"},
		{bob.ID, "second"},
		{alice.ID, "third"},
	} {
		_, err := s.CreatePost(ctx, p.author, model.PostInput{Title: ptr(p.title), Content: ptr("about django")})
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	postTitles := func(posts []model.Post) []string {
		out := make([]string, len(posts))
		for i, p := range posts {
			out[i] = p.Title
		}
		return out
	}

	posts, err := s.ListPosts(ctx, ListParams{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, postTitles(posts))

	posts, err = s.ListPosts(ctx, ListParams{Ordering: []string{"-published_date"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second", "first"}, postTitles(posts))

	posts, err = s.ListPosts(ctx, ListParams{Filters: map[string]string{"author": "1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "third"}, postTitles(posts))

	posts, err = s.ListPosts(ctx, ListParams{Search: "SECOND"})
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, postTitles(posts))
}

func TestCreateUserCreatesProfile(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	u := mustUser(t, s, "alice")
	assert.NotEqual(t, "correct-horse-battery", u.PasswordHash)
	assert.True(t, u.DateJoined.Equal(clock.now))

	p, err := s.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.UserID)
	assert.Empty(t, p.Bio)
	assert.Nil(t, p.Avatar)

	var n int
	require.NoError(t, s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM profiles WHERE user_id = ?", u.ID))
	assert.Equal(t, 1, n)
}

func TestCreateUserUniqueness(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	mustUser(t, s, "alice")

	_, err := s.CreateUser(ctx, model.RegisterInput{
		Username: "alice", Email: "other@example.com",
		Password1: "correct-horse-battery", Password2: "correct-horse-battery",
	})
	assert.Equal(t, []string{msgUsernameTaken}, validationErrs(t, err)["username"])

	_, err = s.CreateUser(ctx, model.RegisterInput{
		Username: "alice2", Email: "ALICE@EXAMPLE.COM",
		Password1: "correct-horse-battery", Password2: "correct-horse-battery",
	})
	assert.Equal(t, []string{msgEmailTaken}, validationErrs(t, err)["email"])

	_, err = s.CreateUser(ctx, model.RegisterInput{
		Username: "carol", Email: "carol@example.com",
		Password1: "12345678", Password2: "12345678",
	})
	assert.Contains(t, validationErrs(t, err), "password2")

	var n int
	require.NoError(t, s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM users"))
	assert.Equal(t, 1, n)
}

func TestProfileIsRecreatedWhenMissing(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "alice")

	_, err := s.db.ExecContext(ctx, "DELETE FROM profiles WHERE user_id = ?", u.ID)
	require.NoError(t, err)

	p, err := s.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.UserID)

	_, err = s.Profile(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	mustUser(t, s, "bob")

	u, p, err := s.UpdateProfile(ctx, alice.ID, model.ProfileInput{
		Bio:    ptr("Reader."),
		Avatar: ptr("avatars/alice.png"),
		Email:  ptr("alice@Example.ORG"),
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.org", u.Email)
	assert.Equal(t, "Reader.", p.Bio)
	assert.Equal(t, ptr("avatars/alice.png"), p.Avatar)

	// Keeping one's own address is not a conflict.
	_, p, err = s.UpdateProfile(ctx, alice.ID, model.ProfileInput{Email: ptr("alice@example.org"), Avatar: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, p.Avatar)
	assert.Equal(t, "Reader.", p.Bio)

	_, _, err = s.UpdateProfile(ctx, alice.ID, model.ProfileInput{Email: ptr("BOB@example.com")})
	assert.Equal(t, []string{msgEmailTaken}, validationErrs(t, err)["email"])

	_, _, err = s.UpdateProfile(ctx, alice.ID, model.ProfileInput{Email: ptr("nope")})
	assert.Contains(t, validationErrs(t, err), "email")

	stored, err := s.User(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.org", stored.Email)
}

func TestAuthenticate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, s, "alice")

	u, err := s.Authenticate(ctx, "alice", "correct-horse-battery")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, u.ID)

	_, err = s.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = s.Authenticate(ctx, "mallory", "correct-horse-battery")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUnusableHashUsesStoreCost(t *testing.T) {
	s, _ := newTestStore(t)
	cost, err := bcrypt.Cost(s.unusableHash())
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	st, err := Open(context.Background(), DriverSQLite, ":memory:", WithBcryptCost(bcrypt.MinCost+2))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	cost, err = bcrypt.Cost(st.unusableHash())
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+2, cost)
}

func TestSessions(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, s, "alice")

	token, err := s.CreateSession(ctx, alice.ID, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	u, err := s.UserBySession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, u.ID)

	_, err = s.UserBySession(ctx, "bogus")
	assert.ErrorIs(t, err, ErrUnauthorized)

	clock.Advance(2 * time.Hour)
	_, err = s.UserBySession(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	fresh, err := s.CreateSession(ctx, alice.ID, time.Hour)
	require.NoError(t, err)
	n, err := s.PurgeSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.UserBySession(ctx, fresh)
	require.NoError(t, err)
	require.NoError(t, s.DeleteSession(ctx, fresh))
	_, err = s.UserBySession(ctx, fresh)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestIssueTokenReplacesPrevious(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, s, "alice")

	first, err := s.IssueToken(ctx, alice.ID)
	require.NoError(t, err)
	u, err := s.UserByToken(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, u.ID)

	second, err := s.IssueToken(ctx, alice.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = s.UserByToken(ctx, first)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = s.UserByToken(ctx, second)
	require.NoError(t, err)

	var stored string
	require.NoError(t, s.db.GetContext(ctx, &stored, "SELECT token_hash FROM auth_tokens WHERE user_id = ?", alice.ID))
	assert.NotEqual(t, second, stored)
}

func TestDeleteUserCascades(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	_, err := s.CreatePost(ctx, alice.ID, model.PostInput{Title: ptr("t"), Content: ptr("c")})
	require.NoError(t, err)
	token, err := s.IssueToken(ctx, alice.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, alice.ID))

	posts, err := s.ListPosts(ctx, ListParams{})
	require.NoError(t, err)
	assert.Empty(t, posts)
	_, err = s.UserByToken(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = s.UserByUsername(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteUser(ctx, alice.ID), ErrNotFound)
}

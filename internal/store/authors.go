package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/model"
)

// ListAuthors returns the authors matching p, each with its books attached.
func (s *Store) ListAuthors(ctx context.Context, p ListParams) (authors []model.Author, err error) {
	ctx, done := s.observe(ctx, "ListAuthors")
	defer func() { done(err) }()

	q, err := authorList.apply(s.sb.Select("id", "name").From("authors"), p, s.contains)
	if err != nil {
		return nil, err
	}
	authors = []model.Author{}
	if err := s.selectAll(ctx, s.db, &authors, q); err != nil {
		return nil, errors.Wrap(err, "error listing authors")
	}
	if err := s.attachBooks(ctx, s.db, authors); err != nil {
		return nil, err
	}
	return authors, nil
}

func (s *Store) Author(ctx context.Context, id int64) (a model.Author, err error) {
	ctx, done := s.observe(ctx, "Author")
	defer func() { done(err) }()

	return s.author(ctx, s.db, id)
}

func (s *Store) author(ctx context.Context, q sqlx.QueryerContext, id int64) (model.Author, error) {
	var a model.Author
	if err := s.get(ctx, q, &a, s.sb.Select("id", "name").From("authors").Where(sq.Eq{"id": id})); err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Author{}, ErrNotFound
		}
		return model.Author{}, errors.Wrap(err, "error getting author")
	}
	authors := []model.Author{a}
	if err := s.attachBooks(ctx, q, authors); err != nil {
		return model.Author{}, err
	}
	return authors[0], nil
}

// attachBooks loads the books of all given authors in one query.
func (s *Store) attachBooks(ctx context.Context, q sqlx.QueryerContext, authors []model.Author) error {
	if len(authors) == 0 {
		return nil
	}
	ids := make([]int64, len(authors))
	byID := make(map[int64]int, len(authors))
	for i := range authors {
		ids[i] = authors[i].ID
		byID[authors[i].ID] = i
		authors[i].Books = []model.Book{}
	}

	var books []model.Book
	query := s.selectBooks().Where(sq.Eq{"b.author_id": ids}).OrderBy("b.title ASC", "b.id ASC")
	if err := s.selectAll(ctx, q, &books, query); err != nil {
		return errors.Wrap(err, "error loading author books")
	}
	for _, b := range books {
		i := byID[b.AuthorID]
		authors[i].Books = append(authors[i].Books, b)
	}
	return nil
}

func (s *Store) CreateAuthor(ctx context.Context, in model.AuthorInput) (a model.Author, err error) {
	ctx, done := s.observe(ctx, "CreateAuthor")
	defer func() { done(err) }()

	if err := in.Validate(false).Err(); err != nil {
		return model.Author{}, err
	}
	in.ApplyTo(&a)

	id, err := s.insert(ctx, s.db, s.sb.Insert("authors").Columns("name").Values(a.Name))
	if err != nil {
		return model.Author{}, errors.Wrap(err, "error creating author")
	}
	a.ID = id
	a.Books = []model.Book{}
	return a, nil
}

func (s *Store) UpdateAuthor(ctx context.Context, id int64, in model.AuthorInput, partial bool) (a model.Author, err error) {
	ctx, done := s.observe(ctx, "UpdateAuthor")
	defer func() { done(err) }()

	err = s.withTx(ctx, "update author", func(tx *sqlx.Tx) error {
		a, err = s.author(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := in.Validate(partial).Err(); err != nil {
			return err
		}
		in.ApplyTo(&a)
		if _, err := s.exec(ctx, tx, s.sb.Update("authors").Set("name", a.Name).Where(sq.Eq{"id": id})); err != nil {
			return errors.Wrap(err, "error updating author")
		}
		return nil
	})
	if err != nil {
		return model.Author{}, err
	}
	return a, nil
}

// DeleteAuthor removes the author; the schema cascades the delete to its books.
func (s *Store) DeleteAuthor(ctx context.Context, id int64) (err error) {
	ctx, done := s.observe(ctx, "DeleteAuthor")
	defer func() { done(err) }()

	n, err := s.exec(ctx, s.db, s.sb.Delete("authors").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "error deleting author")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/model"
)

var bookColumns = []string{"b.id", "b.title", "b.publication_year", "b.author_id", "b.published_date", "b.isbn", "b.pages"}

func (s *Store) selectBooks() sq.SelectBuilder {
	return s.sb.Select(bookColumns...).
		From("books b").
		Join("authors a ON a.id = b.author_id")
}

// ListBooks returns the books matching p. Search covers the title and the
// author's name.
func (s *Store) ListBooks(ctx context.Context, p ListParams) (books []model.Book, err error) {
	ctx, done := s.observe(ctx, "ListBooks")
	defer func() { done(err) }()

	q, err := bookList.apply(s.selectBooks(), p, s.contains)
	if err != nil {
		return nil, err
	}
	books = []model.Book{}
	if err := s.selectAll(ctx, s.db, &books, q); err != nil {
		return nil, errors.Wrap(err, "error listing books")
	}
	return books, nil
}

func (s *Store) Book(ctx context.Context, id int64) (b model.Book, err error) {
	ctx, done := s.observe(ctx, "Book")
	defer func() { done(err) }()

	return s.book(ctx, s.db, id)
}

func (s *Store) book(ctx context.Context, q sqlx.QueryerContext, id int64) (model.Book, error) {
	var b model.Book
	if err := s.get(ctx, q, &b, s.selectBooks().Where(sq.Eq{"b.id": id})); err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Book{}, ErrNotFound
		}
		return model.Book{}, errors.Wrap(err, "error getting book")
	}
	return b, nil
}

func (s *Store) CreateBook(ctx context.Context, in model.BookInput) (b model.Book, err error) {
	ctx, done := s.observe(ctx, "CreateBook")
	defer func() { done(err) }()

	if err := in.Validate(false, s.now()).Err(); err != nil {
		return model.Book{}, err
	}
	in.ApplyTo(&b)

	err = s.withTx(ctx, "create book", func(tx *sqlx.Tx) error {
		if err := s.checkAuthor(ctx, tx, b.AuthorID); err != nil {
			return err
		}
		id, err := s.insert(ctx, tx, s.sb.Insert("books").
			Columns("title", "publication_year", "author_id", "published_date", "isbn", "pages").
			Values(b.Title, b.PublicationYear, b.AuthorID, b.PublishedDate, b.ISBN, b.Pages))
		if err != nil {
			return s.bookWriteErr(err, b.AuthorID, "error creating book")
		}
		b.ID = id
		return nil
	})
	if err != nil {
		return model.Book{}, err
	}
	return b, nil
}

// UpdateBook applies in to the stored book. With partial set, absent fields
// keep their stored values; otherwise every required field must be present.
func (s *Store) UpdateBook(ctx context.Context, id int64, in model.BookInput, partial bool) (b model.Book, err error) {
	ctx, done := s.observe(ctx, "UpdateBook")
	defer func() { done(err) }()

	err = s.withTx(ctx, "update book", func(tx *sqlx.Tx) error {
		b, err = s.book(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := in.Validate(partial, s.now()).Err(); err != nil {
			return err
		}
		in.ApplyTo(&b)
		if in.Author != nil {
			if err := s.checkAuthor(ctx, tx, b.AuthorID); err != nil {
				return err
			}
		}
		_, err = s.exec(ctx, tx, s.sb.Update("books").
			SetMap(map[string]any{
				"title":            b.Title,
				"publication_year": b.PublicationYear,
				"author_id":        b.AuthorID,
				"published_date":   b.PublishedDate,
				"isbn":             b.ISBN,
				"pages":            b.Pages,
			}).
			Where(sq.Eq{"id": id}))
		if err != nil {
			return s.bookWriteErr(err, b.AuthorID, "error updating book")
		}
		return nil
	})
	if err != nil {
		return model.Book{}, err
	}
	return b, nil
}

func (s *Store) DeleteBook(ctx context.Context, id int64) (err error) {
	ctx, done := s.observe(ctx, "DeleteBook")
	defer func() { done(err) }()

	n, err := s.exec(ctx, s.db, s.sb.Delete("books").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "error deleting book")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// checkAuthor reports a missing author as a field error on "author".
func (s *Store) checkAuthor(ctx context.Context, q sqlx.QueryerContext, authorID int64) error {
	ok, err := s.exists(ctx, q, "authors", sq.Eq{"id": authorID})
	if err != nil {
		return errors.Wrap(err, "error checking author")
	}
	if !ok {
		return model.ValidationErrors{"author": {model.InvalidPK(authorID)}}
	}
	return nil
}

func (s *Store) bookWriteErr(err error, authorID int64, msg string) error {
	if isForeignKeyViolation(err) {
		return model.ValidationErrors{"author": {model.InvalidPK(authorID)}}
	}
	return errors.Wrap(err, msg)
}

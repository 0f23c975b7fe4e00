package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/model"
)

var postColumns = []string{"id", "title", "content", "published_date", "author_id"}

func (s *Store) ListPosts(ctx context.Context, p ListParams) (posts []model.Post, err error) {
	ctx, done := s.observe(ctx, "ListPosts")
	defer func() { done(err) }()

	q, err := postList.apply(s.sb.Select(postColumns...).From("posts"), p, s.contains)
	if err != nil {
		return nil, err
	}
	posts = []model.Post{}
	if err := s.selectAll(ctx, s.db, &posts, q); err != nil {
		return nil, errors.Wrap(err, "error listing posts")
	}
	return posts, nil
}

func (s *Store) Post(ctx context.Context, id int64) (p model.Post, err error) {
	ctx, done := s.observe(ctx, "Post")
	defer func() { done(err) }()

	return s.post(ctx, s.db, id)
}

func (s *Store) post(ctx context.Context, q sqlx.QueryerContext, id int64) (model.Post, error) {
	var p model.Post
	if err := s.get(ctx, q, &p, s.sb.Select(postColumns...).From("posts").Where(sq.Eq{"id": id})); err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Post{}, ErrNotFound
		}
		return model.Post{}, errors.Wrap(err, "error getting post")
	}
	return p, nil
}

// CreatePost stores a post by authorID. The publication timestamp is set
// here and never changes afterwards.
func (s *Store) CreatePost(ctx context.Context, authorID int64, in model.PostInput) (p model.Post, err error) {
	ctx, done := s.observe(ctx, "CreatePost")
	defer func() { done(err) }()

	if err := in.Validate(false).Err(); err != nil {
		return model.Post{}, err
	}
	in.ApplyTo(&p)
	p.AuthorID = authorID
	p.PublishedDate = s.clock()

	id, err := s.insert(ctx, s.db, s.sb.Insert("posts").
		Columns("title", "content", "published_date", "author_id").
		Values(p.Title, p.Content, p.PublishedDate, p.AuthorID))
	if err != nil {
		if isForeignKeyViolation(err) {
			return model.Post{}, ErrUnauthorized
		}
		return model.Post{}, errors.Wrap(err, "error creating post")
	}
	p.ID = id
	return p, nil
}

// UpdatePost edits title and content. Only the post's author may do so.
func (s *Store) UpdatePost(ctx context.Context, id, requesterID int64, in model.PostInput, partial bool) (p model.Post, err error) {
	ctx, done := s.observe(ctx, "UpdatePost")
	defer func() { done(err) }()

	err = s.withTx(ctx, "update post", func(tx *sqlx.Tx) error {
		p, err = s.post(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.AuthorID != requesterID {
			return ErrUnauthorized
		}
		if err := in.Validate(partial).Err(); err != nil {
			return err
		}
		in.ApplyTo(&p)
		_, err := s.exec(ctx, tx, s.sb.Update("posts").
			Set("title", p.Title).
			Set("content", p.Content).
			Where(sq.Eq{"id": id}))
		if err != nil {
			return errors.Wrap(err, "error updating post")
		}
		return nil
	})
	if err != nil {
		return model.Post{}, err
	}
	return p, nil
}

func (s *Store) DeletePost(ctx context.Context, id, requesterID int64) (err error) {
	ctx, done := s.observe(ctx, "DeletePost")
	defer func() { done(err) }()

	return s.withTx(ctx, "delete post", func(tx *sqlx.Tx) error {
		p, err := s.post(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.AuthorID != requesterID {
			return ErrUnauthorized
		}
		if _, err := s.exec(ctx, tx, s.sb.Delete("posts").Where(sq.Eq{"id": id})); err != nil {
			return errors.Wrap(err, "error deleting post")
		}
		return nil
	})
}

package store

import (
	"context"
	"database/sql"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
)

type Store struct {
	db       *sqlx.DB
	driver   string
	sb       sq.StatementBuilderType
	obs      *observer
	now      func() time.Time
	hashCost int

	dummyOnce sync.Once
	dummyHash []byte
}

type Option func(*Store)

// WithClock replaces time.Now, which drives timestamps and the publication year ceiling.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithBcryptCost lowers the password hashing cost, mostly for tests.
func WithBcryptCost(cost int) Option {
	return func(s *Store) {
		s.hashCost = cost
	}
}

// Open connects to the database identified by driver and dsn. SQLite
// connections get foreign keys enabled and a single shared connection, so an
// in-memory database survives for the lifetime of the Store.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	switch driver {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres, DriverPgx:
	default:
		return nil, errors.Errorf("unsupported database driver %q", driver)
	}

	db, err := connect(ctx, driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "error connecting to %s", driver)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	return New(db, opts...), nil
}

// New wraps an existing connection pool. SQLite pools should come from Open,
// whose connections provide the casefold() function search relies on.
func New(db *sqlx.DB, opts ...Option) *Store {
	var placeholder sq.PlaceholderFormat = sq.Question
	if db.DriverName() != DriverSQLite {
		placeholder = sq.Dollar
	}
	s := &Store{
		db:       db,
		driver:   db.DriverName(),
		sb:       sq.StatementBuilder.PlaceholderFormat(placeholder),
		obs:      newObserver(),
		now:      time.Now,
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// sqliteCaseFold is the SQLite driver used by Open. Its connections carry a
// casefold() function because SQLite's own LOWER only folds ASCII.
const sqliteCaseFold = "sqlite3_casefold"

func init() {
	sql.Register(sqliteCaseFold, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("casefold", strings.ToLower, true)
		},
	})
}

func connect(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	if driver != DriverSQLite {
		return sqlx.ConnectContext(ctx, driver, dsn)
	}
	raw, err := sql.Open(sqliteCaseFold, dsn)
	if err != nil {
		return nil, err
	}
	db := sqlx.NewDb(raw, DriverSQLite)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = ":memory:"
	}
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

// withTx runs fn in a transaction, rolling back on error or panic.
func (s *Store) withTx(ctx context.Context, reason string, fn func(tx *sqlx.Tx) error) error {
	log := s.obs.logger
	log.DebugContext(ctx, "starting transaction", "reason", reason)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "error starting transaction")
	}

	var committed bool
	defer func() {
		if p := recover(); p != nil {
			log.ErrorContext(ctx, "panic in transaction", "reason", reason, "panic", p, "stack", string(debug.Stack()))
			_ = tx.Rollback()
			panic(p)
		}
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			log.ErrorContext(ctx, "transaction rollback error", "reason", reason, "error", rbErr)
			return
		}
		log.DebugContext(ctx, "transaction rolled back", "reason", reason)
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "error committing transaction")
	}
	committed = true
	log.DebugContext(ctx, "committed transaction", "reason", reason)
	return nil
}

func (s *Store) get(ctx context.Context, q sqlx.QueryerContext, dest any, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}
	if err := sqlx.GetContext(ctx, q, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) selectAll(ctx context.Context, q sqlx.QueryerContext, dest any, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}
	return sqlx.SelectContext(ctx, q, dest, query, args...)
}

func (s *Store) exec(ctx context.Context, q sqlx.ExecerContext, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "error building query")
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// insert runs an INSERT ... RETURNING id and yields the new primary key.
func (s *Store) insert(ctx context.Context, q sqlx.QueryerContext, b sq.InsertBuilder) (int64, error) {
	query, args, err := b.Suffix("RETURNING id").ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "error building query")
	}
	var id int64
	if err := q.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) exists(ctx context.Context, q sqlx.QueryerContext, table string, where sq.Sqlizer) (bool, error) {
	var n int
	if err := s.get(ctx, q, &n, s.sb.Select("COUNT(*)").From(table).Where(where)); err != nil {
		return false, err
	}
	return n > 0, nil
}

// contains matches rows whose col contains term, ignoring case.
func (s *Store) contains(col, term string) sq.Sqlizer {
	if s.driver == DriverSQLite {
		return sq.Expr("casefold("+col+") LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(term))+"%")
	}
	return sq.Expr(col+" ILIKE ? ESCAPE '\\'", "%"+escapeLike(term)+"%")
}

func isUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Identifier is a validated SQL table or column name.
type Identifier string

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func ParseIdentifier(s string) (Identifier, error) {
	if !identRe.MatchString(s) {
		return "", fmt.Errorf("invalid sql identifier %q", s)
	}
	return Identifier(s), nil
}

func (id Identifier) quoted() string { return pgx.Identifier{string(id)}.Sanitize() }

// OffsetLocation names the single-row table and column holding the offset.
type OffsetLocation struct {
	Table  Identifier
	Column Identifier
}

var DefaultOffsetLocation = OffsetLocation{Table: "telegram", Column: "bot_offset"}

const usersTable Identifier = "User"

// pgConn is the part of *pgxpool.Pool the store uses.
type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ OffsetStore        = (*PgStore)(nil)
	_ LanguageRepository = (*PgStore)(nil)
)

// PgStore keeps the durable language per chat and, optionally, the offset.
type PgStore struct {
	pool   *pgxpool.Pool
	db     pgConn
	offset OffsetLocation
	sb     sq.StatementBuilderType
}

func OpenPostgres(ctx context.Context, url string, loc OffsetLocation) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, &StoreError{Backend: "postgres", Op: "connect", Err: err}
	}
	s := newPgStore(pool, loc)
	s.pool = pool
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func newPgStore(db pgConn, loc OffsetLocation) *PgStore {
	return &PgStore{
		db:     db,
		offset: loc,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *PgStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// EnsureSchema creates both tables and seeds the offset row, so the
// unqualified UPDATE in SaveOffset always has exactly one row to hit.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	table, col := s.offset.Table.quoted(), s.offset.Column.quoted()
	stmts := []string{
		fmt.Sprintf(`create table if not exists %s (
			chat_id bigint primary key,
			language text not null default 'en'
		)`, usersTable.quoted()),
		fmt.Sprintf(`create table if not exists %s (%s bigint not null default 0)`, table, col),
		fmt.Sprintf(`insert into %s (%s) select 0 where not exists (select 1 from %s)`, table, col, table),
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return &StoreError{Backend: "postgres", Op: "ensure schema", Err: err}
		}
	}
	return nil
}

func (s *PgStore) LoadOffset(ctx context.Context) (int64, error) {
	query, args, err := s.sb.Select(s.offset.Column.quoted()).From(s.offset.Table.quoted()).Limit(1).ToSql()
	if err != nil {
		return 0, &StoreError{Backend: "postgres", Op: "load offset", Err: err}
	}
	var offset int64
	if err := s.db.QueryRow(ctx, query, args...).Scan(&offset); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, &StoreError{Backend: "postgres", Op: "load offset", Err: err}
	}
	return offset, nil
}

func (s *PgStore) SaveOffset(ctx context.Context, offset int64) error {
	query, args, err := s.sb.Update(s.offset.Table.quoted()).Set(s.offset.Column.quoted(), offset).ToSql()
	if err != nil {
		return &StoreError{Backend: "postgres", Op: "save offset", Err: err}
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return &StoreError{Backend: "postgres", Op: "save offset", Err: err}
	}
	return nil
}

func (s *PgStore) GetLanguage(ctx context.Context, chatID int64) (string, error) {
	query, args, err := s.sb.Select(`"language"`).From(usersTable.quoted()).Where(sq.Eq{`"chat_id"`: chatID}).ToSql()
	if err != nil {
		return "", &StoreError{Backend: "postgres", Op: "get language", Err: err}
	}
	var lang string
	if err := s.db.QueryRow(ctx, query, args...).Scan(&lang); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", &StoreError{Backend: "postgres", Op: "get language", Err: err}
	}
	return lang, nil
}

func (s *PgStore) SetLanguage(ctx context.Context, chatID int64, lang string) error {
	query, args, err := s.sb.Insert(usersTable.quoted()).
		Columns(`"chat_id"`, `"language"`).
		Values(chatID, lang).
		Suffix(`on conflict ("chat_id") do update set "language" = excluded."language"`).
		ToSql()
	if err != nil {
		return &StoreError{Backend: "postgres", Op: "set language", Err: err}
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return &StoreError{Backend: "postgres", Op: "set language", Err: err}
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/samvad-hq/gallery-relay/internal/domain"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS galleries (
	id         INTEGER PRIMARY KEY,
	token      TEXT    NOT NULL,
	title      TEXT    NOT NULL,
	title_alt  TEXT    NOT NULL DEFAULT '',
	tags       TEXT    NOT NULL DEFAULT '[]',
	page_count INTEGER NOT NULL DEFAULT 0,
	parent_id  INTEGER,
	deleted    INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS images (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	content_hash TEXT NOT NULL UNIQUE,
	remote_url   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS pages (
	gallery_id INTEGER NOT NULL,
	page_index INTEGER NOT NULL,
	image_id   INTEGER NOT NULL REFERENCES images(id),
	PRIMARY KEY (gallery_id, page_index)
);
CREATE TABLE IF NOT EXISTS messages (
	gallery_id  INTEGER PRIMARY KEY,
	id          INTEGER NOT NULL,
	article_url TEXT    NOT NULL
);
`

// sqliteStore implements a Store backed by SQLite; uniqueness is enforced by the schema.
type sqliteStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func openSQLite(path string) (*sqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serializes writers from concurrent upload workers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &sqliteStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) FindGallery(ctx context.Context, id int64) (domain.Gallery, bool, error) {
	const op = "find gallery"

	query, args, err := s.sb.
		Select("id", "token", "title", "title_alt", "tags", "page_count", "parent_id", "deleted", "updated_at").
		From("galleries").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Gallery{}, false, domain.Persistence(op, err)
	}

	var (
		g         domain.Gallery
		tagsJSON  string
		parentID  sql.NullInt64
		updatedAt string
	)
	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&g.ID, &g.Token, &g.Title, &g.TitleAlt, &tagsJSON, &g.PageCount, &parentID, &g.Deleted, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Gallery{}, false, nil
	}
	if err != nil {
		return domain.Gallery{}, false, domain.Persistence(op, err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &g.Tags); err != nil {
		return domain.Gallery{}, false, domain.Persistence(op, fmt.Errorf("decode tags: %w", err))
	}
	if parentID.Valid {
		pid := parentID.Int64
		g.ParentID = &pid
	}
	if g.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return domain.Gallery{}, false, domain.Persistence(op, fmt.Errorf("decode updated_at: %w", err))
	}
	return g, true, nil
}

func (s *sqliteStore) CreateGallery(ctx context.Context, g domain.Gallery) error {
	const op = "create gallery"

	tagsJSON, err := json.Marshal(tagsOrEmpty(g.Tags))
	if err != nil {
		return domain.Persistence(op, err)
	}

	query, args, err := s.sb.Insert("galleries").
		Columns("id", "token", "title", "title_alt", "tags", "page_count", "parent_id", "deleted", "updated_at").
		Values(g.ID, g.Token, g.Title, g.TitleAlt, string(tagsJSON), g.PageCount, nullableID(g.ParentID), g.Deleted, formatTime(g.UpdatedAt)).
		ToSql()
	if err != nil {
		return domain.Persistence(op, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return domain.Persistence(op, classifySQLiteErr(err))
	}
	return nil
}

func (s *sqliteStore) UpdateGallery(ctx context.Context, g domain.Gallery) error {
	const op = "update gallery"

	tagsJSON, err := json.Marshal(tagsOrEmpty(g.Tags))
	if err != nil {
		return domain.Persistence(op, err)
	}

	query, args, err := s.sb.Update("galleries").
		Set("token", g.Token).
		Set("title", g.Title).
		Set("title_alt", g.TitleAlt).
		Set("tags", string(tagsJSON)).
		Set("page_count", g.PageCount).
		Set("parent_id", nullableID(g.ParentID)).
		Set("deleted", g.Deleted).
		Set("updated_at", formatTime(g.UpdatedAt)).
		Where(sq.Eq{"id": g.ID}).
		ToSql()
	if err != nil {
		return domain.Persistence(op, err)
	}
	return s.execOne(ctx, op, fmt.Sprintf("gallery %d", g.ID), query, args)
}

func (s *sqliteStore) MarkGalleryDeleted(ctx context.Context, id int64) error {
	const op = "mark gallery deleted"

	query, args, err := s.sb.Update("galleries").
		Set("deleted", true).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Persistence(op, err)
	}
	return s.execOne(ctx, op, fmt.Sprintf("gallery %d", id), query, args)
}

func (s *sqliteStore) FindImageByHash(ctx context.Context, hash string) (domain.Image, bool, error) {
	const op = "find image"

	query, args, err := s.sb.Select("id", "content_hash", "remote_url").
		From("images").
		Where(sq.Eq{"content_hash": hash}).
		ToSql()
	if err != nil {
		return domain.Image{}, false, domain.Persistence(op, err)
	}

	var img domain.Image
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&img.ID, &img.ContentHash, &img.RemoteURL)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Image{}, false, nil
	}
	if err != nil {
		return domain.Image{}, false, domain.Persistence(op, err)
	}
	return img, true, nil
}

func (s *sqliteStore) CreateImage(ctx context.Context, hash, remoteURL string) (domain.Image, error) {
	const op = "create image"

	query, args, err := s.sb.Insert("images").
		Columns("content_hash", "remote_url").
		Values(hash, remoteURL).
		ToSql()
	if err != nil {
		return domain.Image{}, domain.Persistence(op, err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Image{}, domain.Persistence(op, classifySQLiteErr(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Image{}, domain.Persistence(op, err)
	}
	return domain.Image{ID: id, ContentHash: hash, RemoteURL: remoteURL}, nil
}

func (s *sqliteStore) CreatePage(ctx context.Context, p domain.Page) error {
	const op = "create page"

	query, args, err := s.sb.Insert("pages").
		Columns("gallery_id", "page_index", "image_id").
		Values(p.GalleryID, p.Index, p.ImageID).
		ToSql()
	if err != nil {
		return domain.Persistence(op, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return domain.Persistence(op, classifySQLiteErr(err))
	}
	return nil
}

func (s *sqliteStore) ListPages(ctx context.Context, galleryID int64) ([]domain.Page, error) {
	const op = "list pages"

	query, args, err := s.sb.Select("gallery_id", "page_index", "image_id").
		From("pages").
		Where(sq.Eq{"gallery_id": galleryID}).
		OrderBy("page_index").
		ToSql()
	if err != nil {
		return nil, domain.Persistence(op, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Persistence(op, err)
	}
	defer rows.Close()

	var out []domain.Page
	for rows.Next() {
		var p domain.Page
		if err := rows.Scan(&p.GalleryID, &p.Index, &p.ImageID); err != nil {
			return nil, domain.Persistence(op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence(op, err)
	}
	return out, nil
}

func (s *sqliteStore) ListGalleryImages(ctx context.Context, galleryID int64) ([]domain.Image, error) {
	const op = "list gallery images"

	query, args, err := s.sb.Select("i.id", "i.content_hash", "i.remote_url").
		From("pages p").
		Join("images i ON i.id = p.image_id").
		Where(sq.Eq{"p.gallery_id": galleryID}).
		OrderBy("p.page_index").
		ToSql()
	if err != nil {
		return nil, domain.Persistence(op, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Persistence(op, err)
	}
	defer rows.Close()

	var out []domain.Image
	for rows.Next() {
		var img domain.Image
		if err := rows.Scan(&img.ID, &img.ContentHash, &img.RemoteURL); err != nil {
			return nil, domain.Persistence(op, err)
		}
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence(op, err)
	}
	return out, nil
}

func (s *sqliteStore) FindMessageByGallery(ctx context.Context, galleryID int64) (domain.Message, bool, error) {
	const op = "find message"

	query, args, err := s.sb.Select("id", "gallery_id", "article_url").
		From("messages").
		Where(sq.Eq{"gallery_id": galleryID}).
		ToSql()
	if err != nil {
		return domain.Message{}, false, domain.Persistence(op, err)
	}

	var msg domain.Message
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&msg.ID, &msg.GalleryID, &msg.ArticleURL)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Message{}, false, nil
	}
	if err != nil {
		return domain.Message{}, false, domain.Persistence(op, err)
	}
	return msg, true, nil
}

func (s *sqliteStore) CreateMessage(ctx context.Context, msg domain.Message) error {
	const op = "create message"

	query, args, err := s.sb.Insert("messages").
		Columns("gallery_id", "id", "article_url").
		Values(msg.GalleryID, msg.ID, msg.ArticleURL).
		ToSql()
	if err != nil {
		return domain.Persistence(op, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return domain.Persistence(op, classifySQLiteErr(err))
	}
	return nil
}

// execOne runs an UPDATE and reports ErrNotFound when no row matched.
func (s *sqliteStore) execOne(ctx context.Context, op, subject, query string, args []any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Persistence(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Persistence(op, err)
	}
	if n == 0 {
		return domain.Persistence(op, fmt.Errorf("%s: %w", subject, domain.ErrNotFound))
	}
	return nil
}

// classifySQLiteErr maps constraint violations onto the store sentinels.
func classifySQLiteErr(err error) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %v", domain.ErrDuplicate, err)
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	default:
		return err
	}
}

func tagsOrEmpty(tags []domain.Tag) []domain.Tag {
	if tags == nil {
		return []domain.Tag{}
	}
	return tags
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

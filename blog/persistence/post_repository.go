package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/dfryer1193/publog/shared/db"
)

var _ domain.Store = (*SQLitePostRepository)(nil)

// SQLitePostRepository implements domain.Store on the groups / posts /
// post_versions / post_contents tables. Every row is keyed by a natural key
// (group slug; group + post slug; post + version number; version + language)
// so upserts can be replayed safely.
//
// The database has no legacy layout: every post is versioned.
type SQLitePostRepository struct {
	db        *sql.DB
	groups    domain.GroupRepository
	languages domain.LanguageService
}

// NewPostRepository creates a new SQLitePostRepository from a standard sql.DB
func NewPostRepository(conn *sql.DB, groups domain.GroupRepository, languages domain.LanguageService) *SQLitePostRepository {
	return &SQLitePostRepository{
		db:        conn,
		groups:    groups,
		languages: languages,
	}
}

const upsertGroupQuery = `
	INSERT INTO groups (slug, name, mode, primary_language, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(slug) DO UPDATE SET
		name = excluded.name,
		mode = excluded.mode,
		primary_language = excluded.primary_language,
		updated_at = excluded.updated_at
	RETURNING id
`

// UpsertGroup inserts or updates a group keyed by slug and returns its id.
func (r *SQLitePostRepository) UpsertGroup(ctx context.Context, g *domain.Group) (int64, error) {
	if g == nil || g.Slug == "" {
		return 0, fmt.Errorf("group slug cannot be empty")
	}

	now := time.Now().UTC()
	name := g.Name
	if name == "" {
		name = g.Slug
	}

	var id int64
	err := db.GetExecutor(ctx, r.db).QueryRowContext(ctx, upsertGroupQuery,
		g.Slug, name, string(g.Mode), nullString(g.PrimaryLanguage), now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert group %s: %w", g.Slug, err)
	}
	return id, nil
}

const upsertPostQuery = `
	INSERT INTO posts (group_id, slug, mode, primary_language, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(group_id, slug) DO UPDATE SET
		mode = excluded.mode,
		primary_language = COALESCE(excluded.primary_language, posts.primary_language),
		updated_at = excluded.updated_at
	RETURNING id
`

// UpsertPost inserts or updates a post keyed by (group, slug) and returns its id.
func (r *SQLitePostRepository) UpsertPost(ctx context.Context, groupID int64, id domain.Identifier, primaryLanguage string) (int64, error) {
	if id == nil {
		return 0, fmt.Errorf("post identifier cannot be nil")
	}

	now := time.Now().UTC()
	var postID int64
	err := db.GetExecutor(ctx, r.db).QueryRowContext(ctx, upsertPostQuery,
		groupID, id.Path(), string(id.Mode()), nullString(primaryLanguage), now, now,
	).Scan(&postID)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert post %s: %w", id.Path(), err)
	}
	return postID, nil
}

const upsertVersionQuery = `
	INSERT INTO post_versions (post_id, version_number, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(post_id, version_number) DO UPDATE SET
		version_number = excluded.version_number
	RETURNING id
`

// UpsertVersion inserts a version keyed by (post, number) and returns its id.
func (r *SQLitePostRepository) UpsertVersion(ctx context.Context, postID int64, number int) (int64, error) {
	if number <= 0 {
		return 0, fmt.Errorf("version number must be positive, got %d", number)
	}

	var versionID int64
	err := db.GetExecutor(ctx, r.db).QueryRowContext(ctx, upsertVersionQuery,
		postID, number, time.Now().UTC(),
	).Scan(&versionID)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert version %d: %w", number, err)
	}
	return versionID, nil
}

const upsertContentQuery = `
	INSERT INTO post_contents (
		version_id, language, title, description, status, url_slug,
		previous_url_slugs, allow_version_access, primary_language, content,
		published_at, created_at, updated_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(version_id, language) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		status = excluded.status,
		url_slug = excluded.url_slug,
		previous_url_slugs = excluded.previous_url_slugs,
		allow_version_access = excluded.allow_version_access,
		primary_language = excluded.primary_language,
		content = excluded.content,
		published_at = excluded.published_at,
		created_at = COALESCE(post_contents.created_at, excluded.created_at),
		updated_at = excluded.updated_at
`

// UpsertContent inserts or updates one language file keyed by (version, language).
func (r *SQLitePostRepository) UpsertContent(ctx context.Context, versionID int64, language string, meta domain.Metadata, body string) error {
	if language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	previous, err := json.Marshal(nonNil(meta.PreviousURLSlugs))
	if err != nil {
		return fmt.Errorf("failed to encode previous url slugs: %w", err)
	}

	status := meta.Status
	if status == "" {
		status = domain.StatusDraft
	}

	createdAt := meta.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var publishedAt, updatedAt any
	if !meta.PublishedAt.IsZero() {
		publishedAt = meta.PublishedAt
	}
	if !meta.UpdatedAt.IsZero() {
		updatedAt = meta.UpdatedAt
	}

	_, err = db.GetExecutor(ctx, r.db).ExecContext(ctx, upsertContentQuery,
		versionID,
		language,
		meta.Title,
		meta.Description,
		string(status),
		meta.URLSlug,
		string(previous),
		meta.AllowVersionAccess,
		meta.PrimaryLanguage,
		body,
		publishedAt,
		createdAt,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %s content: %w", language, err)
	}
	return nil
}

const listPostsQuery = `
	SELECT p.slug
	FROM posts p
	JOIN groups g ON g.id = p.group_id
	WHERE g.slug = ?
	ORDER BY p.slug
`

// ListPosts implements domain.Storage.ListPosts
func (r *SQLitePostRepository) ListPosts(ctx context.Context, group *domain.Group) ([]domain.Identifier, error) {
	rows, err := db.GetExecutor(ctx, r.db).QueryContext(ctx, listPostsQuery, group.Slug)
	if err != nil {
		return nil, &domain.IOError{Path: group.Slug, Err: err}
	}
	defer rows.Close()

	ids := make([]domain.Identifier, 0)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		id, err := domain.ParseIdentifier(group.Mode, path)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post rows: %w", err)
	}
	return ids, nil
}

// ListTimes implements domain.Storage.ListTimes
func (r *SQLitePostRepository) ListTimes(ctx context.Context, group, date string) ([]string, error) {
	rows, err := db.GetExecutor(ctx, r.db).QueryContext(ctx, listPostsQuery, group)
	if err != nil {
		return nil, &domain.IOError{Path: group, Err: err}
	}
	defer rows.Close()

	times := make([]string, 0)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		if d, t, ok := strings.Cut(path, "/"); ok && d == date && domain.IsTime(t) {
			times = append(times, t)
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post rows: %w", err)
	}

	sort.Strings(times)
	return times, nil
}

const listVersionsQuery = `
	SELECT v.version_number
	FROM post_versions v
	JOIN posts p ON p.id = v.post_id
	JOIN groups g ON g.id = p.group_id
	WHERE g.slug = ? AND p.slug = ?
	ORDER BY v.version_number ASC
`

// ListVersions implements domain.Storage.ListVersions
func (r *SQLitePostRepository) ListVersions(ctx context.Context, group string, id domain.Identifier) ([]int, error) {
	rows, err := db.GetExecutor(ctx, r.db).QueryContext(ctx, listVersionsQuery, group, id.Path())
	if err != nil {
		return nil, &domain.IOError{Path: group + "/" + id.Path(), Err: err}
	}
	defer rows.Close()

	versions := make([]int, 0)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		versions = append(versions, v)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating version rows: %w", err)
	}
	return versions, nil
}

// DetectStructure implements domain.Storage.DetectStructure
func (r *SQLitePostRepository) DetectStructure(ctx context.Context, group string, id domain.Identifier) (domain.Structure, error) {
	versions, err := r.ListVersions(ctx, group, id)
	if err != nil {
		return domain.StructureEmpty, err
	}
	if len(versions) == 0 {
		return domain.StructureEmpty, nil
	}
	return domain.StructureVersioned, nil
}

const listLanguagesQuery = `
	SELECT c.language
	FROM post_contents c
	JOIN post_versions v ON v.id = c.version_id
	JOIN posts p ON p.id = v.post_id
	JOIN groups g ON g.id = p.group_id
	WHERE g.slug = ? AND p.slug = ? AND v.version_number = ?
	ORDER BY c.language ASC
`

// ListLanguages implements domain.Storage.ListLanguages
func (r *SQLitePostRepository) ListLanguages(ctx context.Context, group string, id domain.Identifier, version int) ([]string, error) {
	if version == domain.LegacyVersion {
		return []string{}, nil
	}

	rows, err := db.GetExecutor(ctx, r.db).QueryContext(ctx, listLanguagesQuery, group, id.Path(), version)
	if err != nil {
		return nil, &domain.IOError{Path: group + "/" + id.Path(), Err: err}
	}
	defer rows.Close()

	languages := make([]string, 0)
	for rows.Next() {
		var lang string
		if err := rows.Scan(&lang); err != nil {
			return nil, fmt.Errorf("failed to scan language row: %w", err)
		}
		languages = append(languages, lang)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating language rows: %w", err)
	}
	return languages, nil
}

const getContentQuery = `
	SELECT c.title, c.description, c.status, c.url_slug, c.previous_url_slugs,
		c.allow_version_access, c.primary_language, c.content,
		c.published_at, c.created_at, c.updated_at
	FROM post_contents c
	JOIN post_versions v ON v.id = c.version_id
	JOIN posts p ON p.id = v.post_id
	JOIN groups g ON g.id = p.group_id
	WHERE g.slug = ? AND p.slug = ? AND v.version_number = ? AND c.language = ?
`

// Read implements domain.Storage.Read. The version list, content row and
// language list come from one read-only snapshot.
func (r *SQLitePostRepository) Read(ctx context.Context, group string, id domain.Identifier, language string, version int) (*domain.Post, error) {
	var post *domain.Post
	err := db.RunReadOnly(ctx, r.db, func(txCtx context.Context) error {
		var err error
		post, err = r.read(txCtx, group, id, language, version)
		return err
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (r *SQLitePostRepository) read(ctx context.Context, group string, id domain.Identifier, language string, version int) (*domain.Post, error) {
	versions, err := r.ListVersions(ctx, group, id)
	if err != nil {
		return nil, err
	}
	if version == domain.LatestVersion {
		version = domain.LiveVersion(versions)
	}

	path := relativePath(group, id, language, version)
	if version == domain.LegacyVersion {
		return nil, fmt.Errorf("%s: %w", path, domain.ErrPostNotFound)
	}

	var row contentRow
	err = db.GetExecutor(ctx, r.db).QueryRowContext(ctx, getContentQuery, group, id.Path(), version, language).Scan(
		&row.Title,
		&row.Description,
		&row.Status,
		&row.URLSlug,
		&row.PreviousURLSlugs,
		&row.AllowVersionAccess,
		&row.PrimaryLanguage,
		&row.Content,
		&row.PublishedAt,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", path, domain.ErrPostNotFound)
	}
	if err != nil {
		return nil, &domain.IOError{Path: path, Err: err}
	}

	meta, err := row.toMetadata(version)
	if err != nil {
		return nil, &domain.ParseError{Path: path, Err: err}
	}

	languages, err := r.ListLanguages(ctx, group, id, version)
	if err != nil {
		return nil, err
	}

	return &domain.Post{
		Group:              group,
		Identifier:         id,
		Language:           language,
		Version:            version,
		Metadata:           meta,
		Content:            row.Content,
		Path:               path,
		AvailableLanguages: languages,
		AvailableVersions:  versions,
	}, nil
}

const getPrimaryLanguageQuery = `
	SELECT COALESCE(p.primary_language, '')
	FROM posts p
	JOIN groups g ON g.id = p.group_id
	WHERE g.slug = ? AND p.slug = ?
`

// PrimaryLanguage implements domain.Storage.PrimaryLanguage
func (r *SQLitePostRepository) PrimaryLanguage(ctx context.Context, group string, id domain.Identifier, version int) (string, error) {
	var primary string
	err := db.GetExecutor(ctx, r.db).QueryRowContext(ctx, getPrimaryLanguageQuery, group, id.Path()).Scan(&primary)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", &domain.IOError{Path: group + "/" + id.Path(), Err: err}
	}
	if primary != "" {
		return primary, nil
	}
	return defaultPrimaryLanguage(ctx, r.groups, r.languages, group), nil
}

// Write implements domain.Writer.Write. The group, post, version and
// content rows are upserted in a single transaction.
func (r *SQLitePostRepository) Write(ctx context.Context, post *domain.Post) error {
	if post == nil {
		return fmt.Errorf("post cannot be nil")
	}
	if post.Identifier == nil || post.Language == "" {
		return fmt.Errorf("post identifier and language cannot be empty")
	}

	version := post.Version
	if version == domain.LegacyVersion {
		version = 1
	}

	return db.RunInTransaction(ctx, r.db, func(txCtx context.Context) error {
		group := &domain.Group{Slug: post.Group, Mode: post.Identifier.Mode()}
		if r.groups != nil {
			if g, err := r.groups.GetGroup(txCtx, post.Group); err == nil {
				group = g
			}
		}

		groupID, err := r.UpsertGroup(txCtx, group)
		if err != nil {
			return err
		}
		postID, err := r.UpsertPost(txCtx, groupID, post.Identifier, post.Metadata.PrimaryLanguage)
		if err != nil {
			return err
		}
		versionID, err := r.UpsertVersion(txCtx, postID, version)
		if err != nil {
			return err
		}
		if err := r.UpsertContent(txCtx, versionID, post.Language, post.Metadata, post.Content); err != nil {
			return err
		}

		post.Version = version
		post.Path = relativePath(post.Group, post.Identifier, post.Language, version)
		return nil
	})
}

// PromoteToVersioned implements domain.Writer.PromoteToVersioned. Database
// posts are always versioned, so this only checks the post exists.
func (r *SQLitePostRepository) PromoteToVersioned(ctx context.Context, group string, id domain.Identifier) error {
	versions, err := r.ListVersions(ctx, group, id)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return fmt.Errorf("%s/%s: %w", group, id.Path(), domain.ErrPostNotFound)
	}
	return nil
}

// Counts is the number of rows per table.
type Counts struct {
	Groups   int
	Posts    int
	Versions int
	Contents int
}

// CountRows returns the row count of every post table.
func (r *SQLitePostRepository) CountRows(ctx context.Context) (Counts, error) {
	var c Counts
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"groups", &c.Groups},
		{"posts", &c.Posts},
		{"post_versions", &c.Versions},
		{"post_contents", &c.Contents},
	} {
		if err := db.GetExecutor(ctx, r.db).QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.table).Scan(q.dst); err != nil {
			return c, fmt.Errorf("failed to count %s: %w", q.table, err)
		}
	}
	return c, nil
}

// contentRow is a private struct used to scan post_contents rows
// It uses sql.NullTime to handle nullable timestamp fields
// and provides a method to convert to domain.Metadata
type contentRow struct {
	Title              string       `db:"title"`
	Description        string       `db:"description"`
	Status             string       `db:"status"`
	URLSlug            string       `db:"url_slug"`
	PreviousURLSlugs   string       `db:"previous_url_slugs"`
	AllowVersionAccess bool         `db:"allow_version_access"`
	PrimaryLanguage    string       `db:"primary_language"`
	Content            string       `db:"content"`
	PublishedAt        sql.NullTime `db:"published_at"`
	CreatedAt          sql.NullTime `db:"created_at"`
	UpdatedAt          sql.NullTime `db:"updated_at"`
}

// toMetadata converts a contentRow to domain.Metadata, handling nullable times
func (cr *contentRow) toMetadata(version int) (domain.Metadata, error) {
	meta := domain.Metadata{
		Title:              cr.Title,
		Description:        cr.Description,
		Status:             domain.Status(cr.Status),
		URLSlug:            cr.URLSlug,
		AllowVersionAccess: cr.AllowVersionAccess,
		PrimaryLanguage:    cr.PrimaryLanguage,
		Version:            version,
	}

	if cr.PreviousURLSlugs != "" {
		if err := json.Unmarshal([]byte(cr.PreviousURLSlugs), &meta.PreviousURLSlugs); err != nil {
			return meta, fmt.Errorf("invalid previous_url_slugs: %w", err)
		}
	}

	if cr.PublishedAt.Valid {
		meta.PublishedAt = cr.PublishedAt.Time
	}
	if cr.CreatedAt.Valid {
		meta.CreatedAt = cr.CreatedAt.Time
	}
	if cr.UpdatedAt.Valid {
		meta.UpdatedAt = cr.UpdatedAt.Time
	}

	return meta, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

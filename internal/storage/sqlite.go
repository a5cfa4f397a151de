package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorsstag/internal/models"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dataDir string) (*SQLiteStorage, error) {
	// Ensure data directory exists with secure permissions (0750)
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(dataDir, "articles.db")
	log.Printf("Initializing database at: %s", dbPath)

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_synchronous=NORMAL&_busy_timeout=30000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	// WAL mode supports one writer alongside concurrent readers; keep a small
	// pool so API reads are not serialized behind ingestion inserts.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		article_id TEXT UNIQUE NOT NULL, -- UUID for consistent article identification
		title TEXT NOT NULL,
		summary TEXT,
		link TEXT UNIQUE NOT NULL,
		published DATETIME,
		source TEXT,
		og_image TEXT,
		fingerprint TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS article_tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		article_id INTEGER NOT NULL,
		tag_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (article_id) REFERENCES articles(id) ON DELETE CASCADE,
		FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE,
		UNIQUE(article_id, tag_id)
	);`

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published DESC);",
		"CREATE INDEX IF NOT EXISTS idx_articles_fingerprint ON articles(fingerprint);",
		"CREATE INDEX IF NOT EXISTS idx_article_tags_article ON article_tags(article_id);",
		"CREATE INDEX IF NOT EXISTS idx_article_tags_tag ON article_tags(tag_id);",
	}

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %v", err)
	}

	for _, index := range indexes {
		if _, err := db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %v", err)
		}
	}

	return nil
}

// Insert stores the article and its tags in a single transaction. The unique
// constraint on link is the authoritative duplicate check; a violation is
// reported as ErrConflict and leaves the store unchanged.
func (s *SQLiteStorage) Insert(article *models.Article) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("Warning: failed to rollback transaction: %v", err)
		}
	}()

	articleID := article.ID
	if articleID == "" {
		articleID = uuid.New().String()
	}

	var published interface{}
	if article.Published != nil {
		published = article.Published.UTC()
	}

	result, err := tx.Exec(`
		INSERT INTO articles (article_id, title, summary, link, published, source, og_image, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, articleID, article.Title, article.Summary, article.Link, published, article.Source, article.OGImage, article.Fingerprint)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return "", ErrConflict
		}
		return "", fmt.Errorf("failed to insert article: %v", err)
	}

	rowID, err := result.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to get article row id: %v", err)
	}

	for _, tag := range article.Tags {
		tagID, err := getOrCreateTag(tx, tag)
		if err != nil {
			return "", err
		}
		if _, err := tx.Exec("INSERT OR IGNORE INTO article_tags (article_id, tag_id) VALUES (?, ?)", rowID, tagID); err != nil {
			return "", fmt.Errorf("failed to link tag '%s': %v", tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %v", err)
	}

	return articleID, nil
}

func getOrCreateTag(tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRow("SELECT id FROM tags WHERE name = ?", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up tag '%s': %v", name, err)
	}

	result, err := tx.Exec("INSERT INTO tags (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("failed to create tag '%s': %v", name, err)
	}
	return result.LastInsertId()
}

func (s *SQLiteStorage) Exists(link string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM articles WHERE link = ?", link).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check link existence: %v", err)
	}
	return true, nil
}

func (s *SQLiteStorage) ExistingLinks(links []string) (map[string]struct{}, error) {
	return s.existingValues("link", links)
}

func (s *SQLiteStorage) ExistingFingerprints(fingerprints []string) (map[string]struct{}, error) {
	return s.existingValues("fingerprint", fingerprints)
}

func (s *SQLiteStorage) existingValues(column string, values []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(values) == 0 {
		return existing, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}

	// column is always one of the fixed names above, never user input
	rows, err := s.db.Query("SELECT "+column+" FROM articles WHERE "+column+" IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing %ss: %v", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %v", column, err)
		}
		existing[value] = struct{}{}
	}
	return existing, rows.Err()
}

// articleColumns is the select list shared by ListAll and ListByTags; the
// ordering puts articles without a published date last and breaks ties by
// insertion order so pagination stays deterministic.
const (
	articleColumns = "a.id, a.article_id, a.title, a.summary, a.link, a.published, a.source, a.og_image"
	articleOrder   = "ORDER BY a.published IS NULL, a.published DESC, a.id ASC"
)

func (s *SQLiteStorage) ListAll(limit, offset int) ([]models.Article, error) {
	query := fmt.Sprintf("SELECT %s FROM articles a %s LIMIT ? OFFSET ?", articleColumns, articleOrder)
	rows, err := s.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %v", err)
	}
	defer rows.Close()

	return s.scanArticles(rows)
}

func (s *SQLiteStorage) ListByTags(tags []string, limit, offset int) ([]models.Article, error) {
	if len(tags) == 0 {
		return s.ListAll(limit, offset)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tags)), ",")
	args := make([]interface{}, 0, len(tags)+3)
	for _, tag := range tags {
		args = append(args, tag)
	}
	args = append(args, len(tags), limit, offset)

	// AND semantics: an article qualifies only if it carries every requested tag.
	query := fmt.Sprintf(`
		SELECT %s
		FROM articles a
		JOIN article_tags at ON at.article_id = a.id
		JOIN tags t ON t.id = at.tag_id
		WHERE t.name IN (%s)
		GROUP BY a.id
		HAVING COUNT(DISTINCT t.name) = ?
		%s LIMIT ? OFFSET ?`, articleColumns, placeholders, articleOrder)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles by tags: %v", err)
	}
	defer rows.Close()

	return s.scanArticles(rows)
}

func (s *SQLiteStorage) scanArticles(rows *sql.Rows) ([]models.Article, error) {
	articles := []models.Article{}
	rowIDs := []int64{}

	for rows.Next() {
		var (
			rowID     int64
			article   models.Article
			summary   sql.NullString
			published sql.NullTime
			source    sql.NullString
			ogImage   sql.NullString
		)
		if err := rows.Scan(&rowID, &article.ID, &article.Title, &summary, &article.Link, &published, &source, &ogImage); err != nil {
			return nil, fmt.Errorf("failed to scan article: %v", err)
		}
		article.Summary = summary.String
		article.Source = source.String
		article.OGImage = ogImage.String
		if published.Valid {
			t := published.Time
			article.Published = &t
		}
		article.Tags = []string{}
		articles = append(articles, article)
		rowIDs = append(rowIDs, rowID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %v", err)
	}

	for i, rowID := range rowIDs {
		tags, err := s.articleTags(rowID)
		if err != nil {
			return nil, err
		}
		articles[i].Tags = tags
	}

	return articles, nil
}

func (s *SQLiteStorage) articleTags(rowID int64) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT t.name
		FROM tags t
		JOIN article_tags at ON at.tag_id = t.id
		WHERE at.article_id = ?
		ORDER BY at.id ASC`, rowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load article tags: %v", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %v", err)
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

// TagCounts returns every distinct tag with the number of articles carrying
// it, sorted by count descending then name ascending.
func (s *SQLiteStorage) TagCounts() ([]models.TagCount, error) {
	rows, err := s.db.Query(`
		SELECT t.name, COUNT(at.article_id) AS article_count
		FROM tags t
		LEFT JOIN article_tags at ON t.id = at.tag_id
		GROUP BY t.id, t.name
		ORDER BY article_count DESC, t.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tag counts: %v", err)
	}
	defer rows.Close()

	counts := []models.TagCount{}
	for rows.Next() {
		var tc models.TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan tag count: %v", err)
		}
		counts = append(counts, tc)
	}
	return counts, rows.Err()
}

func (s *SQLiteStorage) Count() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM articles").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count articles: %v", err)
	}
	return count, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

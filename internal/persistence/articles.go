package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"swvanews/internal/core"
)

type postgresArticleRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresArticleRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const articleColumns = `id, title, content, content_hash, url, source_type, source_url,
	source_file, page_number, column_number, section, author, tags, word_count,
	date_published, date_extracted, date_created, date_updated, processing_status,
	raw_html, metadata, location_name, location_lat, location_lon, event_dates`

func (r *postgresArticleRepo) InsertOrMerge(ctx context.Context, article *core.Article) (int64, bool, error) {
	if article.ContentHash == "" {
		article.ContentHash = core.HashContent(article.Title, article.Content)
	}

	existing, err := r.lockByHash(ctx, article.ContentHash)
	if err != nil && err != sql.ErrNoRows {
		return 0, false, fmt.Errorf("failed to look up article by hash: %w", err)
	}
	if err == sql.ErrNoRows {
		id, insErr := r.insert(ctx, article)
		if insErr == nil {
			article.ID = id
			return id, true, nil
		}
		if !isUniqueViolation(insErr) {
			return 0, false, insErr
		}
		// Lost an insert race: a concurrent writer created the row between
		// our lookup and insert. The row exists now, so merge into it.
		existing, err = r.lockByHash(ctx, article.ContentHash)
		if err != nil {
			return 0, false, fmt.Errorf("failed to reload article after duplicate insert: %w", err)
		}
	}

	core.MergeArticle(existing, article)
	if err := r.update(ctx, existing); err != nil {
		return 0, false, err
	}
	article.ID = existing.ID
	return existing.ID, false, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// lockByHash takes a row lock so concurrent extraction workers merging the
// same hash serialize instead of clobbering each other.
func (r *postgresArticleRepo) lockByHash(ctx context.Context, hash string) (*core.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE content_hash = $1`
	if r.tx != nil {
		query += ` FOR UPDATE`
	}
	return scanArticle(r.query().QueryRowContext(ctx, query, hash))
}

func (r *postgresArticleRepo) insert(ctx context.Context, a *core.Article) (int64, error) {
	tagsJSON, metaJSON, eventsJSON, err := marshalArticleJSON(a)
	if err != nil {
		return 0, err
	}
	if a.Status == "" {
		a.Status = core.StatusExtracted
	}
	if a.DateExtracted.IsZero() {
		a.DateExtracted = time.Now().UTC()
	}

	var id int64
	err = r.query().QueryRowContext(ctx, `
		INSERT INTO articles (
			title, content, content_hash, url, source_type, source_url,
			source_file, page_number, column_number, section, author, tags,
			word_count, date_published, date_extracted, processing_status,
			raw_html, metadata, location_name, location_lat, location_lon,
			event_dates
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING id`,
		a.Title, a.Content, a.ContentHash,
		nullString(a.URL), a.SourceType, nullString(a.SourceURL),
		nullString(a.SourceFile), nullInt(a.PageNumber), nullInt(a.ColumnNumber),
		nullString(a.Section), nullString(a.Author), tagsJSON,
		a.WordCount, nullTime(a.DatePublished), a.DateExtracted, string(a.Status),
		nullString(a.RawHTML), metaJSON, nullString(a.LocationName),
		a.LocationLat, a.LocationLon, eventsJSON,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert article: %w", err)
	}
	return id, nil
}

func (r *postgresArticleRepo) update(ctx context.Context, a *core.Article) error {
	tagsJSON, metaJSON, eventsJSON, err := marshalArticleJSON(a)
	if err != nil {
		return err
	}

	_, err = r.query().ExecContext(ctx, `
		UPDATE articles SET
			url = $2, source_url = $3, source_file = $4, page_number = $5,
			column_number = $6, section = $7, author = $8, tags = $9,
			date_published = $10, raw_html = $11, metadata = $12,
			location_name = $13, location_lat = $14, location_lon = $15,
			event_dates = $16
		WHERE id = $1`,
		a.ID,
		nullString(a.URL), nullString(a.SourceURL), nullString(a.SourceFile),
		nullInt(a.PageNumber), nullInt(a.ColumnNumber), nullString(a.Section),
		nullString(a.Author), tagsJSON, nullTime(a.DatePublished),
		nullString(a.RawHTML), metaJSON, nullString(a.LocationName),
		a.LocationLat, a.LocationLon, eventsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update article %d: %w", a.ID, err)
	}
	return nil
}

func (r *postgresArticleRepo) Get(ctx context.Context, id int64) (*core.Article, error) {
	row := r.query().QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = $1`, id)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *postgresArticleRepo) GetByHash(ctx context.Context, hash string) (*core.Article, error) {
	row := r.query().QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE content_hash = $1`, hash)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *postgresArticleRepo) GetPending(ctx context.Context, status core.Status, limit int) ([]core.Article, error) {
	rows, err := r.query().QueryContext(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE processing_status = $1
		ORDER BY date_extracted ASC
		LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending articles: %w", err)
	}
	defer rows.Close()
	return collectArticles(rows)
}

func (r *postgresArticleRepo) UpdateStatus(ctx context.Context, id int64, status core.Status) error {
	result, err := r.query().ExecContext(ctx,
		`UPDATE articles SET processing_status = $2 WHERE id = $1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update status for article %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("article %d not found", id)
	}
	return nil
}

func (r *postgresArticleRepo) UpdateStatusBulk(ctx context.Context, ids []int64, status core.Status) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.query().ExecContext(ctx,
		`UPDATE articles SET processing_status = $2 WHERE id = ANY($1)`,
		pq.Array(ids), string(status))
	if err != nil {
		return fmt.Errorf("failed to bulk update status: %w", err)
	}
	return nil
}

func (r *postgresArticleRepo) SetEventDates(ctx context.Context, id int64, events []map[string]any) error {
	buf, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal event dates: %w", err)
	}
	_, err = r.query().ExecContext(ctx,
		`UPDATE articles SET event_dates = $2 WHERE id = $1`, id, buf)
	if err != nil {
		return fmt.Errorf("failed to set event dates for article %d: %w", id, err)
	}
	return nil
}

func (r *postgresArticleRepo) ListForDigest(ctx context.Context, day time.Time, limit int) ([]core.Article, error) {
	rows, err := r.query().QueryContext(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE date_extracted::date = $1::date
		  AND processing_status IN ('summarized', 'extracted')
		ORDER BY processing_status DESC, word_count DESC
		LIMIT $2`, day, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query digest articles: %w", err)
	}
	defer rows.Close()
	return collectArticles(rows)
}

func (r *postgresArticleRepo) ListForIndex(ctx context.Context, since time.Time, limit int) ([]IndexDoc, error) {
	rows, err := r.query().QueryContext(ctx, `
		SELECT a.id, a.title, COALESCE(a.section, ''), a.content,
		       COALESCE(s.summary_text, ''), a.date_published
		FROM articles a
		LEFT JOIN summaries s ON s.article_id = a.id AND s.summary_type = 'brief'
		WHERE a.processing_status IN ('summarized', 'notified')
		  AND a.date_updated >= $1
		ORDER BY a.date_updated ASC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query index docs: %w", err)
	}
	defer rows.Close()

	var docs []IndexDoc
	for rows.Next() {
		var d IndexDoc
		var published sql.NullTime
		if err := rows.Scan(&d.ID, &d.Title, &d.Section, &d.Content, &d.Summary, &published); err != nil {
			return nil, fmt.Errorf("failed to scan index doc: %w", err)
		}
		if published.Valid {
			t := published.Time
			d.DatePublished = &t
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *postgresArticleRepo) ListFeed(ctx context.Context, day *time.Time, limit int) ([]FeedArticle, error) {
	query := `
		SELECT ` + prefixColumns("a", articleColumns) + `, COALESCE(s.summary_text, '')
		FROM articles a
		LEFT JOIN summaries s ON s.article_id = a.id AND s.summary_type = 'brief'`
	args := []interface{}{}
	if day != nil {
		query += ` WHERE a.date_extracted::date = $1::date
		ORDER BY a.date_extracted DESC LIMIT $2`
		args = append(args, *day, limit)
	} else {
		query += ` ORDER BY a.date_extracted DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.query().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed: %w", err)
	}
	defer rows.Close()

	var feed []FeedArticle
	for rows.Next() {
		var fa FeedArticle
		if err := scanArticleInto(rows, &fa.Article, &fa.SummaryText); err != nil {
			return nil, err
		}
		feed = append(feed, fa)
	}
	return feed, rows.Err()
}

func (r *postgresArticleRepo) FeedDates(ctx context.Context) ([]string, error) {
	rows, err := r.query().QueryContext(ctx, `
		SELECT DISTINCT date_extracted::date AS d
		FROM articles ORDER BY d DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d.Format("2006-01-02"))
	}
	return dates, rows.Err()
}

func (r *postgresArticleRepo) Search(ctx context.Context, searchQuery string, limit int) ([]core.Article, error) {
	rows, err := r.query().QueryContext(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE to_tsvector('english', title || ' ' || content) @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(to_tsvector('english', title || ' ' || content),
		                 plainto_tsquery('english', $1)) DESC
		LIMIT $2`, searchQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search articles: %w", err)
	}
	defer rows.Close()
	return collectArticles(rows)
}

func (r *postgresArticleRepo) CountsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.query().QueryContext(ctx,
		`SELECT processing_status, COUNT(*) FROM articles GROUP BY processing_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count articles by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *postgresArticleRepo) CleanupOld(ctx context.Context, days int) (int64, error) {
	result, err := r.query().ExecContext(ctx,
		`DELETE FROM articles WHERE date_extracted < NOW() - make_interval(days => $1)`,
		days)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up old articles: %w", err)
	}
	return result.RowsAffected()
}

// prefixColumns qualifies each column in a comma-separated list with a
// table alias, for joined queries.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArticle(row rowScanner) (*core.Article, error) {
	var a core.Article
	if err := scanArticleInto(row, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanArticleInto(row rowScanner, a *core.Article, extra ...interface{}) error {
	var (
		url, sourceURL, sourceFile sql.NullString
		section, author, rawHTML   sql.NullString
		locationName               sql.NullString
		pageNumber, columnNumber   sql.NullInt64
		wordCount                  sql.NullInt64
		datePublished              sql.NullTime
		locationLat, locationLon   sql.NullFloat64
		status                     string
		tagsJSON, metaJSON         []byte
		eventsJSON                 []byte
	)

	dest := []interface{}{
		&a.ID, &a.Title, &a.Content, &a.ContentHash, &url, &a.SourceType,
		&sourceURL, &sourceFile, &pageNumber, &columnNumber, &section, &author,
		&tagsJSON, &wordCount, &datePublished, &a.DateExtracted, &a.DateCreated,
		&a.DateUpdated, &status, &rawHTML, &metaJSON, &locationName,
		&locationLat, &locationLon, &eventsJSON,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("failed to scan article: %w", err)
	}

	a.URL = url.String
	a.SourceURL = sourceURL.String
	a.SourceFile = sourceFile.String
	a.Section = section.String
	a.Author = author.String
	a.RawHTML = rawHTML.String
	a.LocationName = locationName.String
	a.PageNumber = int(pageNumber.Int64)
	a.ColumnNumber = int(columnNumber.Int64)
	a.WordCount = int(wordCount.Int64)
	a.Status = core.Status(status)
	if datePublished.Valid {
		t := datePublished.Time
		a.DatePublished = &t
	}
	if locationLat.Valid {
		v := locationLat.Float64
		a.LocationLat = &v
	}
	if locationLon.Valid {
		v := locationLon.Float64
		a.LocationLon = &v
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &a.Tags); err != nil {
			return fmt.Errorf("failed to decode tags for article %d: %w", a.ID, err)
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &a.Metadata); err != nil {
			return fmt.Errorf("failed to decode metadata for article %d: %w", a.ID, err)
		}
	}
	if len(eventsJSON) > 0 {
		if err := json.Unmarshal(eventsJSON, &a.EventDates); err != nil {
			return fmt.Errorf("failed to decode event dates for article %d: %w", a.ID, err)
		}
	}
	return nil
}

func collectArticles(rows *sql.Rows) ([]core.Article, error) {
	var articles []core.Article
	for rows.Next() {
		var a core.Article
		if err := scanArticleInto(rows, &a); err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func marshalArticleJSON(a *core.Article) (tags, meta, events []byte, err error) {
	if a.Tags != nil {
		if tags, err = json.Marshal(a.Tags); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal tags: %w", err)
		}
	}
	if a.Metadata != nil {
		if meta, err = json.Marshal(a.Metadata); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	if a.EventDates != nil {
		if events, err = json.Marshal(a.EventDates); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal event dates: %w", err)
		}
	}
	return tags, meta, events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

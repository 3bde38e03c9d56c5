package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tilde-sec/threatsift/internal/config"
	"github.com/tilde-sec/threatsift/internal/errs"
	"github.com/tilde-sec/threatsift/internal/models"
)

// entityStore is the relational half of the warehouse: documents and
// their extracted entities in sqlite.
type entityStore struct {
	db  *sql.DB
	cfg config.DatabaseConfig
}

func openEntityStore(path string, cfg config.DatabaseConfig) (*entityStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_loc=UTC")
	if err != nil {
		return nil, errs.Database("open", err)
	}
	// sqlite needs serialized access on writes.
	db.SetMaxOpenConns(1)
	return &entityStore{db: db, cfg: cfg}, nil
}

func (s *entityStore) close() error { return s.db.Close() }

func (s *entityStore) ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errs.Database("ping", err)
	}
	return nil
}

// createSchema creates the four entity tables if absent.
func (s *entityStore) createSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			relative_path TEXT NOT NULL,
			repository_url TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			last_modified TIMESTAMP NOT NULL,
			parsed_at TIMESTAMP NOT NULL,
			attribution TEXT NOT NULL DEFAULT '',
			topic TEXT NOT NULL DEFAULT '',
			normalized INTEGER NOT NULL DEFAULT 0
		)`, s.cfg.DocumentsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			address TEXT NOT NULL,
			chain TEXT NOT NULL,
			context TEXT NOT NULL DEFAULT '',
			extracted_at TIMESTAMP NOT NULL
		)`, s.cfg.AddressesTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			title TEXT NOT NULL,
			date TIMESTAMP NOT NULL,
			date_precision TEXT NOT NULL,
			victim TEXT NOT NULL,
			amount_usd REAL NOT NULL DEFAULT 0,
			attack_vector TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			extracted_at TIMESTAMP NOT NULL
		)`, s.cfg.IncidentsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			value TEXT NOT NULL,
			type TEXT NOT NULL,
			context TEXT NOT NULL DEFAULT '',
			extracted_at TIMESTAMP NOT NULL
		)`, s.cfg.IocsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_document ON %s(document_id)`, s.cfg.AddressesTable, s.cfg.AddressesTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_document ON %s(document_id)`, s.cfg.IncidentsTable, s.cfg.IncidentsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_document ON %s(document_id)`, s.cfg.IocsTable, s.cfg.IocsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_repository ON %s(repository_url)`, s.cfg.DocumentsTable, s.cfg.DocumentsTable),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errs.Database("create schema", err)
		}
	}
	return nil
}

// verifySchema checks that every expected table exists.
func (s *entityStore) verifySchema(ctx context.Context) error {
	var missing []string
	for _, table := range s.tables() {
		var name string
		err := s.db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err == sql.ErrNoRows {
			missing = append(missing, table)
			continue
		}
		if err != nil {
			return errs.Database("verify schema", err)
		}
	}
	if len(missing) > 0 {
		return errs.Database("verify schema", fmt.Errorf("missing tables: %s", strings.Join(missing, ", ")))
	}
	return nil
}

func (s *entityStore) tables() []string {
	return []string{s.cfg.DocumentsTable, s.cfg.AddressesTable, s.cfg.IncidentsTable, s.cfg.IocsTable}
}

// insertDocument writes the document and its entities in one
// transaction. A document whose hash is already present is a no-op,
// including its entities, so replays cannot duplicate rows.
func (s *entityStore) insertDocument(ctx context.Context, doc *models.Document, addresses []*models.CryptoAddress, incidents []*models.Incident, iocs []*models.Ioc) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errs.Database("begin", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT OR IGNORE INTO %s
		 (id, file_path, relative_path, repository_url, content, content_hash,
		  file_size, last_modified, parsed_at, attribution, topic, normalized)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.cfg.DocumentsTable),
		doc.ID, doc.FilePath, doc.RelativePath, doc.RepositoryURL, doc.Content,
		doc.ContentHash, doc.FileSize, doc.LastModified.UTC(), doc.ParsedAt.UTC(),
		doc.Attribution, doc.Topic, doc.Normalized)
	if err != nil {
		return false, errs.Database("insert document", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		// Already present: entity rows for this content exist too.
		return false, nil
	}

	for _, a := range addresses {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT OR IGNORE INTO %s (id, document_id, address, chain, context, extracted_at)
			 VALUES (?, ?, ?, ?, ?, ?)`, s.cfg.AddressesTable),
			a.ID, doc.ID, a.Address, string(a.Chain), a.Context, a.ExtractedAt.UTC()); err != nil {
			return false, errs.Database("insert address", err)
		}
	}
	for _, inc := range incidents {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT OR IGNORE INTO %s
			 (id, document_id, title, date, date_precision, victim, amount_usd,
			  attack_vector, description, extracted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.cfg.IncidentsTable),
			inc.ID, doc.ID, inc.Title, inc.Date.UTC(), string(inc.DatePrecision), inc.Victim,
			inc.AmountUSD, inc.AttackVector, inc.Description, inc.ExtractedAt.UTC()); err != nil {
			return false, errs.Database("insert incident", err)
		}
	}
	for _, ioc := range iocs {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT OR IGNORE INTO %s (id, document_id, value, type, context, extracted_at)
			 VALUES (?, ?, ?, ?, ?, ?)`, s.cfg.IocsTable),
			ioc.ID, doc.ID, ioc.Value, string(ioc.Type), ioc.Context, ioc.ExtractedAt.UTC()); err != nil {
			return false, errs.Database("insert ioc", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, errs.Database("commit", err)
	}
	return true, nil
}

// documentHashes returns every stored content digest.
func (s *entityStore) documentHashes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT content_hash FROM %s`, s.cfg.DocumentsTable))
	if err != nil {
		return nil, errs.Database("query hashes", err)
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, errs.Database("scan hash", err)
		}
		hashes[hash] = struct{}{}
	}
	return hashes, rows.Err()
}

// counts returns the row count per table.
func (s *entityStore) counts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, 4)
	for _, table := range s.tables() {
		var n int64
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
			return nil, errs.Database("count "+table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// deleteByRepository removes every document of the repository and its
// entity rows, returning the number of documents removed.
func (s *entityStore) deleteByRepository(ctx context.Context, repositoryURL string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errs.Database("begin", err)
	}
	defer tx.Rollback()

	for _, table := range []string{s.cfg.AddressesTable, s.cfg.IncidentsTable, s.cfg.IocsTable} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE document_id IN (SELECT id FROM %s WHERE repository_url = ?)`,
			table, s.cfg.DocumentsTable), repositoryURL); err != nil {
			return 0, errs.Database("delete "+table, err)
		}
	}

	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE repository_url = ?`, s.cfg.DocumentsTable), repositoryURL)
	if err != nil {
		return 0, errs.Database("delete documents", err)
	}
	removed, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, errs.Database("commit", err)
	}
	return removed, nil
}

// reset drops all entity tables.
func (s *entityStore) reset(ctx context.Context) error {
	for _, table := range s.tables() {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
			return errs.Database("drop "+table, err)
		}
	}
	return nil
}

// documentsByRepository streams the stored documents of one repository
// (all repositories when repositoryURL is empty).
func (s *entityStore) documentsByRepository(ctx context.Context, repositoryURL string) ([]*models.Document, error) {
	query := fmt.Sprintf(
		`SELECT id, file_path, relative_path, repository_url, content, content_hash,
		        file_size, last_modified, parsed_at, attribution, topic, normalized
		 FROM %s`, s.cfg.DocumentsTable)
	args := []any{}
	if repositoryURL != "" {
		query += ` WHERE repository_url = ?`
		args = append(args, repositoryURL)
	}
	query += ` ORDER BY relative_path`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Database("query documents", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var d models.Document
		var lastModified, parsedAt time.Time
		if err := rows.Scan(&d.ID, &d.FilePath, &d.RelativePath, &d.RepositoryURL,
			&d.Content, &d.ContentHash, &d.FileSize, &lastModified, &parsedAt,
			&d.Attribution, &d.Topic, &d.Normalized); err != nil {
			return nil, errs.Database("scan document", err)
		}
		d.LastModified = lastModified
		d.ParsedAt = parsedAt
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

// entitiesByDocument loads the extracted entities per document id, for
// the exporter and the link graph.
func (s *entityStore) addressRows(ctx context.Context) ([]*models.CryptoAddress, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, document_id, address, chain, context, extracted_at FROM %s`, s.cfg.AddressesTable))
	if err != nil {
		return nil, errs.Database("query addresses", err)
	}
	defer rows.Close()

	var out []*models.CryptoAddress
	for rows.Next() {
		var a models.CryptoAddress
		var chain string
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.Address, &chain, &a.Context, &a.ExtractedAt); err != nil {
			return nil, errs.Database("scan address", err)
		}
		a.Chain = models.ChainType(chain)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *entityStore) incidentRows(ctx context.Context) ([]*models.Incident, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, document_id, title, date, date_precision, victim, amount_usd,
		        attack_vector, description, extracted_at
		 FROM %s`, s.cfg.IncidentsTable))
	if err != nil {
		return nil, errs.Database("query incidents", err)
	}
	defer rows.Close()

	var out []*models.Incident
	for rows.Next() {
		var inc models.Incident
		var precision string
		if err := rows.Scan(&inc.ID, &inc.DocumentID, &inc.Title, &inc.Date, &precision,
			&inc.Victim, &inc.AmountUSD, &inc.AttackVector, &inc.Description, &inc.ExtractedAt); err != nil {
			return nil, errs.Database("scan incident", err)
		}
		inc.DatePrecision = models.DatePrecision(precision)
		out = append(out, &inc)
	}
	return out, rows.Err()
}

func (s *entityStore) iocRows(ctx context.Context) ([]*models.Ioc, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, document_id, value, type, context, extracted_at FROM %s`, s.cfg.IocsTable))
	if err != nil {
		return nil, errs.Database("query iocs", err)
	}
	defer rows.Close()

	var out []*models.Ioc
	for rows.Next() {
		var ioc models.Ioc
		var iocType string
		if err := rows.Scan(&ioc.ID, &ioc.DocumentID, &ioc.Value, &iocType, &ioc.Context, &ioc.ExtractedAt); err != nil {
			return nil, errs.Database("scan ioc", err)
		}
		ioc.Type = models.IocType(iocType)
		out = append(out, &ioc)
	}
	return out, rows.Err()
}

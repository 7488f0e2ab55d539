package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/company-intel/internal/fault"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/vector"
)

// SQLiteStore implements Store using modernc.org/sqlite. Vectors are
// stored as little-endian blobs and ranked in process; lexical search is
// served by a separate full-text index.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id                 TEXT PRIMARY KEY,
	account_id         TEXT NOT NULL DEFAULT '',
	name               TEXT NOT NULL,
	domain             TEXT NOT NULL DEFAULT '',
	industry           TEXT NOT NULL DEFAULT '',
	location           TEXT NOT NULL DEFAULT '',
	website            TEXT NOT NULL DEFAULT '',
	description        TEXT NOT NULL DEFAULT '',
	data_quality_score INTEGER NOT NULL DEFAULT 0,
	verified           INTEGER NOT NULL DEFAULT 0,
	last_updated       DATETIME NOT NULL,
	created_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
	id                        TEXT PRIMARY KEY,
	company_id                TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	first_name                TEXT NOT NULL DEFAULT '',
	last_name                 TEXT NOT NULL DEFAULT '',
	role                      TEXT NOT NULL DEFAULT '',
	email                     TEXT NOT NULL,
	linkedin_url              TEXT NOT NULL DEFAULT '',
	twitter_url               TEXT NOT NULL DEFAULT '',
	source                    TEXT NOT NULL DEFAULT '',
	confidence_score          REAL NOT NULL DEFAULT 0,
	verified                  INTEGER NOT NULL DEFAULT 0,
	email_verification_status TEXT NOT NULL DEFAULT 'unknown',
	created_at                DATETIME NOT NULL,
	updated_at                DATETIME NOT NULL,
	UNIQUE (company_id, email)
);

CREATE TABLE IF NOT EXISTS company_updates (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	source     TEXT NOT NULL,
	field      TEXT NOT NULL,
	old_value  TEXT NOT NULL DEFAULT '',
	new_value  TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_company_updates_company ON company_updates(company_id);

CREATE TABLE IF NOT EXISTS company_embeddings (
	company_id TEXT PRIMARY KEY REFERENCES companies(id) ON DELETE CASCADE,
	embedding  BLOB NOT NULL,
	model      TEXT NOT NULL DEFAULT '',
	text_hash  TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS search_requests (
	id           TEXT PRIMARY KEY,
	account_id   TEXT NOT NULL DEFAULT '',
	query        TEXT NOT NULL,
	icp          TEXT,
	status       TEXT NOT NULL DEFAULT 'pending',
	error        TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS search_results (
	search_request_id TEXT NOT NULL REFERENCES search_requests(id) ON DELETE CASCADE,
	company_id        TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	source            TEXT NOT NULL,
	score             REAL NOT NULL,
	rank              INTEGER NOT NULL,
	PRIMARY KEY (search_request_id, company_id)
);

CREATE TABLE IF NOT EXISTS cost_records (
	id            TEXT PRIMARY KEY,
	company_id    TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL DEFAULT '',
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS enrichment_runs (
	company_id    TEXT PRIMARY KEY REFERENCES companies(id) ON DELETE CASCADE,
	status        TEXT NOT NULL,
	failed_reason TEXT NOT NULL DEFAULT '',
	retryable     INTEGER NOT NULL DEFAULT 0,
	attempts      INTEGER NOT NULL DEFAULT 0,
	started_at    DATETIME,
	finished_at   DATETIME
);

CREATE INDEX IF NOT EXISTS idx_enrichment_runs_status ON enrichment_runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Companies ---

func scanSQLiteCompany(sc interface{ Scan(...any) error }) (*model.Company, error) {
	var c model.Company
	err := sc.Scan(&c.ID, &c.AccountID, &c.Name, &c.Domain, &c.Industry, &c.Location,
		&c.Website, &c.Description, &c.DataQualityScore, &c.Verified, &c.LastUpdated, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) queryCompanies(ctx context.Context, op, query string, args ...any) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fault.Persistence(op, err)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Company
	for rows.Next() {
		c, err := scanSQLiteCompany(rows)
		if err != nil {
			return nil, fault.Persistence(op, err)
		}
		out = append(out, *c)
	}
	return out, fault.Persistence(op, rows.Err())
}

func (s *SQLiteStore) CreateCompany(ctx context.Context, c *model.Company) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.LastUpdated.IsZero() {
		c.LastUpdated = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (`+companyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AccountID, c.Name, c.Domain, c.Industry, c.Location, c.Website, c.Description,
		c.DataQualityScore, c.Verified, c.LastUpdated.UTC(), c.CreatedAt.UTC(),
	)
	return fault.Persistence("sqlite: create company", err)
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	c, err := scanSQLiteCompany(s.db.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.NotFound("sqlite: get company", "company", id)
	}
	if err != nil {
		return nil, fault.Persistence("sqlite: get company", err)
	}
	return c, nil
}

func (s *SQLiteStore) UpdateCompany(ctx context.Context, c *model.Company) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET account_id = ?, name = ?, domain = ?, industry = ?, location = ?,
			website = ?, description = ?, data_quality_score = ?, verified = ?, last_updated = ?
		WHERE id = ?`,
		c.AccountID, c.Name, c.Domain, c.Industry, c.Location, c.Website, c.Description,
		c.DataQualityScore, c.Verified, c.LastUpdated.UTC(), c.ID,
	)
	if err != nil {
		return fault.Persistence("sqlite: update company", err)
	}
	return checkRowsAffected(res, "sqlite: update company", "company", c.ID)
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE 1=1`
	var args []any
	if filter.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, filter.AccountID)
	}
	query += ` ORDER BY name, id LIMIT ? OFFSET ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, filter.Offset)
	return s.queryCompanies(ctx, "sqlite: list companies", query, args...)
}

func (s *SQLiteStore) ListEnrichmentCandidates(ctx context.Context, threshold, limit int) ([]model.Company, error) {
	out, err := s.queryCompanies(ctx, "sqlite: list enrichment candidates",
		`SELECT `+companyColumns+` FROM companies
		WHERE data_quality_score < ? OR industry = '' OR location = '' OR website = '' OR description = ''`,
		threshold,
	)
	if err != nil {
		return nil, err
	}
	// Timestamps are stored as text; order on the parsed values.
	sortOldestFirst(out)
	return page(out, 0, limit), nil
}

// --- Contacts ---

func scanSQLiteContact(sc interface{ Scan(...any) error }) (*model.Contact, error) {
	var c model.Contact
	var status string
	err := sc.Scan(&c.ID, &c.CompanyID, &c.FirstName, &c.LastName, &c.Role, &c.Email,
		&c.LinkedInURL, &c.TwitterURL, &c.Source, &c.ConfidenceScore, &c.Verified, &status,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.EmailVerificationStatus = model.VerificationStatus(status)
	return &c, nil
}

func (s *SQLiteStore) GetContactByEmail(ctx context.Context, companyID, email string) (*model.Contact, error) {
	c, err := scanSQLiteContact(s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE company_id = ? AND email = ?`, companyID, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Persistence("sqlite: get contact", err)
	}
	return c, nil
}

func (s *SQLiteStore) UpsertContact(ctx context.Context, c *model.Contact) error {
	if _, err := s.GetCompany(ctx, c.CompanyID); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (`+contactColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_id, email) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			role = excluded.role,
			linkedin_url = excluded.linkedin_url,
			twitter_url = excluded.twitter_url,
			source = excluded.source,
			confidence_score = excluded.confidence_score,
			verified = excluded.verified,
			email_verification_status = excluded.email_verification_status,
			updated_at = excluded.updated_at`,
		c.ID, c.CompanyID, c.FirstName, c.LastName, c.Role, c.Email, c.LinkedInURL, c.TwitterURL,
		c.Source, c.ConfidenceScore, c.Verified, string(c.EmailVerificationStatus), now, now,
	)
	if err != nil {
		return fault.Persistence("sqlite: upsert contact", err)
	}

	stored, err := s.GetContactByEmail(ctx, c.CompanyID, c.Email)
	if err != nil {
		return err
	}
	if stored != nil {
		c.ID = stored.ID
		c.CreatedAt = stored.CreatedAt
		c.UpdatedAt = stored.UpdatedAt
	}
	return nil
}

func (s *SQLiteStore) ListContacts(ctx context.Context, companyID string) ([]model.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE company_id = ? ORDER BY email`, companyID)
	if err != nil {
		return nil, fault.Persistence("sqlite: list contacts", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Contact
	for rows.Next() {
		c, err := scanSQLiteContact(rows)
		if err != nil {
			return nil, fault.Persistence("sqlite: scan contact", err)
		}
		out = append(out, *c)
	}
	return out, fault.Persistence("sqlite: list contacts", rows.Err())
}

// --- Audit ---

func (s *SQLiteStore) AppendUpdates(ctx context.Context, updates []model.CompanyUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.Persistence("sqlite: append updates", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO company_updates (id, company_id, source, field, old_value, new_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fault.Persistence("sqlite: append updates", err)
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, u := range updates {
		if u.ID == "" {
			u.ID = uuid.New().String()
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx, u.ID, u.CompanyID, u.Source, u.Field, u.OldValue, u.NewValue, u.CreatedAt.UTC()); err != nil {
			return fault.Persistence("sqlite: append updates", err)
		}
	}
	return fault.Persistence("sqlite: append updates", tx.Commit())
}

func (s *SQLiteStore) ListUpdates(ctx context.Context, companyID string) ([]model.CompanyUpdate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, source, field, old_value, new_value, created_at
		FROM company_updates WHERE company_id = ? ORDER BY rowid`, companyID)
	if err != nil {
		return nil, fault.Persistence("sqlite: list updates", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CompanyUpdate
	for rows.Next() {
		var u model.CompanyUpdate
		if err := rows.Scan(&u.ID, &u.CompanyID, &u.Source, &u.Field, &u.OldValue, &u.NewValue, &u.CreatedAt); err != nil {
			return nil, fault.Persistence("sqlite: scan update", err)
		}
		out = append(out, u)
	}
	return out, fault.Persistence("sqlite: list updates", rows.Err())
}

// --- Embeddings ---

func (s *SQLiteStore) UpsertEmbedding(ctx context.Context, rec model.EmbeddingRecord) error {
	if _, err := s.GetCompany(ctx, rec.CompanyID); err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO company_embeddings (company_id, embedding, model, text_hash, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (company_id) DO UPDATE SET
			embedding = excluded.embedding,
			model = excluded.model,
			text_hash = excluded.text_hash,
			updated_at = excluded.updated_at`,
		rec.CompanyID, vector.Encode(rec.Vector), rec.Model, rec.TextHash, rec.UpdatedAt.UTC(),
	)
	return fault.Persistence("sqlite: upsert embedding", err)
}

func (s *SQLiteStore) GetEmbedding(ctx context.Context, companyID string) (*model.EmbeddingRecord, error) {
	var rec model.EmbeddingRecord
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT company_id, embedding, model, text_hash, updated_at FROM company_embeddings WHERE company_id = ?`,
		companyID,
	).Scan(&rec.CompanyID, &blob, &rec.Model, &rec.TextHash, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Persistence("sqlite: get embedding", err)
	}
	rec.Vector = vector.Decode(blob)
	return &rec, nil
}

func (s *SQLiteStore) CountEmbeddings(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM company_embeddings`).Scan(&n); err != nil {
		return 0, fault.Persistence("sqlite: count embeddings", err)
	}
	return n, nil
}

func (s *SQLiteStore) ListEmbeddingCandidates(ctx context.Context, limit int) ([]model.Company, error) {
	const op = "sqlite: list embedding candidates"
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.account_id, c.name, c.domain, c.industry, c.location, c.website, c.description,
			c.data_quality_score, c.verified, c.last_updated, c.created_at, e.updated_at
		FROM companies c
		LEFT JOIN company_embeddings e ON e.company_id = c.id`)
	if err != nil {
		return nil, fault.Persistence(op, err)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Company
	for rows.Next() {
		var c model.Company
		var embedded sql.NullTime
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Name, &c.Domain, &c.Industry, &c.Location,
			&c.Website, &c.Description, &c.DataQualityScore, &c.Verified, &c.LastUpdated, &c.CreatedAt,
			&embedded); err != nil {
			return nil, fault.Persistence(op, err)
		}
		if !embedded.Valid || embedded.Time.Before(c.LastUpdated) {
			out = append(out, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Persistence(op, err)
	}

	sortOldestFirst(out)
	return page(out, 0, limit), nil
}

// NearestEmbeddings loads every stored vector and ranks in process.
func (s *SQLiteStore) NearestEmbeddings(ctx context.Context, vec []float32, k int) ([]model.ScoredID, error) {
	const op = "sqlite: nearest embeddings"
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.name, e.embedding FROM company_embeddings e JOIN companies c ON c.id = e.company_id`)
	if err != nil {
		return nil, fault.Persistence(op, err)
	}
	defer rows.Close() //nolint:errcheck

	var cands []vector.Candidate
	for rows.Next() {
		var cand vector.Candidate
		var blob []byte
		if err := rows.Scan(&cand.CompanyID, &cand.Name, &blob); err != nil {
			return nil, fault.Persistence(op, err)
		}
		cand.Vector = vector.Decode(blob)
		cands = append(cands, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Persistence(op, err)
	}
	return vector.TopK(vec, cands, k), nil
}

// --- Searches ---

func (s *SQLiteStore) CreateSearchRequest(ctx context.Context, req *model.SearchRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = model.SearchPending
	}
	icp, err := marshalICP(req.ICP)
	if err != nil {
		return fault.Persistence("sqlite: create search request", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO search_requests (id, account_id, query, icp, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.AccountID, req.Query, nullableJSON(icp), string(req.Status), req.Error, req.CreatedAt.UTC(),
	)
	return fault.Persistence("sqlite: create search request", err)
}

func (s *SQLiteStore) FinishSearchRequest(ctx context.Context, req *model.SearchRequest) error {
	icp, err := marshalICP(req.ICP)
	if err != nil {
		return fault.Persistence("sqlite: finish search request", err)
	}
	var completed any
	if req.CompletedAt != nil {
		completed = req.CompletedAt.UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE search_requests SET status = ?, icp = ?, error = ?, completed_at = ?
		WHERE id = ? AND status <> 'completed'`,
		string(req.Status), nullableJSON(icp), req.Error, completed, req.ID,
	)
	if err != nil {
		return fault.Persistence("sqlite: finish search request", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.GetSearchRequest(ctx, req.ID)
	return err
}

func (s *SQLiteStore) GetSearchRequest(ctx context.Context, id string) (*model.SearchRequest, error) {
	var req model.SearchRequest
	var icp sql.NullString
	var status string
	var completed sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, query, icp, status, error, created_at, completed_at
		FROM search_requests WHERE id = ?`, id,
	).Scan(&req.ID, &req.AccountID, &req.Query, &icp, &status, &req.Error, &req.CreatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.NotFound("sqlite: get search request", "search request", id)
	}
	if err != nil {
		return nil, fault.Persistence("sqlite: get search request", err)
	}
	req.Status = model.SearchStatus(status)
	if completed.Valid {
		t := completed.Time
		req.CompletedAt = &t
	}
	if icp.Valid && icp.String != "" {
		if err := json.Unmarshal([]byte(icp.String), &req.ICP); err != nil {
			return nil, fault.Persistence("sqlite: unmarshal icp", err)
		}
	}
	return &req, nil
}

func (s *SQLiteStore) SaveSearchResults(ctx context.Context, results []model.SearchResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.Persistence("sqlite: save search results", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range results {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO search_results (search_request_id, company_id, source, score, rank)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (search_request_id, company_id) DO UPDATE SET
				source = excluded.source, score = excluded.score, rank = excluded.rank`,
			r.SearchRequestID, r.CompanyID, r.Source, r.Score, r.Rank,
		)
		if err != nil {
			return fault.Persistence("sqlite: save search results", err)
		}
	}
	return fault.Persistence("sqlite: save search results", tx.Commit())
}

func (s *SQLiteStore) ListSearchResults(ctx context.Context, requestID string) ([]model.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT search_request_id, company_id, source, score, rank
		FROM search_results WHERE search_request_id = ? ORDER BY rank`, requestID)
	if err != nil {
		return nil, fault.Persistence("sqlite: list search results", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		if err := rows.Scan(&r.SearchRequestID, &r.CompanyID, &r.Source, &r.Score, &r.Rank); err != nil {
			return nil, fault.Persistence("sqlite: scan search result", err)
		}
		out = append(out, r)
	}
	return out, fault.Persistence("sqlite: list search results", rows.Err())
}

// --- Costs ---

func (s *SQLiteStore) AppendCosts(ctx context.Context, records []model.CostRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.Persistence("sqlite: append costs", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cost_records (id, company_id, provider, model, input_tokens, output_tokens, cost_usd, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.CompanyID, r.Provider, r.Model, r.InputTokens, r.OutputTokens, r.CostUSD, r.CreatedAt.UTC(),
		)
		if err != nil {
			return fault.Persistence("sqlite: append costs", err)
		}
	}
	return fault.Persistence("sqlite: append costs", tx.Commit())
}

// --- Runs ---

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.EnrichmentRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrichment_runs (company_id, status, failed_reason, retryable, attempts, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_id) DO UPDATE SET
			status = excluded.status,
			failed_reason = excluded.failed_reason,
			retryable = excluded.retryable,
			attempts = excluded.attempts,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
		run.CompanyID, string(run.Status), run.FailedReason, run.Retryable, run.Attempts,
		nullableTime(run.StartedAt), nullableTime(run.FinishedAt),
	)
	return fault.Persistence("sqlite: save run", err)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.EnrichmentRun, error) {
	query := `SELECT company_id, status, failed_reason, retryable, attempts, started_at, finished_at
		FROM enrichment_runs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY company_id LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fault.Persistence("sqlite: list runs", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.EnrichmentRun
	for rows.Next() {
		var r model.EnrichmentRun
		var status string
		var started, finished sql.NullTime
		if err := rows.Scan(&r.CompanyID, &status, &r.FailedReason, &r.Retryable, &r.Attempts, &started, &finished); err != nil {
			return nil, fault.Persistence("sqlite: scan run", err)
		}
		r.Status = model.RunStatus(status)
		if started.Valid {
			t := started.Time
			r.StartedAt = &t
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, fault.Persistence("sqlite: list runs", rows.Err())
}

// --- helpers ---

func checkRowsAffected(res sql.Result, op, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fault.Persistence(op, err)
	}
	if n == 0 {
		return fault.NotFound(op, entity, id)
	}
	return nil
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

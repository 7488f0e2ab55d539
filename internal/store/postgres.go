package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rotisserie/eris"

	"github.com/sells-group/company-intel/internal/db"
	"github.com/sells-group/company-intel/internal/fault"
	"github.com/sells-group/company-intel/internal/model"
)

// PostgresStore implements Store and LexicalSource on Postgres with the
// pgvector extension.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var (
	_ Store         = (*PostgresStore)(nil)
	_ LexicalSource = (*PostgresStore)(nil)
)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS companies (
	id                 TEXT PRIMARY KEY,
	account_id         TEXT NOT NULL DEFAULT '',
	name               TEXT NOT NULL,
	domain             TEXT NOT NULL DEFAULT '',
	industry           TEXT NOT NULL DEFAULT '',
	location           TEXT NOT NULL DEFAULT '',
	website            TEXT NOT NULL DEFAULT '',
	description        TEXT NOT NULL DEFAULT '',
	data_quality_score INTEGER NOT NULL DEFAULT 0 CHECK (data_quality_score BETWEEN 0 AND 100),
	verified           BOOLEAN NOT NULL DEFAULT false,
	last_updated       TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	search_tsv         tsvector GENERATED ALWAYS AS (
		setweight(to_tsvector('english', name), 'A') ||
		setweight(to_tsvector('english', industry), 'B') ||
		setweight(to_tsvector('english', description), 'C')
	) STORED
);

CREATE INDEX IF NOT EXISTS idx_companies_search_tsv ON companies USING GIN (search_tsv);
CREATE INDEX IF NOT EXISTS idx_companies_last_updated ON companies(last_updated);
CREATE INDEX IF NOT EXISTS idx_companies_account ON companies(account_id);

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
	confidence_score          DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (confidence_score BETWEEN 0 AND 1),
	verified                  BOOLEAN NOT NULL DEFAULT false,
	email_verification_status TEXT NOT NULL DEFAULT 'unknown',
	created_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (company_id, email)
);

CREATE TABLE IF NOT EXISTS company_updates (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	source     TEXT NOT NULL,
	field      TEXT NOT NULL,
	old_value  TEXT NOT NULL DEFAULT '',
	new_value  TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_company_updates_company ON company_updates(company_id, created_at);

CREATE TABLE IF NOT EXISTS company_embeddings (
	company_id TEXT PRIMARY KEY REFERENCES companies(id) ON DELETE CASCADE,
	embedding  vector NOT NULL,
	model      TEXT NOT NULL DEFAULT '',
	text_hash  TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS search_requests (
	id           TEXT PRIMARY KEY,
	account_id   TEXT NOT NULL DEFAULT '',
	query        TEXT NOT NULL,
	icp          JSONB,
	status       TEXT NOT NULL DEFAULT 'pending',
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS search_results (
	search_request_id TEXT NOT NULL REFERENCES search_requests(id) ON DELETE CASCADE,
	company_id        TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	source            TEXT NOT NULL,
	score             DOUBLE PRECISION NOT NULL,
	rank              INTEGER NOT NULL,
	PRIMARY KEY (search_request_id, company_id)
);

CREATE TABLE IF NOT EXISTS cost_records (
	id            TEXT PRIMARY KEY,
	company_id    TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL DEFAULT '',
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	cost_usd      DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_cost_records_company ON cost_records(company_id);

CREATE TABLE IF NOT EXISTS enrichment_runs (
	company_id    TEXT PRIMARY KEY REFERENCES companies(id) ON DELETE CASCADE,
	status        TEXT NOT NULL,
	failed_reason TEXT NOT NULL DEFAULT '',
	retryable     BOOLEAN NOT NULL DEFAULT false,
	attempts      INTEGER NOT NULL DEFAULT 0,
	started_at    TIMESTAMPTZ,
	finished_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_enrichment_runs_status ON enrichment_runs(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Companies ---

const companyColumns = `id, account_id, name, domain, industry, location, website, description, data_quality_score, verified, last_updated, created_at`

func scanCompany(row pgx.Row) (*model.Company, error) {
	var c model.Company
	err := row.Scan(&c.ID, &c.AccountID, &c.Name, &c.Domain, &c.Industry, &c.Location,
		&c.Website, &c.Description, &c.DataQualityScore, &c.Verified, &c.LastUpdated, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectCompanies(rows pgx.Rows) ([]model.Company, error) {
	defer rows.Close()
	var out []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateCompany(ctx context.Context, c *model.Company) error {
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO companies (`+companyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.AccountID, c.Name, c.Domain, c.Industry, c.Location, c.Website, c.Description,
		c.DataQualityScore, c.Verified, c.LastUpdated, c.CreatedAt,
	)
	return fault.Persistence("postgres: create company", err)
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	c, err := scanCompany(s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("postgres: get company", "company", id)
	}
	if err != nil {
		return nil, fault.Persistence("postgres: get company", err)
	}
	return c, nil
}

func (s *PostgresStore) UpdateCompany(ctx context.Context, c *model.Company) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET account_id = $1, name = $2, domain = $3, industry = $4, location = $5,
			website = $6, description = $7, data_quality_score = $8, verified = $9, last_updated = $10
		WHERE id = $11`,
		c.AccountID, c.Name, c.Domain, c.Industry, c.Location, c.Website, c.Description,
		c.DataQualityScore, c.Verified, c.LastUpdated, c.ID,
	)
	if err != nil {
		return fault.Persistence("postgres: update company", err)
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFound("postgres: update company", "company", c.ID)
	}
	return nil
}

func (s *PostgresStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies`
	var args []any
	argN := 1

	if filter.AccountID != "" {
		query += fmt.Sprintf(" WHERE account_id = $%d", argN)
		args = append(args, filter.AccountID)
		argN++
	}
	query += " ORDER BY name, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, filter.Limit)
		argN++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argN)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fault.Persistence("postgres: list companies", err)
	}
	out, err := collectCompanies(rows)
	return out, fault.Persistence("postgres: list companies", err)
}

func (s *PostgresStore) ListEnrichmentCandidates(ctx context.Context, threshold, limit int) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+companyColumns+` FROM companies
		WHERE data_quality_score < $1 OR industry = '' OR location = '' OR website = '' OR description = ''
		ORDER BY last_updated, id LIMIT NULLIF($2, 0)`,
		threshold, limit,
	)
	if err != nil {
		return nil, fault.Persistence("postgres: list enrichment candidates", err)
	}
	out, err := collectCompanies(rows)
	return out, fault.Persistence("postgres: list enrichment candidates", err)
}

// --- Contacts ---

const contactColumns = `id, company_id, first_name, last_name, role, email, linkedin_url, twitter_url, source, confidence_score, verified, email_verification_status, created_at, updated_at`

func scanContact(row pgx.Row) (*model.Contact, error) {
	var c model.Contact
	var status string
	err := row.Scan(&c.ID, &c.CompanyID, &c.FirstName, &c.LastName, &c.Role, &c.Email,
		&c.LinkedInURL, &c.TwitterURL, &c.Source, &c.ConfidenceScore, &c.Verified, &status,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.EmailVerificationStatus = model.VerificationStatus(status)
	return &c, nil
}

func (s *PostgresStore) GetContactByEmail(ctx context.Context, companyID, email string) (*model.Contact, error) {
	c, err := scanContact(s.pool.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE company_id = $1 AND email = $2`, companyID, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Persistence("postgres: get contact", err)
	}
	return c, nil
}

func (s *PostgresStore) UpsertContact(ctx context.Context, c *model.Contact) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO contacts (`+contactColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (company_id, email) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			role = EXCLUDED.role,
			linkedin_url = EXCLUDED.linkedin_url,
			twitter_url = EXCLUDED.twitter_url,
			source = EXCLUDED.source,
			confidence_score = EXCLUDED.confidence_score,
			verified = EXCLUDED.verified,
			email_verification_status = EXCLUDED.email_verification_status,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`,
		c.ID, c.CompanyID, c.FirstName, c.LastName, c.Role, c.Email, c.LinkedInURL, c.TwitterURL,
		c.Source, c.ConfidenceScore, c.Verified, string(c.EmailVerificationStatus), now,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return fault.Persistence("postgres: upsert contact", err)
}

func (s *PostgresStore) ListContacts(ctx context.Context, companyID string) ([]model.Contact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE company_id = $1 ORDER BY email`, companyID)
	if err != nil {
		return nil, fault.Persistence("postgres: list contacts", err)
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fault.Persistence("postgres: scan contact", err)
		}
		out = append(out, *c)
	}
	return out, fault.Persistence("postgres: list contacts", rows.Err())
}

// --- Audit ---

var updateColumns = []string{"id", "company_id", "source", "field", "old_value", "new_value", "created_at"}

func (s *PostgresStore) AppendUpdates(ctx context.Context, updates []model.CompanyUpdate) error {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(updates))
	for _, u := range updates {
		if u.ID == "" {
			u.ID = uuid.New().String()
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now
		}
		rows = append(rows, []any{u.ID, u.CompanyID, u.Source, u.Field, u.OldValue, u.NewValue, u.CreatedAt})
	}
	_, err := db.CopyFrom(ctx, s.pool, "company_updates", updateColumns, rows)
	return fault.Persistence("postgres: append updates", err)
}

func (s *PostgresStore) ListUpdates(ctx context.Context, companyID string) ([]model.CompanyUpdate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, source, field, old_value, new_value, created_at
		FROM company_updates WHERE company_id = $1 ORDER BY created_at, id`, companyID)
	if err != nil {
		return nil, fault.Persistence("postgres: list updates", err)
	}
	defer rows.Close()

	var out []model.CompanyUpdate
	for rows.Next() {
		var u model.CompanyUpdate
		if err := rows.Scan(&u.ID, &u.CompanyID, &u.Source, &u.Field, &u.OldValue, &u.NewValue, &u.CreatedAt); err != nil {
			return nil, fault.Persistence("postgres: scan update", err)
		}
		out = append(out, u)
	}
	return out, fault.Persistence("postgres: list updates", rows.Err())
}

// --- Embeddings ---

func (s *PostgresStore) UpsertEmbedding(ctx context.Context, rec model.EmbeddingRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO company_embeddings (company_id, embedding, model, text_hash, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (company_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			text_hash = EXCLUDED.text_hash,
			updated_at = EXCLUDED.updated_at`,
		rec.CompanyID, pgvector.NewVector(rec.Vector), rec.Model, rec.TextHash, rec.UpdatedAt,
	)
	return fault.Persistence("postgres: upsert embedding", err)
}

func (s *PostgresStore) GetEmbedding(ctx context.Context, companyID string) (*model.EmbeddingRecord, error) {
	var rec model.EmbeddingRecord
	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx,
		`SELECT company_id, embedding, model, text_hash, updated_at FROM company_embeddings WHERE company_id = $1`,
		companyID,
	).Scan(&rec.CompanyID, &vec, &rec.Model, &rec.TextHash, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Persistence("postgres: get embedding", err)
	}
	rec.Vector = vec.Slice()
	return &rec, nil
}

func (s *PostgresStore) CountEmbeddings(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM company_embeddings`).Scan(&n)
	if err != nil {
		return 0, fault.Persistence("postgres: count embeddings", err)
	}
	return n, nil
}

func (s *PostgresStore) ListEmbeddingCandidates(ctx context.Context, limit int) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.account_id, c.name, c.domain, c.industry, c.location, c.website, c.description,
			c.data_quality_score, c.verified, c.last_updated, c.created_at
		FROM companies c
		LEFT JOIN company_embeddings e ON e.company_id = c.id
		WHERE e.company_id IS NULL OR e.updated_at < c.last_updated
		ORDER BY c.last_updated, c.id LIMIT NULLIF($1, 0)`,
		limit,
	)
	if err != nil {
		return nil, fault.Persistence("postgres: list embedding candidates", err)
	}
	out, err := collectCompanies(rows)
	return out, fault.Persistence("postgres: list embedding candidates", err)
}

// NearestEmbeddings ranks by pgvector cosine distance; similarity is
// 1 - distance.
func (s *PostgresStore) NearestEmbeddings(ctx context.Context, vec []float32, k int) ([]model.ScoredID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.name, 1 - (e.embedding <=> $1) AS similarity
		FROM company_embeddings e
		JOIN companies c ON c.id = e.company_id
		ORDER BY e.embedding <=> $1, c.id
		LIMIT NULLIF($2, 0)`,
		pgvector.NewVector(vec), k,
	)
	if err != nil {
		return nil, fault.Persistence("postgres: nearest embeddings", err)
	}
	return collectScored(rows, "postgres: nearest embeddings")
}

// --- Lexical ---

// SearchLexical ranks companies by ts_rank_cd over the weighted name,
// industry and description vector.
func (s *PostgresStore) SearchLexical(ctx context.Context, query string, limit int) ([]model.ScoredID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.name, ts_rank_cd(c.search_tsv, q) AS rank
		FROM companies c, plainto_tsquery('english', $1) q
		WHERE c.search_tsv @@ q
		ORDER BY rank DESC, c.id
		LIMIT NULLIF($2, 0)`,
		query, limit,
	)
	if err != nil {
		return nil, fault.Persistence("postgres: search lexical", err)
	}
	return collectScored(rows, "postgres: search lexical")
}

func collectScored(rows pgx.Rows, op string) ([]model.ScoredID, error) {
	defer rows.Close()
	var out []model.ScoredID
	for rows.Next() {
		var sc model.ScoredID
		if err := rows.Scan(&sc.CompanyID, &sc.Name, &sc.Score); err != nil {
			return nil, fault.Persistence(op, err)
		}
		out = append(out, sc)
	}
	return out, fault.Persistence(op, rows.Err())
}

// --- Searches ---

func (s *PostgresStore) CreateSearchRequest(ctx context.Context, req *model.SearchRequest) error {
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
		return fault.Persistence("postgres: create search request", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO search_requests (id, account_id, query, icp, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ID, req.AccountID, req.Query, icp, string(req.Status), req.Error, req.CreatedAt,
	)
	return fault.Persistence("postgres: create search request", err)
}

func (s *PostgresStore) FinishSearchRequest(ctx context.Context, req *model.SearchRequest) error {
	icp, err := marshalICP(req.ICP)
	if err != nil {
		return fault.Persistence("postgres: finish search request", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE search_requests SET status = $1, icp = $2, error = $3, completed_at = $4
		WHERE id = $5 AND status <> 'completed'`,
		string(req.Status), icp, req.Error, req.CompletedAt, req.ID,
	)
	if err != nil {
		return fault.Persistence("postgres: finish search request", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	// Either unknown or already completed.
	_, err = s.GetSearchRequest(ctx, req.ID)
	return err
}

func (s *PostgresStore) GetSearchRequest(ctx context.Context, id string) (*model.SearchRequest, error) {
	var req model.SearchRequest
	var icp []byte
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, account_id, query, icp, status, error, created_at, completed_at
		FROM search_requests WHERE id = $1`, id,
	).Scan(&req.ID, &req.AccountID, &req.Query, &icp, &status, &req.Error, &req.CreatedAt, &req.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("postgres: get search request", "search request", id)
	}
	if err != nil {
		return nil, fault.Persistence("postgres: get search request", err)
	}
	req.Status = model.SearchStatus(status)
	if len(icp) > 0 {
		var parsed model.ICP
		if err := json.Unmarshal(icp, &parsed); err != nil {
			return nil, fault.Persistence("postgres: unmarshal icp", err)
		}
		req.ICP = parsed
	}
	return &req, nil
}

var searchResultUpsert = db.UpsertConfig{
	Table:        "search_results",
	Columns:      []string{"search_request_id", "company_id", "source", "score", "rank"},
	ConflictKeys: []string{"search_request_id", "company_id"},
}

func (s *PostgresStore) SaveSearchResults(ctx context.Context, results []model.SearchResult) error {
	rows := make([][]any, 0, len(results))
	for _, r := range results {
		rows = append(rows, []any{r.SearchRequestID, r.CompanyID, r.Source, r.Score, r.Rank})
	}
	_, err := db.BulkUpsert(ctx, s.pool, searchResultUpsert, rows)
	return fault.Persistence("postgres: save search results", err)
}

func (s *PostgresStore) ListSearchResults(ctx context.Context, requestID string) ([]model.SearchResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT search_request_id, company_id, source, score, rank
		FROM search_results WHERE search_request_id = $1 ORDER BY rank`, requestID)
	if err != nil {
		return nil, fault.Persistence("postgres: list search results", err)
	}
	defer rows.Close()

	var out []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		if err := rows.Scan(&r.SearchRequestID, &r.CompanyID, &r.Source, &r.Score, &r.Rank); err != nil {
			return nil, fault.Persistence("postgres: scan search result", err)
		}
		out = append(out, r)
	}
	return out, fault.Persistence("postgres: list search results", rows.Err())
}

// --- Costs ---

var costColumns = []string{"id", "company_id", "provider", "model", "input_tokens", "output_tokens", "cost_usd", "created_at"}

func (s *PostgresStore) AppendCosts(ctx context.Context, records []model.CostRecord) error {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		rows = append(rows, []any{r.ID, r.CompanyID, r.Provider, r.Model, r.InputTokens, r.OutputTokens, r.CostUSD, r.CreatedAt})
	}
	_, err := db.CopyFrom(ctx, s.pool, "cost_records", costColumns, rows)
	return fault.Persistence("postgres: append costs", err)
}

// --- Runs ---

func (s *PostgresStore) SaveRun(ctx context.Context, run model.EnrichmentRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO enrichment_runs (company_id, status, failed_reason, retryable, attempts, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (company_id) DO UPDATE SET
			status = EXCLUDED.status,
			failed_reason = EXCLUDED.failed_reason,
			retryable = EXCLUDED.retryable,
			attempts = EXCLUDED.attempts,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at`,
		run.CompanyID, string(run.Status), run.FailedReason, run.Retryable, run.Attempts, run.StartedAt, run.FinishedAt,
	)
	return fault.Persistence("postgres: save run", err)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.EnrichmentRun, error) {
	query := `SELECT company_id, status, failed_reason, retryable, attempts, started_at, finished_at FROM enrichment_runs`
	var args []any
	argN := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argN)
		args = append(args, string(filter.Status))
		argN++
	}
	query += " ORDER BY company_id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fault.Persistence("postgres: list runs", err)
	}
	defer rows.Close()

	var out []model.EnrichmentRun
	for rows.Next() {
		var r model.EnrichmentRun
		var status string
		if err := rows.Scan(&r.CompanyID, &status, &r.FailedReason, &r.Retryable, &r.Attempts, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fault.Persistence("postgres: scan run", err)
		}
		r.Status = model.RunStatus(status)
		out = append(out, r)
	}
	return out, fault.Persistence("postgres: list runs", rows.Err())
}

// marshalICP stores an empty profile as NULL.
func marshalICP(icp model.ICP) ([]byte, error) {
	if icp.Empty() {
		return nil, nil
	}
	return json.Marshal(icp)
}

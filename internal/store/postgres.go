package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-reconcile/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock pools satisfy
// it in tests.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// querier is satisfied by both Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
	dsn  string
}

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
	minConns := int32(1)
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
	return &PostgresStore{pool: pool, dsn: connString}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Migrate applies the embedded versioned migrations.
func (s *PostgresStore) Migrate(_ context.Context) error {
	if s.dsn == "" {
		return eris.New("postgres: migrate requires a connection string")
	}
	return MigrateUp(s.dsn)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Providers ---

const pgProviderColumns = `id, external_id, name, ` + reconciledColumns + `, affiliations, last_verified_at, last_changed_at, created_at`

func (s *PostgresStore) CreateProvider(ctx context.Context, p *model.Provider) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO providers (external_id, name, `+reconciledColumns+`, affiliations, last_verified_at, last_changed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		p.ExternalID, p.Name, p.Phone, p.Address, p.Specialty, p.LicenseNo, p.LicenseExpiry,
		p.Affiliations, p.LastVerifiedAt, p.LastChangedAt, p.CreatedAt,
	).Scan(&p.ID)
	return eris.Wrapf(err, "postgres: insert provider %s", p.ExternalID)
}

func (s *PostgresStore) GetProvider(ctx context.Context, id int64) (*model.Provider, error) {
	p, err := scanPgProvider(s.pool.QueryRow(ctx, `SELECT `+pgProviderColumns+` FROM providers WHERE id = $1`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get provider %d", id)
	}
	return p, nil
}

func (s *PostgresStore) GetProviderByExternalID(ctx context.Context, externalID string) (*model.Provider, error) {
	p, err := scanPgProvider(s.pool.QueryRow(ctx, `SELECT `+pgProviderColumns+` FROM providers WHERE external_id = $1`, externalID))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get provider %s", externalID)
	}
	return p, nil
}

func (s *PostgresStore) ListStaleProviders(ctx context.Context, limit int) ([]model.Provider, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgProviderColumns+` FROM providers `+staleProviderOrder+` LIMIT $1`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stale providers")
	}
	defer rows.Close()

	var out []model.Provider
	for rows.Next() {
		p, err := scanPgProvider(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan provider")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list stale providers iterate")
}

func (s *PostgresStore) ListProviderIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM providers ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list provider ids")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan provider id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list provider ids iterate")
}

func (s *PostgresStore) ListProviderSummaries(ctx context.Context, filter ProviderFilter) ([]model.ProviderSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.external_id, p.name, p.specialty, p.phone, p.address,
		        ps.pcs, COALESCE(ps.band, ''), ds.score, COALESCE(ds.bucket, ''), ds.next_check_days
		 FROM providers p
		 LEFT JOIN provider_scores ps ON ps.provider_id = p.id
		 LEFT JOIN drift_scores ds ON ds.provider_id = p.id
		 ORDER BY p.id LIMIT $1 OFFSET $2`,
		listLimit(filter.Limit), filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list provider summaries")
	}
	defer rows.Close()

	var out []model.ProviderSummary
	for rows.Next() {
		var ps model.ProviderSummary
		if err := rows.Scan(&ps.ID, &ps.ExternalID, &ps.Name, &ps.Specialty, &ps.Phone, &ps.Address,
			&ps.PCS, &ps.Band, &ps.DriftScore, &ps.DriftBucket, &ps.NextCheck); err != nil {
			return nil, eris.Wrap(err, "postgres: scan provider summary")
		}
		out = append(out, ps)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list provider summaries iterate")
}

// --- Documents ---

func (s *PostgresStore) AddDocument(ctx context.Context, d *model.Document) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO documents (provider_id, doc_type, path, ocr_text, ocr_confidence)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		d.ProviderID, d.DocType, d.Path, d.OCRText, d.OCRConfidence,
	).Scan(&d.ID)
	return eris.Wrapf(err, "postgres: insert document for provider %d", d.ProviderID)
}

func (s *PostgresStore) ListDocuments(ctx context.Context, providerID int64) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, provider_id, doc_type, path, ocr_text, ocr_confidence FROM documents WHERE provider_id = $1 ORDER BY id`,
		providerID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list documents for provider %d", providerID)
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.ProviderID, &d.DocType, &d.Path, &d.OCRText, &d.OCRConfidence); err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list documents iterate")
}

// --- Runs ---

const pgRunColumns = `id, run_type, status, run_limit, count_processed, auto_updates, manual_reviews, failed, error, started_at, finished_at`

func (s *PostgresStore) CreateRun(ctx context.Context, r *model.Run) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = model.RunStatusPending
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO validation_runs (id, run_type, status, run_limit, started_at) VALUES ($1, $2, $3, $4, $5)`,
		r.ID, string(r.Type), string(r.Status), r.Limit, r.StartedAt,
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE validation_runs SET status = $1 WHERE id = $2`,
		string(status), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, r *model.Run) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE validation_runs
		 SET status = $1, count_processed = $2, auto_updates = $3, manual_reviews = $4, failed = $5, error = $6, finished_at = $7
		 WHERE id = $8`,
		string(r.Status), r.CountProcessed, r.AutoUpdates, r.ManualReviews, r.Failed, r.Error, r.FinishedAt, r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", r.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", r.ID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx, `SELECT `+pgRunColumns+` FROM validation_runs WHERE id = $1`, runID))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRunColumns+` FROM validation_runs ORDER BY started_at DESC LIMIT $1`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// --- Reconciliation ---

// CommitReconciliation writes one provider's pass in a single transaction.
// The provider row is locked first so concurrent runs on the same provider
// serialize.
func (s *PostgresStore) CommitReconciliation(ctx context.Context, rec *model.Reconciliation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin reconciliation")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := scanPgProvider(tx.QueryRow(ctx,
		`SELECT `+pgProviderColumns+` FROM providers WHERE id = $1 FOR UPDATE`, rec.ProviderID))
	if err != nil {
		return eris.Wrapf(err, "postgres: lock provider %d", rec.ProviderID)
	}

	for _, f := range rec.Fields {
		sources, err := marshalSources(f.Consensus.Sources)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO field_confidence (provider_id, field_name, confidence, sources, created_at) VALUES ($1, $2, $3, $4, $5)`,
			rec.ProviderID, string(f.Decision.Field), f.Consensus.Confidence, sources, rec.At,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert confidence %s", f.Decision.Field)
		}

		if d := f.Decision; d.Kind == model.DecisionManualReview {
			if _, err := tx.Exec(ctx,
				`INSERT INTO manual_review (provider_id, field_name, current_value, suggested_value, reason, status, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				rec.ProviderID, string(d.Field), d.From, d.To, d.Reason, string(model.ReviewPending), rec.At,
			); err != nil {
				return eris.Wrapf(err, "postgres: insert review item %s", d.Field)
			}
		}
	}

	audits, err := applyOutcomes(p, rec)
	if err != nil {
		return err
	}
	if len(audits) > 0 {
		if err := pgUpdateProvider(ctx, tx, p); err != nil {
			return err
		}
		for _, a := range audits {
			if err := pgInsertAudit(ctx, tx, a); err != nil {
				return err
			}
		}
	}

	for _, d := range rec.Documents {
		if _, err := tx.Exec(ctx,
			`UPDATE documents SET ocr_text = $1, ocr_confidence = $2 WHERE id = $3 AND provider_id = $4`,
			d.Text, d.Confidence, d.DocumentID, rec.ProviderID,
		); err != nil {
			return eris.Wrapf(err, "postgres: update document %d", d.DocumentID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit reconciliation")
}

func (s *PostgresStore) ListFieldConfidence(ctx context.Context, providerID int64) ([]model.FieldConfidence, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, provider_id, field_name, confidence, sources, created_at
		 FROM field_confidence WHERE provider_id = $1 ORDER BY created_at DESC, id DESC`,
		providerID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list confidence for provider %d", providerID)
	}
	defer rows.Close()

	var out []model.FieldConfidence
	for rows.Next() {
		var fc model.FieldConfidence
		var field string
		var sources []byte
		if err := rows.Scan(&fc.ID, &fc.ProviderID, &field, &fc.Confidence, &sources, &fc.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan confidence")
		}
		fc.FieldName = model.FieldName(field)
		if fc.Sources, err = unmarshalSources(sources); err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list confidence iterate")
}

// --- Review ---

const pgReviewColumns = `id, provider_id, field_name, current_value, suggested_value, reason, status, created_at, resolved_at`

func (s *PostgresStore) GetReviewItem(ctx context.Context, id int64) (*model.ManualReviewItem, error) {
	it, err := scanPgReview(s.pool.QueryRow(ctx, `SELECT `+pgReviewColumns+` FROM manual_review WHERE id = $1`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get review item %d", id)
	}
	return it, nil
}

func (s *PostgresStore) ListReviewItems(ctx context.Context, filter ReviewFilter) ([]model.ManualReviewItem, error) {
	query := `SELECT ` + pgReviewColumns + ` FROM manual_review WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.ProviderID > 0 {
		query += fmt.Sprintf(` AND provider_id = $%d`, argIdx)
		args = append(args, filter.ProviderID)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list review items")
	}
	defer rows.Close()

	var out []model.ManualReviewItem
	for rows.Next() {
		it, err := scanPgReview(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan review item")
		}
		out = append(out, *it)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list review items iterate")
}

// ResolveReview locks the review item and its provider, lets fn decide the
// outcome and writes it in one transaction.
func (s *PostgresStore) ResolveReview(ctx context.Context, id int64, fn ResolveFunc) (*model.ReviewResolution, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin resolve")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	item, err := scanPgReview(tx.QueryRow(ctx,
		`SELECT `+pgReviewColumns+` FROM manual_review WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: lock review item %d", id)
	}
	p, err := scanPgProvider(tx.QueryRow(ctx,
		`SELECT `+pgProviderColumns+` FROM providers WHERE id = $1 FOR UPDATE`, item.ProviderID))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: lock provider %d", item.ProviderID)
	}

	res, err := fn(*item, *p)
	if err != nil {
		return nil, err
	}

	if res.Apply {
		if err := applyResolution(p, res); err != nil {
			return nil, err
		}
		if err := pgUpdateProvider(ctx, tx, p); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE manual_review SET status = $1, resolved_at = $2 WHERE id = $3`,
		string(res.Status), res.At, id,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: update review item %d", id)
	}
	if err := pgInsertAudit(ctx, tx, res.Audit); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit resolve")
	}
	return &res, nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, providerID int64) ([]model.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, provider_id, field_name, old_value, new_value, action, actor, created_at
		 FROM audit_log WHERE provider_id = $1 ORDER BY created_at DESC, id DESC`,
		providerID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list audit for provider %d", providerID)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var a model.AuditEntry
		var field, action string
		if err := rows.Scan(&a.ID, &a.ProviderID, &field, &a.OldValue, &a.NewValue, &action, &a.Actor, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit")
		}
		a.FieldName = model.FieldName(field)
		a.Action = model.AuditAction(action)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list audit iterate")
}

// --- Scores ---

func (s *PostgresStore) SaveScores(ctx context.Context, score model.ProviderScore, drift model.DriftScore) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save scores")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO provider_scores (provider_id, pcs, srm, fr, st, mb, dq, rp, lh, ha, band, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (provider_id) DO UPDATE SET
		   pcs = EXCLUDED.pcs, srm = EXCLUDED.srm, fr = EXCLUDED.fr, st = EXCLUDED.st, mb = EXCLUDED.mb,
		   dq = EXCLUDED.dq, rp = EXCLUDED.rp, lh = EXCLUDED.lh, ha = EXCLUDED.ha,
		   band = EXCLUDED.band, updated_at = EXCLUDED.updated_at`,
		score.ProviderID, score.PCS, score.SRM, score.FR, score.ST, score.MB, score.DQ,
		score.RP, score.LH, score.HA, string(score.Band), score.UpdatedAt,
	); err != nil {
		return eris.Wrapf(err, "postgres: upsert score for provider %d", score.ProviderID)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO drift_scores (provider_id, score, bucket, next_check_days, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (provider_id) DO UPDATE SET
		   score = EXCLUDED.score, bucket = EXCLUDED.bucket,
		   next_check_days = EXCLUDED.next_check_days, updated_at = EXCLUDED.updated_at`,
		drift.ProviderID, drift.Score, string(drift.Bucket), drift.NextCheckDays, drift.UpdatedAt,
	); err != nil {
		return eris.Wrapf(err, "postgres: upsert drift for provider %d", drift.ProviderID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit scores")
}

func (s *PostgresStore) GetScores(ctx context.Context, providerID int64) (*model.ProviderScore, *model.DriftScore, error) {
	var ps model.ProviderScore
	var band string
	err := s.pool.QueryRow(ctx,
		`SELECT provider_id, pcs, srm, fr, st, mb, dq, rp, lh, ha, band, updated_at FROM provider_scores WHERE provider_id = $1`,
		providerID,
	).Scan(&ps.ProviderID, &ps.PCS, &ps.SRM, &ps.FR, &ps.ST, &ps.MB, &ps.DQ, &ps.RP, &ps.LH, &ps.HA, &band, &ps.UpdatedAt)
	var score *model.ProviderScore
	switch {
	case err == nil:
		ps.Band = model.Band(band)
		score = &ps
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, nil, eris.Wrapf(err, "postgres: get score for provider %d", providerID)
	}

	var ds model.DriftScore
	var bucket string
	err = s.pool.QueryRow(ctx,
		`SELECT provider_id, score, bucket, next_check_days, updated_at FROM drift_scores WHERE provider_id = $1`,
		providerID,
	).Scan(&ds.ProviderID, &ds.Score, &bucket, &ds.NextCheckDays, &ds.UpdatedAt)
	var drift *model.DriftScore
	switch {
	case err == nil:
		ds.Bucket = model.DriftBucket(bucket)
		drift = &ds
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, nil, eris.Wrapf(err, "postgres: get drift for provider %d", providerID)
	}
	return score, drift, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.Stats, error) {
	st := newStats()

	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM providers),
		        (SELECT COUNT(*) FROM manual_review WHERE status = $1),
		        (SELECT AVG(pcs) FROM provider_scores)`,
		string(model.ReviewPending),
	).Scan(&st.ProviderCount, &st.PendingReviews, &st.AvgPCS)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats counts")
	}

	rows, err := s.pool.Query(ctx, `SELECT pcs FROM provider_scores`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: pcs distribution")
	}
	for rows.Next() {
		var pcs float64
		if err := rows.Scan(&pcs); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan pcs")
		}
		st.PCSDistribution[model.PCSBucket(pcs)]++
	}
	rows.Close()

	rows, err = s.pool.Query(ctx, `SELECT bucket, COUNT(*) FROM drift_scores GROUP BY bucket`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: drift distribution")
	}
	for rows.Next() {
		var bucket string
		var n int
		if err := rows.Scan(&bucket, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan drift bucket")
		}
		st.DriftDistribution[bucket] = n
	}
	rows.Close()

	runs, err := s.ListRuns(ctx, trendRuns)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		st.LatestRun = &runs[0]
		st.Trend = runs
	}
	return st, nil
}

// helpers

func pgUpdateProvider(ctx context.Context, q querier, p *model.Provider) error {
	args := append(reconciledValues(p), p.LastChangedAt, p.LastVerifiedAt, p.ID)
	_, err := q.Exec(ctx,
		`UPDATE providers
		 SET phone = $1, address = $2, specialty = $3, license_no = $4, license_expiry = $5,
		     last_changed_at = $6, last_verified_at = $7
		 WHERE id = $8`,
		args...,
	)
	return eris.Wrapf(err, "postgres: update provider %d", p.ID)
}

func pgInsertAudit(ctx context.Context, q querier, a model.AuditEntry) error {
	_, err := q.Exec(ctx,
		`INSERT INTO audit_log (provider_id, field_name, old_value, new_value, action, actor, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ProviderID, string(a.FieldName), a.OldValue, a.NewValue, string(a.Action), a.Actor, a.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert audit %s", a.FieldName)
}

func pgNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func scanPgProvider(row pgx.Row) (*model.Provider, error) {
	var p model.Provider
	err := row.Scan(&p.ID, &p.ExternalID, &p.Name, &p.Phone, &p.Address, &p.Specialty,
		&p.LicenseNo, &p.LicenseExpiry, &p.Affiliations, &p.LastVerifiedAt, &p.LastChangedAt, &p.CreatedAt)
	if err != nil {
		return nil, pgNotFound(err)
	}
	return &p, nil
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var runType, status string
	err := row.Scan(&r.ID, &runType, &status, &r.Limit, &r.CountProcessed, &r.AutoUpdates,
		&r.ManualReviews, &r.Failed, &r.Error, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, pgNotFound(err)
	}
	r.Type = model.RunType(runType)
	r.Status = model.RunStatus(status)
	return &r, nil
}

func scanPgReview(row pgx.Row) (*model.ManualReviewItem, error) {
	var it model.ManualReviewItem
	var field, status string
	err := row.Scan(&it.ID, &it.ProviderID, &field, &it.CurrentValue, &it.SuggestedValue,
		&it.Reason, &status, &it.CreatedAt, &it.ResolvedAt)
	if err != nil {
		return nil, pgNotFound(err)
	}
	it.FieldName = model.FieldName(field)
	it.Status = model.ReviewStatus(status)
	return &it, nil
}

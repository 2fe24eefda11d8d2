package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/provider-reconcile/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS providers (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id      TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	phone            TEXT NOT NULL DEFAULT '',
	address          TEXT NOT NULL DEFAULT '',
	specialty        TEXT NOT NULL DEFAULT '',
	license_no       TEXT NOT NULL DEFAULT '',
	license_expiry   TEXT NOT NULL DEFAULT '',
	affiliations     TEXT NOT NULL DEFAULT '',
	last_verified_at DATETIME,
	last_changed_at  DATETIME,
	created_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	provider_id    INTEGER NOT NULL REFERENCES providers(id),
	doc_type       TEXT NOT NULL,
	path           TEXT NOT NULL,
	ocr_text       TEXT NOT NULL DEFAULT '',
	ocr_confidence REAL
);

CREATE TABLE IF NOT EXISTS validation_runs (
	id              TEXT PRIMARY KEY,
	run_type        TEXT NOT NULL,
	status          TEXT NOT NULL,
	run_limit       INTEGER NOT NULL DEFAULT 0,
	count_processed INTEGER NOT NULL DEFAULT 0,
	auto_updates    INTEGER NOT NULL DEFAULT 0,
	manual_reviews  INTEGER NOT NULL DEFAULT 0,
	failed          INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	started_at      DATETIME NOT NULL,
	finished_at     DATETIME
);

CREATE TABLE IF NOT EXISTS field_confidence (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	provider_id INTEGER NOT NULL REFERENCES providers(id),
	field_name  TEXT NOT NULL,
	confidence  REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
	sources     TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS manual_review (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	provider_id     INTEGER NOT NULL REFERENCES providers(id),
	field_name      TEXT NOT NULL,
	current_value   TEXT NOT NULL DEFAULT '',
	suggested_value TEXT NOT NULL DEFAULT '',
	reason          TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'pending',
	created_at      DATETIME NOT NULL,
	resolved_at     DATETIME
);

CREATE TABLE IF NOT EXISTS audit_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	provider_id INTEGER NOT NULL REFERENCES providers(id),
	field_name  TEXT NOT NULL,
	old_value   TEXT NOT NULL DEFAULT '',
	new_value   TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	actor       TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS provider_scores (
	provider_id INTEGER PRIMARY KEY REFERENCES providers(id),
	pcs         REAL NOT NULL,
	srm         REAL NOT NULL,
	fr          REAL NOT NULL,
	st          REAL NOT NULL,
	mb          REAL NOT NULL,
	dq          REAL NOT NULL,
	rp          REAL NOT NULL,
	lh          REAL NOT NULL,
	ha          REAL NOT NULL,
	band        TEXT NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS drift_scores (
	provider_id     INTEGER PRIMARY KEY REFERENCES providers(id),
	score           REAL NOT NULL,
	bucket          TEXT NOT NULL,
	next_check_days INTEGER NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_providers_last_verified ON providers(last_verified_at);
CREATE INDEX IF NOT EXISTS idx_documents_provider ON documents(provider_id);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON validation_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_field_confidence_provider ON field_confidence(provider_id, created_at);
CREATE INDEX IF NOT EXISTS idx_manual_review_status ON manual_review(status);
CREATE INDEX IF NOT EXISTS idx_manual_review_provider ON manual_review(provider_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_provider ON audit_log(provider_id, created_at);
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

// --- Providers ---

const sqliteProviderColumns = `id, external_id, name, ` + reconciledColumns + `, affiliations, last_verified_at, last_changed_at, created_at`

func (s *SQLiteStore) CreateProvider(ctx context.Context, p *model.Provider) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO providers (external_id, name, `+reconciledColumns+`, affiliations, last_verified_at, last_changed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ExternalID, p.Name, p.Phone, p.Address, p.Specialty, p.LicenseNo, p.LicenseExpiry,
		p.Affiliations, nullTime(p.LastVerifiedAt), nullTime(p.LastChangedAt), p.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert provider %s", p.ExternalID)
	}
	p.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: provider id")
}

func (s *SQLiteStore) GetProvider(ctx context.Context, id int64) (*model.Provider, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteProviderColumns+` FROM providers WHERE id = ?`, id)
	p, err := scanSQLiteProvider(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get provider %d", id)
	}
	return p, nil
}

func (s *SQLiteStore) GetProviderByExternalID(ctx context.Context, externalID string) (*model.Provider, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteProviderColumns+` FROM providers WHERE external_id = ?`, externalID)
	p, err := scanSQLiteProvider(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get provider %s", externalID)
	}
	return p, nil
}

func (s *SQLiteStore) ListStaleProviders(ctx context.Context, limit int) ([]model.Provider, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteProviderColumns+` FROM providers `+staleProviderOrder+` LIMIT ?`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stale providers")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Provider
	for rows.Next() {
		p, err := scanSQLiteProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list stale providers iterate")
}

func (s *SQLiteStore) ListProviderIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM providers ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list provider ids")
	}
	defer rows.Close() //nolint:errcheck

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provider id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list provider ids iterate")
}

func (s *SQLiteStore) ListProviderSummaries(ctx context.Context, filter ProviderFilter) ([]model.ProviderSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.external_id, p.name, p.specialty, p.phone, p.address,
		        ps.pcs, ps.band, ds.score, ds.bucket, ds.next_check_days
		 FROM providers p
		 LEFT JOIN provider_scores ps ON ps.provider_id = p.id
		 LEFT JOIN drift_scores ds ON ds.provider_id = p.id
		 ORDER BY p.id LIMIT ? OFFSET ?`,
		listLimit(filter.Limit), filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list provider summaries")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ProviderSummary
	for rows.Next() {
		var ps model.ProviderSummary
		var pcs, drift sql.NullFloat64
		var band, bucket sql.NullString
		var next sql.NullInt64
		if err := rows.Scan(&ps.ID, &ps.ExternalID, &ps.Name, &ps.Specialty, &ps.Phone, &ps.Address,
			&pcs, &band, &drift, &bucket, &next); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provider summary")
		}
		if pcs.Valid {
			ps.PCS = &pcs.Float64
		}
		ps.Band = band.String
		if drift.Valid {
			ps.DriftScore = &drift.Float64
		}
		ps.DriftBucket = bucket.String
		if next.Valid {
			n := int(next.Int64)
			ps.NextCheck = &n
		}
		out = append(out, ps)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list provider summaries iterate")
}

// --- Documents ---

func (s *SQLiteStore) AddDocument(ctx context.Context, d *model.Document) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (provider_id, doc_type, path, ocr_text, ocr_confidence) VALUES (?, ?, ?, ?, ?)`,
		d.ProviderID, d.DocType, d.Path, d.OCRText, nullFloat(d.OCRConfidence),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert document for provider %d", d.ProviderID)
	}
	d.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: document id")
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, providerID int64) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider_id, doc_type, path, ocr_text, ocr_confidence FROM documents WHERE provider_id = ? ORDER BY id`,
		providerID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list documents for provider %d", providerID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Document
	for rows.Next() {
		var d model.Document
		var conf sql.NullFloat64
		if err := rows.Scan(&d.ID, &d.ProviderID, &d.DocType, &d.Path, &d.OCRText, &conf); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		if conf.Valid {
			d.OCRConfidence = &conf.Float64
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list documents iterate")
}

// --- Runs ---

const sqliteRunColumns = `id, run_type, status, run_limit, count_processed, auto_updates, manual_reviews, failed, error, started_at, finished_at`

func (s *SQLiteStore) CreateRun(ctx context.Context, r *model.Run) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = model.RunStatusPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO validation_runs (id, run_type, status, run_limit, started_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, string(r.Type), string(r.Status), r.Limit, r.StartedAt,
	)
	return eris.Wrap(err, "sqlite: insert run")
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE validation_runs SET status = ? WHERE id = ?`,
		string(status), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, r *model.Run) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE validation_runs
		 SET status = ?, count_processed = ?, auto_updates = ?, manual_reviews = ?, failed = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		string(r.Status), r.CountProcessed, r.AutoUpdates, r.ManualReviews, r.Failed, r.Error, nullTime(r.FinishedAt), r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", r.ID)
	}
	return checkRowsAffected(res, "run", r.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM validation_runs WHERE id = ?`, runID)
	r, err := scanSQLiteRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM validation_runs ORDER BY started_at DESC LIMIT ?`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// --- Reconciliation ---

func (s *SQLiteStore) CommitReconciliation(ctx context.Context, rec *model.Reconciliation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin reconciliation")
	}
	defer tx.Rollback() //nolint:errcheck

	p, err := scanSQLiteProvider(tx.QueryRowContext(ctx,
		`SELECT `+sqliteProviderColumns+` FROM providers WHERE id = ?`, rec.ProviderID))
	if err != nil {
		return eris.Wrapf(err, "sqlite: load provider %d", rec.ProviderID)
	}

	for _, f := range rec.Fields {
		sources, err := marshalSources(f.Consensus.Sources)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO field_confidence (provider_id, field_name, confidence, sources, created_at) VALUES (?, ?, ?, ?, ?)`,
			rec.ProviderID, string(f.Decision.Field), f.Consensus.Confidence, string(sources), rec.At,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert confidence %s", f.Decision.Field)
		}

		if d := f.Decision; d.Kind == model.DecisionManualReview {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO manual_review (provider_id, field_name, current_value, suggested_value, reason, status, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				rec.ProviderID, string(d.Field), d.From, d.To, d.Reason, string(model.ReviewPending), rec.At,
			); err != nil {
				return eris.Wrapf(err, "sqlite: insert review item %s", d.Field)
			}
		}
	}

	audits, err := applyOutcomes(p, rec)
	if err != nil {
		return err
	}
	if len(audits) > 0 {
		if err := sqliteUpdateProvider(ctx, tx, p); err != nil {
			return err
		}
		for _, a := range audits {
			if err := sqliteInsertAudit(ctx, tx, a); err != nil {
				return err
			}
		}
	}

	for _, d := range rec.Documents {
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET ocr_text = ?, ocr_confidence = ? WHERE id = ? AND provider_id = ?`,
			d.Text, d.Confidence, d.DocumentID, rec.ProviderID,
		); err != nil {
			return eris.Wrapf(err, "sqlite: update document %d", d.DocumentID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit reconciliation")
}

func (s *SQLiteStore) ListFieldConfidence(ctx context.Context, providerID int64) ([]model.FieldConfidence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider_id, field_name, confidence, sources, created_at
		 FROM field_confidence WHERE provider_id = ? ORDER BY created_at DESC, id DESC`,
		providerID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list confidence for provider %d", providerID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.FieldConfidence
	for rows.Next() {
		var fc model.FieldConfidence
		var sources string
		if err := rows.Scan(&fc.ID, &fc.ProviderID, &fc.FieldName, &fc.Confidence, &sources, &fc.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan confidence")
		}
		if fc.Sources, err = unmarshalSources([]byte(sources)); err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list confidence iterate")
}

// --- Review ---

const sqliteReviewColumns = `id, provider_id, field_name, current_value, suggested_value, reason, status, created_at, resolved_at`

func (s *SQLiteStore) GetReviewItem(ctx context.Context, id int64) (*model.ManualReviewItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteReviewColumns+` FROM manual_review WHERE id = ?`, id)
	it, err := scanSQLiteReview(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get review item %d", id)
	}
	return it, nil
}

func (s *SQLiteStore) ListReviewItems(ctx context.Context, filter ReviewFilter) ([]model.ManualReviewItem, error) {
	query := `SELECT ` + sqliteReviewColumns + ` FROM manual_review WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ProviderID > 0 {
		query += ` AND provider_id = ?`
		args = append(args, filter.ProviderID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list review items")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ManualReviewItem
	for rows.Next() {
		it, err := scanSQLiteReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list review items iterate")
}

func (s *SQLiteStore) ResolveReview(ctx context.Context, id int64, fn ResolveFunc) (*model.ReviewResolution, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin resolve")
	}
	defer tx.Rollback() //nolint:errcheck

	item, err := scanSQLiteReview(tx.QueryRowContext(ctx,
		`SELECT `+sqliteReviewColumns+` FROM manual_review WHERE id = ?`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load review item %d", id)
	}
	p, err := scanSQLiteProvider(tx.QueryRowContext(ctx,
		`SELECT `+sqliteProviderColumns+` FROM providers WHERE id = ?`, item.ProviderID))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load provider %d", item.ProviderID)
	}

	res, err := fn(*item, *p)
	if err != nil {
		return nil, err
	}

	if res.Apply {
		if err := applyResolution(p, res); err != nil {
			return nil, err
		}
		if err := sqliteUpdateProvider(ctx, tx, p); err != nil {
			return nil, err
		}
	}

	updated, err := tx.ExecContext(ctx,
		`UPDATE manual_review SET status = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		string(res.Status), res.At, id, string(model.ReviewPending),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update review item %d", id)
	}
	if err := checkRowsAffected(updated, "pending review item", id); err != nil {
		return nil, err
	}
	if err := sqliteInsertAudit(ctx, tx, res.Audit); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit resolve")
	}
	return &res, nil
}

func (s *SQLiteStore) ListAudit(ctx context.Context, providerID int64) ([]model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider_id, field_name, old_value, new_value, action, actor, created_at
		 FROM audit_log WHERE provider_id = ? ORDER BY created_at DESC, id DESC`,
		providerID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list audit for provider %d", providerID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AuditEntry
	for rows.Next() {
		var a model.AuditEntry
		if err := rows.Scan(&a.ID, &a.ProviderID, &a.FieldName, &a.OldValue, &a.NewValue, &a.Action, &a.Actor, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list audit iterate")
}

// --- Scores ---

func (s *SQLiteStore) SaveScores(ctx context.Context, score model.ProviderScore, drift model.DriftScore) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save scores")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO provider_scores (provider_id, pcs, srm, fr, st, mb, dq, rp, lh, ha, band, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider_id) DO UPDATE SET
		   pcs = excluded.pcs, srm = excluded.srm, fr = excluded.fr, st = excluded.st, mb = excluded.mb,
		   dq = excluded.dq, rp = excluded.rp, lh = excluded.lh, ha = excluded.ha,
		   band = excluded.band, updated_at = excluded.updated_at`,
		score.ProviderID, score.PCS, score.SRM, score.FR, score.ST, score.MB, score.DQ,
		score.RP, score.LH, score.HA, string(score.Band), score.UpdatedAt,
	); err != nil {
		return eris.Wrapf(err, "sqlite: upsert score for provider %d", score.ProviderID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO drift_scores (provider_id, score, bucket, next_check_days, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (provider_id) DO UPDATE SET
		   score = excluded.score, bucket = excluded.bucket,
		   next_check_days = excluded.next_check_days, updated_at = excluded.updated_at`,
		drift.ProviderID, drift.Score, string(drift.Bucket), drift.NextCheckDays, drift.UpdatedAt,
	); err != nil {
		return eris.Wrapf(err, "sqlite: upsert drift for provider %d", drift.ProviderID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit scores")
}

func (s *SQLiteStore) GetScores(ctx context.Context, providerID int64) (*model.ProviderScore, *model.DriftScore, error) {
	var ps model.ProviderScore
	err := s.db.QueryRowContext(ctx,
		`SELECT provider_id, pcs, srm, fr, st, mb, dq, rp, lh, ha, band, updated_at FROM provider_scores WHERE provider_id = ?`,
		providerID,
	).Scan(&ps.ProviderID, &ps.PCS, &ps.SRM, &ps.FR, &ps.ST, &ps.MB, &ps.DQ, &ps.RP, &ps.LH, &ps.HA, &ps.Band, &ps.UpdatedAt)
	var score *model.ProviderScore
	switch {
	case err == nil:
		score = &ps
	case !errors.Is(err, sql.ErrNoRows):
		return nil, nil, eris.Wrapf(err, "sqlite: get score for provider %d", providerID)
	}

	var ds model.DriftScore
	err = s.db.QueryRowContext(ctx,
		`SELECT provider_id, score, bucket, next_check_days, updated_at FROM drift_scores WHERE provider_id = ?`,
		providerID,
	).Scan(&ds.ProviderID, &ds.Score, &ds.Bucket, &ds.NextCheckDays, &ds.UpdatedAt)
	var drift *model.DriftScore
	switch {
	case err == nil:
		drift = &ds
	case !errors.Is(err, sql.ErrNoRows):
		return nil, nil, eris.Wrapf(err, "sqlite: get drift for provider %d", providerID)
	}
	return score, drift, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.Stats, error) {
	st := newStats()

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM providers`).Scan(&st.ProviderCount); err != nil {
		return nil, eris.Wrap(err, "sqlite: count providers")
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM manual_review WHERE status = ?`, string(model.ReviewPending),
	).Scan(&st.PendingReviews); err != nil {
		return nil, eris.Wrap(err, "sqlite: count pending reviews")
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT AVG(pcs) FROM provider_scores`).Scan(&avg); err != nil {
		return nil, eris.Wrap(err, "sqlite: average pcs")
	}
	if avg.Valid {
		st.AvgPCS = &avg.Float64
	}

	rows, err := s.db.QueryContext(ctx, `SELECT pcs FROM provider_scores`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: pcs distribution")
	}
	for rows.Next() {
		var pcs float64
		if err := rows.Scan(&pcs); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan pcs")
		}
		st.PCSDistribution[model.PCSBucket(pcs)]++
	}
	rows.Close() //nolint:errcheck

	rows, err = s.db.QueryContext(ctx, `SELECT bucket, COUNT(*) FROM drift_scores GROUP BY bucket`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: drift distribution")
	}
	for rows.Next() {
		var bucket string
		var n int
		if err := rows.Scan(&bucket, &n); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan drift bucket")
		}
		st.DriftDistribution[bucket] = n
	}
	rows.Close() //nolint:errcheck

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

func sqliteUpdateProvider(ctx context.Context, tx *sql.Tx, p *model.Provider) error {
	args := append(reconciledValues(p), nullTime(p.LastChangedAt), nullTime(p.LastVerifiedAt), p.ID)
	_, err := tx.ExecContext(ctx,
		`UPDATE providers
		 SET phone = ?, address = ?, specialty = ?, license_no = ?, license_expiry = ?,
		     last_changed_at = ?, last_verified_at = ?
		 WHERE id = ?`,
		args...,
	)
	return eris.Wrapf(err, "sqlite: update provider %d", p.ID)
}

func sqliteInsertAudit(ctx context.Context, tx *sql.Tx, a model.AuditEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_log (provider_id, field_name, old_value, new_value, action, actor, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ProviderID, string(a.FieldName), a.OldValue, a.NewValue, string(a.Action), a.Actor, a.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert audit %s", a.FieldName)
}

func checkRowsAffected(res sql.Result, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %v", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func scanSQLiteProvider(row scannable) (*model.Provider, error) {
	var p model.Provider
	var verified, changed sql.NullTime
	err := row.Scan(&p.ID, &p.ExternalID, &p.Name, &p.Phone, &p.Address, &p.Specialty,
		&p.LicenseNo, &p.LicenseExpiry, &p.Affiliations, &verified, &changed, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if verified.Valid {
		p.LastVerifiedAt = &verified.Time
	}
	if changed.Valid {
		p.LastChangedAt = &changed.Time
	}
	return &p, nil
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var r model.Run
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.Type, &r.Status, &r.Limit, &r.CountProcessed, &r.AutoUpdates,
		&r.ManualReviews, &r.Failed, &r.Error, &r.StartedAt, &finished)
	if err != nil {
		return nil, notFound(err)
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

func scanSQLiteReview(row scannable) (*model.ManualReviewItem, error) {
	var it model.ManualReviewItem
	var resolved sql.NullTime
	err := row.Scan(&it.ID, &it.ProviderID, &it.FieldName, &it.CurrentValue, &it.SuggestedValue,
		&it.Reason, &it.Status, &it.CreatedAt, &resolved)
	if err != nil {
		return nil, notFound(err)
	}
	if resolved.Valid {
		it.ResolvedAt = &resolved.Time
	}
	return &it, nil
}

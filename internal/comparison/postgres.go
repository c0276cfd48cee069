package comparison

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/onnwee/hunchrank/internal/tracing"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateComparison inserts a comparison and its initial features and candidates in one transaction.
func (s *PostgresStore) CreateComparison(ctx context.Context, c *Comparison, features []*Feature, candidates []*Candidate) (err error) {
	if c.Title == "" {
		return ErrInvalidTitle
	}
	for _, f := range features {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	for _, cand := range candidates {
		if err := cand.Validate(); err != nil {
			return err
		}
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "comparisons", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO comparisons (title, description)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, c.Title, c.Description).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert comparison: %w", err)
	}

	for _, f := range features {
		if err = insertFeature(ctx, tx, c.ID, f); err != nil {
			return err
		}
	}
	for _, cand := range candidates {
		if err = insertCandidate(ctx, tx, c.ID, cand); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit comparison: %w", err)
	}
	return nil
}

// AddFeature appends a feature to an existing comparison.
func (s *PostgresStore) AddFeature(ctx context.Context, comparisonID string, f *Feature) (err error) {
	if err := f.Validate(); err != nil {
		return err
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, "features", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertFeature(ctx, tx, comparisonID, f)
	})
}

// AddCandidate appends a candidate to an existing comparison.
func (s *PostgresStore) AddCandidate(ctx context.Context, comparisonID string, c *Candidate) (err error) {
	if err := c.Validate(); err != nil {
		return err
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, "candidates", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertCandidate(ctx, tx, comparisonID, c)
	})
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nextPosition reserves the next insertion position in a comparison.
// Features and candidates share the counter.
func nextPosition(ctx context.Context, tx *sql.Tx, comparisonID string) (int, error) {
	var pos int
	err := tx.QueryRowContext(ctx, `
		UPDATE comparisons SET next_position = next_position + 1
		WHERE id = $1
		RETURNING next_position - 1
	`, comparisonID).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrComparisonNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to reserve position: %w", err)
	}
	return pos, nil
}

func insertFeature(ctx context.Context, tx *sql.Tx, comparisonID string, f *Feature) error {
	pos, err := nextPosition(ctx, tx, comparisonID)
	if err != nil {
		return err
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO features (comparison_id, title, description, weight, position)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, comparisonID, f.Title, f.Description, f.Weight, pos).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("failed to insert feature: %w", err)
	}
	f.ComparisonID = comparisonID
	f.Position = pos
	return nil
}

func insertCandidate(ctx context.Context, tx *sql.Tx, comparisonID string, c *Candidate) error {
	pos, err := nextPosition(ctx, tx, comparisonID)
	if err != nil {
		return err
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO candidates (comparison_id, title, description, links, position)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, comparisonID, c.Title, c.Description, pq.Array(c.Links), pos).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to insert candidate: %w", err)
	}
	c.ComparisonID = comparisonID
	c.Position = pos
	return nil
}

// DeleteComparison removes a comparison. Foreign keys cascade to owned rows.
func (s *PostgresStore) DeleteComparison(ctx context.Context, id string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "comparisons", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	res, err := s.db.ExecContext(ctx, `DELETE FROM comparisons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete comparison: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrComparisonNotFound
	}
	return nil
}

// GetComparison retrieves a comparison by ID.
func (s *PostgresStore) GetComparison(ctx context.Context, id string) (_ *Comparison, err error) {
	if !validID(id) {
		return nil, ErrComparisonNotFound
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, "comparisons", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	c := &Comparison{}
	var tier sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT id, title, description, hunch_tier, created_at
		FROM comparisons
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Title, &c.Description, &tier, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrComparisonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comparison: %w", err)
	}
	c.HunchTier = tier.String
	return c, nil
}

const candidateColumns = `id, comparison_id, title, description, links, hunch, position`

func scanCandidate(row interface{ Scan(...any) error }, c *Candidate) error {
	var hunch sql.NullFloat64
	var links []string
	if err := row.Scan(&c.ID, &c.ComparisonID, &c.Title, &c.Description, pq.Array(&links), &hunch, &c.Position); err != nil {
		return err
	}
	if len(links) > 0 {
		c.Links = links
	}
	if hunch.Valid {
		v := hunch.Float64
		c.Hunch = &v
	}
	return nil
}

// GetCandidate retrieves a candidate by ID.
func (s *PostgresStore) GetCandidate(ctx context.Context, id string) (_ *Candidate, err error) {
	if !validID(id) {
		return nil, ErrCandidateNotFound
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, "candidates", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	c := &Candidate{}
	err = scanCandidate(s.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id), c)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCandidateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return c, nil
}

// GetFeature retrieves a feature by ID.
func (s *PostgresStore) GetFeature(ctx context.Context, id string) (_ *Feature, err error) {
	if !validID(id) {
		return nil, ErrFeatureNotFound
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, "features", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	f := &Feature{}
	err = s.db.QueryRowContext(ctx, `
		SELECT id, comparison_id, title, description, weight, position
		FROM features
		WHERE id = $1
	`, id).Scan(&f.ID, &f.ComparisonID, &f.Title, &f.Description, &f.Weight, &f.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFeatureNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feature: %w", err)
	}
	return f, nil
}

// requireComparison returns ErrComparisonNotFound when the comparison does not exist.
func (s *PostgresStore) requireComparison(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrComparisonNotFound
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM comparisons WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check comparison: %w", err)
	}
	if !exists {
		return ErrComparisonNotFound
	}
	return nil
}

// ListFeatures returns features in insertion order.
func (s *PostgresStore) ListFeatures(ctx context.Context, comparisonID string) (_ []Feature, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "features", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	if err = s.requireComparison(ctx, comparisonID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, comparison_id, title, description, weight, position
		FROM features
		WHERE comparison_id = $1
		ORDER BY position ASC
	`, comparisonID)
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	defer rows.Close()

	var features []Feature
	for rows.Next() {
		var f Feature
		if err = rows.Scan(&f.ID, &f.ComparisonID, &f.Title, &f.Description, &f.Weight, &f.Position); err != nil {
			return nil, fmt.Errorf("failed to scan feature: %w", err)
		}
		features = append(features, f)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating features: %w", err)
	}
	return features, nil
}

// ListCandidates returns candidates in insertion order.
func (s *PostgresStore) ListCandidates(ctx context.Context, comparisonID string) (_ []Candidate, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "candidates", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	if err = s.requireComparison(ctx, comparisonID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+candidateColumns+`
		FROM candidates
		WHERE comparison_id = $1
		ORDER BY position ASC
	`, comparisonID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err = scanCandidate(rows, &c); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidates: %w", err)
	}
	return candidates, nil
}

// ListScores returns every score recorded against the comparison's candidates.
func (s *PostgresStore) ListScores(ctx context.Context, comparisonID string) (_ []Score, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "scores", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	if err = s.requireComparison(ctx, comparisonID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.user_id, s.candidate_id, s.feature_id, s.score, s.updated_at
		FROM scores s
		JOIN candidates c ON c.id = s.candidate_id
		WHERE c.comparison_id = $1
		ORDER BY s.seq ASC
	`, comparisonID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	defer rows.Close()

	var scores []Score
	for rows.Next() {
		var sc Score
		if err = rows.Scan(&sc.UserID, &sc.CandidateID, &sc.FeatureID, &sc.Score, &sc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, sc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scores: %w", err)
	}
	return scores, nil
}

// ListHunches returns the comparison's hunches oldest first.
func (s *PostgresStore) ListHunches(ctx context.Context, comparisonID string) (_ []Hunch, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "hunches", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	if err = s.requireComparison(ctx, comparisonID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, candidate_id, comparison_id, ts, score
		FROM hunches
		WHERE comparison_id = $1
		ORDER BY ts ASC, id ASC
	`, comparisonID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hunches: %w", err)
	}
	defer rows.Close()

	var hunches []Hunch
	for rows.Next() {
		var h Hunch
		if err = rows.Scan(&h.UserID, &h.CandidateID, &h.ComparisonID, &h.Timestamp, &h.Score); err != nil {
			return nil, fmt.Errorf("failed to scan hunch: %w", err)
		}
		hunches = append(hunches, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hunches: %w", err)
	}
	return hunches, nil
}

// CountHunches returns the number of hunches stored for the comparison.
func (s *PostgresStore) CountHunches(ctx context.Context, comparisonID string) (_ int, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "hunches", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	if err = s.requireComparison(ctx, comparisonID); err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hunches WHERE comparison_id = $1`, comparisonID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count hunches: %w", err)
	}
	return n, nil
}

// UpsertScore inserts or overwrites a score.
// xmax = 0 on the returned row distinguishes an insert from an update.
func (s *PostgresStore) UpsertScore(ctx context.Context, score *Score) (_ bool, err error) {
	if err := ValidateScore(score.Score); err != nil {
		return false, err
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, "scores", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	var inserted bool
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO scores (user_id, candidate_id, feature_id, score, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, candidate_id, feature_id)
		DO UPDATE SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at
		RETURNING updated_at, (xmax = 0)
	`, score.UserID, score.CandidateID, score.FeatureID, score.Score).Scan(&score.UpdatedAt, &inserted)
	if err != nil {
		return false, mapForeignKey(err, fmt.Errorf("failed to upsert score: %w", err))
	}
	return inserted, nil
}

// LatestHunchSince returns the user's most recent hunch on a candidate after since.
func (s *PostgresStore) LatestHunchSince(ctx context.Context, userID, candidateID string, since time.Time) (_ *Hunch, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "hunches", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	h := &Hunch{}
	err = s.db.QueryRowContext(ctx, `
		SELECT user_id, candidate_id, comparison_id, ts, score
		FROM hunches
		WHERE user_id = $1 AND candidate_id = $2 AND ts > $3
		ORDER BY ts DESC
		LIMIT 1
	`, userID, candidateID, since).Scan(&h.UserID, &h.CandidateID, &h.ComparisonID, &h.Timestamp, &h.Score)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHunchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest hunch: %w", err)
	}
	return h, nil
}

// InsertHunch stores a new hunch. The comparison is taken from the candidate.
func (s *PostgresStore) InsertHunch(ctx context.Context, h *Hunch) (err error) {
	if err := ValidateScore(h.Score); err != nil {
		return err
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, "hunches", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now()
	}
	// PostgreSQL stores microseconds; keep the in-memory value identical to the row.
	h.Timestamp = h.Timestamp.Truncate(time.Microsecond)

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO hunches (user_id, candidate_id, comparison_id, ts, score)
		SELECT $1, c.id, c.comparison_id, $3, $4
		FROM candidates c
		WHERE c.id = $2
		RETURNING comparison_id
	`, h.UserID, h.CandidateID, h.Timestamp, h.Score).Scan(&h.ComparisonID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCandidateNotFound
	}
	if isUniqueViolation(err, "hunches_user_candidate_ts_key") {
		return ErrDuplicateHunch
	}
	if err != nil {
		return fmt.Errorf("failed to insert hunch: %w", err)
	}
	return nil
}

// UpdateHunchScore overwrites the score of an existing hunch.
func (s *PostgresStore) UpdateHunchScore(ctx context.Context, h *Hunch) (err error) {
	if err := ValidateScore(h.Score); err != nil {
		return err
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, "hunches", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	res, err := s.db.ExecContext(ctx, `
		UPDATE hunches SET score = $4
		WHERE user_id = $1 AND candidate_id = $2 AND ts = $3
	`, h.UserID, h.CandidateID, h.Timestamp, h.Score)
	if err != nil {
		return fmt.Errorf("failed to update hunch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrHunchNotFound
	}
	return nil
}

// SaveHunchEstimates replaces every candidate's cached hunch in one transaction.
func (s *PostgresStore) SaveHunchEstimates(ctx context.Context, comparisonID, tier string, estimates map[string]float64) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "candidates", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE comparisons SET hunch_tier = $2 WHERE id = $1`, comparisonID, tier)
		if err != nil {
			return fmt.Errorf("failed to update hunch tier: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		} else if n == 0 {
			return ErrComparisonNotFound
		}

		if _, err := tx.ExecContext(ctx, `UPDATE candidates SET hunch = NULL WHERE comparison_id = $1`, comparisonID); err != nil {
			return fmt.Errorf("failed to reset hunches: %w", err)
		}
		for candidateID, v := range estimates {
			_, err := tx.ExecContext(ctx, `
				UPDATE candidates SET hunch = $3
				WHERE id = $2 AND comparison_id = $1
			`, comparisonID, candidateID, v)
			if err != nil {
				return fmt.Errorf("failed to save hunch estimate: %w", err)
			}
		}
		return nil
	})
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == constraint
}

// validID reports whether id can name a row. Every primary key is a UUID, so
// anything else is reported as not found instead of a Postgres syntax error.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

// mapForeignKey turns a foreign-key violation on scores into the matching not-found error.
func mapForeignKey(err error, fallback error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		switch pqErr.Constraint {
		case "scores_feature_id_fkey":
			return ErrFeatureNotFound
		default:
			return ErrCandidateNotFound
		}
	}
	return fallback
}

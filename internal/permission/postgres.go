package permission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/onnwee/hunchrank/internal/tracing"
)

// PostgresAuthorizer reads grants from the users_comparisons table.
type PostgresAuthorizer struct {
	db *sql.DB
}

// NewPostgresAuthorizer creates a new PostgresAuthorizer.
func NewPostgresAuthorizer(db *sql.DB) *PostgresAuthorizer {
	return &PostgresAuthorizer{db: db}
}

// Level implements Authorizer.
func (a *PostgresAuthorizer) Level(ctx context.Context, userID, comparisonID string) (_ Level, err error) {
	if uuid.Validate(comparisonID) != nil {
		return LevelNone, nil
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, "users_comparisons", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var level int
	err = a.db.QueryRowContext(ctx, `
		SELECT level FROM users_comparisons
		WHERE user_id = $1 AND comparison_id = $2
	`, userID, comparisonID).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return LevelNone, nil
	}
	if err != nil {
		return LevelNone, fmt.Errorf("failed to get permission level: %w", err)
	}
	return Level(level), nil
}

// Grant upserts the user's level on a comparison. LevelNone revokes.
func (a *PostgresAuthorizer) Grant(ctx context.Context, userID, comparisonID string, level Level) (err error) {
	if level == LevelNone {
		ctx, endSpan := tracing.StartDBSpan(ctx, "users_comparisons", tracing.DBOperationDelete)
		defer func() { endSpan(err) }()
		_, err = a.db.ExecContext(ctx, `DELETE FROM users_comparisons WHERE user_id = $1 AND comparison_id = $2`, userID, comparisonID)
		if err != nil {
			return fmt.Errorf("failed to revoke permission: %w", err)
		}
		return nil
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "users_comparisons", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO users_comparisons (user_id, comparison_id, level)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, comparison_id) DO UPDATE SET level = EXCLUDED.level
	`, userID, comparisonID, int(level))
	if err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}
	return nil
}

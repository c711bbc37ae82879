package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.pong/internal/snowflake"
)

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS match_results (
		id                BIGINT PRIMARY KEY,
		room_code         VARCHAR(16)  NOT NULL,
		player_1_id       VARCHAR(64)  NOT NULL,
		player_2_id       VARCHAR(64)  NOT NULL,
		player_1_username VARCHAR(128) NOT NULL DEFAULT '',
		player_2_username VARCHAR(128) NOT NULL DEFAULT '',
		score_1           INT          NOT NULL,
		score_2           INT          NOT NULL,
		winner_id         VARCHAR(64)  NOT NULL DEFAULT '',
		duration_seconds  INT          NOT NULL DEFAULT 0,
		finished_at       TIMESTAMPTZ  NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_match_results_player_1 ON match_results (player_1_id, finished_at DESC);
	CREATE INDEX IF NOT EXISTS idx_match_results_player_2 ON match_results (player_2_id, finished_at DESC);
`

// PostgresRecorder 对局结果仓库
type PostgresRecorder struct {
	db  *pgxpool.Pool
	ids *snowflake.Node
}

// NewPostgresRecorder 创建对局结果仓库
func NewPostgresRecorder(db *pgxpool.Pool, ids *snowflake.Node) *PostgresRecorder {
	return &PostgresRecorder{db: db, ids: ids}
}

// EnsureSchema 建表（幂等）
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create match_results: %w", err)
	}
	return nil
}

// Record 写入一条对局结果
func (r *PostgresRecorder) Record(ctx context.Context, result Result) error {
	if err := validate(result); err != nil {
		return err
	}

	query := `
		INSERT INTO match_results (id, room_code, player_1_id, player_2_id, player_1_username, player_2_username,
			score_1, score_2, winner_id, duration_seconds, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Exec(ctx, query,
		r.ids.Generate().Int64(),
		result.RoomCode,
		result.Player1ID,
		result.Player2ID,
		result.Player1Username,
		result.Player2Username,
		result.Score1,
		result.Score2,
		result.WinnerID,
		result.DurationSeconds,
		result.FinishedAt,
	)
	return err
}

// ListByPlayer 查询玩家参与的对局，按结束时间倒序
func (r *PostgresRecorder) ListByPlayer(ctx context.Context, playerID string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, room_code, player_1_id, player_2_id, player_1_username, player_2_username,
			score_1, score_2, winner_id, duration_seconds, finished_at
		FROM match_results
		WHERE player_1_id = $1 OR player_2_id = $1
		ORDER BY finished_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, playerID, limit)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var res Result
		err := row.Scan(
			&res.ID,
			&res.RoomCode,
			&res.Player1ID,
			&res.Player2ID,
			&res.Player1Username,
			&res.Player2Username,
			&res.Score1,
			&res.Score2,
			&res.WinnerID,
			&res.DurationSeconds,
			&res.FinishedAt,
		)
		return res, err
	})
}

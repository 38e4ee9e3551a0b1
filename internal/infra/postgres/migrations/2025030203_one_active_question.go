package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
CREATE UNIQUE INDEX IF NOT EXISTS questions_one_active_per_teacher
	ON questions (teacher_id) WHERE status = 'active'`)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP INDEX IF EXISTS questions_one_active_per_teacher`)
			return err
		},
	)
}

package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_core_tables.sql
var createCoreTablesSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createCoreTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`
				DROP TABLE IF EXISTS progress_events;
				DROP TABLE IF EXISTS question_sets;
				DROP TABLE IF EXISTS study_group_members;
				DROP TABLE IF EXISTS session_leaderboard;
				DROP TABLE IF EXISTS group_quiz_progress;
				DROP TABLE IF EXISTS quiz_sessions;`)
			return err
		},
	)
}

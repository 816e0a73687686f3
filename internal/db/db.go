// Package db opens the Postgres pool and brings the schema up to date at boot.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/skillhub/internal/catalog"
)

// Connect opens a pool and pings it once.
func Connect(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates whatever is missing. Every statement is idempotent, so
// it runs on each start.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	steps := []struct {
		name string
		fn   func(context.Context, *pgxpool.Pool) error
	}{
		{"profiles", ensureProfilesTable},
		{"task_categories", ensureCategoriesTable},
		{"tasks", ensureTasksTable},
		{"task_applications", ensureApplicationsTable},
		{"messages", ensureMessagesTable},
		{"task_reviews", ensureReviewsTable},
	}
	for _, step := range steps {
		if err := step.fn(ctx, pool); err != nil {
			return fmt.Errorf("ensure %s: %w", step.name, err)
		}
		logger.DebugContext(ctx, "schema ensured", "table", step.name)
	}
	logger.InfoContext(ctx, "database schema ready")
	return nil
}

func execAll(ctx context.Context, pool *pgxpool.Pool, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Profiles mirror accounts created by the identity provider.
func ensureProfilesTable(ctx context.Context, pool *pgxpool.Pool) error {
	return execAll(ctx, pool, `
        CREATE TABLE IF NOT EXISTS profiles (
            id UUID PRIMARY KEY,
            email TEXT NOT NULL DEFAULT '',
            full_name TEXT NOT NULL DEFAULT '',
            username TEXT UNIQUE,
            avatar_url TEXT,
            phone TEXT,
            role TEXT NOT NULL CHECK (role IN ('customer','tasker')),
            hourly_rate NUMERIC(10,2),
            bio TEXT,
            skills TEXT[] NOT NULL DEFAULT '{}',
            is_available BOOLEAN NOT NULL DEFAULT TRUE,
            verification_status TEXT NOT NULL DEFAULT 'pending',
            address TEXT,
            city TEXT,
            state TEXT,
            zip_code TEXT,
            latitude DOUBLE PRECISION,
            longitude DOUBLE PRECISION,
            total_tasks_completed INTEGER NOT NULL DEFAULT 0,
            average_rating NUMERIC(3,2) NOT NULL DEFAULT 0,
            total_reviews INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`)
}

// ensureCategoriesTable creates task_categories and seeds the built-in list
// without touching rows an operator already edited.
func ensureCategoriesTable(ctx context.Context, pool *pgxpool.Pool) error {
	err := execAll(ctx, pool, `
        CREATE TABLE IF NOT EXISTS task_categories (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            slug TEXT NOT NULL UNIQUE,
            icon TEXT NOT NULL DEFAULT '',
            color TEXT NOT NULL DEFAULT '',
            description TEXT NOT NULL DEFAULT '',
            sort_order INTEGER NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT TRUE
        )`)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, c := range catalog.Defaults() {
		batch.Queue(`
            INSERT INTO task_categories (id, name, slug, icon, color, description, sort_order)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
            ON CONFLICT DO NOTHING`,
			c.ID, c.Name, c.Slug, c.Icon, c.Color, c.Description, c.SortOrder)
	}
	return pool.SendBatch(ctx, batch).Close()
}

// The tasker/status check keeps tasker_id null exactly while a task is posted.
func ensureTasksTable(ctx context.Context, pool *pgxpool.Pool) error {
	return execAll(ctx, pool, `
        CREATE TABLE IF NOT EXISTS tasks (
            id UUID PRIMARY KEY,
            customer_id UUID NOT NULL REFERENCES profiles(id),
            tasker_id UUID REFERENCES profiles(id),
            category_id TEXT NOT NULL REFERENCES task_categories(id),
            title TEXT NOT NULL,
            description TEXT NOT NULL,
            budget NUMERIC(10,2),
            location JSONB NOT NULL DEFAULT '{}',
            task_size TEXT NOT NULL DEFAULT 'medium',
            urgency TEXT NOT NULL DEFAULT 'flexible',
            estimated_hours NUMERIC(6,2),
            special_instructions TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'posted'
                CHECK (status IN ('posted','assigned','in_progress','completed','cancelled')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            completed_at TIMESTAMPTZ,
            CONSTRAINT tasks_tasker_matches_status CHECK ((tasker_id IS NULL) = (status = 'posted'))
        )`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_customer_created ON tasks (customer_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_tasker ON tasks (tasker_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON tasks (status, created_at DESC)`,
	)
}

func ensureApplicationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	return execAll(ctx, pool, `
        CREATE TABLE IF NOT EXISTS task_applications (
            id UUID PRIMARY KEY,
            task_id UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
            tasker_id UUID NOT NULL REFERENCES profiles(id),
            message TEXT NOT NULL DEFAULT '',
            proposed_rate NUMERIC(10,2),
            estimated_duration TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','accepted','rejected')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (task_id, tasker_id)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_task_applications_task ON task_applications (task_id, created_at DESC)`,
	)
}

func ensureMessagesTable(ctx context.Context, pool *pgxpool.Pool) error {
	return execAll(ctx, pool, `
        CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            task_id UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
            sender_id UUID NOT NULL REFERENCES profiles(id),
            receiver_id UUID NOT NULL REFERENCES profiles(id),
            content TEXT NOT NULL,
            message_type TEXT NOT NULL DEFAULT 'text' CHECK (message_type IN ('text','image','system')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            read_at TIMESTAMPTZ
        )`,
		`CREATE INDEX IF NOT EXISTS idx_messages_task_created ON messages (task_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages (task_id, receiver_id) WHERE read_at IS NULL`,
	)
}

func ensureReviewsTable(ctx context.Context, pool *pgxpool.Pool) error {
	return execAll(ctx, pool, `
        CREATE TABLE IF NOT EXISTS task_reviews (
            id UUID PRIMARY KEY,
            task_id UUID NOT NULL UNIQUE REFERENCES tasks(id) ON DELETE CASCADE,
            reviewer_id UUID NOT NULL REFERENCES profiles(id),
            reviewee_id UUID NOT NULL REFERENCES profiles(id),
            rating SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
            comment TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_task_reviews_reviewee ON task_reviews (reviewee_id, created_at DESC)`,
	)
}

package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/skillhub/internal/auth"
	"github.com/sudo-init-do/skillhub/internal/catalog"
	"github.com/sudo-init-do/skillhub/internal/user"
)

const profileColumns = `id, email, full_name, COALESCE(username, ''), avatar_url, phone, role, hourly_rate, bio,
    skills, is_available, verification_status, address, city, state, zip_code, latitude, longitude,
    total_tasks_completed, average_rating, total_reviews, created_at, updated_at`

func scanProfile(row pgx.Row) (user.Profile, error) {
	var p user.Profile
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.Username, &p.AvatarURL, &p.Phone, &p.Role, &p.HourlyRate,
		&p.Bio, &p.Skills, &p.Available, &p.VerificationStatus, &p.Address, &p.City, &p.State, &p.ZipCode,
		&p.Latitude, &p.Longitude, &p.TotalTasksCompleted, &p.AverageRating, &p.TotalReviews,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) GetProfile(ctx context.Context, id string) (user.Profile, error) {
	p, err := scanProfile(s.q.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		return user.Profile{}, wrap("get profile", err)
	}
	return p, nil
}

// UpdateProfile only writes the fields present in req.
func (s *Store) UpdateProfile(ctx context.Context, id string, req user.UpdateProfileRequest, at time.Time) (user.Profile, error) {
	p, err := scanProfile(s.q.QueryRow(ctx, `
        UPDATE profiles SET
            full_name    = COALESCE($2, full_name),
            username     = COALESCE($3, username),
            avatar_url   = COALESCE($4, avatar_url),
            phone        = COALESCE($5, phone),
            hourly_rate  = COALESCE($6, hourly_rate),
            bio          = COALESCE($7, bio),
            skills       = COALESCE($8, skills),
            is_available = COALESCE($9, is_available),
            address      = COALESCE($10, address),
            city         = COALESCE($11, city),
            state        = COALESCE($12, state),
            zip_code     = COALESCE($13, zip_code),
            latitude     = COALESCE($14, latitude),
            longitude    = COALESCE($15, longitude),
            updated_at   = $16
        WHERE id = $1
        RETURNING `+profileColumns,
		id, req.FullName, req.Username, req.AvatarURL, req.Phone, req.HourlyRate, req.Bio, req.Skills,
		req.Available, req.Address, req.City, req.State, req.ZipCode, req.Latitude, req.Longitude, at))
	if err != nil {
		return user.Profile{}, wrap("update profile", err)
	}
	return p, nil
}

func (s *Store) ProfileRole(ctx context.Context, userID string) (auth.Role, error) {
	var role auth.Role
	if err := s.q.QueryRow(ctx, `SELECT role FROM profiles WHERE id = $1`, userID).Scan(&role); err != nil {
		return "", wrap("get profile role", err)
	}
	return role, nil
}

// LookupProfiles loads the cards shown next to tasks, bids and messages.
// Ids without a profile are absent from the result.
func (s *Store) LookupProfiles(ctx context.Context, ids []string) (map[string]user.ApplicantProfile, error) {
	out := make(map[string]user.ApplicantProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.q.Query(ctx, `
        SELECT id, full_name, COALESCE(username, ''), avatar_url, average_rating, total_reviews,
            hourly_rate, bio, skills
        FROM profiles
        WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, wrap("lookup profiles", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c user.ApplicantProfile
		if err := rows.Scan(&c.ID, &c.FullName, &c.Username, &c.AvatarURL, &c.AverageRating, &c.TotalReviews,
			&c.HourlyRate, &c.Bio, &c.Skills); err != nil {
			return nil, wrap("scan profile card", err)
		}
		out[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("lookup profiles", err)
	}
	return out, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	rows, err := s.q.Query(ctx, `
        SELECT id, name, slug, icon, color, description, sort_order
        FROM task_categories
        WHERE is_active
        ORDER BY sort_order, name`)
	if err != nil {
		return nil, wrap("list categories", err)
	}
	cats, err := pgx.CollectRows(rows, pgx.RowToStructByPos[catalog.Category])
	if err != nil {
		return nil, wrap("scan categories", err)
	}
	return cats, nil
}

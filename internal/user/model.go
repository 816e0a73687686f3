package user

import (
	"time"

	"github.com/sudo-init-do/skillhub/internal/auth"
)

// Profile is the mutable projection of an account. Role is fixed at signup.
type Profile struct {
	ID                  string    `json:"id"`
	Email               string    `json:"email"`
	FullName            string    `json:"full_name"`
	Username            string    `json:"username"`
	AvatarURL           *string   `json:"avatar_url"`
	Phone               *string   `json:"phone"`
	Role                auth.Role `json:"role"`
	HourlyRate          *float64  `json:"hourly_rate"`
	Bio                 *string   `json:"bio"`
	Skills              []string  `json:"skills"`
	Available           bool      `json:"available"`
	VerificationStatus  string    `json:"verification_status"`
	Address             *string   `json:"address"`
	City                *string   `json:"city"`
	State               *string   `json:"state"`
	ZipCode             *string   `json:"zip_code"`
	Latitude            *float64  `json:"latitude"`
	Longitude           *float64  `json:"longitude"`
	TotalTasksCompleted int       `json:"total_tasks_completed"`
	AverageRating       float64   `json:"average_rating"`
	TotalReviews        int       `json:"total_reviews"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// PublicProfile is what other users see next to tasks and messages.
type PublicProfile struct {
	ID            string  `json:"id"`
	FullName      string  `json:"full_name"`
	Username      string  `json:"username"`
	AvatarURL     *string `json:"avatar_url"`
	AverageRating float64 `json:"average_rating"`
	TotalReviews  int     `json:"total_reviews"`
}

// ApplicantProfile extends PublicProfile with what a customer needs to pick a bid.
type ApplicantProfile struct {
	PublicProfile
	HourlyRate *float64 `json:"hourly_rate"`
	Bio        *string  `json:"bio"`
	Skills     []string `json:"skills"`
}

// PublicView is the profile served to anyone by id: contact and address
// details are left out.
type PublicView struct {
	ID                  string    `json:"id"`
	FullName            string    `json:"full_name"`
	Username            string    `json:"username"`
	AvatarURL           *string   `json:"avatar_url"`
	Role                auth.Role `json:"role"`
	HourlyRate          *float64  `json:"hourly_rate"`
	Bio                 *string   `json:"bio"`
	Skills              []string  `json:"skills"`
	Available           bool      `json:"available"`
	VerificationStatus  string    `json:"verification_status"`
	City                *string   `json:"city"`
	State               *string   `json:"state"`
	TotalTasksCompleted int       `json:"total_tasks_completed"`
	AverageRating       float64   `json:"average_rating"`
	TotalReviews        int       `json:"total_reviews"`
	CreatedAt           time.Time `json:"created_at"`
}

func (p Profile) Public() PublicView {
	return PublicView{
		ID:                  p.ID,
		FullName:            p.FullName,
		Username:            p.Username,
		AvatarURL:           p.AvatarURL,
		Role:                p.Role,
		HourlyRate:          p.HourlyRate,
		Bio:                 p.Bio,
		Skills:              p.Skills,
		Available:           p.Available,
		VerificationStatus:  p.VerificationStatus,
		City:                p.City,
		State:               p.State,
		TotalTasksCompleted: p.TotalTasksCompleted,
		AverageRating:       p.AverageRating,
		TotalReviews:        p.TotalReviews,
		CreatedAt:           p.CreatedAt,
	}
}

func (p Profile) Applicant() ApplicantProfile {
	return ApplicantProfile{
		PublicProfile: PublicProfile{
			ID:            p.ID,
			FullName:      p.FullName,
			Username:      p.Username,
			AvatarURL:     p.AvatarURL,
			AverageRating: p.AverageRating,
			TotalReviews:  p.TotalReviews,
		},
		HourlyRate: p.HourlyRate,
		Bio:        p.Bio,
		Skills:     p.Skills,
	}
}

// UpdateProfileRequest is the PUT /profile body. Absent fields are left alone;
// role, email and the rating counters are not editable here.
type UpdateProfileRequest struct {
	FullName   *string   `json:"full_name" validate:"omitnil,min=1,max=120"`
	Username   *string   `json:"username" validate:"omitnil,min=3,max=40"`
	AvatarURL  *string   `json:"avatar_url" validate:"omitnil,max=500,url"`
	Phone      *string   `json:"phone" validate:"omitnil,max=32"`
	HourlyRate *float64  `json:"hourly_rate" validate:"omitnil,gte=0,lte=10000"`
	Bio        *string   `json:"bio" validate:"omitnil,max=2000"`
	Skills     *[]string `json:"skills" validate:"omitnil,max=30,dive,min=1,max=60"`
	Available  *bool     `json:"available"`
	Address    *string   `json:"address" validate:"omitnil,max=200"`
	City       *string   `json:"city" validate:"omitnil,max=100"`
	State      *string   `json:"state" validate:"omitnil,max=100"`
	ZipCode    *string   `json:"zip_code" validate:"omitnil,max=20"`
	Latitude   *float64  `json:"latitude" validate:"omitnil,latitude"`
	Longitude  *float64  `json:"longitude" validate:"omitnil,longitude"`
}

// Apply merges the non-nil fields of req into p.
func (p *Profile) Apply(req UpdateProfileRequest) {
	if req.FullName != nil {
		p.FullName = *req.FullName
	}
	if req.Username != nil {
		p.Username = *req.Username
	}
	if req.AvatarURL != nil {
		p.AvatarURL = req.AvatarURL
	}
	if req.Phone != nil {
		p.Phone = req.Phone
	}
	if req.HourlyRate != nil {
		p.HourlyRate = req.HourlyRate
	}
	if req.Bio != nil {
		p.Bio = req.Bio
	}
	if req.Skills != nil {
		p.Skills = append([]string(nil), (*req.Skills)...)
	}
	if req.Available != nil {
		p.Available = *req.Available
	}
	if req.Address != nil {
		p.Address = req.Address
	}
	if req.City != nil {
		p.City = req.City
	}
	if req.State != nil {
		p.State = req.State
	}
	if req.ZipCode != nil {
		p.ZipCode = req.ZipCode
	}
	if req.Latitude != nil {
		p.Latitude = req.Latitude
	}
	if req.Longitude != nil {
		p.Longitude = req.Longitude
	}
}

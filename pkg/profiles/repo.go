package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/pkg/auth"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrMalformedRow    = errors.New("malformed profile row")
)

type ProfileRepository interface {
	GetProfile(ctx context.Context, id string) (Profile, error)
	UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (Profile, error)
	SetImage(ctx context.Context, id string, kind ImageKind, url string) (Profile, error)
}

type postgresProfileRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresProfileRepository(pool *pgxpool.Pool) ProfileRepository {
	return &postgresProfileRepository{pool: pool}
}

const profileColumns = `id, role, full_name, bio, statement, exhibit_history, about_text, about_image_url, avatar_url,
              sample_artwork_url, contact_email, social_instagram, social_linkedin, social_twitter, location, availability, updated_at`

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Role, &p.FullName, &p.Bio, &p.Statement, &p.ExhibitHistory, &p.AboutText, &p.AboutImageURL,
		&p.AvatarURL, &p.SampleArtworkURL, &p.ContactEmail, &p.Instagram, &p.LinkedIn, &p.Twitter, &p.Location, &p.Availability, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrProfileNotFound
		}
		return Profile{}, err
	}
	if p.ExhibitHistory == nil {
		p.ExhibitHistory = []auth.Exhibit{}
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (r *postgresProfileRepository) GetProfile(ctx context.Context, id string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
}

func (r *postgresProfileRepository) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `UPDATE profiles SET
                  full_name = COALESCE($2, full_name),
                  bio = COALESCE($3, bio),
                  statement = COALESCE($4, statement),
                  exhibit_history = COALESCE($5, exhibit_history),
                  about_text = COALESCE($6, about_text),
                  contact_email = COALESCE($7, contact_email),
                  social_instagram = COALESCE($8, social_instagram),
                  social_linkedin = COALESCE($9, social_linkedin),
                  social_twitter = COALESCE($10, social_twitter),
                  location = COALESCE($11, location),
                  availability = COALESCE($12, availability),
                  updated_at = NOW()
              WHERE id = $1
              RETURNING ` + profileColumns

	return scanProfile(r.pool.QueryRow(ctx, query, id, patch.FullName, patch.Bio, patch.Statement, patch.ExhibitHistory,
		patch.AboutText, patch.ContactEmail, patch.Instagram, patch.LinkedIn, patch.Twitter, patch.Location, patch.Availability))
}

func (r *postgresProfileRepository) SetImage(ctx context.Context, id string, kind ImageKind, url string) (Profile, error) {
	target, ok := imageTargets[kind]
	if !ok {
		return Profile{}, fmt.Errorf("%w: unknown image %q", ErrInvalidProfile, kind)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `UPDATE profiles SET ` + target.column + ` = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + profileColumns
	return scanProfile(r.pool.QueryRow(ctx, query, id, url))
}

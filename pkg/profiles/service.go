package profiles

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"atelier/pkg/auth"
	"atelier/pkg/logger"
	"atelier/pkg/storage"
)

var (
	ErrForbidden      = errors.New("profiles can only be changed by their owner")
	ErrInvalidProfile = errors.New("invalid profile")
)

type ProfileService interface {
	GetProfile(ctx context.Context, id string) (Profile, error)
	UpdateProfile(ctx context.Context, callerID, id string, patch ProfilePatch) (Profile, error)
	UploadImage(ctx context.Context, callerID, id string, kind ImageKind, img storage.Image) (Profile, error)
}

type profileService struct {
	repo  ProfileRepository
	store storage.ObjectStore
}

func NewProfileService(repo ProfileRepository, store storage.ObjectStore) ProfileService {
	return &profileService{repo: repo, store: store}
}

func (s *profileService) GetProfile(ctx context.Context, id string) (Profile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Profile{}, ErrProfileNotFound
	}
	return s.repo.GetProfile(ctx, id)
}

func (s *profileService) UpdateProfile(ctx context.Context, callerID, id string, patch ProfilePatch) (Profile, error) {
	if callerID != id {
		return Profile{}, ErrForbidden
	}
	if patch.Empty() {
		return s.repo.GetProfile(ctx, id)
	}
	if patch.FullName != nil {
		name := strings.TrimSpace(*patch.FullName)
		if name == "" {
			return Profile{}, fmt.Errorf("%w: full name cannot be empty", ErrInvalidProfile)
		}
		patch.FullName = &name
	}
	if patch.ContactEmail != nil && *patch.ContactEmail != "" {
		if _, err := mail.ParseAddress(*patch.ContactEmail); err != nil {
			return Profile{}, fmt.Errorf("%w: contact email is not valid", ErrInvalidProfile)
		}
	}
	if patch.ExhibitHistory != nil {
		if err := s.checkExhibits(ctx, id, *patch.ExhibitHistory); err != nil {
			return Profile{}, err
		}
	}
	return s.repo.UpdateProfile(ctx, id, patch)
}

// checkExhibits holds an artist's edited history to the same minimum as sign-up.
func (s *profileService) checkExhibits(ctx context.Context, id string, history []auth.Exhibit) error {
	current, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	min := 0
	if current.Role == string(auth.RoleArtist) {
		min = auth.MinExhibits
	}
	if err := auth.ValidateExhibits(history, min); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	return nil
}

func (s *profileService) UploadImage(ctx context.Context, callerID, id string, kind ImageKind, img storage.Image) (Profile, error) {
	if callerID != id {
		return Profile{}, ErrForbidden
	}
	target, ok := imageTargets[kind]
	if !ok {
		return Profile{}, fmt.Errorf("%w: unknown image %q", ErrInvalidProfile, kind)
	}

	obj, err := s.store.Put(ctx, target.bucket, kind.objectPath(id, img.Extension), img.Reader, img.ContentType)
	if err != nil {
		return Profile{}, fmt.Errorf("upload %s: %w", kind, err)
	}

	profile, err := s.repo.SetImage(ctx, id, kind, obj.URL)
	if err != nil {
		return Profile{}, err
	}
	logger.Info("profile image updated", map[string]any{"profile_id": id, "kind": string(kind), "path": obj.Path})
	return profile, nil
}

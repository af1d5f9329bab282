package profiles

import (
	"fmt"
	"time"

	"atelier/pkg/auth"
	"atelier/pkg/storage"
)

type Profile struct {
	ID               string         `json:"id"`
	Role             string         `json:"role"`
	FullName         string         `json:"full_name"`
	Bio              string         `json:"bio"`
	Statement        string         `json:"artist_statement"`
	ExhibitHistory   []auth.Exhibit `json:"exhibit_history"`
	AboutText        string         `json:"about_text"`
	AboutImageURL    string         `json:"about_image_url"`
	AvatarURL        string         `json:"avatar_url"`
	SampleArtworkURL string         `json:"sample_artwork_url"`
	ContactEmail     string         `json:"contact_email"`
	Instagram        string         `json:"social_instagram"`
	LinkedIn         string         `json:"social_linkedin"`
	Twitter          string         `json:"social_twitter"`
	Location         string         `json:"location"`
	Availability     string         `json:"availability"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (p Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedRow)
	}
	if p.Role != "artist" && p.Role != "collector" {
		return fmt.Errorf("%w: unknown role %q", ErrMalformedRow, p.Role)
	}
	return nil
}

// ProfilePatch changes only the fields that are set.
type ProfilePatch struct {
	FullName       *string         `json:"full_name"`
	Bio            *string         `json:"bio"`
	Statement      *string         `json:"artist_statement"`
	ExhibitHistory *[]auth.Exhibit `json:"exhibit_history"`
	AboutText      *string         `json:"about_text"`
	ContactEmail   *string         `json:"contact_email"`
	Instagram      *string         `json:"social_instagram"`
	LinkedIn       *string         `json:"social_linkedin"`
	Twitter        *string         `json:"social_twitter"`
	Location       *string         `json:"location"`
	Availability   *string         `json:"availability"`
}

func (p ProfilePatch) Empty() bool {
	return p.FullName == nil && p.Bio == nil && p.Statement == nil && p.ExhibitHistory == nil &&
		p.AboutText == nil && p.ContactEmail == nil && p.Instagram == nil && p.LinkedIn == nil &&
		p.Twitter == nil && p.Location == nil && p.Availability == nil
}

// ImageKind names one of the images a profile carries.
type ImageKind string

const (
	ImageAbout         ImageKind = "about-image"
	ImageAvatar        ImageKind = "avatar"
	ImageSampleArtwork ImageKind = "sample-artwork"
)

type imageTarget struct {
	bucket string
	column string
}

var imageTargets = map[ImageKind]imageTarget{
	ImageAbout:         {bucket: storage.BucketProfiles, column: "about_image_url"},
	ImageAvatar:        {bucket: storage.BucketProfileImages, column: "avatar_url"},
	ImageSampleArtwork: {bucket: storage.BucketProfileImages, column: "sample_artwork_url"},
}

func (k ImageKind) Valid() bool {
	_, ok := imageTargets[k]
	return ok
}

// objectPath is fixed per profile and kind, so a new upload overwrites the old one.
func (k ImageKind) objectPath(profileID, ext string) string {
	if k == ImageAbout {
		return profileID + "-about" + ext
	}
	return profileID + "/" + string(k) + ext
}

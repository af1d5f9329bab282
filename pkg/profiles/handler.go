package profiles

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"atelier/pkg/auth"
	"atelier/pkg/response"
	"atelier/pkg/storage"
)

type ProfileHandler struct {
	service        ProfileService
	requireSession gin.HandlerFunc
}

func NewProfileHandler(service ProfileService, requireSession gin.HandlerFunc) *ProfileHandler {
	return &ProfileHandler{service: service, requireSession: requireSession}
}

func (h *ProfileHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/profiles/:id", h.getProfile)
	router.PUT("/profiles/:id", h.requireSession, h.updateProfile)
	for _, kind := range []ImageKind{ImageAbout, ImageAvatar, ImageSampleArtwork} {
		router.POST("/profiles/:id/"+string(kind), h.requireSession, h.uploadImage(kind))
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidProfile), errors.Is(err, storage.ErrNotAnImage):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrProfileNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *ProfileHandler) fail(c *gin.Context, err error, fallback string) {
	response.Fail(c, statusFor(err), err, fallback, nil)
}

// @Summary      Get a profile
// @Tags         profiles
// @Produce      json
// @Param        id   path      string  true  "Profile ID"
// @Success      200  {object}  response.APIResponse{data=Profile}
// @Failure      404  {object}  response.APIResponse "Profile not found"
// @Router       /profiles/{id} [get]
func (h *ProfileHandler) getProfile(c *gin.Context) {
	profile, err := h.service.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to fetch profile")
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "profile", profile)
}

// @Summary      Update a profile
// @Description  Changes only the fields present in the body. An artist's exhibit history keeps at least five complete entries.
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        id       path  string        true  "Profile ID"
// @Param        request  body  ProfilePatch  true  "Fields to change"
// @Success      200  {object}  response.APIResponse{data=Profile} "Profile updated"
// @Failure      400  {object}  response.APIResponse "Invalid profile"
// @Failure      403  {object}  response.APIResponse "Not the profile owner"
// @Router       /profiles/{id} [put]
func (h *ProfileHandler) updateProfile(c *gin.Context) {
	session, ok := auth.CurrentSession(c)
	if !ok {
		response.SendAPIResponse(c, http.StatusUnauthorized, false, "no active session", nil)
		return
	}

	var patch ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	profile, err := h.service.UpdateProfile(c.Request.Context(), session.UserID, c.Param("id"), patch)
	if err != nil {
		h.fail(c, err, "failed to update profile")
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "profile updated", profile)
}

// uploadImage serves the about image and the avatar and sample artwork uploaded after sign-up.
//
// @Summary      Upload a profile image
// @Tags         profiles
// @Accept       multipart/form-data
// @Produce      json
// @Param        id     path      string  true  "Profile ID"
// @Param        kind   path      string  true  "about-image, avatar or sample-artwork"
// @Param        image  formData  file    true  "Image"
// @Success      200  {object}  response.APIResponse{data=Profile} "Image updated"
// @Failure      400  {object}  response.APIResponse "Not an image"
// @Failure      403  {object}  response.APIResponse "Not the profile owner"
// @Failure      413  {object}  response.APIResponse "Image too large"
// @Router       /profiles/{id}/{kind} [post]
func (h *ProfileHandler) uploadImage(kind ImageKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := auth.CurrentSession(c)
		if !ok {
			response.SendAPIResponse(c, http.StatusUnauthorized, false, "no active session", nil)
			return
		}
		if session.UserID != c.Param("id") {
			h.fail(c, ErrForbidden, "")
			return
		}

		fh, err := c.FormFile("image")
		if err != nil {
			response.SendAPIResponse(c, http.StatusBadRequest, false, "image is required", nil)
			return
		}
		img, err := storage.OpenImage(fh)
		if err != nil {
			h.fail(c, err, "failed to read image")
			return
		}

		profile, err := h.service.UploadImage(c.Request.Context(), session.UserID, c.Param("id"), kind, img)
		if err != nil {
			h.fail(c, err, "failed to upload image")
			return
		}
		response.SendAPIResponse(c, http.StatusOK, true, string(kind)+" updated", profile)
	}
}

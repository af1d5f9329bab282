package artworks

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"atelier/pkg/auth"
	"atelier/pkg/middleware"
	"atelier/pkg/response"
	"atelier/pkg/storage"
)

type ArtworkHandler struct {
	service        ArtworkService
	requireSession gin.HandlerFunc
}

func NewArtworkHandler(service ArtworkService, requireSession gin.HandlerFunc) *ArtworkHandler {
	return &ArtworkHandler{service: service, requireSession: requireSession}
}

func (h *ArtworkHandler) RegisterRoutes(router *gin.Engine) {
	artist := auth.RequireRole(auth.RoleArtist)

	router.POST("/artworks", h.requireSession, artist, h.publish)
	router.PUT("/artworks/layout", h.requireSession, artist, h.saveLayout)
	router.GET("/artworks/:id", h.getArtwork)
	router.GET("/artists/:owner_id/artworks", h.listGallery)
	router.GET("/artists/:owner_id/media", h.listMedia)
	router.GET("/artists/:owner_id/stats", h.stats)
	router.GET("/auctions", h.listLiveAuctions)
	router.GET("/collector/bids", h.requireSession, h.listCollectorBids)
}

type saveLayoutRequest struct {
	Items []LayoutItem `json:"items" binding:"required,dive"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidArtwork), errors.Is(err, storage.ErrNotAnImage):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrArtworkNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *ArtworkHandler) fail(c *gin.Context, err error, fallback string) {
	response.Fail(c, statusFor(err), err, fallback, nil)
}

func parseDecimal(c *gin.Context, field string) (*decimal.Decimal, error) {
	raw := c.PostForm(field)
	if raw == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, invalid(field + " must be a number")
	}
	return &v, nil
}

// @Summary      Publish an artwork
// @Description  Uploads the image and creates the artwork. An auctioned artwork opens its bid record at the price.
// @Tags         artworks
// @Accept       multipart/form-data
// @Produce      json
// @Param        image          formData  file    true   "Artwork image"
// @Param        title          formData  string  true   "Title"
// @Param        medium         formData  string  false  "Medium"
// @Param        price          formData  string  false  "Price"
// @Param        bid_increment  formData  string  false  "Bid increment"
// @Param        is_auction     formData  bool    false  "List for auction"
// @Param        end_time       formData  string  false  "Auction end (RFC3339)"
// @Success      201  {object}  response.APIResponse{data=Artwork} "Artwork published"
// @Failure      400  {object}  response.APIResponse "Invalid artwork"
// @Failure      413  {object}  response.APIResponse "Image too large"
// @Failure      500  {object}  response.APIResponse "Internal server error"
// @Router       /artworks [post]
func (h *ArtworkHandler) publish(c *gin.Context) {
	session, ok := auth.CurrentSession(c)
	if !ok {
		response.SendAPIResponse(c, http.StatusUnauthorized, false, "no active session", nil)
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

	price, err := parseDecimal(c, "price")
	if err != nil {
		h.fail(c, err, "")
		return
	}
	increment, err := parseDecimal(c, "bid_increment")
	if err != nil {
		h.fail(c, err, "")
		return
	}

	var endTime *time.Time
	if raw := c.PostForm("end_time"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.SendAPIResponse(c, http.StatusBadRequest, false, "end_time must be RFC3339", nil)
			return
		}
		endTime = &t
	}

	input := PublishInput{
		OwnerID:      session.UserID,
		Title:        middleware.StripTags(c.PostForm("title")),
		Medium:       middleware.StripTags(c.PostForm("medium")),
		Dimensions:   middleware.StripTags(c.PostForm("dimensions")),
		Description:  middleware.StripTags(c.PostForm("description")),
		IsAuction:    c.PostForm("is_auction") == "true",
		IsForSale:    c.PostForm("is_for_sale") == "true",
		BidIncrement: increment,
		EndTime:      endTime,
		Image:        &img,
	}
	if price != nil {
		input.Price = *price
	}

	artwork, err := h.service.Publish(c.Request.Context(), input)
	if err != nil {
		h.fail(c, err, "failed to publish artwork")
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "artwork published", artwork)
}

// @Summary      Get an artwork
// @Tags         artworks
// @Produce      json
// @Param        id   path      string  true  "Artwork ID"
// @Success      200  {object}  response.APIResponse{data=Artwork}
// @Failure      404  {object}  response.APIResponse "Artwork not found"
// @Router       /artworks/{id} [get]
func (h *ArtworkHandler) getArtwork(c *gin.Context) {
	artwork, err := h.service.GetArtwork(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to fetch artwork")
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "artwork", artwork)
}

// @Summary      List an artist's gallery
// @Description  Artworks in saved layout order, optionally filtered by medium
// @Tags         artworks
// @Produce      json
// @Param        owner_id  path   string  true   "Artist ID"
// @Param        medium    query  string  false  "Medium filter"
// @Success      200  {object}  response.APIResponse{data=[]Artwork}
// @Failure      500  {object}  response.APIResponse "Internal server error"
// @Router       /artists/{owner_id}/artworks [get]
func (h *ArtworkHandler) listGallery(c *gin.Context) {
	items, err := h.service.ListGallery(c.Request.Context(), c.Param("owner_id"), c.Query("medium"))
	if err != nil {
		h.fail(c, err, "failed to fetch gallery")
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "gallery", items)
}

// @Summary      List the media an artist works in
// @Tags         artworks
// @Produce      json
// @Param        owner_id  path  string  true  "Artist ID"
// @Success      200  {object}  response.APIResponse{data=[]string}
// @Router       /artists/{owner_id}/media [get]
func (h *ArtworkHandler) listMedia(c *gin.Context) {
	media, err := h.service.ListMedia(c.Request.Context(), c.Param("owner_id"))
	if err != nil {
		h.fail(c, err, "failed to fetch media")
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "media", media)
}

// @Summary      Save the gallery layout
// @Description  Reorders artworks and toggles auction or sale listings in one transaction
// @Tags         artworks
// @Accept       json
// @Produce      json
// @Param        request body saveLayoutRequest true "Layout items"
// @Success      200  {object}  response.APIResponse{data=[]Artwork} "Layout saved"
// @Failure      400  {object}  response.APIResponse "Invalid request payload"
// @Failure      403  {object}  response.APIResponse "Artwork belongs to another artist"
// @Failure      404  {object}  response.APIResponse "Artwork not found"
// @Router       /artworks/layout [put]
func (h *ArtworkHandler) saveLayout(c *gin.Context) {
	session, ok := auth.CurrentSession(c)
	if !ok {
		response.SendAPIResponse(c, http.StatusUnauthorized, false, "no active session", nil)
		return
	}

	var req saveLayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	items, err := h.service.SaveLayout(c.Request.Context(), session.UserID, req.Items)
	if err != nil {
		h.fail(c, err, "failed to save layout")
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "layout saved", items)
}

// @Summary      List live auctions
// @Tags         auctions
// @Produce      json
// @Success      200  {object}  response.APIResponse{data=[]Artwork}
// @Router       /auctions [get]
func (h *ArtworkHandler) listLiveAuctions(c *gin.Context) {
	items, err := h.service.ListLiveAuctions(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to fetch auctions")
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "live auctions", items)
}

// @Summary      List auctions the collector leads
// @Tags         auctions
// @Produce      json
// @Success      200  {object}  response.APIResponse{data=[]Artwork}
// @Failure      401  {object}  response.APIResponse "No active session"
// @Router       /collector/bids [get]
func (h *ArtworkHandler) listCollectorBids(c *gin.Context) {
	session, ok := auth.CurrentSession(c)
	if !ok {
		response.SendAPIResponse(c, http.StatusUnauthorized, false, "no active session", nil)
		return
	}

	items, err := h.service.ListCollectorBids(c.Request.Context(), session.UserID)
	if err != nil {
		h.fail(c, err, "failed to fetch bids")
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "active bids", items)
}

// @Summary      Artist dashboard stats
// @Description  Total artworks and artworks currently listed for auction
// @Tags         artworks
// @Produce      json
// @Param        owner_id  path  string  true  "Artist ID"
// @Success      200  {object}  response.APIResponse{data=StudioStats}
// @Failure      500  {object}  response.APIResponse "Internal server error"
// @Router       /artists/{owner_id}/stats [get]
func (h *ArtworkHandler) stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), c.Param("owner_id"))
	if err != nil {
		h.fail(c, err, "failed to fetch stats")
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "stats", stats)
}

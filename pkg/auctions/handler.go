package auctions

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"atelier/pkg/auth"
	"atelier/pkg/response"
)

type AuctionHandler struct {
	service        AuctionService
	requireSession gin.HandlerFunc
}

// NewAuctionHandler takes the session middleware used to guard bidding.
func NewAuctionHandler(service AuctionService, requireSession gin.HandlerFunc) *AuctionHandler {
	return &AuctionHandler{service: service, requireSession: requireSession}
}

func (h *AuctionHandler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/auctions")
	{
		group.GET("/:artwork_id", h.getAuction)
		group.GET("/:artwork_id/bids", h.listBids)
		group.POST("/:artwork_id/bids", h.requireSession, h.placeBid)
	}
}

type placeBidRequest struct {
	Amount             *decimal.Decimal `json:"amount" binding:"required"`
	ExpectedCurrentBid *decimal.Decimal `json:"expected_current_bid" binding:"required"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidBid):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuctionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBidSuperseded):
		return http.StatusConflict
	case errors.Is(err, ErrBidTooLow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrAuctionClosed):
		return http.StatusGone
	case errors.Is(err, ErrOwnAuction):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// @Summary      Get an auction's bid record
// @Tags         auctions
// @Produce      json
// @Param        artwork_id  path  string  true  "Artwork ID"
// @Success      200  {object}  response.APIResponse{data=BidRecord}
// @Failure      404  {object}  response.APIResponse "Auction not found"
// @Router       /auctions/{artwork_id} [get]
func (h *AuctionHandler) getAuction(c *gin.Context) {
	rec, err := h.service.GetAuction(c.Request.Context(), c.Param("artwork_id"))
	if err != nil {
		response.Fail(c, statusFor(err), err, "failed to fetch auction", nil)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "auction", rec)
}

// @Summary      List recent bids
// @Tags         auctions
// @Produce      json
// @Param        artwork_id  path   string  true   "Artwork ID"
// @Param        limit       query  int     false  "Maximum bids" default(20)
// @Success      200  {object}  response.APIResponse{data=[]Bid}
// @Failure      404  {object}  response.APIResponse "Auction not found"
// @Router       /auctions/{artwork_id}/bids [get]
func (h *AuctionHandler) listBids(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	bids, err := h.service.ListBids(c.Request.Context(), c.Param("artwork_id"), limit)
	if err != nil {
		response.Fail(c, statusFor(err), err, "failed to fetch bids", nil)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "bids", bids)
}

// placeBid answers rejected bids with the current record so the bidder can retry against it.
//
// @Summary      Place a bid
// @Description  Applies the bid only if the current bid still equals expected_current_bid.
// @Tags         auctions
// @Accept       json
// @Produce      json
// @Param        artwork_id  path  string           true  "Artwork ID"
// @Param        request     body  placeBidRequest  true  "Bid"
// @Success      201  {object}  response.APIResponse{data=BidRecord} "Bid accepted"
// @Failure      409  {object}  response.APIResponse{data=BidRecord} "Superseded by a newer bid"
// @Failure      410  {object}  response.APIResponse "Auction closed"
// @Failure      422  {object}  response.APIResponse{data=BidRecord} "Below the minimum next bid"
// @Router       /auctions/{artwork_id}/bids [post]
func (h *AuctionHandler) placeBid(c *gin.Context) {
	session, ok := auth.CurrentSession(c)
	if !ok {
		response.SendAPIResponse(c, http.StatusUnauthorized, false, "no active session", nil)
		return
	}

	var req placeBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "amount and expected_current_bid are required", nil)
		return
	}

	rec, err := h.service.PlaceBid(c.Request.Context(), BidAttempt{
		ArtworkID:          c.Param("artwork_id"),
		BidderID:           session.UserID,
		Amount:             *req.Amount,
		ExpectedCurrentBid: *req.ExpectedCurrentBid,
	})
	if err != nil {
		code := statusFor(err)
		var current any
		if code == http.StatusConflict || code == http.StatusUnprocessableEntity {
			current = rec
		}
		response.Fail(c, code, err, "failed to place bid", current)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "bid accepted", rec)
}

package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"atelier/pkg/response"
)

type AuthHandler struct {
	service AuthService
}

func NewAuthHandler(service AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/auth/signup", h.signUp)
	router.POST("/auth/signin", h.signIn)
	router.POST("/auth/verify/request", h.requestVerification)
	router.POST("/auth/verify", h.verify)

	authed := router.Group("/auth", RequireSession(h.service))
	authed.POST("/signout", h.signOut)
	authed.GET("/session", h.session)
	authed.POST("/password", h.changePassword)
}

type signUpRequest struct {
	Email    string         `json:"email" binding:"required"`
	Password string         `json:"password" binding:"required"`
	Role     Role           `json:"role" binding:"required"`
	Metadata SignUpMetadata `json:"metadata"`
}

type signInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

type verifyRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code"`
}

type sessionResponse struct {
	Account Account `json:"account"`
	Session Session `json:"session"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrInvalidRole), errors.Is(err, ErrWeakPassword), errors.Is(err, ErrInvalidExhibits):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, ErrTooManyCodes):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrCodeExpired), errors.Is(err, ErrCodeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, ErrAccountNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *AuthHandler) fail(c *gin.Context, err error) {
	response.Fail(c, statusFor(err), err, "internal server error", nil)
}

// @Summary      Sign up
// @Description  Creates an account and its profile, opens a session and emails a verification code. Artists list at least five exhibits.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body signUpRequest true "Sign-up request"
// @Success      201  {object}  response.APIResponse{data=sessionResponse} "Account created"
// @Failure      400  {object}  response.APIResponse "Invalid request payload"
// @Failure      409  {object}  response.APIResponse "Email already registered"
// @Router       /auth/signup [post]
func (h *AuthHandler) signUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	account, session, err := h.service.SignUp(c.Request.Context(), req.Email, req.Password, req.Role, req.Metadata)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "account created", sessionResponse{Account: account, Session: session})
}

// @Summary      Sign in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body signInRequest true "Credentials"
// @Success      200  {object}  response.APIResponse{data=sessionResponse} "Signed in"
// @Failure      401  {object}  response.APIResponse "Invalid credentials"
// @Router       /auth/signin [post]
func (h *AuthHandler) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	account, session, err := h.service.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "signed in", sessionResponse{Account: account, Session: session})
}

// @Summary      Sign out
// @Tags         auth
// @Produce      json
// @Success      200  {object}  response.APIResponse "Signed out"
// @Failure      401  {object}  response.APIResponse "No active session"
// @Router       /auth/signout [post]
func (h *AuthHandler) signOut(c *gin.Context) {
	session, _ := CurrentSession(c)
	if err := h.service.SignOut(c.Request.Context(), *session); err != nil {
		h.fail(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "signed out", nil)
}

// @Summary      Current session
// @Tags         auth
// @Produce      json
// @Success      200  {object}  response.APIResponse{data=Session}
// @Failure      401  {object}  response.APIResponse "No active session"
// @Router       /auth/session [get]
func (h *AuthHandler) session(c *gin.Context) {
	session, _ := CurrentSession(c)
	out := *session
	out.Token = ""
	response.SendAPIResponse(c, http.StatusOK, true, "session", out)
}

// @Summary      Change password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body changePasswordRequest true "Old and new password"
// @Success      200  {object}  response.APIResponse "Password updated"
// @Failure      400  {object}  response.APIResponse "Weak password"
// @Failure      401  {object}  response.APIResponse "Invalid credentials"
// @Router       /auth/password [post]
func (h *AuthHandler) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	session, _ := CurrentSession(c)
	if err := h.service.ChangePassword(c.Request.Context(), *session, req.OldPassword, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "password updated", nil)
}

// @Summary      Request a verification code
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body verifyRequest true "Email"
// @Success      200  {object}  response.APIResponse "Verification code sent"
// @Failure      429  {object}  response.APIResponse "Too many requests"
// @Router       /auth/verify/request [post]
func (h *AuthHandler) requestVerification(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	if err := h.service.RequestVerification(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "verification code sent", nil)
}

// @Summary      Verify an email address
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body verifyRequest true "Email and code"
// @Success      200  {object}  response.APIResponse "Email verified"
// @Failure      400  {object}  response.APIResponse "Invalid or expired code"
// @Router       /auth/verify [post]
func (h *AuthHandler) verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "email and code are required", nil)
		return
	}

	if err := h.service.Verify(c.Request.Context(), req.Email, req.Code); err != nil {
		h.fail(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "email verified", nil)
}

package handler

import (
	"net/http"
	"strconv"
	"strings"

	"prediction-platform/internal/domain/user"
	"prediction-platform/internal/middleware"
	usecase "prediction-platform/internal/usecase/user"
	"prediction-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const avatarRequestLimit = usecase.MaxAvatarSize + 512<<10

type UserHandler struct {
	service *usecase.Service
}

func NewUserHandler(service *usecase.Service) *UserHandler {
	return &UserHandler{service: service}
}

// RegisterRoutes mounts the /users endpoints. auth guards the bearer routes and
// authLimit throttles credential endpoints.
func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup, auth, authLimit gin.HandlerFunc) {
	users := router.Group("/users")

	public := users.Group("", middleware.RequestSizeLimitMiddleware(middleware.DefaultMaxRequestSize))
	{
		public.GET("", h.ListUsers)
		public.GET("/search", h.SearchUsers)
		public.GET("/check-username", h.CheckUsername)
		public.GET("/check-email", h.CheckEmail)
		public.GET("/leaderboard", h.Leaderboard)
		public.GET("/achievements/:id", h.Achievements)
		public.GET("/profile/:id", h.GetProfile)
		public.GET("/public/:username", h.PublicProfile)
		public.POST("/verify-email", h.VerifyEmail)
		public.POST("/refresh", h.RefreshToken)
	}

	credentials := public.Group("", authLimit)
	{
		credentials.POST("/signup", h.Signup)
		credentials.POST("/login", h.Login)
		credentials.POST("/forgot-password", h.ForgotPassword)
		credentials.POST("/reset-password", h.ResetPassword)
	}

	protected := users.Group("", auth)
	{
		protected.GET("/me", h.Me)
		protected.POST("/logout", middleware.RequestSizeLimitMiddleware(middleware.DefaultMaxRequestSize), h.Logout)
		protected.PUT("/profile", middleware.RequestSizeLimitMiddleware(middleware.DefaultMaxRequestSize), h.UpdateOwnProfile)
		protected.PUT("/profile/:id", middleware.RequestSizeLimitMiddleware(middleware.DefaultMaxRequestSize), h.UpdateProfile)
		protected.POST("/change-password", middleware.RequestSizeLimitMiddleware(middleware.DefaultMaxRequestSize), h.ChangePassword)
		protected.POST("/avatar", middleware.RequestSizeLimitMiddleware(avatarRequestLimit), h.UploadAvatar)
	}
}

func (h *UserHandler) Signup(c *gin.Context) {
	var req usecase.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = utils.SanitizeEmail(req.Email)
	req.Username = utils.SanitizeUsername(req.Username)
	req.FirstName = utils.SanitizeString(req.FirstName)
	req.LastName = utils.SanitizeString(req.LastName)
	if req.Phone != nil {
		sanitized := utils.SanitizePhone(*req.Phone)
		req.Phone = &sanitized
	}

	created, err := h.service.Signup(c.Request.Context(), &req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	message := "User registered successfully"
	if created.Status == user.StatusPending {
		message = "Registration successful. Please check your email to verify your account"
	}
	utils.SuccessResponse(c, http.StatusCreated, message, created)
}

func (h *UserHandler) Login(c *gin.Context) {
	var req usecase.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = utils.SanitizeEmail(req.Email)

	authResponse, err := h.service.Login(c.Request.Context(), &req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Login successful", authResponse)
}

func (h *UserHandler) VerifyEmail(c *gin.Context) {
	var req usecase.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Token = strings.TrimSpace(req.Token)

	if err := h.service.VerifyEmail(c.Request.Context(), &req); err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Email verified successfully", nil)
}

func (h *UserHandler) ForgotPassword(c *gin.Context) {
	var req usecase.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = utils.SanitizeEmail(req.Email)

	if err := h.service.ForgotPassword(c.Request.Context(), &req); err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, ForgotPasswordMessage, nil)
}

// ForgotPasswordMessage is sent whether or not the email is registered.
const ForgotPasswordMessage = "If the email exists, a reset link has been sent"

func (h *UserHandler) ResetPassword(c *gin.Context) {
	var req usecase.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Token = strings.TrimSpace(req.Token)

	if err := h.service.ResetPassword(c.Request.Context(), &req); err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Password reset successfully", nil)
}

func (h *UserHandler) RefreshToken(c *gin.Context) {
	var req usecase.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	tokens, err := h.service.RefreshToken(c.Request.Context(), &req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Token refreshed successfully", tokens)
}

func (h *UserHandler) Logout(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	// The body is optional; without a refresh token every session is revoked.
	var req usecase.LogoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	if err := h.service.Logout(c.Request.Context(), userID, req.RefreshToken); err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Logged out successfully", nil)
}

func (h *UserHandler) Me(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	me, err := h.service.GetMe(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "User retrieved successfully", me)
}

func (h *UserHandler) ChangePassword(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req usecase.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), userID, &req); err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Password changed successfully", nil)
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Profile retrieved successfully", profile)
}

func (h *UserHandler) PublicProfile(c *gin.Context) {
	profile, err := h.service.PublicProfile(c.Request.Context(), utils.SanitizeUsername(c.Param("username")))
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Profile retrieved successfully", profile)
}

func (h *UserHandler) UpdateOwnProfile(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	h.updateProfile(c, userID)
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	target, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	h.updateProfile(c, target)
}

func (h *UserHandler) updateProfile(c *gin.Context, target uuid.UUID) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req usecase.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	sanitizeProfileRequest(&req)

	updated, err := h.service.UpdateProfile(c.Request.Context(), actor, target, &req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Profile updated successfully", updated)
}

func sanitizeProfileRequest(req *usecase.UpdateProfileRequest) {
	sanitize := func(p **string, fn func(string) string) {
		if *p != nil {
			v := fn(**p)
			*p = &v
		}
	}
	sanitize(&req.FirstName, utils.SanitizeString)
	sanitize(&req.LastName, utils.SanitizeString)
	sanitize(&req.Bio, utils.SanitizeText)
	sanitize(&req.AvatarURL, strings.TrimSpace)
	sanitize(&req.Phone, utils.SanitizePhone)
	sanitize(&req.Username, utils.SanitizeUsername)
	sanitize(&req.Email, utils.SanitizeEmail)
}

func (h *UserHandler) UploadAvatar(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	header, err := c.FormFile("avatar")
	if err != nil {
		if isBodyTooLarge(err) {
			respondWithError(c, usecase.ErrAvatarTooLarge)
			return
		}
		utils.ErrorResponse(c, http.StatusBadRequest, "No file uploaded")
		return
	}

	file, err := header.Open()
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}
	defer file.Close()

	avatar, err := h.service.UploadAvatar(c.Request.Context(), userID, header.Size, file)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Avatar uploaded successfully", avatar)
}

func (h *UserHandler) CheckUsername(c *gin.Context) {
	result, err := h.service.CheckUsername(c.Request.Context(), utils.SanitizeUsername(c.Query("username")))
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Username availability checked", result)
}

func (h *UserHandler) CheckEmail(c *gin.Context) {
	result, err := h.service.CheckEmail(c.Request.Context(), utils.SanitizeEmail(c.Query("email")))
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Email availability checked", result)
}

func (h *UserHandler) Leaderboard(c *gin.Context) {
	entries, err := h.service.Leaderboard(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Leaderboard retrieved successfully", entries)
}

func (h *UserHandler) Achievements(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	achievements, err := h.service.Achievements(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Achievements retrieved successfully", achievements)
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	list, err := h.service.ListUsers(c.Request.Context(), queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Users retrieved successfully", list)
}

func (h *UserHandler) SearchUsers(c *gin.Context) {
	results, err := h.service.SearchUsers(c.Request.Context(), utils.SanitizeString(c.Query("q")))
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Search completed", results)
}

func queryInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}

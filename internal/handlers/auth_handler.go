package handlers

import (
	"errors"

	"crmdesk_backend/internal/auth"
	"crmdesk_backend/internal/models"
	"crmdesk_backend/internal/repositories"
	"crmdesk_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type AuthHandler struct {
	BaseHandler
	userRepo repositories.UserRepository
}

func NewAuthHandler(base BaseHandler, userRepo repositories.UserRepository) *AuthHandler {
	return &AuthHandler{
		BaseHandler: base,
		userRepo:    userRepo,
	}
}

func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	authGroup := rg.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
	}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=customer guest"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

// Register creates a subject-side account. Staff accounts are provisioned
// out of band.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	db := h.GetDB(c)
	if _, err := h.userRepo.FindByEmail(db, req.Email); err == nil {
		h.HandleServiceError(c, apperrors.ErrAlreadyExists(errors.New("email already registered")))
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		h.HandleServiceError(c, apperrors.InternalError(err))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.HandleServiceError(c, apperrors.InternalError(err))
		return
	}

	role := models.UserRole(req.Role)
	if role == "" {
		role = models.UserRoleCustomer
	}

	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		Status:       models.UserStatusActive,
	}
	if err := h.userRepo.Create(db, user); err != nil {
		h.HandleServiceError(c, apperrors.InternalError(err))
		return
	}

	h.respondWithToken(c, user, true)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	user, err := h.userRepo.FindByEmail(h.GetDB(c), req.Email)
	if err != nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		h.HandleServiceError(c, apperrors.NewUnauthorizedError("Invalid email or password"))
		return
	}
	if user.Status == models.UserStatusSuspended {
		h.HandleServiceError(c, apperrors.NewForbiddenError("Account is suspended"))
		return
	}

	h.respondWithToken(c, user, false)
}

func (h *AuthHandler) respondWithToken(c *gin.Context, user *models.User, created bool) {
	token, err := auth.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		h.HandleServiceError(c, apperrors.InternalError(err))
		return
	}

	var resp authResponse
	resp.Token = token
	resp.User.ID = user.ID
	resp.User.Name = user.Name
	resp.User.Email = user.Email
	resp.User.Role = string(user.Role)

	if created {
		h.Created(c, resp)
		return
	}
	h.OK(c, resp)
}

package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	apperrors "slotkeeper/internal/errors"
	"slotkeeper/internal/service"
)

type AdminAuthHandler struct {
	service service.AdminAuthService
	logger  *zap.Logger
}

func NewAdminAuthHandler(svc service.AdminAuthService, logger *zap.Logger) *AdminAuthHandler {
	return &AdminAuthHandler{service: svc, logger: logger}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

func (h *AdminAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, apperrors.ErrInvalidCredentials) {
			h.logger.Error("admin login failed", zap.Error(err))
		}
		apperrors.WriteJSON(w, apperrors.ErrInvalidCredentials)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}

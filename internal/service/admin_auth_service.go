package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	apperrors "slotkeeper/internal/errors"
	"slotkeeper/internal/repository"
)

const adminTokenTTL = time.Hour

type AdminAuthService interface {
	Login(ctx context.Context, email, password string) (string, error)
	CreateAdmin(ctx context.Context, organizationID, email, password string) error
}

type adminAuthService struct {
	repo     repository.AdminAuthRepository
	calendar repository.CalendarStore
	secret   []byte
	now      Clock
}

func NewAdminAuthService(repo repository.AdminAuthRepository, calendar repository.CalendarStore, jwtSecret string, now Clock) AdminAuthService {
	return &adminAuthService{repo: repo, calendar: calendar, secret: []byte(jwtSecret), now: now}
}

func (s *adminAuthService) Login(ctx context.Context, email, password string) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("JWT_SECRET not set")
	}
	admin, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", err
	}
	if admin == nil {
		return "", apperrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return "", apperrors.ErrInvalidCredentials
	}

	claims := jwt.MapClaims{
		"admin_id": admin.ID,
		"email":    admin.Email,
		"org_id":   admin.OrganizationID,
		"exp":      s.now.now().Add(adminTokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *adminAuthService) CreateAdmin(ctx context.Context, organizationID, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return apperrors.ErrInvalidRequest.WithMessage("email and password cannot be empty")
	}
	if len(password) < 8 {
		return apperrors.ErrInvalidRequest.WithMessage("password must have at least 8 characters")
	}
	if _, err := s.calendar.GetOrganization(ctx, organizationID); err != nil {
		return err
	}
	if err := s.repo.CreateNewUser(ctx, organizationID, email, password); err != nil {
		return fmt.Errorf("error creating admin %s: %w", email, err)
	}
	return nil
}

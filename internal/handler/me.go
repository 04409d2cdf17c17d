package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/estock/internal/actionbar"
	"github.com/iliyamo/estock/internal/identity"
	"github.com/iliyamo/estock/internal/middleware"
	"github.com/iliyamo/estock/internal/model"
	"github.com/iliyamo/estock/internal/session"
)

// IdentityUpdater is the part of the provider self-service edits need.
type IdentityUpdater interface {
	UpdateIdentity(ctx context.Context, uid string, p identity.UpdateParams) (model.Identity, error)
}

// MeHandler serves the user menu.
type MeHandler struct {
	Profiles   *session.Profiles
	Identities IdentityUpdater
	Log        *zap.Logger
}

type meResp struct {
	UID         string                `json:"uid"`
	Email       string                `json:"email"`
	DisplayName string                `json:"displayName"`
	Role        model.Role            `json:"role"`
	IsAdmin     bool                  `json:"isAdmin"`
	Affordances actionbar.Affordances `json:"affordances"`
}

func meFrom(s session.Session) meResp {
	return meResp{
		UID:         s.UID,
		Email:       s.Email,
		DisplayName: s.DisplayName,
		Role:        s.Role,
		IsAdmin:     s.Role.IsAdmin(),
		Affordances: actionbar.For(s.Role),
	}
}

// Me returns the resolved session.  The profile display name wins over the
// provider one.
func (h *MeHandler) Me(c echo.Context) error {
	s := middleware.CurrentSession(c)
	ctx, cancel := timeout(c)
	defer cancel()
	if p, err := h.Profiles.Get(ctx, s.UID); err == nil && p.DisplayName != "" {
		s.DisplayName = p.DisplayName
	}
	return c.JSON(http.StatusOK, meFrom(s))
}

type updateMeReq struct {
	DisplayName *string `json:"displayName"`
}

// UpdateMe edits the caller's own display name on the profile and the
// identity.  Role and disabled are administrator-only.
func (h *MeHandler) UpdateMe(c echo.Context) error {
	var req updateMeReq
	if err := c.Bind(&req); err != nil || req.DisplayName == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "displayName required"})
	}
	name := strings.TrimSpace(*req.DisplayName)
	if name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "displayName required"})
	}
	s := middleware.CurrentSession(c)
	ctx, cancel := timeout(c)
	defer cancel()

	if _, err := h.Profiles.Apply(ctx, s.UID, session.Change{DisplayName: &name}); err != nil {
		h.Log.Error("update own profile failed", zap.String("uid", s.UID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to save data."})
	}
	if _, err := h.Identities.UpdateIdentity(ctx, s.UID, identity.UpdateParams{DisplayName: &name}); err != nil && !errors.Is(err, identity.ErrNotFound) {
		h.Log.Warn("update identity display name failed", zap.String("uid", s.UID), zap.Error(err))
	}
	s.DisplayName = name
	return c.JSON(http.StatusOK, meFrom(s))
}

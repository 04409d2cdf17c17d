package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/estock/internal/identity"
	"github.com/iliyamo/estock/internal/mail"
	"github.com/iliyamo/estock/internal/middleware"
	"github.com/iliyamo/estock/internal/model"
	"github.com/iliyamo/estock/internal/session"
	"github.com/iliyamo/estock/internal/utils"
)

// AdminHandler provisions and manages user accounts.  Every route sits
// behind Gate.Admin.
type AdminHandler struct {
	Identity    identity.Provider
	Profiles    *session.Profiles
	Mailer      mail.Sender
	Brand       string
	From        string
	ContinueURL string
	Log         *zap.Logger
}

type createUserReq struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	Password    string `json:"password"`
}

type userResp struct {
	UID              string     `json:"uid"`
	Email            string     `json:"email"`
	DisplayName      string     `json:"displayName"`
	Role             model.Role `json:"role"`
	Disabled         bool       `json:"disabled"`
	ProviderDisabled bool       `json:"providerDisabled,omitempty"`
	CreatedBy        string     `json:"createdBy,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	LastSignInAt     *time.Time `json:"lastSignInAt,omitempty"`
}

func userFrom(id model.Identity, p model.Profile, hasProfile bool) userResp {
	u := userResp{
		UID:              id.UID,
		Email:            id.Email,
		DisplayName:      id.DisplayName,
		Role:             model.RoleViewer,
		ProviderDisabled: id.Disabled,
		CreatedAt:        id.CreatedAt,
		LastSignInAt:     id.LastSignInAt,
	}
	if hasProfile {
		u.Role, u.Disabled, u.CreatedBy = p.Role, p.Disabled, p.CreatedBy
		if p.DisplayName != "" {
			u.DisplayName = p.DisplayName
		}
	}
	return u
}

func parseRoleOrViewer(s string) (model.Role, bool) {
	if strings.TrimSpace(s) == "" {
		return model.RoleViewer, true
	}
	return model.ParseRole(s)
}

// CreateUser is the out-of-band provisioning endpoint: find or create the
// identity, upsert its profile and claims, and mail a link to set the
// password.  Authentication runs before the method check.
func (h *AdminHandler) CreateUser(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		c.Response().Header().Set(echo.HeaderAllow, http.MethodPost)
		return c.NoContent(http.StatusMethodNotAllowed)
	}
	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Email is required"})
	}
	role, ok := parseRoleOrViewer(req.Role)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid role"})
	}
	displayName := strings.TrimSpace(req.DisplayName)

	ctx, cancel := timeout(c)
	defer cancel()
	fail := func(err error) error {
		h.Log.Error("create-user failed", zap.String("email", email), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}

	id, err := h.Identity.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		id, err = h.Identity.CreateIdentity(ctx, identity.CreateParams{Email: email, DisplayName: displayName})
		if errors.Is(err, identity.ErrInvalidEmail) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid email"})
		}
		if err != nil {
			return fail(err)
		}
	case err != nil:
		return fail(err)
	case displayName != "" && id.DisplayName != displayName:
		if id, err = h.Identity.UpdateIdentity(ctx, id.UID, identity.UpdateParams{DisplayName: &displayName}); err != nil {
			return fail(err)
		}
	}
	if displayName == "" {
		displayName = id.DisplayName
	}

	admin := middleware.CurrentSession(c)
	if _, err := h.Profiles.Provision(ctx, id, displayName, role, admin.UID); err != nil {
		return fail(err)
	}
	if err := h.Identity.SetClaims(ctx, id.UID, map[string]any{"role": string(role)}); err != nil {
		return fail(err)
	}
	link, err := h.Identity.GenerateResetLink(ctx, id.Email, h.ContinueURL)
	if err != nil {
		return fail(err)
	}
	msg, err := mail.Provisioning(h.Brand, h.From, id.Email, displayName, link)
	if err != nil {
		return fail(err)
	}
	if err := h.Mailer.Send(ctx, msg); err != nil {
		if errors.Is(err, mail.ErrNotConfigured) {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Email sender not configured"})
		}
		return fail(err)
	}
	h.Log.Info("user provisioned", zap.String("uid", id.UID), zap.String("role", string(role)), zap.String("by", admin.UID))
	return c.JSON(http.StatusCreated, echo.Map{"uid": id.UID, "email": id.Email, "role": role, "mailed": true})
}

// ListUsers merges identities with their profiles.  Soft-deleted profiles
// are left out; identities that never signed in show as viewer.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()
	ids, err := h.Identity.ListIdentities(ctx)
	if err != nil {
		h.Log.Error("list identities failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list users failed"})
	}
	profiles, err := h.Profiles.ByUID(ctx)
	if err != nil {
		h.Log.Error("list profiles failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list users failed"})
	}
	out := make([]userResp, 0, len(ids))
	for _, id := range ids {
		p, ok := profiles[id.UID]
		if ok && p.Deleted() {
			continue
		}
		out = append(out, userFrom(id, p, ok))
	}
	return c.JSON(http.StatusOK, echo.Map{"users": out})
}

// AddUser creates a new account.  Unlike CreateUser it refuses existing
// emails.  Without a password the provisioning email is sent; failure to
// send is reported as mailed:false.
func (h *AdminHandler) AddUser(c echo.Context) error {
	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	role, ok := parseRoleOrViewer(req.Role)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid role"})
	}
	ctx, cancel := timeout(c)
	defer cancel()

	id, err := h.Identity.CreateIdentity(ctx, identity.CreateParams{Email: req.Email, DisplayName: req.DisplayName, Password: req.Password})
	switch {
	case errors.Is(err, identity.ErrEmailExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
	case errors.Is(err, identity.ErrInvalidEmail):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid email"})
	case errors.Is(err, utils.ErrWeakPassword):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case err != nil:
		h.Log.Error("create identity failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	admin := middleware.CurrentSession(c)
	p, err := h.Profiles.Provision(ctx, id, id.DisplayName, role, admin.UID)
	if err != nil {
		h.Log.Error("provision profile failed", zap.String("uid", id.UID), zap.Error(err))
		if derr := h.Identity.DeleteIdentity(ctx, id.UID); derr != nil {
			h.Log.Warn("orphan identity left behind", zap.String("uid", id.UID), zap.Error(derr))
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	if err := h.Identity.SetClaims(ctx, id.UID, map[string]any{"role": string(role)}); err != nil {
		h.Log.Warn("set claims failed", zap.String("uid", id.UID), zap.Error(err))
	}

	mailed := false
	if req.Password == "" {
		mailed = h.sendProvisioning(c, id, p.DisplayName)
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": userFrom(id, p, true), "mailed": mailed})
}

func (h *AdminHandler) sendProvisioning(c echo.Context, id model.Identity, name string) bool {
	ctx := c.Request().Context()
	link, err := h.Identity.GenerateResetLink(ctx, id.Email, h.ContinueURL)
	if err == nil {
		var msg mail.Message
		if msg, err = mail.Provisioning(h.Brand, h.From, id.Email, name, link); err == nil {
			err = h.Mailer.Send(ctx, msg)
		}
	}
	if err != nil {
		h.Log.Warn("provisioning email not sent", zap.String("uid", id.UID), zap.Error(err))
		return false
	}
	return true
}

type updateUserReq struct {
	Role        *string `json:"role"`
	Disabled    *bool   `json:"disabled"`
	DisplayName *string `json:"displayName"`
}

// UpdateUser changes role, disabled and display name.  Role and disabled
// reach the profile and its mirror in one batch; disabled and display name
// are copied to the identity, and disabling revokes every session so the
// user is signed out at once.
func (h *AdminHandler) UpdateUser(c echo.Context) error {
	uid := c.Param("uid")
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	var change session.Change
	if req.Role != nil {
		r, ok := model.ParseRole(*req.Role)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid role"})
		}
		change.Role = &r
	}
	change.Disabled, change.DisplayName = req.Disabled, req.DisplayName
	if change.Empty() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "nothing to update"})
	}
	if uid == middleware.CurrentSession(c).UID && ((change.Disabled != nil && *change.Disabled) || (change.Role != nil && *change.Role != model.RoleAdmin)) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot disable or demote your own account"})
	}

	ctx, cancel := timeout(c)
	defer cancel()
	id, err := h.Identity.GetByUID(ctx, uid)
	if errors.Is(err, identity.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	if err != nil {
		h.Log.Error("load identity failed", zap.String("uid", uid), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update user failed"})
	}
	p, err := h.Profiles.Apply(ctx, uid, change)
	if err != nil {
		h.Log.Error("update profile failed", zap.String("uid", uid), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update user failed"})
	}
	if change.Role != nil {
		if err := h.Identity.SetClaims(ctx, uid, map[string]any{"role": string(*change.Role)}); err != nil {
			h.Log.Warn("set claims failed", zap.String("uid", uid), zap.Error(err))
		}
	}
	if change.DisplayName != nil || change.Disabled != nil {
		updated, err := h.Identity.UpdateIdentity(ctx, uid, identity.UpdateParams{DisplayName: change.DisplayName, Disabled: change.Disabled})
		if err != nil {
			h.Log.Warn("update identity failed", zap.String("uid", uid), zap.Error(err))
		} else {
			id = updated
		}
	}
	if change.Disabled != nil && *change.Disabled {
		if err := h.Identity.RevokeSessions(ctx, uid); err != nil {
			h.Log.Warn("revoke sessions failed", zap.String("uid", uid), zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"user": userFrom(id, p, true)})
}

// DeleteUser soft-deletes the profile.  The identity stays and can still be
// looked up by email.
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	uid := c.Param("uid")
	if uid == middleware.CurrentSession(c).UID {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot delete your own account"})
	}
	ctx, cancel := timeout(c)
	defer cancel()
	err := h.Profiles.SoftDelete(ctx, uid)
	if errors.Is(err, session.ErrProfileNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	if err != nil {
		h.Log.Error("soft delete failed", zap.String("uid", uid), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete user failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteAccount removes the identity.  Removing the profile afterwards is
// best effort: a failure is logged and the request still succeeds.
func (h *AdminHandler) DeleteAccount(c echo.Context) error {
	uid := c.Param("uid")
	if uid == middleware.CurrentSession(c).UID {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot delete your own account"})
	}
	ctx, cancel := timeout(c)
	defer cancel()
	err := h.Identity.DeleteIdentity(ctx, uid)
	if errors.Is(err, identity.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	if err != nil {
		h.Log.Error("delete identity failed", zap.String("uid", uid), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete account failed"})
	}
	if err := h.Profiles.Purge(ctx, uid); err != nil {
		h.Log.Warn("profile delete after account delete failed", zap.String("uid", uid), zap.Error(err))
	}
	return c.NoContent(http.StatusNoContent)
}

// ResetPassword mails a password reset link to the user.
func (h *AdminHandler) ResetPassword(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()
	id, err := h.Identity.GetByUID(ctx, c.Param("uid"))
	if errors.Is(err, identity.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	if err == nil {
		err = h.Identity.SendPasswordResetEmail(ctx, id.Email)
	}
	switch {
	case errors.Is(err, mail.ErrNotConfigured):
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Email sender not configured"})
	case err != nil:
		h.Log.Error("admin password reset failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not send reset email"})
	}
	return c.JSON(http.StatusAccepted, echo.Map{"status": "sent"})
}

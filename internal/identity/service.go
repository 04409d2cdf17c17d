package identity

import (
	"context"
	"database/sql"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/iliyamo/estock/internal/mail"
	"github.com/iliyamo/estock/internal/model"
	"github.com/iliyamo/estock/internal/repository"
	"github.com/iliyamo/estock/internal/utils"
)

// Config holds token lifetimes, signing material and the reset-link settings.
type Config struct {
	Secret      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	ResetTTL    time.Duration
	BcryptCost  int
	ResetURL    string // page that receives ?token=...&continueUrl=...
	ContinueURL string // where the reset page sends the user afterwards
	Brand       string
	From        string
}

// Service is the SQL-backed Provider.  Access tokens are HS256 JWTs whose
// subject is the uid; refresh and reset tokens are opaque random strings of
// which only the SHA-256 hash is stored.
type Service struct {
	cfg        Config
	identities *repository.IdentityRepo
	tokens     *repository.TokenRepo
	resets     *repository.ResetRepo
	mailer     mail.Sender
	log        *zap.Logger
}

var _ Provider = (*Service)(nil)

// NewService wires the provider over db.
func NewService(cfg Config, db *sql.DB, mailer mail.Sender, log *zap.Logger) *Service {
	if mailer == nil {
		mailer = mail.Unconfigured{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:        cfg,
		identities: repository.NewIdentityRepo(db),
		tokens:     repository.NewTokenRepo(db),
		resets:     repository.NewResetRepo(db),
		mailer:     mailer,
		log:        log,
	}
}

// VerifyToken validates an access token and loads the identity it names.
// Tokens of deleted identities are rejected.
func (s *Service) VerifyToken(ctx context.Context, token string) (model.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Identity{}, ErrUnauthenticated
	}
	claims, err := utils.ParseAccessToken(s.cfg.Secret, token)
	if err != nil {
		return model.Identity{}, ErrUnauthenticated
	}
	id, err := s.GetByUID(ctx, claims.UID)
	if errors.Is(err, ErrNotFound) {
		return model.Identity{}, ErrUnauthenticated
	}
	return id, err
}

func (s *Service) GetByUID(ctx context.Context, uid string) (model.Identity, error) {
	id, err := s.identities.GetByUID(ctx, uid)
	return id, mapRepoErr(err)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (model.Identity, error) {
	id, err := s.identities.GetByEmail(ctx, email)
	return id, mapRepoErr(err)
}

func (s *Service) ListIdentities(ctx context.Context) ([]model.Identity, error) {
	return s.identities.List(ctx)
}

func (s *Service) CreateIdentity(ctx context.Context, p CreateParams) (model.Identity, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if !mail.ValidAddress(email) {
		return model.Identity{}, ErrInvalidEmail
	}
	id := model.Identity{
		UID:         uuid.NewString(),
		Email:       email,
		DisplayName: strings.TrimSpace(p.DisplayName),
		Disabled:    p.Disabled,
	}
	if p.Password != "" {
		hash, err := utils.HashPassword(p.Password, s.cfg.BcryptCost)
		if err != nil {
			return model.Identity{}, err
		}
		id.PasswordHash = hash
	}
	if err := s.identities.Create(ctx, &id); err != nil {
		return model.Identity{}, mapRepoErr(err)
	}
	s.log.Info("identity created", zap.String("uid", id.UID), zap.String("email", id.Email))
	return id, nil
}

func (s *Service) UpdateIdentity(ctx context.Context, uid string, p UpdateParams) (model.Identity, error) {
	id, err := s.GetByUID(ctx, uid)
	if err != nil {
		return model.Identity{}, err
	}
	if p.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*p.Email))
		if !mail.ValidAddress(email) {
			return model.Identity{}, ErrInvalidEmail
		}
		id.Email = email
	}
	if p.DisplayName != nil {
		id.DisplayName = strings.TrimSpace(*p.DisplayName)
	}
	if p.Disabled != nil {
		id.Disabled = *p.Disabled
	}
	if p.Password != nil {
		hash, err := utils.HashPassword(*p.Password, s.cfg.BcryptCost)
		if err != nil {
			return model.Identity{}, err
		}
		id.PasswordHash = hash
	}
	if err := s.identities.Update(ctx, &id); err != nil {
		return model.Identity{}, mapRepoErr(err)
	}
	return id, nil
}

func (s *Service) DeleteIdentity(ctx context.Context, uid string) error {
	return mapRepoErr(s.identities.Delete(ctx, uid))
}

// SetClaims replaces the custom claims embedded in future access tokens.
func (s *Service) SetClaims(ctx context.Context, uid string, claims map[string]any) error {
	id, err := s.GetByUID(ctx, uid)
	if err != nil {
		return err
	}
	id.Claims = claims
	return mapRepoErr(s.identities.Update(ctx, &id))
}

func (s *Service) RevokeSessions(ctx context.Context, uid string) error {
	return s.tokens.RevokeAllForUser(ctx, uid)
}

// GenerateResetLink stores a single-use reset token for the identity with
// email and returns the link that consumes it.
func (s *Service) GenerateResetLink(ctx context.Context, email, continueURL string) (string, error) {
	id, err := s.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	tok, err := utils.NewOpaqueToken(s.cfg.ResetTTL)
	if err != nil {
		return "", errors.Wrap(err, "reset token")
	}
	if err := s.resets.Store(ctx, id.UID, utils.HashToken(tok.Raw), tok.Exp); err != nil {
		return "", err
	}
	u, err := url.Parse(s.cfg.ResetURL)
	if err != nil {
		return "", errors.Wrap(err, "reset url")
	}
	q := u.Query()
	q.Set("token", tok.Raw)
	if continueURL != "" {
		q.Set("continueUrl", continueURL)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SendPasswordResetEmail generates a reset link and mails it to the identity.
func (s *Service) SendPasswordResetEmail(ctx context.Context, email string) error {
	id, err := s.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	link, err := s.GenerateResetLink(ctx, id.Email, s.cfg.ContinueURL)
	if err != nil {
		return err
	}
	msg, err := mail.PasswordReset(s.cfg.Brand, s.cfg.From, id.Email, id.DisplayName, link)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Error("password reset email failed", zap.String("uid", id.UID), zap.Error(err))
		return err
	}
	return nil
}

// SignIn checks email and password and issues a token pair.
func (s *Service) SignIn(ctx context.Context, email, password string) (Tokens, model.Identity, error) {
	id, err := s.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return Tokens{}, model.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Tokens{}, model.Identity{}, err
	}
	if !utils.VerifyPassword(id.PasswordHash, password) {
		return Tokens{}, model.Identity{}, ErrInvalidCredentials
	}
	if id.Disabled {
		return Tokens{}, model.Identity{}, ErrDisabled
	}
	toks, err := s.issue(ctx, id)
	if err != nil {
		return Tokens{}, model.Identity{}, err
	}
	now := time.Now().UTC()
	if err := s.identities.TouchSignIn(ctx, id.UID, now); err != nil {
		s.log.Warn("record sign-in failed", zap.String("uid", id.UID), zap.Error(err))
	} else {
		id.LastSignInAt = &now
	}
	return toks, id, nil
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, raw string) (Tokens, error) {
	hash := utils.HashToken(raw)
	uid, err := s.tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return Tokens{}, mapRepoErr(err)
	}
	if err := s.tokens.RevokeByHash(ctx, hash); err != nil {
		return Tokens{}, err
	}
	id, err := s.GetByUID(ctx, uid)
	if errors.Is(err, ErrNotFound) {
		return Tokens{}, ErrTokenInvalid
	}
	if err != nil {
		return Tokens{}, err
	}
	if id.Disabled {
		return Tokens{}, ErrDisabled
	}
	return s.issue(ctx, id)
}

// SignOut revokes the presented refresh token.
func (s *Service) SignOut(ctx context.Context, raw string) error {
	return s.tokens.RevokeByHash(ctx, utils.HashToken(raw))
}

// ConfirmPasswordReset consumes a reset token and sets the new password.
// Every existing session of the identity is revoked.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	uid, err := s.resets.Consume(ctx, utils.HashToken(token))
	if err != nil {
		return mapRepoErr(err)
	}
	id, err := s.GetByUID(ctx, uid)
	if err != nil {
		return err
	}
	id.PasswordHash = hash
	if err := s.identities.Update(ctx, &id); err != nil {
		return mapRepoErr(err)
	}
	return s.tokens.RevokeAllForUser(ctx, uid)
}

func (s *Service) issue(ctx context.Context, id model.Identity) (Tokens, error) {
	access, err := utils.NewAccessToken(s.cfg.Secret, id.UID, id.Claims, s.cfg.AccessTTL)
	if err != nil {
		return Tokens{}, errors.Wrap(err, "sign access token")
	}
	refresh, err := utils.NewOpaqueToken(s.cfg.RefreshTTL)
	if err != nil {
		return Tokens{}, errors.Wrap(err, "refresh token")
	}
	if err := s.tokens.StoreRefresh(ctx, id.UID, utils.HashToken(refresh.Raw), refresh.Exp); err != nil {
		return Tokens{}, err
	}
	return Tokens{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.Exp,
		RefreshToken:     refresh.Raw,
		RefreshExpiresAt: refresh.Exp,
	}, nil
}

func mapRepoErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrEmailExists):
		return ErrEmailExists
	case errors.Is(err, repository.ErrTokenInvalid):
		return ErrTokenInvalid
	}
	return err
}

package session

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/iliyamo/estock/internal/docstore"
	"github.com/iliyamo/estock/internal/model"
)

// ErrProfileNotFound is returned when users/{uid} does not exist.
var ErrProfileNotFound = errors.New("profile not found")

// Profiles reads and writes users/{uid} and its roles/{uid} mirror.  The
// users document is authoritative; roles is written in the same batch
// whenever role or disabled change.
type Profiles struct {
	Store docstore.Store
	Now   func() time.Time
}

func (p *Profiles) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// Get loads a profile.
func (p *Profiles) Get(ctx context.Context, uid string) (model.Profile, error) {
	doc, err := p.Store.Get(ctx, model.CollectionUsers, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return model.Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return model.Profile{}, err
	}
	return model.ProfileFromData(uid, doc.Data, doc.CreatedAt, doc.UpdatedAt), nil
}

// List returns every profile that is not soft deleted, newest first.
func (p *Profiles) List(ctx context.Context) ([]model.Profile, error) {
	docs, err := p.Store.List(ctx, model.CollectionUsers, docstore.DefaultOrder)
	if err != nil {
		return nil, err
	}
	return visibleProfiles(docs), nil
}

// ByUID indexes every profile, soft-deleted ones included.
func (p *Profiles) ByUID(ctx context.Context) (map[string]model.Profile, error) {
	docs, err := p.Store.List(ctx, model.CollectionUsers, docstore.DefaultOrder)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Profile, len(docs))
	for _, d := range docs {
		out[d.ID] = model.ProfileFromData(d.ID, d.Data, d.CreatedAt, d.UpdatedAt)
	}
	return out, nil
}

func visibleProfiles(docs []docstore.Document) []model.Profile {
	out := make([]model.Profile, 0, len(docs))
	for _, d := range docs {
		pr := model.ProfileFromData(d.ID, d.Data, d.CreatedAt, d.UpdatedAt)
		if !pr.Deleted() {
			out = append(out, pr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// EnsureProfile creates a viewer profile for id on first sign-in.  An
// existing profile is returned untouched.
func (p *Profiles) EnsureProfile(ctx context.Context, id model.Identity) (model.Profile, bool, error) {
	existing, err := p.Get(ctx, id.UID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return model.Profile{}, false, err
	}
	pr := model.Profile{UID: id.UID, Email: id.Email, DisplayName: id.DisplayName, Role: model.RoleViewer}
	if err := p.Store.Batch(ctx, []docstore.Op{
		docstore.SetOp(model.CollectionUsers, id.UID, pr.Data(), true),
		docstore.SetOp(model.CollectionRoles, id.UID, mirror(pr.Role, pr.Disabled), true),
	}); err != nil {
		return model.Profile{}, false, err
	}
	created, err := p.Get(ctx, id.UID)
	return created, true, err
}

// Provision upserts the profile written by the administrative create-user
// flow: role as given, enabled, createdBy the calling admin.  A previous
// soft delete is cleared.
func (p *Profiles) Provision(ctx context.Context, id model.Identity, displayName string, role model.Role, createdBy string) (model.Profile, error) {
	data := map[string]any{
		model.KeyEmail:       id.Email,
		model.KeyDisplayName: displayName,
		model.KeyRole:        string(role),
		model.KeyDisabled:    false,
		model.KeyCreatedBy:   createdBy,
		model.KeyDeletedAt:   nil,
	}
	m := mirror(role, false)
	m[model.KeyDeleted] = false
	if err := p.Store.Batch(ctx, []docstore.Op{
		docstore.SetOp(model.CollectionUsers, id.UID, data, true),
		docstore.SetOp(model.CollectionRoles, id.UID, m, true),
	}); err != nil {
		return model.Profile{}, err
	}
	return p.Get(ctx, id.UID)
}

// Change is an administrative profile edit; nil fields stay untouched.
type Change struct {
	Role        *model.Role
	Disabled    *bool
	DisplayName *string
}

// Empty reports whether the change edits nothing.
func (c Change) Empty() bool { return c.Role == nil && c.Disabled == nil && c.DisplayName == nil }

// Apply writes c.  Role and disabled go to users/{uid} and roles/{uid} in
// one atomic batch: both documents change or neither does.
func (p *Profiles) Apply(ctx context.Context, uid string, c Change) (model.Profile, error) {
	users := map[string]any{}
	roles := map[string]any{}
	if c.Role != nil {
		users[model.KeyRole] = string(*c.Role)
		roles[model.KeyRole] = string(*c.Role)
	}
	if c.Disabled != nil {
		users[model.KeyDisabled] = *c.Disabled
		roles[model.KeyDisabled] = *c.Disabled
	}
	if c.DisplayName != nil {
		users[model.KeyDisplayName] = strings.TrimSpace(*c.DisplayName)
	}
	ops := []docstore.Op{docstore.SetOp(model.CollectionUsers, uid, users, true)}
	if len(roles) > 0 {
		ops = append(ops, docstore.SetOp(model.CollectionRoles, uid, roles, true))
	}
	if err := p.Store.Batch(ctx, ops); err != nil {
		return model.Profile{}, err
	}
	return p.Get(ctx, uid)
}

// SoftDelete stamps deletedAt on users/{uid} and deleted:true on the
// mirror.  The identity is left intact.
func (p *Profiles) SoftDelete(ctx context.Context, uid string) error {
	if _, err := p.Get(ctx, uid); err != nil {
		return err
	}
	return p.Store.Batch(ctx, []docstore.Op{
		docstore.UpdateOp(model.CollectionUsers, uid, map[string]any{model.KeyDeletedAt: p.now().Format(time.RFC3339Nano)}),
		docstore.SetOp(model.CollectionRoles, uid, map[string]any{model.KeyDeleted: true}, true),
	})
}

// Purge removes both documents.  Used after the identity itself is deleted.
func (p *Profiles) Purge(ctx context.Context, uid string) error {
	return p.Store.Batch(ctx, []docstore.Op{
		docstore.DeleteOp(model.CollectionUsers, uid),
		docstore.DeleteOp(model.CollectionRoles, uid),
	})
}

func mirror(role model.Role, disabled bool) map[string]any {
	return map[string]any{model.KeyRole: string(role), model.KeyDisabled: disabled}
}

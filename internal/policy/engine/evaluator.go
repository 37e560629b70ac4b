// Package engine decides whether a signed-in principal may enter a role-restricted route.
package engine

import (
	"context"

	userdomain "chabaqa/backend/internal/user/domain"
)

// Route classes that carry a role requirement. Values match routes.Class.
const (
	ClassAdminOnly   = "admin_only"
	ClassCreatorOnly = "creator_only"
)

// RouteInput is the decision input for one request.
type RouteInput struct {
	Path  string
	Class string
	Role  string
}

func (in RouteInput) toMap() map[string]any {
	return map[string]any{
		"path":  in.Path,
		"class": in.Class,
		"role":  in.Role,
	}
}

// RouteAuthorizer reports whether the role in RouteInput may enter the route.
type RouteAuthorizer interface {
	AllowRoute(ctx context.Context, in RouteInput) (bool, error)
}

// StaticAuthorizer applies the built-in rules: admin-only needs admin, creator-only needs creator or admin.
type StaticAuthorizer struct{}

// AllowRoute implements RouteAuthorizer.
func (StaticAuthorizer) AllowRoute(_ context.Context, in RouteInput) (bool, error) {
	role := userdomain.Role(in.Role)
	switch in.Class {
	case ClassAdminOnly:
		return role == userdomain.RoleAdmin, nil
	case ClassCreatorOnly:
		return role.CanCreate(), nil
	}
	return true, nil
}

package access

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keyxmakerx/hrportal/internal/apperror"
)

// AccessService handles role and permission business logic.
type AccessService interface {
	PermissionsForRole(ctx context.Context, role string) ([]Permission, error)
	Can(ctx context.Context, role, code string) (bool, error)
	ReplaceAssignments(ctx context.Context, role string, permissionIDs []int64) error
	GroupedCatalog(ctx context.Context) ([]ModuleGroup, error)
}

// accessService implements AccessService.
type accessService struct {
	repo PermissionRepository
}

// NewAccessService creates a new access service.
func NewAccessService(repo PermissionRepository) AccessService {
	return &accessService{repo: repo}
}

// PermissionsForRole returns the permissions assigned to role. An unknown
// role has no permissions and is never queried.
func (s *accessService) PermissionsForRole(ctx context.Context, role string) ([]Permission, error) {
	if _, ok := LookupRole(role); !ok {
		return []Permission{}, nil
	}
	perms, err := s.repo.ListForRole(ctx, role)
	if err != nil {
		return nil, apperror.NewStoreUnavailable(err)
	}
	if perms == nil {
		perms = []Permission{}
	}
	return perms, nil
}

// Can reports whether role may use the permission code. Roles with the
// bypass capability are granted everything.
func (s *accessService) Can(ctx context.Context, role, code string) (bool, error) {
	def, ok := LookupRole(role)
	if !ok {
		return false, nil
	}
	if def.BypassPermissions {
		return true, nil
	}
	has, err := s.repo.RoleHas(ctx, role, code)
	if err != nil {
		return false, apperror.NewStoreUnavailable(err)
	}
	return has, nil
}

// ReplaceAssignments atomically sets role's permissions to exactly
// permissionIDs. Duplicate IDs in the request are collapsed; IDs missing
// from the catalog are rejected before the transaction starts.
func (s *accessService) ReplaceAssignments(ctx context.Context, role string, permissionIDs []int64) error {
	if _, ok := LookupRole(role); !ok {
		return apperror.NewValidation(fmt.Sprintf("unknown role %q", role))
	}

	ids := dedupe(permissionIDs)
	for _, id := range ids {
		if id <= 0 {
			return apperror.NewValidation("permission ids must be positive")
		}
	}

	catalog, err := s.repo.ListCatalog(ctx)
	if err != nil {
		return apperror.NewStoreUnavailable(err)
	}
	known := make(map[int64]bool, len(catalog))
	for _, p := range catalog {
		known[p.ID] = true
	}
	for _, id := range ids {
		if !known[id] {
			return apperror.NewValidation(fmt.Sprintf("unknown permission id %d", id))
		}
	}

	if err := s.repo.ReplaceForRole(ctx, role, ids); err != nil {
		return apperror.NewInternal(fmt.Errorf("replacing assignments for %s: %w", role, err))
	}

	slog.Info("role permissions replaced",
		slog.String("role", role),
		slog.Int("count", len(ids)),
	)
	return nil
}

// GroupedCatalog returns the permission catalog grouped by module. The
// repository already orders by module, so groups are built in one pass.
func (s *accessService) GroupedCatalog(ctx context.Context) ([]ModuleGroup, error) {
	perms, err := s.repo.ListCatalog(ctx)
	if err != nil {
		return nil, apperror.NewStoreUnavailable(err)
	}

	groups := []ModuleGroup{}
	for _, p := range perms {
		if n := len(groups); n == 0 || groups[n-1].Module != p.Module {
			groups = append(groups, ModuleGroup{Module: p.Module})
		}
		last := &groups[len(groups)-1]
		last.Permissions = append(last.Permissions, p)
	}
	return groups, nil
}

// dedupe keeps the first occurrence of each ID.
func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

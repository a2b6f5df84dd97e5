package database

import (
	"context"
	"fmt"

	"warehouse/internal/model"
	"warehouse/internal/repository"

	"github.com/google/uuid"
)

// defaultRoles maps the built-in roles to the warehouse permissions they hold
var defaultRoles = map[string][]string{
	"admin":     {model.PermInvoicesRead, model.PermInvoicesWrite, model.PermWarehouseConfirm, model.PermPaymentsConfirm},
	"quản lý":   {model.PermInvoicesRead, model.PermInvoicesWrite, model.PermWarehouseConfirm, model.PermPaymentsConfirm},
	"nhân viên": {model.PermInvoicesRead, model.PermInvoicesWrite, model.PermWarehouseConfirm},
}

// SeedPermissions makes sure every warehouse permission exists and the
// built-in roles hold theirs. Safe to run on every start.
func SeedPermissions(ctx context.Context, roles repository.RoleRepository) error {
	ids := make(map[string]uuid.UUID, len(model.WarehousePermissions))
	for _, p := range model.WarehousePermissions {
		perm := p
		if err := roles.FindOrCreatePermission(ctx, &perm); err != nil {
			return fmt.Errorf("seed permission %s: %w", p.Code, err)
		}
		ids[perm.Code] = perm.ID
	}

	for name, codes := range defaultRoles {
		role := model.Role{Name: name, IsSystem: true}
		if err := roles.FindOrCreate(ctx, &role); err != nil {
			return fmt.Errorf("seed role %s: %w", name, err)
		}

		permIDs := make([]uuid.UUID, 0, len(codes))
		for _, code := range codes {
			permIDs = append(permIDs, ids[code])
		}
		if err := roles.AssociatePermissions(ctx, role.ID, permIDs); err != nil {
			return fmt.Errorf("grant permissions to %s: %w", name, err)
		}
	}
	return nil
}

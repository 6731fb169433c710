package service

import (
	"fmt"

	"netwatch/internal/model"
)

// Authorization helpers. All role and ownership policy is evaluated here;
// handlers and services never compare roles directly.

// RequireAuthenticated fails unless the request carries a resolved identity.
func RequireAuthenticated(identity *model.Identity) error {
	if identity == nil {
		return fmt.Errorf("%w: authentication required", ErrUnauthorized)
	}
	return nil
}

// RequireAdmin fails unless the caller is an authenticated admin.
func RequireAdmin(identity *model.Identity) error {
	if err := RequireAuthenticated(identity); err != nil {
		return err
	}
	if !identity.IsAdmin() {
		return fmt.Errorf("%w: admin access required", ErrForbidden)
	}
	return nil
}

// RequireOwnerOrAdmin fails unless the caller owns the resource or is an
// admin.
func RequireOwnerOrAdmin(identity *model.Identity, ownerID int64) error {
	if err := RequireAuthenticated(identity); err != nil {
		return err
	}
	if identity.UserID != ownerID && !identity.IsAdmin() {
		return fmt.Errorf("%w: not the resource owner", ErrForbidden)
	}
	return nil
}

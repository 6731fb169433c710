package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"go.uber.org/zap"

	"netwatch/internal/audit"
	"netwatch/internal/encryption"
	"netwatch/internal/model"
	"netwatch/internal/repository/clickhouse"
	"netwatch/internal/repository/postgres"
	"netwatch/internal/util"
)

// primaryAdminID is the bootstrap admin account, protected from deletion.
const primaryAdminID = 1

const defaultLogLimit = 100

// AdminService implements the admin-only management operations.
type AdminService struct {
	users     postgres.UserRepository
	nodes     postgres.NodeRepository
	alerts    postgres.AlertRepository
	traffic   clickhouse.TrafficRepository
	encryptor *encryption.Manager
	recorder  audit.Recorder
}

func NewAdminService(
	users postgres.UserRepository,
	nodes postgres.NodeRepository,
	alerts postgres.AlertRepository,
	traffic clickhouse.TrafficRepository,
	encryptor *encryption.Manager,
	recorder audit.Recorder,
) *AdminService {
	return &AdminService{
		users:     users,
		nodes:     nodes,
		alerts:    alerts,
		traffic:   traffic,
		encryptor: encryptor,
		recorder:  recorder,
	}
}

// SystemStats gathers the dashboard overview, fanning the four store queries
// out concurrently.
func (s *AdminService) SystemStats(ctx context.Context, identity *model.Identity) (*model.SystemStats, error) {
	if err := RequireAdmin(identity); err != nil {
		return nil, err
	}

	stats := &model.SystemStats{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		count, err := s.users.CountUsers(gctx)
		stats.Users = count
		return err
	})
	g.Go(func() error {
		total, active, err := s.nodes.CountNodes(gctx)
		stats.Nodes = model.NodeStats{Total: total, Active: active}
		return err
	})
	g.Go(func() error {
		traffic, err := s.traffic.GlobalStats(gctx)
		if err != nil {
			return err
		}
		stats.Traffic = *traffic
		return nil
	})
	g.Go(func() error {
		count, err := s.alerts.CountActiveAlerts(gctx)
		stats.Alerts = count
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to gather system stats: %w", err)
	}
	return stats, nil
}

// ListUsers returns every account with emails decrypted for display.
func (s *AdminService) ListUsers(ctx context.Context, identity *model.Identity) ([]*model.User, error) {
	if err := RequireAdmin(identity); err != nil {
		return nil, err
	}

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	for _, user := range users {
		email, err := s.encryptor.DecryptField(ctx, &encryption.EncryptedField{
			Ciphertext: user.EmailEncrypted,
			WrappedDEK: user.EmailDEK,
			KeyID:      user.EmailKeyID,
		})
		if err != nil {
			// The listing is still useful without the one email.
			util.Warn("Failed to decrypt user email",
				zap.Int64("user_id", user.ID),
				zap.Error(err))
			continue
		}
		user.Email = email
	}
	return users, nil
}

// UpdateUserRole changes an account's role.
func (s *AdminService) UpdateUserRole(ctx context.Context, identity *model.Identity, userID int64, role string) error {
	if err := RequireAdmin(identity); err != nil {
		return err
	}
	switch role {
	case model.RoleUser, model.RoleAdmin:
	default:
		return fmt.Errorf("%w: invalid role %q", ErrValidation, role)
	}

	if err := s.users.UpdateUserRole(ctx, userID, role); err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return err
	}

	s.recorder.Record(ctx, model.AuditEvent{
		Type:    model.EventUserRoleUpdated,
		Message: fmt.Sprintf("user %d role set to %s", userID, role),
		ActorID: identity.UserID,
	})
	return nil
}

// DeleteUser removes an account and, by cascade, its nodes and alerts. The
// bootstrap admin cannot be deleted.
func (s *AdminService) DeleteUser(ctx context.Context, identity *model.Identity, userID int64) error {
	if err := RequireAdmin(identity); err != nil {
		return err
	}
	if userID == primaryAdminID {
		return fmt.Errorf("%w: Cannot delete primary admin", ErrForbidden)
	}

	if err := s.users.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return err
	}

	s.recorder.Record(ctx, model.AuditEvent{
		Type:    model.EventUserDeleted,
		Message: fmt.Sprintf("user %d deleted", userID),
		ActorID: identity.UserID,
	})
	return nil
}

// SystemLogs returns the newest audit entries.
func (s *AdminService) SystemLogs(ctx context.Context, identity *model.Identity, limit int) ([]model.AuditEvent, error) {
	if err := RequireAdmin(identity); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLogLimit
	}
	return s.recorder.SearchLogs(ctx, limit)
}

package postgres

import (
	"context"
	"errors"
	"time"

	"netwatch/internal/model"
)

// ErrNoRows is returned when a lookup matches nothing.
var ErrNoRows = errors.New("no rows found")

// UserRepository defines user persistence operations.
type UserRepository interface {
	EnsureSchema(ctx context.Context) error
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmailHash(ctx context.Context, emailHash string) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	UpdateUserRole(ctx context.Context, id int64, role string) error
	DeleteUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context) ([]*model.User, error)
	CountUsers(ctx context.Context) (int64, error)
}

// NodeRepository defines node persistence operations.
type NodeRepository interface {
	EnsureSchema(ctx context.Context) error
	CreateNode(ctx context.Context, node *model.Node) error
	GetNodeByID(ctx context.Context, id int64) (*model.Node, error)
	GetNodeByAPIKeyHash(ctx context.Context, apiKeyHash string) (*model.Node, error)
	ListNodesByOwner(ctx context.Context, ownerID int64) ([]*model.Node, error)
	ListAllNodes(ctx context.Context) ([]*model.Node, error)
	ListNodeIDsByOwner(ctx context.Context, ownerID int64) ([]int64, error)
	CountNodesByOwner(ctx context.Context, ownerID int64) (int64, error)
	UpdateNodeStatus(ctx context.Context, id int64, status string) error
	DeleteNode(ctx context.Context, id int64) error
	CountNodes(ctx context.Context) (total int64, active int64, err error)
}

// AlertRepository defines alert persistence operations.
type AlertRepository interface {
	EnsureSchema(ctx context.Context) error
	CreateAlert(ctx context.Context, alert *model.Alert) error
	ListAlerts(ctx context.Context, nodeIDs []int64, limit int) ([]*model.Alert, error)
	CountActiveAlerts(ctx context.Context) (int64, error)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"

	"netwatch/internal/audit"
	"netwatch/internal/config"
	"netwatch/internal/hashing"
	"netwatch/internal/model"
	"netwatch/internal/repository/postgres"
	"netwatch/internal/util"
)

// NodeService manages the monitored-node registry.
type NodeService struct {
	nodes    postgres.NodeRepository
	recorder audit.Recorder
	config   *config.Config
}

func NewNodeService(nodes postgres.NodeRepository, recorder audit.Recorder, cfg *config.Config) *NodeService {
	return &NodeService{
		nodes:    nodes,
		recorder: recorder,
		config:   cfg,
	}
}

// CreateNode registers a node and returns it together with the plaintext API
// key. The key is shown exactly once; only its digest is stored.
func (s *NodeService) CreateNode(ctx context.Context, identity *model.Identity, name, ip, location string) (*model.Node, string, error) {
	if err := RequireAuthenticated(identity); err != nil {
		return nil, "", err
	}

	name = util.SanitizeInput(name)
	location = util.SanitizeInput(location)
	if name == "" || ip == "" {
		return nil, "", fmt.Errorf("%w: node name and IP are required", ErrValidation)
	}
	if net.ParseIP(ip) == nil {
		return nil, "", fmt.Errorf("%w: invalid IP address", ErrValidation)
	}

	if !identity.IsAdmin() {
		count, err := s.nodes.CountNodesByOwner(ctx, identity.UserID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to count nodes: %w", err)
		}
		if count >= int64(s.config.Limits.MaxNodesPerUser) {
			return nil, "", fmt.Errorf("%w: maximum of %d nodes reached", ErrQuotaExceeded, s.config.Limits.MaxNodesPerUser)
		}
	}

	apiKey, err := hashing.GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate API key: %w", err)
	}

	node := &model.Node{
		NodeName:     name,
		NodeIP:       ip,
		NodeLocation: location,
		NodeStatus:   model.NodeStatusActive,
		APIKeyHash:   hashing.DigestAPIKey(apiKey),
		CreatedBy:    identity.UserID,
	}
	if err := s.nodes.CreateNode(ctx, node); err != nil {
		return nil, "", err
	}

	s.recorder.Record(ctx, model.AuditEvent{
		Type:    model.EventNodeCreated,
		Message: fmt.Sprintf("node %s registered", node.NodeName),
		ActorID: identity.UserID,
		NodeID:  node.ID,
	})

	return node, apiKey, nil
}

// ListNodes returns the caller's nodes, or every node with owner names when
// all is set (admin only).
func (s *NodeService) ListNodes(ctx context.Context, identity *model.Identity, all bool) ([]*model.Node, error) {
	if all {
		if err := RequireAdmin(identity); err != nil {
			return nil, err
		}
		return s.nodes.ListAllNodes(ctx)
	}
	if err := RequireAuthenticated(identity); err != nil {
		return nil, err
	}
	return s.nodes.ListNodesByOwner(ctx, identity.UserID)
}

// GetNode returns a node the caller is allowed to see.
func (s *NodeService) GetNode(ctx context.Context, identity *model.Identity, nodeID int64) (*model.Node, error) {
	if err := RequireAuthenticated(identity); err != nil {
		return nil, err
	}
	node, err := s.nodes.GetNodeByID(ctx, nodeID)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, fmt.Errorf("%w: node %d", ErrNotFound, nodeID)
		}
		return nil, err
	}
	if err := RequireOwnerOrAdmin(identity, node.CreatedBy); err != nil {
		return nil, err
	}
	return node, nil
}

// UpdateStatus sets a node's status (owner or admin).
func (s *NodeService) UpdateStatus(ctx context.Context, identity *model.Identity, nodeID int64, status string) error {
	switch status {
	case model.NodeStatusActive, model.NodeStatusInactive, model.NodeStatusError:
	default:
		return fmt.Errorf("%w: invalid node status %q", ErrValidation, status)
	}

	node, err := s.GetNode(ctx, identity, nodeID)
	if err != nil {
		return err
	}

	if err := s.nodes.UpdateNodeStatus(ctx, node.ID, status); err != nil {
		return err
	}

	s.recorder.Record(ctx, model.AuditEvent{
		Type:    model.EventNodeStatusUpdated,
		Message: fmt.Sprintf("node %s status set to %s", node.NodeName, status),
		ActorID: identity.UserID,
		NodeID:  node.ID,
	})
	return nil
}

// DeleteNode removes a node (owner or admin). Alerts cascade with it.
func (s *NodeService) DeleteNode(ctx context.Context, identity *model.Identity, nodeID int64) error {
	node, err := s.GetNode(ctx, identity, nodeID)
	if err != nil {
		return err
	}

	if err := s.nodes.DeleteNode(ctx, node.ID); err != nil {
		return err
	}

	s.recorder.Record(ctx, model.AuditEvent{
		Type:    model.EventNodeDeleted,
		Message: fmt.Sprintf("node %s deleted", node.NodeName),
		ActorID: identity.UserID,
		NodeID:  node.ID,
	})

	util.Info("Node removed from registry",
		zap.Int64("node_id", node.ID),
		zap.Int64("actor_id", identity.UserID))
	return nil
}

// ResolveByAPIKey maps a plaintext API key to its node.
func (s *NodeService) ResolveByAPIKey(ctx context.Context, apiKey string) (*model.Node, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing API key", ErrUnauthorized)
	}
	node, err := s.nodes.GetNodeByAPIKeyHash(ctx, hashing.DigestAPIKey(apiKey))
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, fmt.Errorf("%w: invalid API key", ErrUnauthorized)
		}
		return nil, err
	}
	return node, nil
}

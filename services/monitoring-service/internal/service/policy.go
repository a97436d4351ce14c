package service

import (
	"context"
	"fmt"

	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

type Action string

const (
	ActionRun         Action = "monitoring:run"
	ActionReadAlerts  Action = "alerts:read"
	ActionWriteAlerts Action = "alerts:write"
	ActionReadSignals Action = "signals:read"
	ActionAckSignals  Action = "signals:write"
	ActionReadChecks  Action = "checks:read"
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleViewer  = "viewer"
)

// Policy is the single authorization decision each entry point makes.
// An empty clientID means the action spans all clients.
type Policy interface {
	Evaluate(ctx context.Context, p models.Principal, action Action, clientID string) error
}

// RolePolicy grants admins everything. Managers may read and write their
// assigned clients, viewers may only read them.
type RolePolicy struct{}

func (RolePolicy) Evaluate(_ context.Context, p models.Principal, action Action, clientID string) error {
	if p.Role == RoleAdmin {
		return nil
	}

	var allowed bool
	switch p.Role {
	case RoleManager:
		allowed = true
	case RoleViewer:
		allowed = !isWrite(action)
	}
	if !allowed {
		return fmt.Errorf("%w: role %q may not %s", ErrForbidden, p.Role, action)
	}

	// Listing checks is not client data.
	if action == ActionReadChecks {
		return nil
	}
	if clientID == "" {
		return fmt.Errorf("%w: %s across all clients requires admin", ErrForbidden, action)
	}
	for _, id := range p.ClientIDs {
		if id == clientID {
			return nil
		}
	}
	return fmt.Errorf("%w: client %s is not assigned to %s", ErrForbidden, clientID, p.UserID)
}

func isWrite(action Action) bool {
	switch action {
	case ActionRun, ActionWriteAlerts, ActionAckSignals:
		return true
	}
	return false
}

package service

import (
	"context"
	"testing"

	"github.com/grigta/adpulse/services/monitoring-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestRolePolicy(t *testing.T) {
	ctx := context.Background()
	admin := models.Principal{UserID: "root", Role: RoleAdmin}
	manager := models.Principal{UserID: "m", Role: RoleManager, ClientIDs: []string{"client-a"}}
	viewer := models.Principal{UserID: "v", Role: RoleViewer, ClientIDs: []string{"client-a"}}
	stranger := models.Principal{UserID: "s", Role: "guest", ClientIDs: []string{"client-a"}}

	tests := []struct {
		name      string
		principal models.Principal
		action    Action
		clientID  string
		allowed   bool
	}{
		{"admin runs everything", admin, ActionRun, "", true},
		{"admin reads any client", admin, ActionReadAlerts, "client-z", true},
		{"manager runs assigned client", manager, ActionRun, "client-a", true},
		{"manager cannot run all clients", manager, ActionRun, "", false},
		{"manager cannot touch other client", manager, ActionWriteAlerts, "client-b", false},
		{"manager acknowledges signals", manager, ActionAckSignals, "client-a", true},
		{"viewer reads assigned client", viewer, ActionReadAlerts, "client-a", true},
		{"viewer cannot read all clients", viewer, ActionReadSignals, "", false},
		{"viewer cannot write", viewer, ActionWriteAlerts, "client-a", false},
		{"viewer cannot run", viewer, ActionRun, "client-a", false},
		{"viewer lists checks", viewer, ActionReadChecks, "", true},
		{"unknown role is denied", stranger, ActionReadAlerts, "client-a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RolePolicy{}.Evaluate(ctx, tt.principal, tt.action, tt.clientID)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

package service

import (
	"fmt"
	"time"

	"github.com/grigta/adpulse/services/monitoring-service/internal/checks"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

// Fingerprint builds the dedup key "<checkID>[/<scope>]:<day>".
func Fingerprint(checkID, scope, day string) string {
	if scope == "" {
		return fmt.Sprintf("%s:%s", checkID, day)
	}
	return fmt.Sprintf("%s/%s:%s", checkID, scope, day)
}

// CheckFingerprint scopes by channel only when the check runs outside its primary channel.
func CheckFingerprint(check checks.Check, channel models.Channel, now time.Time, loc *time.Location) string {
	scope := ""
	if channel != checks.PrimaryChannel(check) {
		scope = string(channel)
	}
	return Fingerprint(check.ID(), scope, models.DayKey(now, loc))
}

// FatigueFingerprint keys a promoted signal by entity and day.
func FatigueFingerprint(signal models.FatigueSignal) string {
	return Fingerprint(FatigueCheckID, FatigueEntityKey(signal.EntityType, signal.EntityID), signal.Day)
}

func FatigueEntityKey(entityType models.EntityType, entityID string) string {
	return fmt.Sprintf("%s-%s", entityType, entityID)
}

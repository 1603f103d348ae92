package services

import (
	"strconv"
	"time"

	pkglogger "github.com/dmarchuk/rentd/pkg/logger"
)

// SecurityNotifier is informed about notable security transitions. All
// notifications are best-effort: implementations must not block or fail the
// operation that triggered them.
type SecurityNotifier interface {
	AccountHardLocked(userID, email string, until time.Time)
	AddressBanned(ipAddress string, failures int, until time.Time)
	AccountUnlocked(userID, email string)
}

// AuditNotifier emits security notifications to the structured audit log.
type AuditNotifier struct {
	audit *pkglogger.AuditLogger
}

// NewAuditNotifier creates an AuditNotifier over the given audit logger.
func NewAuditNotifier(audit *pkglogger.AuditLogger) *AuditNotifier {
	return &AuditNotifier{audit: audit}
}

func (n *AuditNotifier) AccountHardLocked(userID, email string, until time.Time) {
	n.audit.LogSecurityEvent("account_hard_locked", userID, map[string]string{
		"email":        email,
		"locked_until": until.UTC().Format(time.RFC3339),
	})
}

func (n *AuditNotifier) AddressBanned(ipAddress string, failures int, until time.Time) {
	n.audit.LogSecurityEvent("address_banned", "", map[string]string{
		"ip_address":   ipAddress,
		"failures":     strconv.Itoa(failures),
		"banned_until": until.UTC().Format(time.RFC3339),
	})
}

func (n *AuditNotifier) AccountUnlocked(userID, email string) {
	n.audit.LogSecurityEvent("account_unlocked", userID, map[string]string{
		"email": email,
	})
}

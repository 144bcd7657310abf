package jobgroup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// writeAuditLine appends a JSON line to <AUDIT_DIR>/jobgroup-<date>.log,
// per spec section 4.8. Best-effort: failures are logged, never returned.
func (s *Service) writeAuditLine(event, jobgroupID, detail string) {
	if s.cfg.AuditDir == "" {
		return
	}
	if err := os.MkdirAll(s.cfg.AuditDir, 0o755); err != nil {
		s.logger.Warn("failed to create audit directory", zap.Error(err))
		return
	}
	now := time.Now().UTC()
	path := filepath.Join(s.cfg.AuditDir, "jobgroup-"+now.Format("2006-01-02")+".log")

	line, err := json.Marshal(map[string]any{
		"event":       event,
		"jobgroup_id": jobgroupID,
		"detail":      detail,
		"ts":          now.Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.Warn("failed to marshal audit line", zap.Error(err))
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Warn("failed to open jobgroup audit log", zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		s.logger.Warn("failed to append to jobgroup audit log", zap.Error(err))
	}
}

package daemon

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/moneyclaw/moneyclaw/internal/config"
	"github.com/moneyclaw/moneyclaw/internal/store"
	"github.com/moneyclaw/moneyclaw/internal/tier"
	"github.com/rs/zerolog"
)

// StatusFromStore answers `--status` without constructing a full Daemon
// (router, sandbox backend, scheduler, and so on): the status surface only
// ever reads a handful of rows, so a second process asking "is it alive"
// opens the store directly rather than standing up the whole subsystem
// graph just to read it (spec §7).
func StatusFromStore(cfg *config.Config) (Status, error) {
	st, err := store.Open(filepath.Join(cfg.DataDir, "moneyclaw.db"), zerolog.Nop())
	if err != nil {
		return Status{}, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	identity, err := st.GetIdentity()
	if err != nil {
		return Status{}, fmt.Errorf("load identity: %w", err)
	}

	s := Status{WalletAddr: identity.WalletAddress}

	pidPath := filepath.Join(cfg.DataDir, "moneyclaw.pid")
	if pid, err := ReadPIDFile(pidPath); err == nil && ProcessRunning(pid) {
		s.Running = true
	}

	session, err := st.CurrentSession()
	if err != nil {
		return Status{}, fmt.Errorf("read current session: %w", err)
	}
	if session != nil {
		s.Uptime = time.Since(session.StartedAt)
		if lastErr, err := st.LastTurnError(session.ID); err == nil {
			s.LastError = lastErr
		}
	}

	if tierStr, err := st.GetKV(currentTierKVKey); err == nil {
		s.Tier = tierStr
	}
	if creditsRaw, err := st.GetKV(kvCredits); err == nil {
		fmt.Sscanf(creditsRaw, "%f", &s.Credits)
	}

	s.ActiveModel = cfg.InferenceModel
	if s.Tier != "" {
		s.ActiveModel = tier.GetModelForTier(tier.Tier(s.Tier), cfg.InferenceModel, cfg.TierThresholds.LowComputeModel)
	}
	return s, nil
}

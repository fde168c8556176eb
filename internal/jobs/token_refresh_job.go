// Package jobs holds the worker's scheduled maintenance tasks.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/clippost/internal/oauth"
	"github.com/maheshrc27/clippost/internal/vault"
)

// refreshWindow is how close to expiry a credential gets before the job
// renews it.
const refreshWindow = 24 * time.Hour

// TokenRefreshJob walks the vault and renews credentials about to expire,
// so publishes keep working without the user re-authorizing.
type TokenRefreshJob struct {
	vault     *vault.Vault
	exchanger *oauth.Exchanger
	log       *slog.Logger
}

func NewTokenRefreshJob(v *vault.Vault, e *oauth.Exchanger, log *slog.Logger) *TokenRefreshJob {
	return &TokenRefreshJob{vault: v, exchanger: e, log: log}
}

// Run satisfies cron.Job. Failures on one credential are logged and never
// stop the sweep over the rest.
func (j *TokenRefreshJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	users, err := j.vault.ListUsers()
	if err != nil {
		j.log.Error("token refresh: list users", "error", err)
		return
	}

	refreshed, failed := 0, 0
	for _, userID := range users {
		platforms, err := j.vault.ListPlatforms(userID)
		if err != nil {
			j.log.Error("token refresh: list platforms", "user", userID, "error", err)
			continue
		}

		for _, platform := range platforms {
			switch j.refreshOne(ctx, userID, platform) {
			case refreshOutcomeRenewed:
				refreshed++
			case refreshOutcomeFailed:
				failed++
			}
		}
	}

	if refreshed > 0 || failed > 0 {
		j.log.Info("token refresh sweep done", "refreshed", refreshed, "failed", failed)
	}
}

type refreshOutcome int

const (
	refreshOutcomeSkipped refreshOutcome = iota
	refreshOutcomeRenewed
	refreshOutcomeFailed
)

func (j *TokenRefreshJob) refreshOne(ctx context.Context, userID, platform string) refreshOutcome {
	cred, err := j.vault.GetCredentials(userID, platform)
	if err != nil {
		j.log.Warn("token refresh: read credential", "user", userID, "platform", platform, "error", err)
		return refreshOutcomeFailed
	}

	if cred.TokenExpiry.IsZero() || time.Until(cred.TokenExpiry) > refreshWindow {
		return refreshOutcomeSkipped
	}

	renewed, err := j.exchanger.Refresh(ctx, platform, cred)
	if err != nil {
		j.log.Warn("token refresh failed", "user", userID, "platform", platform, "error", err)
		return refreshOutcomeFailed
	}

	if err := j.vault.StoreCredentials(userID, platform, renewed); err != nil {
		j.log.Error("token refresh: store renewed credential", "user", userID, "platform", platform, "error", err)
		return refreshOutcomeFailed
	}

	j.log.Info("credential refreshed", "user", userID, "platform", platform, "new_expiry", renewed.TokenExpiry)
	return refreshOutcomeRenewed
}

package synth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/upready/pkg/logger"
)

// verifyResults checks the refresh result and the published snapshot agree.
func verifyResults(ctx context.Context, client *HTTPClient, result *RefreshResponse) error {
	if result.Outcome != "persisted" {
		return fmt.Errorf("%w: outcome %q, missing %v", ErrVerification, result.Outcome, result.Missing)
	}
	if result.Score == nil || *result.Score < 0 || *result.Score > 100 {
		return fmt.Errorf("%w: score out of range", ErrVerification)
	}

	var readiness ReadinessResponse
	status, err := client.Get(ctx, "/readiness", &readiness)
	if err != nil {
		return fmt.Errorf("%w: readiness request: %w", ErrVerification, err)
	}
	if status != http.StatusOK || readiness.Snapshot == nil {
		return fmt.Errorf("%w: no snapshot published (status %d)", ErrVerification, status)
	}
	snap := readiness.Snapshot
	if snap.Score == nil || *snap.Score != *result.Score {
		return fmt.Errorf("%w: snapshot score does not match refresh result", ErrVerification)
	}
	if len(snap.Missing) > 0 {
		return fmt.Errorf("%w: snapshot missing %v", ErrVerification, snap.Missing)
	}

	logger.Get().Info(ctx, "readiness verified",
		logger.Int("score", *snap.Score),
		logger.String("cycleID", snap.CycleID),
		logger.Int("historyDays", len(snap.History)))
	return nil
}

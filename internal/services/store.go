package services

import (
	"context"
	"errors"
	"fmt"

	"station-climate/internal/models"
	"station-climate/internal/repository"
)

// storeError marks err as models.ErrStoreUnavailable when the store no
// longer passes a health check. Other errors are returned unchanged.
func storeError(ctx context.Context, repo repository.WeatherRepository, err error) error {
	if err == nil || ctx.Err() != nil || errors.Is(err, models.ErrStoreUnavailable) {
		return err
	}
	if hcErr := repo.HealthCheck(ctx); hcErr != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return err
}

package validation

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/studypact/backend/internal/cache"
	"github.com/studypact/backend/internal/database"
	"github.com/studypact/backend/internal/logger"
	"github.com/studypact/backend/internal/storage"
	"go.uber.org/zap"
)

// ServiceValidator fails startup fast when a service named in
// REQUIRED_SERVICES (comma separated: database, redis, s3) is unreachable.
// Services not listed stay optional; the server degrades without them.
type ServiceValidator struct {
	requiredServices []string

	redis    *cache.RedisClient
	uploader *storage.S3Uploader
}

// NewServiceValidator creates a validator. redis and uploader may be nil
// when those services are not configured at all.
func NewServiceValidator(redis *cache.RedisClient, uploader *storage.S3Uploader) *ServiceValidator {
	return &ServiceValidator{
		requiredServices: parseRequiredServices(),
		redis:            redis,
		uploader:         uploader,
	}
}

// ValidateServices validates all required services
func (sv *ServiceValidator) ValidateServices(ctx context.Context) error {
	if len(sv.requiredServices) == 0 {
		return nil
	}

	logger.Log.Info("validating required services",
		zap.Strings("services", sv.requiredServices))

	checks := sv.serviceChecks()

	for _, name := range sv.requiredServices {
		check, ok := checks[name]
		if !ok {
			logger.Log.Warn("unknown service in REQUIRED_SERVICES",
				zap.String("service", name))
			continue
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := check(timeoutCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("required service %q validation failed: %w", name, err)
		}

		logger.Log.Info("service validated", zap.String("service", name))
	}

	return nil
}

func (sv *ServiceValidator) serviceChecks() map[string]func(ctx context.Context) error {
	return map[string]func(ctx context.Context) error{
		"database": func(context.Context) error {
			return database.Health()
		},
		"redis": func(ctx context.Context) error {
			if sv.redis == nil {
				return fmt.Errorf("redis client not configured")
			}
			return sv.redis.Ping(ctx)
		},
		"s3": func(ctx context.Context) error {
			if sv.uploader == nil {
				return fmt.Errorf("s3 uploader not configured")
			}
			return sv.uploader.CheckBucketAccess(ctx)
		},
	}
}

func parseRequiredServices() []string {
	raw := os.Getenv("REQUIRED_SERVICES")
	if raw == "" {
		return nil
	}

	var services []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(strings.ToLower(s)); s != "" {
			services = append(services, s)
		}
	}
	return services
}

package license

import (
	"time"

	apperrors "licensegate/internal/errors"
)

// ValidateOffline judges a cached validation without network access. Checks
// run in order and stop at the first failure:
//
//  1. a cache exists for key (any cache when key is empty)  NO_LICENSE_CONFIGURED
//  2. the cache was made on this device                      FINGERPRINT_MISMATCH
//  3. now is inside the offline window                       CACHE_EXPIRED
//  4. the cached license is still usable                     LICENSE_REVOKED, LICENSE_SUSPENDED, LICENSE_EXPIRED
func ValidateOffline(c *CachedValidation, key, fingerprint string, now time.Time) (*License, error) {
	if c == nil || c.License == nil || (key != "" && c.License.Key != key) {
		return nil, apperrors.ErrNoLicenseConfigured
	}
	if c.Fingerprint != fingerprint {
		return nil, apperrors.ErrFingerprintMismatch
	}
	if !now.Before(c.OfflineValidUntil) {
		return nil, apperrors.ErrCacheExpired
	}
	if err := CheckStatus(c.License, now); err != nil {
		return nil, err
	}
	return c.License.Clone(), nil
}

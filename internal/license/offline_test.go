package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/shared/testutil"
)

func TestValidateOffline(t *testing.T) {
	now := testutil.Epoch
	cache := CreateCachedValidation(newLicense(testKey, TypeStandard, "batch"), testFingerprint, 7, now)

	lic, err := ValidateOffline(cache, testKey, testFingerprint, now.Add(testutil.Days(6)))
	require.NoError(t, err)
	assert.Equal(t, testKey, lic.Key)

	lic, err = ValidateOffline(cache, "", testFingerprint, now)
	require.NoError(t, err, "an empty key accepts the cached license")
	assert.Equal(t, testKey, lic.Key)
}

func TestValidateOfflineFailures(t *testing.T) {
	now := testutil.Epoch
	past := now.Add(time.Hour)

	revoked := newLicense(testKey, TypeStandard)
	revoked.Status = StatusRevoked
	suspended := newLicense(testKey, TypeStandard)
	suspended.Status = StatusSuspended
	expiring := newLicense(testKey, TypeStandard)
	expiring.ExpiresAt = &past

	fresh := func(l *License) *CachedValidation {
		return CreateCachedValidation(l, testFingerprint, 7, now)
	}

	tests := []struct {
		name  string
		cache *CachedValidation
		key   string
		fp    string
		at    time.Time
		want  apperrors.Code
	}{
		{"no cache", nil, testKey, testFingerprint, now, apperrors.CodeNoLicenseConfigured},
		{"cache for another key", fresh(newLicense(testKey, TypeStandard)), "AAAA-BBBB-CCCC-DDDD", testFingerprint, now, apperrors.CodeNoLicenseConfigured},
		{"other device", fresh(newLicense(testKey, TypeStandard)), testKey, otherDevice, now, apperrors.CodeFingerprintMismatch},
		{"window ended", fresh(newLicense(testKey, TypeStandard)), testKey, testFingerprint, now.Add(testutil.Days(7)), apperrors.CodeCacheExpired},
		{"revoked", fresh(revoked), testKey, testFingerprint, now, apperrors.CodeLicenseRevoked},
		{"suspended", fresh(suspended), testKey, testFingerprint, now, apperrors.CodeLicenseSuspended},
		{"license expired inside window", fresh(expiring), testKey, testFingerprint, now.Add(2 * time.Hour), apperrors.CodeLicenseExpired},
		{"mismatch wins over window", fresh(newLicense(testKey, TypeStandard)), testKey, otherDevice, now.Add(testutil.Days(30)), apperrors.CodeFingerprintMismatch},
		{"mismatch wins over revoked", fresh(revoked), testKey, otherDevice, now, apperrors.CodeFingerprintMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lic, err := ValidateOffline(tt.cache, tt.key, tt.fp, tt.at)
			assert.Nil(t, lic)
			assert.Equal(t, tt.want, apperrors.CodeOf(err))
		})
	}
}

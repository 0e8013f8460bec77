// Package license decides whether this device may use the product.
//
// The pure core (key format, RemainingDays, CachedValidation, OfflineState
// transitions, GetGracePeriodStatus and ValidateOffline) takes "now" as an
// argument and never touches shared state. Callers thread the returned
// records forward.
//
// Validator is the single mutating owner of the cache and the offline state.
// It chooses between the online path, which asks the issuing server through
// a RemoteClient and is the only writer of the cache, and the offline path,
// which judges the signed cache against the device fingerprint and the
// offline window. Every verdict is a ValidationResult; expected failures are
// carried in ErrorCode and never returned as panics.
//
// Refresher drives the Validator periodically, retrying transient network
// failures with a retry.Policy before falling back to the offline verdict.
package license

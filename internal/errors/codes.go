package errors

import "net/http"

// Code is a stable machine-readable failure identifier. Codes are part of the
// wire contract with the UI and the issuing server and must not be renamed.
type Code string

// Format errors
const (
	CodeInvalidLicenseKey Code = "INVALID_LICENSE_KEY"
	CodeInvalidFormat     Code = "INVALID_FORMAT"
	CodeDecodeError       Code = "DECODE_ERROR"
)

// Trust errors
const (
	CodeInvalidSignature    Code = "INVALID_SIGNATURE"
	CodeInvalidIssuer       Code = "INVALID_ISSUER"
	CodeInvalidAudience     Code = "INVALID_AUDIENCE"
	CodeFingerprintMismatch Code = "FINGERPRINT_MISMATCH"
)

// Temporal errors
const (
	CodeTokenExpired     Code = "TOKEN_EXPIRED"
	CodeTokenNotYetValid Code = "TOKEN_NOT_YET_VALID"
	CodeLicenseExpired   Code = "LICENSE_EXPIRED"
	CodeCacheExpired     Code = "CACHE_EXPIRED"
)

// Entitlement errors
const (
	CodeLicenseRevoked        Code = "LICENSE_REVOKED"
	CodeLicenseSuspended      Code = "LICENSE_SUSPENDED"
	CodeFeatureNotAvailable   Code = "FEATURE_NOT_AVAILABLE"
	CodeMaxActivationsReached Code = "MAX_ACTIVATIONS_REACHED"
)

// Transient errors
const (
	CodeNetworkError Code = "NETWORK_ERROR"
	CodeServerError  Code = "SERVER_ERROR"
)

// Queue, lookup and configuration errors
const (
	CodeNoLicense           Code = "NO_LICENSE"
	CodeRateLimitExceeded   Code = "RATE_LIMIT_EXCEEDED"
	CodeLicenseNotFound     Code = "LICENSE_NOT_FOUND"
	CodeNoLicenseConfigured Code = "NO_LICENSE_CONFIGURED"
	CodeLicenseInvalid      Code = "LICENSE_INVALID"
)

// Category groups codes by the kind of failure they describe.
type Category string

const (
	CategoryFormat      Category = "format"
	CategoryTrust       Category = "trust"
	CategoryTemporal    Category = "temporal"
	CategoryEntitlement Category = "entitlement"
	CategoryTransient   Category = "transient"
	CategoryQueue       Category = "queue"
	CategoryLookup      Category = "lookup"
)

var codeCategories = map[Code]Category{
	CodeInvalidLicenseKey:     CategoryFormat,
	CodeInvalidFormat:         CategoryFormat,
	CodeDecodeError:           CategoryFormat,
	CodeInvalidSignature:      CategoryTrust,
	CodeInvalidIssuer:         CategoryTrust,
	CodeInvalidAudience:       CategoryTrust,
	CodeFingerprintMismatch:   CategoryTrust,
	CodeTokenExpired:          CategoryTemporal,
	CodeTokenNotYetValid:      CategoryTemporal,
	CodeLicenseExpired:        CategoryTemporal,
	CodeCacheExpired:          CategoryTemporal,
	CodeLicenseRevoked:        CategoryEntitlement,
	CodeLicenseSuspended:      CategoryEntitlement,
	CodeFeatureNotAvailable:   CategoryEntitlement,
	CodeMaxActivationsReached: CategoryEntitlement,
	CodeNetworkError:          CategoryTransient,
	CodeServerError:           CategoryTransient,
	CodeNoLicense:             CategoryQueue,
	CodeRateLimitExceeded:     CategoryQueue,
	CodeLicenseNotFound:       CategoryLookup,
	CodeNoLicenseConfigured:   CategoryLookup,
	CodeLicenseInvalid:        CategoryLookup,
}

// Category returns the failure category of the code. Unknown codes are
// reported as lookup failures.
func (c Code) Category() Category {
	if cat, ok := codeCategories[c]; ok {
		return cat
	}
	return CategoryLookup
}

// Retryable reports whether a caller may retry the failed operation.
// Only transient failures are retryable.
func (c Code) Retryable() bool {
	return c.Category() == CategoryTransient
}

// Known reports whether c is one of the defined codes.
func (c Code) Known() bool {
	_, ok := codeCategories[c]
	return ok
}

func (c Code) String() string {
	return string(c)
}

// HTTPStatus maps a code to the status used when it is returned over HTTP.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidLicenseKey, CodeInvalidFormat, CodeDecodeError:
		return http.StatusBadRequest
	case CodeLicenseNotFound, CodeNoLicenseConfigured:
		return http.StatusNotFound
	case CodeMaxActivationsReached:
		return http.StatusConflict
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeNetworkError:
		return http.StatusServiceUnavailable
	case CodeServerError:
		return http.StatusBadGateway
	}
	switch c.Category() {
	case CategoryTrust, CategoryTemporal:
		return http.StatusUnauthorized
	case CategoryEntitlement, CategoryQueue:
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}

// problemType returns the RFC 7807 type URI for a code.
func (c Code) problemType() string {
	return "/errors/license/" + string(c.Category())
}

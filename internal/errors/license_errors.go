package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// LicenseError is the typed failure returned by every licensing and queue
// operation. Callers branch on Code; Message is for humans.
type LicenseError struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface
func (e *LicenseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the cause
func (e *LicenseError) Unwrap() error {
	return e.Cause
}

// Is matches any LicenseError carrying the same code, so sentinel values
// such as ErrTokenExpired work with errors.Is.
func (e *LicenseError) Is(target error) bool {
	var other *LicenseError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Retryable reports whether the failure is transient
func (e *LicenseError) Retryable() bool {
	return e.Code.Retryable()
}

// New creates a LicenseError without a cause
func New(code Code, message string) *LicenseError {
	return &LicenseError{Code: code, Message: message}
}

// Newf creates a LicenseError with a formatted message
func Newf(code Code, format string, args ...interface{}) *LicenseError {
	return &LicenseError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a LicenseError that wraps cause
func Wrap(code Code, message string, cause error) *LicenseError {
	return &LicenseError{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code of the first LicenseError in err's chain.
// It returns the empty code when there is none.
func CodeOf(err error) Code {
	var le *LicenseError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsRetryable reports whether err carries a transient code
func IsRetryable(err error) bool {
	return CodeOf(err).Retryable()
}

// Sentinel values for errors.Is comparisons
var (
	ErrInvalidLicenseKey     = New(CodeInvalidLicenseKey, "invalid license key format")
	ErrInvalidFormat         = New(CodeInvalidFormat, "token must have three non-empty segments")
	ErrDecode                = New(CodeDecodeError, "token could not be decoded")
	ErrInvalidSignature      = New(CodeInvalidSignature, "token signature is invalid")
	ErrInvalidIssuer         = New(CodeInvalidIssuer, "token issuer is not trusted")
	ErrInvalidAudience       = New(CodeInvalidAudience, "token audience does not match")
	ErrFingerprintMismatch   = New(CodeFingerprintMismatch, "license is bound to another device")
	ErrTokenExpired          = New(CodeTokenExpired, "token has expired")
	ErrTokenNotYetValid      = New(CodeTokenNotYetValid, "token is not yet valid")
	ErrLicenseExpired        = New(CodeLicenseExpired, "license has expired")
	ErrCacheExpired          = New(CodeCacheExpired, "offline validation window has ended")
	ErrLicenseRevoked        = New(CodeLicenseRevoked, "license has been revoked")
	ErrLicenseSuspended      = New(CodeLicenseSuspended, "license is suspended")
	ErrFeatureNotAvailable   = New(CodeFeatureNotAvailable, "feature is not included in the license")
	ErrMaxActivationsReached = New(CodeMaxActivationsReached, "maximum activations reached")
	ErrNetwork               = New(CodeNetworkError, "license server unreachable")
	ErrServer                = New(CodeServerError, "license server error")
	ErrNoLicense             = New(CodeNoLicense, "no license state available")
	ErrRateLimitExceeded     = New(CodeRateLimitExceeded, "license tier limit exceeded")
	ErrLicenseNotFound       = New(CodeLicenseNotFound, "license not found")
	ErrNoLicenseConfigured   = New(CodeNoLicenseConfigured, "no license configured on this device")
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON flattens extensions into the top-level object
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{}, 5+len(pd.Extensions))
	for k, v := range pd.Extensions {
		data[k] = v
	}
	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status
	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}
	return json.Marshal(data)
}

// UnmarshalJSON reads the standard members and keeps the rest as extensions
func (pd *ProblemDetails) UnmarshalJSON(b []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	pd.Extensions = make(map[string]interface{})
	for k, v := range raw {
		switch k {
		case "type":
			pd.Type, _ = v.(string)
		case "title":
			pd.Title, _ = v.(string)
		case "status":
			if f, ok := v.(float64); ok {
				pd.Status = int(f)
			}
		case "detail":
			pd.Detail, _ = v.(string)
		case "instance":
			pd.Instance, _ = v.(string)
		default:
			pd.Extensions[k] = v
		}
	}
	return nil
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	if pd.Extensions == nil {
		pd.Extensions = make(map[string]interface{})
	}
	pd.Extensions[key] = value
	return pd
}

// Code returns the error_code extension, if any
func (pd *ProblemDetails) Code() Code {
	if s, ok := pd.Extensions["error_code"].(string); ok {
		return Code(s)
	}
	return ""
}

// ProblemFromLicenseError renders a LicenseError as problem details
func ProblemFromLicenseError(le *LicenseError, instance string) *ProblemDetails {
	return NewProblemDetails(
		le.Code.HTTPStatus(),
		le.Code.problemType(),
		string(le.Code),
		le.Message,
		instance,
	).WithExtension("error_code", string(le.Code)).
		WithExtension("retryable", le.Code.Retryable())
}

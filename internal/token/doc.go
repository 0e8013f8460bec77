// Package token encodes, decodes and validates license tokens.
//
// A token is three base64url (unpadded) segments joined by dots:
//
//	base64url(header) "." base64url(claims) "." base64url(HMAC(header "." claims))
//
// The header is {"alg":"HS256|HS384|HS512","typ":"JWT"}. The signature covers
// the first two segments exactly as transmitted. Validation short-circuits on
// the first failing check; see Validator.Validate for the order.
package token

// Package shared holds code used across packages that belongs to no single
// domain. Its testutil subpackage provides the fake clock and log capture
// used by the licensing and queue tests; it must not import domain packages.
package shared

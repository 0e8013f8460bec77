// Package issuer is the server side of license activation: a registry of
// issued licenses, the activation, validation and deactivation rules the
// desktop client depends on, and the HTTP routes that expose them. It backs
// the development issuing server and the client's end-to-end tests.
package issuer

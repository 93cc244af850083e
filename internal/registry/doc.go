// Package registry maps numeric status and message-type codes to names.
//
// # Resources
//
// A registry is built once at startup from one or more TOML resources of
// `NAME = code` entries. Top-level keys are status codes; keys in the `type`
// table are message-type dispatch codes:
//
//	ALREADY_WRITTEN = 1
//	RATE_LIMITED = 40
//
//	[type]
//	ORDER = 10
//	INVOICE = 11
//
// Resources merge additively. Redefining a name with a different code, or a
// code with a different name, is a packaging defect and fails construction.
//
// # Lookups
//
// Lookups never fail: a code with no name renders as its decimal string.
// The built Registry is immutable and safe for concurrent use; pass it to the
// components that need it rather than holding it in a package variable.
package registry

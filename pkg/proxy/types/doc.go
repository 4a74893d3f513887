// Package types defines the OpenAI-compatible error response types used by
// the proxy middleware.
//
// # Core Types
//
//   - ErrorResponse: OpenAI-compatible error response
//   - ErrorDetail: Error details with type, message, param, code
//
// Constructors such as NewInvalidRequestError and NewServerError fill in the
// error type and code, and ErrorDetail.HTTPStatusCode maps an error type to
// its HTTP status. The package holds no request or response body types and
// no validation logic; the dialect request and response shapes live in the
// pkg/dialect packages.
//
// # JSON Serialization
//
// All types use standard encoding/json for serialization with appropriate struct tags.
// Field names follow OpenAI's snake_case convention for JSON compatibility.
package types

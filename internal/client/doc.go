// Package client is a thin gRPC client for the groupware server.
//
// GRPCClient injects the access token into every call, selects the JSON
// codec and maps transport failures to sentinel errors:
//
//   - ErrUnauthorized: missing, invalid or expired token.
//   - ErrUnavailable: the server could not be reached in time.
//
// Calls answered by a result stream are drained into a slice.
package client

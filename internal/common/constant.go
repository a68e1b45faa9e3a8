package common

// AccessTokenHeaderName is the gRPC metadata key carrying the caller's
// identity token on inbound requests.
const AccessTokenHeaderName = "access_token"

// RequestIDHeaderName is the gRPC metadata key used to correlate log lines of
// one request.
const RequestIDHeaderName = "x-request-id"

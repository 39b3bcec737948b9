package apperr

// Client facing error codes.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeNotFound         = "RESOURCE_NOT_FOUND"
	CodeConflict         = "RESOURCE_CONFLICT"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeAccessDenied     = "ACCESS_DENIED"
	CodeMalformedRequest = "MALFORMED_REQUEST"
	CodeTooManyRequests  = "TOO_MANY_REQUESTS"
	CodeInternal         = "INTERNAL_ERROR"
)

var messages = map[string]string{
	CodeValidationFailed: "The request contains invalid fields.",
	CodeNotFound:         "The requested resource does not exist.",
	CodeConflict:         "The request conflicts with the current state of the resource.",
	CodeUnauthenticated:  "Authentication is required.",
	CodeAccessDenied:     "You are not allowed to perform this operation.",
	CodeMalformedRequest: "The request body could not be parsed.",
	CodeTooManyRequests:  "Too many requests, retry later.",
	CodeInternal:         "An unexpected error occurred.",
}

// Message returns the catalogued message for code, or the internal error message
// for unknown codes.
func Message(code string) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return messages[CodeInternal]
}

// RegisterMessages adds catalogue entries; packages call it from init.
func RegisterMessages(m map[string]string) {
	for code, msg := range m {
		messages[code] = msg
	}
}

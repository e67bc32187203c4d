package httpx

import "net/http"

// Shorthand problem responses used by the domain handlers. Handlers map their
// own sentinel errors onto these; httpx stays ignorant of domain packages.

// BadRequest reports a malformed or invalid request.
func BadRequest(w http.ResponseWriter, detail string) {
	Problem(w, http.StatusBadRequest, "Bad Request", detail)
}

// Unauthorized reports a missing or unusable identity.
func Unauthorized(w http.ResponseWriter, detail string) {
	Problem(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// NotFound reports a missing resource.
func NotFound(w http.ResponseWriter, detail string) {
	Problem(w, http.StatusNotFound, "Not Found", detail)
}

// Conflict reports a business-rule rejection on otherwise valid input.
func Conflict(w http.ResponseWriter, detail string) {
	Problem(w, http.StatusConflict, "Conflict", detail)
}

// UnprocessableEntity reports input that parses but fails validation.
func UnprocessableEntity(w http.ResponseWriter, detail string) {
	Problem(w, http.StatusUnprocessableEntity, "Validation Failed", detail)
}

// Internal reports an infrastructure failure without leaking detail.
func Internal(w http.ResponseWriter) {
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

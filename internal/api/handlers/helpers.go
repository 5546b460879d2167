package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
)

// errExtraJSON is returned by decodeStrict when the body holds more than one value.
var errExtraJSON = errors.New("body must contain only one JSON object")

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode failed: method=%s path=%s err=%v", r.Method, r.URL.Path, err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

// allowMethod writes a 405 with an Allow header unless r uses method.
func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// internalError logs err with the failing step and hides it from the client.
func internalError(w http.ResponseWriter, r *http.Request, step string, err error) {
	log.Printf("%s failed: path=%s err=%v", step, r.URL.Path, err)
	writeError(w, r, http.StatusInternalServerError, "internal server error")
}

// decodeStrict decodes exactly one JSON object from the request body,
// rejecting unknown fields.
func decodeStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	defer r.Body.Close()
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errExtraJSON
	}
	return nil
}

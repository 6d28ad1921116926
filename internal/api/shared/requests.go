package shared

import (
	"encoding/json"
	"net/http"
)

// MaxRequestBodyBytes caps inbound request bodies. Payloads travel as
// base64 text and stay well under this; anything larger is abuse, not data.
const MaxRequestBodyBytes = 1 << 20

// DecodeJSON decodes the request body into the given struct, enforcing the
// body size cap.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

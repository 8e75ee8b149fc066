package httputil

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// ContentTypeMsgpack is negotiated through the Accept header.
const ContentTypeMsgpack = "application/msgpack"

// WantsMsgpack reports whether the client asked for a msgpack body.
func WantsMsgpack(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, _ := strings.Cut(part, ";")
		if strings.EqualFold(strings.TrimSpace(mt), ContentTypeMsgpack) {
			return true
		}
	}
	return false
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Write encodes v as msgpack when the client accepts it and as JSON
// otherwise. Struct fields are named by their json tags in both encodings.
func Write(w http.ResponseWriter, r *http.Request, status int, v any) {
	if !WantsMsgpack(r) {
		WriteJSON(w, status, v)
		return
	}
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)

	w.Header().Set("Content-Type", ContentTypeMsgpack)
	w.WriteHeader(status)
	enc.Reset(w)
	enc.SetCustomStructTag("json")
	enc.Encode(v)
}

// WriteError writes {"error": msg} with the given status.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

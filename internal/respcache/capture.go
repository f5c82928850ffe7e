package respcache

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	stash "github.com/eugener/stash/internal"
)

// Pre-allocated header value slices; see server.jsonCT.
var (
	jsonCT = []string{"application/json"}
	htmlCT = []string{"text/html; charset=utf-8"}
)

// encodeValue turns a handler value into its stored string form. Strings and
// byte slices pass through unchanged; anything else is JSON-encoded.
func encodeValue(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case json.RawMessage:
		return string(val), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	return string(data), nil
}

// checkValue reports whether val can be emitted as a response of type t.
func checkValue(t stash.ResponseType, val string) error {
	if t == stash.ResponseJSON && !gjson.Valid(val) {
		return stash.ErrInvalidJSON
	}
	return nil
}

// WriteValue writes val as a complete 200 response of type t. JSON values
// must be well-formed documents and are emitted compacted, as decoding and
// re-encoding them would. HTML values are written verbatim.
func WriteValue(w http.ResponseWriter, t stash.ResponseType, val string) error {
	if err := checkValue(t, val); err != nil {
		return err
	}
	body := []byte(val)
	if t == stash.ResponseJSON {
		w.Header()["Content-Type"] = jsonCT
		body = pretty.Ugly(body)
	} else {
		w.Header()["Content-Type"] = htmlCT
	}
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(body)
	return err
}

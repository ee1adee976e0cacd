package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
)

const maxBodyBytes = 1 << 20

// decodeFields reads the optimization form from either a JSON object of
// scalars or an urlencoded form. Values keep their textual form so that
// model.BuildRequest sees exactly what the user typed; JSON null means the
// field was not supplied.
func decodeFields(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		out := make(map[string]string, len(r.PostForm))
		for k, vs := range r.PostForm {
			if len(vs) > 0 {
				out[k] = vs[0]
			}
		}
		return out, nil
	}

	return scalarFields(io.LimitReader(r.Body, maxBodyBytes))
}

// scalarFields decodes a JSON object of scalars into form fields. Numbers
// keep their literal text.
func scalarFields(rd io.Reader) (map[string]string, error) {
	dec := json.NewDecoder(rd)
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case bool:
			out[k] = strconv.FormatBool(t)
		default:
			return nil, fmt.Errorf("field %s: expected a string, number or boolean", k)
		}
	}
	return out, nil
}

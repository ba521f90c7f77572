package keyrotation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			// corpo vazio: trata como campos ausentes
			return nil
		}
		return err
	}
	return nil
}

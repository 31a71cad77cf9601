//go:build nojsonsimd

package main

import stdjson "encoding/json"

// encoding/json fallback with the same call surface as the sonic build, so
// the API and feed code never care which codec is compiled in.
func fastJSONMarshal(v interface{}) ([]byte, error) {
	return stdjson.Marshal(v)
}

func fastJSONUnmarshal(data []byte, v interface{}) error {
	return stdjson.Unmarshal(data, v)
}

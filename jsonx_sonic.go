//go:build !nojsonsimd

// JSON codec for the dashboard API and the pool event feed. Sonic is the
// default; build with -tags nojsonsimd on platforms it does not support.
package main

import "github.com/bytedance/sonic"

var fastJSON = sonic.ConfigDefault

func fastJSONMarshal(v interface{}) ([]byte, error) {
	return fastJSON.Marshal(v)
}

func fastJSONUnmarshal(data []byte, v interface{}) error {
	return fastJSON.Unmarshal(data, v)
}

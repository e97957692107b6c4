// Package decode turns buffered response bytes into values according to a
// decode mode. It never decompresses; content codings are removed before
// bytes get here.
package decode

import (
	"bytes"
	"io"
	"mime"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/net/html/charset"

	"github.com/unkn0wn-root/hydro/internal/errdef"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Body decodes data for mode. mode must already be resolved; Auto and Stream
// return data unchanged.
func Body(mode Mode, data []byte, contentType string) (any, error) {
	switch mode {
	case Text:
		return String(data, contentType)
	case JSON:
		var v any
		if err := Into(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return data, nil
	}
}

// String decodes data as text, transcoding from a declared non-UTF-8 charset.
func String(data []byte, contentType string) (string, error) {
	label := charsetLabel(contentType)
	if label == "" || isUTF8(label) {
		return string(data), nil
	}
	r, err := charset.NewReaderLabel(label, bytes.NewReader(data))
	if err != nil {
		// unknown labels fall back to the raw bytes
		return string(data), nil
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", errdef.Wrap(errdef.CodeDecode, err, "transcode %s body", label)
	}
	return string(out), nil
}

// Into parses JSON data into v.
func Into(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errdef.Wrap(errdef.CodeDecode, err, "parse json body")
	}
	return nil
}

// Marshal encodes v as JSON with the same codec Into uses.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeBody, err, "encode json body")
	}
	return data, nil
}

func charsetLabel(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}

func isUTF8(label string) bool {
	switch strings.ToLower(label) {
	case "utf-8", "utf8", "us-ascii", "ascii":
		return true
	}
	return false
}

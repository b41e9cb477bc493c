package gdrive

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
)

// Boundary separates the metadata and media parts of a multipart upload.
const Boundary = "-------314159265358979323846"

// fileMetadata is the JSON part of a multipart upload.
type fileMetadata struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType"`
	Parents  []string `json:"parents,omitempty"`
}

// multipartContentType is the request Content-Type for buildMultipartBody.
func multipartContentType() string {
	return "multipart/related; boundary=" + Boundary
}

// buildMultipartBody renders a multipart/related body: a JSON metadata
// part followed by the media part, base64 encoded.
//
//	\r\n--B\r\nContent-Type: application/json\r\n\r\n{meta}
//	\r\n--B\r\nContent-Type: {mime}\r\nContent-Transfer-Encoding: base64\r\n\r\n{data}
//	\r\n--B--
func buildMultipartBody(meta fileMetadata, data []byte) ([]byte, error) {
	metaJSON, err := marshalMetadata(meta)
	if err != nil {
		return nil, err
	}
	delimiter := "\r\n--" + Boundary + "\r\n"
	closeDelimiter := "\r\n--" + Boundary + "--"

	var buf bytes.Buffer
	buf.Grow(len(metaJSON) + base64.StdEncoding.EncodedLen(len(data)) + 256)
	buf.WriteString(delimiter)
	buf.WriteString("Content-Type: application/json\r\n\r\n")
	buf.Write(metaJSON)
	buf.WriteString(delimiter)
	buf.WriteString("Content-Type: " + meta.MimeType + "\r\n")
	buf.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	enc := base64.NewEncoder(base64.StdEncoding, &buf)
	if _, err := enc.Write(data); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteString(closeDelimiter)
	return buf.Bytes(), nil
}

// marshalMetadata encodes without HTML escaping so names such as
// "Sarah & James" reach Drive unchanged.
func marshalMetadata(meta fileMetadata) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(meta); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

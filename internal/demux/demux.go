// Package demux splits a buffered multipart/form-data response into its
// JSON directive part and zero or more MP3 audio parts.
package demux

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
)

// Kind identifies the payload carried by a Part.
type Kind int

const (
	// JSON is the directive envelope part.
	JSON Kind = iota
	// MP3 is an audio/mpeg part.
	MP3
)

// Part is one payload extracted from the response.
type Part struct {
	Kind Kind
	Data []byte
}

const (
	jsonMarker    = "application/json"
	mp3Marker     = "audio/mpeg"
	jsonHeaderSkip = 20 // bytes from the marker to the start of payload, observed server layout
	mp3HeaderSkip  = 14
)

// Split returns one Part per recognized Content-Type found in body, in
// order. boundary is the multipart boundary token extracted from the first
// line of body (without the leading "--").
//
// It first tries a strict parse using the real multipart/form-data
// grammar (proper CRLF-CRLF header termination); if that fails to find any
// recognized part — servers in the wild have been observed to emit a layout
// the standard parser won't accept — it falls back to the fixed-offset scan
// that matches the originally observed server layout exactly.
func Split(body []byte, boundary string) ([]Part, error) {
	if parts, err := splitStrict(body, boundary); err == nil && len(parts) > 0 {
		return parts, nil
	}
	return splitFixedOffset(body, boundary)
}

// splitStrict parses body as a standard multipart/form-data message and
// classifies each part by its Content-Type header.
func splitStrict(body []byte, boundary string) ([]Part, error) {
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	var parts []Part
	for {
		p, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("demux: strict parse: %w", err)
		}
		ct, _, err := mime.ParseMediaType(p.Header.Get("Content-Type"))
		if err != nil {
			continue
		}
		data, err := io.ReadAll(p)
		if err != nil {
			return nil, fmt.Errorf("demux: strict parse: reading part: %w", err)
		}
		switch ct {
		case jsonMarker:
			parts = append(parts, Part{Kind: JSON, Data: data})
		case mp3Marker:
			parts = append(parts, Part{Kind: MP3, Data: data})
		}
	}
	return parts, nil
}

// splitFixedOffset reproduces the original server-layout-specific scan:
// locate a marker, skip the fixed offset to the payload, find the next
// boundary occurrence, strip the trailing CRLF. Both parts are optional;
// order is not assumed.
func splitFixedOffset(body []byte, boundary string) ([]Part, error) {
	if len(boundary) == 0 {
		return nil, fmt.Errorf("demux: empty boundary")
	}
	bondBytes := []byte("--" + boundary)

	var parts []Part
	cursor := 0
	for {
		jsonIdx := indexFrom(body, []byte(jsonMarker), cursor)
		mp3Idx := indexFrom(body, []byte(mp3Marker), cursor)

		var (
			kind      Kind
			markerPos int
			skip      int
		)
		switch {
		case jsonIdx < 0 && mp3Idx < 0:
			return parts, nil
		case jsonIdx >= 0 && (mp3Idx < 0 || jsonIdx < mp3Idx):
			kind, markerPos, skip = JSON, jsonIdx, jsonHeaderSkip
		default:
			kind, markerPos, skip = MP3, mp3Idx, mp3HeaderSkip
		}

		payloadStart := markerPos + skip
		if payloadStart > len(body) {
			return parts, fmt.Errorf("demux: truncated part after marker at %d", markerPos)
		}

		end := indexFrom(body, bondBytes, payloadStart)
		if end < 0 {
			return parts, fmt.Errorf("demux: missing closing boundary after marker at %d", markerPos)
		}

		payloadEnd := end - 2 // strip trailing CRLF
		if payloadEnd < payloadStart {
			payloadEnd = payloadStart
		}

		payload := make([]byte, payloadEnd-payloadStart)
		copy(payload, body[payloadStart:payloadEnd])
		parts = append(parts, Part{Kind: kind, Data: payload})

		cursor = end + len(bondBytes)
	}
}

// ExtractBoundary reads the boundary token from the first line of a
// multipart body, which appears as a standalone "--<boundary>" token.
func ExtractBoundary(body []byte) (string, error) {
	line := body
	if idx := bytes.IndexByte(body, '\n'); idx >= 0 {
		line = body[:idx]
	}
	line = bytes.TrimRight(line, "\r\n")
	line = bytes.TrimSpace(line)
	if len(line) < 3 || line[0] != '-' || line[1] != '-' {
		return "", fmt.Errorf("demux: first line is not a multipart boundary marker")
	}
	return string(line[2:]), nil
}

func indexFrom(haystack, needle []byte, from int) int {
	if from >= len(haystack) {
		return -1
	}
	rel := bytes.Index(haystack[from:], needle)
	if rel < 0 {
		return -1
	}
	return from + rel
}

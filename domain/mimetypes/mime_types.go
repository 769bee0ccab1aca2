package mimetypes

import (
	"encoding/base64"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type MIME string

const (
	Unknown   MIME = "unknown"
	TextPlain MIME = "text/plain"

	ApplicationPDF MIME = "application/pdf"
	ApplicationZip MIME = "application/zip"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
	ImageWebP MIME = "image/webp"
)

const dataURIPrefix = "data:"

// sniffLimit bounds how much of a decoded attachment is handed to the
// detector. mimetype only reads header bytes anyway.
const sniffLimit = 3072

func Matches(detected string, expected MIME) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	return expected, mt == string(expected)
}

// IsImage reports whether detected names one of the image types the
// relay accepts for image messages.
func IsImage(detected string) bool {
	for _, want := range []MIME{ImagePNG, ImageJPEG, ImageGIF, ImageWebP} {
		if _, ok := Matches(detected, want); ok {
			return true
		}
	}
	return false
}

// DetectDataURI decodes the base64 body of a data URI and sniffs the
// actual content type, ignoring whatever type the URI declares. A
// malformed URI yields Unknown and false.
func DetectDataURI(uri string) (string, bool) {
	if !strings.HasPrefix(uri, dataURIPrefix) {
		return string(Unknown), false
	}
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return string(Unknown), false
	}
	meta, body := uri[len(dataURIPrefix):comma], uri[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return string(Unknown), false
	}
	if len(body) > sniffLimit {
		// Keep the length a multiple of 4 so decoding stays valid.
		body = body[:sniffLimit-sniffLimit%4]
	}
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return string(Unknown), false
	}
	return mimetype.Detect(raw).String(), true
}

package facestore

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName validates an identity name and returns its canonical form.
// Names are NFC-normalized so that "Jiří" typed on different keyboards maps
// to the same file.
func NormalizeName(name string) (string, error) {
	name = canonicalName(name)
	if name == "" {
		return "", &ValidationError{Field: "name", Reason: "please enter a name"}
	}
	if strings.ContainsAny(name, `/\`) {
		return "", &ValidationError{Field: "name", Reason: "must not contain path separators"}
	}
	if strings.HasPrefix(name, ".") {
		return "", &ValidationError{Field: "name", Reason: "must not start with a dot"}
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return "", &ValidationError{Field: "name", Reason: "must not contain control characters"}
	}
	return name, nil
}

// stemName derives the identity name from an image file name.
func stemName(fileName, ext string) string {
	return norm.NFC.String(strings.TrimSuffix(fileName, ext))
}

func canonicalName(name string) string {
	return strings.TrimSpace(norm.NFC.String(name))
}

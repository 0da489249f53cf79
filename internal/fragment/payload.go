package fragment

import (
	"encoding/base64"
	"regexp"
	"strings"
)

var (
	dirtyRefRE = regexp.MustCompile(`Ref#(.+)`)
	clearRefRE = regexp.MustCompile(`[^A-Za-z0-9:#]`)
)

// ClearPayload extracts the human-readable purchase reference from the raw
// base64 transaction payload. Fragment embeds a "Ref#..." token surrounded by
// binary cell data; everything outside [A-Za-z0-9:#] is stripped.
func ClearPayload(raw string) (string, error) {
	if padding := len(raw) % 4; padding != 0 {
		raw += strings.Repeat("=", 4-padding)
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", err
	}
	match := dirtyRefRE.Find(decoded)
	if match == nil {
		return "", &ParsingError{Method: "clearPayload"}
	}
	return clearRefRE.ReplaceAllString(string(match), ""), nil
}

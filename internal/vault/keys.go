package vault

import (
	"fmt"
	"strings"
)

// objectKey joins a room and upload id into "<room>/<tus>". Both parts are
// validated so neither can escape its prefix.
func objectKey(roomID, tusID string) (string, error) {
	if err := checkKeyPart(roomID); err != nil {
		return "", fmt.Errorf("room id: %w", err)
	}
	if err := checkKeyPart(tusID); err != nil {
		return "", fmt.Errorf("upload id: %w", err)
	}
	return roomID + "/" + tusID, nil
}

func roomPrefix(roomID string) (string, error) {
	if err := checkKeyPart(roomID); err != nil {
		return "", fmt.Errorf("room id: %w", err)
	}
	return roomID + "/", nil
}

func checkKeyPart(s string) error {
	if s == "" {
		return fmt.Errorf("empty key component")
	}
	if s == "." || s == ".." || strings.ContainsAny(s, "/\\") {
		return fmt.Errorf("invalid key component %q", s)
	}
	return nil
}

// clampRange bounds an inclusive [start, end] window to an object of size
// bytes and returns the half-open slice bounds. An empty window yields lo == hi.
func clampRange(start, end, size int64) (lo, hi int64) {
	if start < 0 {
		start = 0
	}
	if start > size {
		start = size
	}
	if end >= size {
		end = size - 1
	}
	if end < start {
		return start, start
	}
	return start, end + 1
}

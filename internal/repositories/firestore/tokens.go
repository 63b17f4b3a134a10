package firestore

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Offset tokens page through result sets that are filtered or sorted in
// memory, where a Firestore cursor cannot resume the query.
func encodeOffsetToken(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte("o:" + strconv.Itoa(offset)))
}

// String cursors resume Firestore queries ordered by a single string field.
func encodeStringCursor(value string) string {
	return base64.RawURLEncoding.EncodeToString([]byte("s:" + value))
}

func decodeStringCursor(token string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	raw, ok := strings.CutPrefix(string(decoded), "s:")
	if !ok {
		return "", fmt.Errorf("malformed string cursor")
	}
	return raw, nil
}

func decodeOffsetToken(token string) (int, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, err
	}
	raw, ok := strings.CutPrefix(string(decoded), "o:")
	if !ok {
		return 0, fmt.Errorf("malformed offset token")
	}
	offset, err := strconv.Atoi(raw)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("malformed offset token")
	}
	return offset, nil
}

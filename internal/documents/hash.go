package documents

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashContent returns the change-detection digest of content.
// It is an equality oracle only and is never decoded.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Classify compares new content with the stored record. A nil record is new.
// A registered record that was never ingested has an empty hash and so
// classifies as changed for any content, including the empty string.
func Classify(existing *WatchedDocument, newContent string) Change {
	if existing == nil {
		return ChangeNew
	}
	if existing.ContentHash == HashContent(newContent) {
		return ChangeUnchanged
	}
	return ChangeChanged
}

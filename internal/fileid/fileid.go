// Package fileid derives deterministic document and chunk IDs from file content.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// HashPrefixLen is the number of hex characters of the content hash used in IDs.
const HashPrefixLen = 6

var unsafeRun = regexp.MustCompile(`[^A-Za-z0-9]+`)

// SanitizeCaseReference makes a case reference safe for use in IDs:
// "25/01178/REM" becomes "25_01178_REM".
func SanitizeCaseReference(caseReference string) string {
	return strings.Trim(unsafeRun.ReplaceAllString(caseReference, "_"), "_")
}

// HashBytes returns the lowercase hex SHA-256 of content.
func HashBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// HashFile streams the file at path through SHA-256.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DocumentID returns the ID for content with the given hash ingested under caseReference.
// Same case and content always yield the same ID; the file path plays no part.
func DocumentID(caseReference, contentHash string) string {
	return SanitizeCaseReference(caseReference) + "_" + hashPrefix(contentHash)
}

// ChunkID returns the ID of the chunk at chunkIndex whose text starts on page.
func ChunkID(caseReference, contentHash string, page, chunkIndex int) string {
	return fmt.Sprintf("%s_p%03d_c%03d", DocumentID(caseReference, contentHash), page, chunkIndex)
}

func hashPrefix(contentHash string) string {
	h := strings.ToLower(contentHash)
	if len(h) > HashPrefixLen {
		return h[:HashPrefixLen]
	}
	return h
}

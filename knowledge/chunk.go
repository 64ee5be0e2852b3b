// Package knowledge implements the retrieval-augmented knowledge pipeline:
// corpus chunking, content-addressed chunk keys, index builds and top-k
// retrieval.
package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Record delimiters in a knowledge corpus.
const (
	StartTag = "<document>"
	EndTag   = "</document>"
)

// Chunk is one delimited record and its content key.
type Chunk struct {
	Key     string
	Content string
}

// KeyOf returns the lowercase hex SHA-256 of content's UTF-8 bytes.
func KeyOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Ingest splits corpus into chunks in order of appearance. Each chunk runs
// from a start tag through the first end tag after it, markers included.
// Text outside records and an unterminated trailing record are dropped.
func Ingest(corpus string) []Chunk {
	var chunks []Chunk
	rest := corpus
	for {
		start := strings.Index(rest, StartTag)
		if start < 0 {
			return chunks
		}
		end := strings.Index(rest[start+len(StartTag):], EndTag)
		if end < 0 {
			return chunks
		}
		stop := start + len(StartTag) + end + len(EndTag)
		content := rest[start:stop]
		chunks = append(chunks, Chunk{Key: KeyOf(content), Content: content})
		rest = rest[stop:]
	}
}

// Package ingest loads the policy corpus and the approved template
// catalog from disk and prepares them for indexing.
package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/space-cap/alimgen/model"
	"github.com/space-cap/alimgen/retrieval"
)

// Chunking parameters for policy documents.
const (
	ChunkSize    = 1000
	ChunkOverlap = 200
)

// policyTypeByFile maps policy source filenames onto policy categories.
// Unlisted files fall back to "general".
var policyTypeByFile = map[string]model.PolicyType{
	"audit.md":          model.PolicyReviewGuidelines,
	"content-guide.md":  model.PolicyContentGuidelines,
	"white-list.md":     model.PolicyAllowedTemplates,
	"black-list.md":     model.PolicyProhibitedTemplates,
	"operations.md":     model.PolicyOperationalProcedures,
	"image.md":          model.PolicyImageGuidelines,
	"infotalk.md":       model.PolicyInfotalkGuidelines,
	"publictemplate.md": model.PolicyPublicTemplateGuide,
}

// PolicyTypeForFile reports the policy category of a source filename.
func PolicyTypeForFile(filename string) model.PolicyType {
	if pt, ok := policyTypeByFile[filename]; ok {
		return pt
	}
	return model.PolicyGeneral
}

// LoadPolicies reads every .md file under dir, chunks it, and returns the
// chunks as retrieval documents (doc_type "policy"). Files are processed
// in name order so document IDs are stable across runs.
func LoadPolicies(dir string, logger *slog.Logger) ([]retrieval.Document, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy directory %q: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".md") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var docs []retrieval.Document
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Error("Failed to read policy file", "file", name, "error", err)
			continue
		}

		policyType := PolicyTypeForFile(name)
		chunks := SplitText(string(content), ChunkSize, ChunkOverlap)
		for i, chunk := range chunks {
			docs = append(docs, retrieval.Document{
				ID:      fmt.Sprintf("policy_%s_%d", name, i),
				DocType: "policy",
				Content: chunk,
				Metadata: map[string]any{
					"source":      name,
					"policy_type": string(policyType),
					"chunk_id":    i,
					"doc_type":    "policy",
				},
			})
		}
		logger.Info("Loaded policy document", "file", name, "chunks", len(chunks))
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("no policy documents found in %q", dir)
	}
	return docs, nil
}

// separators is the split cascade: paragraph breaks first, then lines,
// then words, then raw runes.
var separators = []string{"\n\n", "\n", " ", ""}

// SplitText splits text into chunks of at most chunkSize runes with
// roughly overlap runes carried between consecutive chunks. Splits prefer
// paragraph boundaries and degrade to finer separators for oversized
// pieces.
func SplitText(text string, chunkSize, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if runeLen(text) <= chunkSize {
		return []string{text}
	}

	pieces := splitRecursive(text, chunkSize, 0)
	return mergePieces(pieces, chunkSize, overlap)
}

// splitRecursive breaks text into pieces no longer than chunkSize using
// progressively finer separators.
func splitRecursive(text string, chunkSize, sepIndex int) []string {
	if runeLen(text) <= chunkSize {
		return []string{text}
	}
	if sepIndex >= len(separators) {
		return splitRunes(text, chunkSize)
	}

	sep := separators[sepIndex]
	if sep == "" {
		return splitRunes(text, chunkSize)
	}

	var pieces []string
	for _, part := range strings.Split(text, sep) {
		if part == "" {
			continue
		}
		if runeLen(part) > chunkSize {
			pieces = append(pieces, splitRecursive(part, chunkSize, sepIndex+1)...)
		} else {
			pieces = append(pieces, part)
		}
	}
	return pieces
}

// mergePieces packs pieces into chunks up to chunkSize, carrying the tail
// of each chunk into the next for continuity.
func mergePieces(pieces []string, chunkSize, overlap int) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		chunk := strings.TrimSpace(current.String())
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
		if overlap > 0 && len(chunks) > 0 {
			current.WriteString(tailRunes(chunks[len(chunks)-1], overlap))
			current.WriteString("\n")
		}
	}

	for _, piece := range pieces {
		if current.Len() > 0 && runeLen(current.String())+runeLen(piece)+1 > chunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(piece)
	}
	if strings.TrimSpace(current.String()) != "" {
		chunk := strings.TrimSpace(current.String())
		chunks = append(chunks, chunk)
	}
	return chunks
}

func splitRunes(text string, chunkSize int) []string {
	runes := []rune(text)
	var parts []string
	for start := 0; start < len(runes); start += chunkSize {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}

func runeLen(s string) int {
	return len([]rune(s))
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

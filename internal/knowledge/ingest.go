package knowledge

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
	"github.com/google/uuid"

	"github.com/sgx-labs/tripartite/internal/types"
)

// docMeta holds the frontmatter fields a document may declare, mirroring
// the note metadata shape used by the vault indexer this package is
// adapted from.
type docMeta struct {
	Title      string `yaml:"title"`
	DocType    string `yaml:"doc_type"`
	Language   string `yaml:"language"`
	Domain     string `yaml:"domain"`
}

// Ingester chunks and embeds documents before handing them to a Store. It
// is the seam between the embedding-model-loader (outside core scope) and
// the durable chunk index.
type Ingester struct {
	store    Store
	embedder EmbeddingProvider
	chunkLen int // target chunk size in characters
}

// NewIngester builds an Ingester. chunkLen <= 0 selects a 2000-character
// default, tuned to stay well under typical context windows while keeping
// chunk counts manageable for small vaults.
func NewIngester(store Store, embedder EmbeddingProvider, chunkLen int) *Ingester {
	if chunkLen <= 0 {
		chunkLen = 2000
	}
	return &Ingester{store: store, embedder: embedder, chunkLen: chunkLen}
}

// Ingest parses frontmatter (if any), splits the body into paragraph-
// aligned chunks of roughly i.chunkLen characters, embeds each, and
// upserts them into the store. sourcePath is used both as display metadata
// and as the chunk id prefix, so re-ingesting the same path updates rather
// than duplicates its chunks.
func (i *Ingester) Ingest(ctx context.Context, sourcePath, content string, modified time.Time) error {
	var meta docMeta
	body, err := frontmatter.Parse(strings.NewReader(content), &meta)
	if err != nil {
		body = []byte(content)
	}

	docType := inferDocType(sourcePath, meta.DocType)
	language := meta.Language
	if language == "" {
		language = inferLanguage(sourcePath)
	}

	chunks := splitIntoChunks(string(body), i.chunkLen)
	for idx, text := range chunks {
		if strings.TrimSpace(text) == "" {
			continue
		}
		embedding, err := i.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("knowledge: embed chunk %d of %s: %w", idx, sourcePath, err)
		}
		chunk := types.Chunk{
			ID:              chunkID(sourcePath, idx),
			Content:         text,
			SourcePath:      sourcePath,
			DocType:         docType,
			Language:        language,
			HasRecency:      !modified.IsZero(),
			DaysSinceUpdate: time.Since(modified).Hours() / 24,
		}
		if err := i.store.AddChunk(ctx, chunk, embedding); err != nil {
			return fmt.Errorf("knowledge: add chunk %d of %s: %w", idx, sourcePath, err)
		}
	}
	return nil
}

// chunkID derives a stable id from the source path and chunk index so
// re-ingestion upserts rather than appends. uuid.NewSHA1 gives a
// deterministic, collision-resistant id without a database round trip.
func chunkID(sourcePath string, idx int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", sourcePath, idx))).String()
}

func inferDocType(sourcePath, declared string) types.DocType {
	switch types.DocType(declared) {
	case types.DocCode, types.DocDocs, types.DocNotes, types.DocOther:
		return types.DocType(declared)
	}
	switch ext := filepath.Ext(sourcePath); ext {
	case ".go", ".py", ".js", ".ts", ".rs", ".java", ".c", ".cpp", ".rb":
		return types.DocCode
	case ".md", ".mdx", ".rst", ".adoc":
		return types.DocDocs
	case ".txt", ".note":
		return types.DocNotes
	default:
		return types.DocOther
	}
}

func inferLanguage(sourcePath string) string {
	switch filepath.Ext(sourcePath) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js":
		return "javascript"
	case ".ts":
		return "typescript"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".rb":
		return "ruby"
	default:
		return ""
	}
}

// splitIntoChunks breaks text into chunkLen-ish windows on paragraph
// boundaries where possible, falling back to a hard cut when a single
// paragraph exceeds chunkLen.
func splitIntoChunks(text string, chunkLen int) []string {
	paras := strings.Split(text, "\n\n")
	var chunks []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}

	for _, p := range paras {
		if cur.Len()+len(p) > chunkLen && cur.Len() > 0 {
			flush()
		}
		if len(p) > chunkLen {
			flush()
			for len(p) > chunkLen {
				chunks = append(chunks, strings.TrimSpace(p[:chunkLen]))
				p = p[chunkLen:]
			}
			cur.WriteString(p)
			continue
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	flush()

	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

package persistence

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/dfryer1193/publog/blog/domain"
	"gopkg.in/yaml.v3"
)

// FileExtension is the extension of every language file.
const FileExtension = ".phk"

var frontMatterDelimiter = []byte("---")

var errMissingFrontMatter = errors.New("missing front matter")

// decodeDocument splits a .phk file into its YAML front matter and markdown
// body.
func decodeDocument(data []byte) (domain.Metadata, string, error) {
	var meta domain.Metadata

	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if !bytes.HasPrefix(trimmed, frontMatterDelimiter) {
		return meta, "", errMissingFrontMatter
	}

	rest := trimmed[len(frontMatterDelimiter):]
	rest = bytes.TrimLeft(rest, " \t")
	rest = bytes.TrimPrefix(rest, []byte("\r"))
	rest = bytes.TrimPrefix(rest, []byte("\n"))

	end := bytes.Index(rest, []byte("\n---"))
	var header, body []byte
	switch {
	case end >= 0:
		header = rest[:end]
		body = rest[end+len("\n---"):]
		if nl := bytes.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		} else {
			body = nil
		}
	case bytes.HasPrefix(rest, frontMatterDelimiter):
		// empty front matter
		body = rest[len(frontMatterDelimiter):]
		body = bytes.TrimPrefix(bytes.TrimPrefix(body, []byte("\r")), []byte("\n"))
	default:
		return meta, "", fmt.Errorf("unterminated front matter")
	}

	if err := yaml.Unmarshal(header, &meta); err != nil {
		return meta, "", fmt.Errorf("failed to parse front matter: %w", err)
	}

	return meta, string(body), nil
}

// encodeDocument renders metadata and body back into the .phk format.
func encodeDocument(meta domain.Metadata, body string) ([]byte, error) {
	header, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(frontMatterDelimiter)
	buf.WriteByte('\n')
	buf.Write(header)
	buf.Write(frontMatterDelimiter)
	buf.WriteByte('\n')
	buf.WriteString(strings.TrimLeft(body, "\n"))
	return buf.Bytes(), nil
}

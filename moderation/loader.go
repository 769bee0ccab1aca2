package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"strings"

	"chat-relay/errors"
)

//go:embed blocklists/*
var blocklistFolder embed.FS

// BlocklistData carries the parsed dictionaries plus the metadata the
// startup logs report.
type BlocklistData struct {
	Words     []string
	Languages []string
}

// BlocklistLoader reads blocklisted words from embedded dictionary
// files, one file per language.
type BlocklistLoader struct {
	fs embed.FS
}

func NewBlocklistLoader(f embed.FS) *BlocklistLoader {
	return &BlocklistLoader{fs: f}
}

// LoadEmbedded parses the dictionaries shipped with the binary.
func LoadEmbedded() (*BlocklistData, error) {
	return NewBlocklistLoader(blocklistFolder).LoadAll("blocklists")
}

// LoadAll scans the directory for dictionary files and merges their
// contents into one deduplicated word list. The language label comes
// from the file name, "en.txt" counts as "en".
func (l *BlocklistLoader) LoadAll(path string) (*BlocklistData, error) {
	entries, err := fs.ReadDir(l.fs, path)
	if err != nil {
		return nil, err
	}

	var languages []string
	uniqueWords := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		lang := strings.TrimSuffix(entry.Name(), ".txt")
		languages = append(languages, lang)

		data, err := l.fs.ReadFile(path + "/" + entry.Name())
		if err != nil {
			return nil, err
		}

		// A scanner handles both \n and \r\n line endings
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				uniqueWords[line] = struct{}{}
			}
		}

		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(uniqueWords) == 0 {
		return nil, errors.ErrEmptyBlocklist
	}

	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}

	return &BlocklistData{
		Words:     words,
		Languages: languages,
	}, nil
}

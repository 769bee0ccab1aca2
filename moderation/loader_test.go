package moderation

import (
	"embed"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/errors"
)

//go:embed testdata
var loaderFixtures embed.FS

func TestBlocklistLoader_MergesAndDeduplicates(t *testing.T) {
	req := require.New(t)
	loader := NewBlocklistLoader(loaderFixtures)

	// When two dictionaries share a word
	data, err := loader.LoadAll("testdata/dicts")

	// Then the word appears once and both languages are reported
	req.NoError(err)
	req.ElementsMatch([]string{"badger", "snake", "mushroom"}, data.Words)
	req.Equal([]string{"aa", "bb"}, data.Languages)
}

func TestBlocklistLoader_RejectsBlankDictionaries(t *testing.T) {
	req := require.New(t)
	loader := NewBlocklistLoader(loaderFixtures)

	// When every line of every file is blank
	_, err := loader.LoadAll("testdata/blank")

	req.ErrorIs(err, errors.ErrEmptyBlocklist)
}

func TestLoadEmbedded_ShipsWorkingDictionaries(t *testing.T) {
	req := require.New(t)

	data, err := LoadEmbedded()

	req.NoError(err)
	req.NotEmpty(data.Words)
	req.Contains(data.Languages, "en")
	req.Contains(data.Languages, "fr")
}

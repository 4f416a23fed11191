package vocab

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleVocab = `{"word2idx": {"<pad>": 0, "<start>": 1, "<end>": 2, "<unk>": 3, "dog": 4, "runs": 5},
"idx2word": {"0": "<pad>", "1": "<start>", "2": "<end>", "3": "<unk>", "4": "dog", "5": "runs"}, "idx": 6}`

func writeVocab(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	v, err := Load(writeVocab(t, sampleVocab))
	require.NoError(t, err)

	assert.Equal(t, 6, v.Len())
	assert.Equal(t, 3, v.UnknownID())
	assert.Equal(t, 4, v.Lookup("dog"))
	assert.Equal(t, 3, v.Lookup("cat"), "unknown words map to <unk>")
	assert.True(t, v.Contains("runs"))
	assert.False(t, v.Contains("cat"))

	w, ok := v.Word(5)
	assert.True(t, ok)
	assert.Equal(t, "runs", w)
	_, ok = v.Word(99)
	assert.False(t, ok)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Load(writeVocab(t, "{not json"))
	assert.Error(t, err)

	_, err = Load(writeVocab(t, `{"word2idx": {"dog": 0}, "idx": 1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), UnkToken)

	_, err = Load(writeVocab(t, `{"word2idx": {"<unk>": 0}, "idx2word": {"zero": "<unk>"}, "idx": 1}`))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	v := New()
	for _, w := range []string{PadToken, StartToken, EndToken, UnkToken, "bird"} {
		v.Add(w)
	}
	assert.Equal(t, 4, v.Add("bird"), "re-adding returns the existing id")

	path := filepath.Join(t.TempDir(), "nested", "vocab.json")
	require.NoError(t, v.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, v.Len(), loaded.Len())
	assert.Equal(t, 4, loaded.Lookup("bird"))
	assert.Equal(t, 3, loaded.UnknownID())
	w, _ := loaded.Word(0)
	assert.Equal(t, PadToken, w)
}

func TestBuild(t *testing.T) {
	captions := [][]byte{
		[]byte("a dog runs"),
		[]byte("a cat sleeps"),
		[]byte("a dog sleeps"),
	}
	split := func(caption []byte) ([]string, error) {
		return strings.Fields(string(caption)), nil
	}

	v, err := Build(captions, 2, split)
	require.NoError(t, err)

	// specials + a, dog, sleeps
	assert.Equal(t, 7, v.Len())
	assert.Equal(t, 0, v.Lookup(PadToken))
	assert.Equal(t, 3, v.UnknownID())
	assert.Equal(t, 4, v.Lookup("a"))
	assert.Equal(t, 5, v.Lookup("dog"))
	assert.Equal(t, 6, v.Lookup("sleeps"))
	assert.False(t, v.Contains("runs"))
	assert.False(t, v.Contains("cat"))
}

package metainfo_test

import (
	"crypto/sha1"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitforge/gossamer/pkg/metainfo"
)

func TestOpenMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.torrent")

	m, err := metainfo.Open(path)
	require.NoError(t, err)

	assert.EqualValues(t, metainfo.DefaultPieceLength, m.PieceLength())
	assert.Empty(t, m.Files())
}

func TestInfoHashStableAcrossWriteOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.torrent")

	src := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello world"), 0644))

	m, err := metainfo.Open(path)
	require.NoError(t, err)
	require.NoError(t, m.AddFile(src))
	require.NoError(t, m.Write())

	before, err := m.InfoHash()
	require.NoError(t, err)

	reopened, err := metainfo.Open(path)
	require.NoError(t, err)

	after, err := reopened.InfoHash()
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestAddFileThenRemoveFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.torrent")
	src := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0644))

	m, err := metainfo.Open(path)
	require.NoError(t, err)
	require.NoError(t, m.AddFile(src))
	require.NoError(t, m.RemoveFile("a.txt"))

	assert.Empty(t, m.Files())
	assert.Empty(t, m.Pieces())
}

func TestAddFilePieceCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.torrent")
	src := filepath.Join(dir, "a.txt")

	data := make([]byte, 50000)
	require.NoError(t, os.WriteFile(src, data, 0644))

	m, err := metainfo.Open(path)
	require.NoError(t, err)
	m.SetAnnounce("http://example.com/announce")
	require.NoError(t, m.AddFile(src))

	expected := (len(data) + metainfo.DefaultPieceLength - 1) / metainfo.DefaultPieceLength
	assert.Len(t, m.Pieces(), expected)
}

func TestMultiFileMigration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.torrent")

	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, make([]byte, 10), 0644))
	require.NoError(t, os.WriteFile(b, make([]byte, 5), 0644))

	m, err := metainfo.Open(path)
	require.NoError(t, err)
	require.NoError(t, m.AddFile(a))
	require.NoError(t, m.AddFile(b))

	files := m.Files()
	require.Len(t, files, 2)
	assert.Equal(t, []string{"a.txt"}, files[0].Path)
	assert.EqualValues(t, 10, files[0].Length)
	assert.Equal(t, []string{"b.txt"}, files[1].Path)
	assert.EqualValues(t, 5, files[1].Length)

	// both files fit in one piece each under the default piece length
	assert.Len(t, m.Pieces(), 2)
}

func TestInfoHashMatchesKnownVector(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.torrent")

	m, err := metainfo.Open(path)
	require.NoError(t, err)

	src := filepath.Join(dir, "a")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))
	require.NoError(t, m.AddFile(src))
	require.Len(t, m.Pieces(), 1)

	digest := m.Pieces()[0]
	expected := sha1.Sum([]byte("d6:lengthi1e4:name1:a12:piece lengthi262144e6:pieces20:" + string(digest[:]) + "e"))

	hash, err := m.InfoHash()
	require.NoError(t, err)
	assert.Equal(t, expected, hash)
}

// Copyright © 2021 Rak Laptudirm <raklaptudirm@gmail.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metainfo provides a typed view over a decoded bencode
// dictionary representing a .torrent file: announce URL, info-hash,
// and the single-file/multi-file piece layout, along with the
// mutations (AddFile, RemoveFile) needed to build one up from disk.
package metainfo

import (
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitforge/gossamer/pkg/bencode"
)

// DefaultPieceLength is used to initialize a freshly created metainfo.
const DefaultPieceLength = 262144

// FileError reports a metainfo invariant violated during construction,
// mutation, or info-hash computation.
type FileError struct {
	Op  string
	Err error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("metainfo: %s: %v", e.Op, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// FileEntry is one entry of Files: its path segments and its length in
// bytes.
type FileEntry struct {
	Path   []string
	Length int64
}

// Metainfo wraps the decoded bencode dictionary backing a .torrent file.
// A zero-value Metainfo is not usable; construct one with Open.
type Metainfo struct {
	path string
	data map[string]any
}

// Open reads path and decodes it as bencode. If path does not exist, a
// fresh Metainfo with default fields is returned instead, ready to be
// built up with AddFile and persisted with Write.
func Open(path string) (*Metainfo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return newEmpty(path), nil
		}
		return nil, &FileError{Op: "open", Err: err}
	}

	v, err := bencode.Decode(raw)
	if err != nil {
		return nil, &FileError{Op: "open", Err: err}
	}

	data, ok := v.(map[string]any)
	if !ok {
		return nil, &FileError{Op: "open", Err: fmt.Errorf("metainfo root is not a dictionary")}
	}

	return &Metainfo{path: path, data: data}, nil
}

func newEmpty(path string) *Metainfo {
	return &Metainfo{
		path: path,
		data: map[string]any{
			"announce":      "",
			"creation date": time.Now().Unix(),
			"info": map[string]any{
				"piece length": int64(DefaultPieceLength),
				"pieces":       "",
			},
		},
	}
}

// Announce returns the tracker announce URL.
func (m *Metainfo) Announce() string {
	s, _ := m.data["announce"].(string)
	return s
}

// SetAnnounce sets the tracker announce URL.
func (m *Metainfo) SetAnnounce(url string) { m.data["announce"] = url }

// Comment returns the free-form comment, if any.
func (m *Metainfo) Comment() string {
	s, _ := m.data["comment"].(string)
	return s
}

// SetComment sets the free-form comment.
func (m *Metainfo) SetComment(c string) { m.data["comment"] = c }

// CreationDate returns the creation timestamp, or the zero time if unset.
func (m *Metainfo) CreationDate() time.Time {
	if v, ok := asInt64(m.data["creation date"]); ok {
		return time.Unix(v, 0)
	}
	return time.Time{}
}

// SetCreationDate sets the creation timestamp.
func (m *Metainfo) SetCreationDate(t time.Time) { m.data["creation date"] = t.Unix() }

// Name returns the suggested filename (single-file) or directory name
// (multi-file).
func (m *Metainfo) Name() string {
	s, _ := m.info()["name"].(string)
	return s
}

// PieceLength returns the configured piece size in bytes.
func (m *Metainfo) PieceLength() int64 {
	v, _ := asInt64(m.info()["piece length"])
	return v
}

// InfoHash computes the SHA-1 of the canonical bencoding of the info
// dictionary — the torrent's identity. Fails if info is absent.
func (m *Metainfo) InfoHash() ([20]byte, error) {
	info, ok := m.data["info"].(map[string]any)
	if !ok {
		return [20]byte{}, &FileError{Op: "info_hash", Err: fmt.Errorf("missing info dictionary")}
	}

	encoded, err := bencode.Encode(info)
	if err != nil {
		return [20]byte{}, &FileError{Op: "info_hash", Err: err}
	}

	return sha1.Sum(encoded), nil
}

// Files returns the flat file list: a single entry for single-file form,
// or one entry per file for multi-file form.
func (m *Metainfo) Files() []FileEntry {
	info := m.info()
	if info == nil {
		return nil
	}

	if files, ok := info["files"].([]any); ok {
		out := make([]FileEntry, 0, len(files))
		for _, f := range files {
			fd, ok := f.(map[string]any)
			if !ok {
				continue
			}
			length, _ := asInt64(fd["length"])
			out = append(out, FileEntry{Path: asStrings(fd["path"]), Length: length})
		}
		return out
	}

	length, ok := asInt64(info["length"])
	if !ok {
		return nil
	}
	name, _ := info["name"].(string)
	return []FileEntry{{Path: []string{name}, Length: length}}
}

// Pieces slices the raw pieces byte-string into its 20-byte SHA-1 digests.
func (m *Metainfo) Pieces() [][20]byte {
	s, _ := m.info()["pieces"].(string)
	buf := []byte(s)

	n := len(buf) / 20
	out := make([][20]byte, n)
	for i := 0; i < n; i++ {
		copy(out[i][:], buf[i*20:(i+1)*20])
	}
	return out
}

// AddFile reads the file at path off disk, hashes it into consecutive
// piece-length digests, and appends it to the metainfo, migrating from
// single-file to multi-file form if needed.
func (m *Metainfo) AddFile(path string) error {
	info := m.info()
	if info == nil {
		info = map[string]any{
			"piece length": int64(DefaultPieceLength),
			"pieces":       "",
		}
		m.data["info"] = info
	}

	pieceLength, _ := asInt64(info["piece length"])
	if pieceLength <= 0 {
		return &FileError{Op: "add_file", Err: fmt.Errorf("piece length must be > 0")}
	}

	f, err := os.Open(path)
	if err != nil {
		return &FileError{Op: "add_file", Err: err}
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return &FileError{Op: "add_file", Err: err}
	}

	digest, err := hashInPieces(f, pieceLength)
	if err != nil {
		return &FileError{Op: "add_file", Err: err}
	}

	existing, _ := info["pieces"].(string)
	info["pieces"] = existing + string(digest)

	name := filepath.Base(path)
	length := stat.Size()

	switch {
	case info["files"] != nil:
		files, _ := info["files"].([]any)
		info["files"] = append(files, newFileEntry(name, length))

	case info["name"] != nil:
		oldName, _ := info["name"].(string)
		oldLength, _ := asInt64(info["length"])
		delete(info, "name")
		delete(info, "length")
		info["files"] = []any{
			newFileEntry(oldName, oldLength),
			newFileEntry(name, length),
		}

	default:
		info["name"] = name
		info["length"] = length
	}

	return nil
}

func newFileEntry(name string, length int64) map[string]any {
	return map[string]any{
		"path":   []any{name},
		"length": length,
	}
}

// RemoveFile removes the file whose joined path segments equal path,
// rebuilding the pieces byte-string from the remaining files' digest
// ranges. A multi-file metainfo left with exactly one file collapses
// back to single-file form. Missing paths are silent no-ops.
func (m *Metainfo) RemoveFile(path string) error {
	info := m.info()
	if info == nil {
		return nil
	}

	if files, ok := info["files"].([]any); ok {
		return m.removeFromMultiFile(info, files, path)
	}

	if name, _ := info["name"].(string); name == path {
		delete(info, "name")
		delete(info, "length")
		info["pieces"] = ""
	}
	return nil
}

func (m *Metainfo) removeFromMultiFile(info map[string]any, files []any, path string) error {
	pieceLength, _ := asInt64(info["piece length"])
	oldPieces := []byte(asString(info["pieces"]))

	var newPieces []byte
	var kept []any
	offset := 0
	found := false

	for _, f := range files {
		fd, ok := f.(map[string]any)
		if !ok {
			continue
		}

		length, _ := asInt64(fd["length"])
		digestLen := pieceCount(length, pieceLength) * 20

		if strings.Join(asStrings(fd["path"]), "/") == path {
			found = true
			offset += digestLen
			continue
		}

		newPieces = append(newPieces, oldPieces[offset:offset+digestLen]...)
		offset += digestLen
		kept = append(kept, fd)
	}

	if !found {
		return nil
	}

	info["pieces"] = string(newPieces)
	info["files"] = kept

	if len(kept) == 1 {
		fd := kept[0].(map[string]any)
		length, _ := asInt64(fd["length"])
		info["name"] = strings.Join(asStrings(fd["path"]), "/")
		info["length"] = length
		delete(info, "files")
	}

	return nil
}

// Write serializes the metainfo to the path it was opened or created with.
func (m *Metainfo) Write() error {
	encoded, err := bencode.Encode(m.data)
	if err != nil {
		return &FileError{Op: "write", Err: err}
	}

	if err := os.WriteFile(m.path, encoded, 0644); err != nil {
		return &FileError{Op: "write", Err: err}
	}
	return nil
}

func (m *Metainfo) info() map[string]any {
	info, _ := m.data["info"].(map[string]any)
	return info
}

func pieceCount(length, pieceLength int64) int {
	if pieceLength <= 0 {
		return 0
	}
	return int((length + pieceLength - 1) / pieceLength)
}

func hashInPieces(r io.Reader, pieceLength int64) ([]byte, error) {
	var out []byte
	buf := make([]byte, pieceLength)

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			sum := sha1.Sum(buf[:n])
			out = append(out, sum[:]...)
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

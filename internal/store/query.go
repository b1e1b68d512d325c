package store

import (
	"bytes"
	"database/sql"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	srcerrors "github.com/standardbeagle/source-fast/internal/errors"
)

// LookupTrigram fetches a trigram's posting bitmap outside any transaction.
// It returns (nil, false, nil) when the trigram has never been observed.
func (s *Store) LookupTrigram(trigram uint32) (*roaring.Bitmap, bool, error) {
	var buf []byte
	err := s.db.QueryRow(`SELECT bitmap FROM postings WHERE trigram = ?`, trigram).Scan(&buf)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, srcerrors.New(srcerrors.KindIOError, "lookup_trigram", err)
	}
	bm := roaring.New()
	if _, err := bm.ReadFrom(bytes.NewReader(buf)); err != nil {
		return nil, false, srcerrors.New(srcerrors.KindCorrupt, "decode_posting", err)
	}
	return bm, true, nil
}

// FilesFor resolves a set of file_ids to their records, in ascending id
// order. Missing ids are silently omitted rather than treated as an error,
// since a posting and its files row are not updated in lockstep within a
// single SQL statement.
func (s *Store) FilesFor(ids []uint32) ([]FileRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.Query(
		`SELECT id, path, mtime, size, content_hash, trigram_set FROM files WHERE id IN (`+placeholders+`) ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, srcerrors.New(srcerrors.KindIOError, "files_for", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var rec FileRecord
		var hashBytes, setBytes []byte
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.Mtime, &rec.Size, &hashBytes, &setBytes); err != nil {
			return nil, srcerrors.New(srcerrors.KindIOError, "files_for_scan", err)
		}
		rec.ContentHash = decodeHash(hashBytes)
		set, err := decodeTrigramSet(setBytes)
		if err != nil {
			return nil, srcerrors.New(srcerrors.KindCorrupt, "files_for_decode", err).WithPath(rec.Path)
		}
		rec.TrigramSet = set
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, srcerrors.New(srcerrors.KindIOError, "files_for_rows", err)
	}
	return out, nil
}

// FileByPath resolves a single path to its record.
func (s *Store) FileByPath(path string) (FileRecord, bool, error) {
	var rec FileRecord
	var hashBytes, setBytes []byte
	err := s.db.QueryRow(
		`SELECT id, path, mtime, size, content_hash, trigram_set FROM files WHERE path = ?`, path,
	).Scan(&rec.ID, &rec.Path, &rec.Mtime, &rec.Size, &hashBytes, &setBytes)
	if err == sql.ErrNoRows {
		return FileRecord{}, false, nil
	}
	if err != nil {
		return FileRecord{}, false, srcerrors.New(srcerrors.KindIOError, "file_by_path", err).WithPath(path)
	}
	rec.ContentHash = decodeHash(hashBytes)
	set, err := decodeTrigramSet(setBytes)
	if err != nil {
		return FileRecord{}, false, srcerrors.New(srcerrors.KindCorrupt, "decode_trigram_set", err).WithPath(path)
	}
	rec.TrigramSet = set
	return rec, true, nil
}

// AllPaths returns every indexed path currently in the store, used by the
// full-path planner to compute which rows no longer correspond to a file in
// the working tree.
func (s *Store) AllPaths() ([]string, error) {
	rows, err := s.db.Query(`SELECT path FROM files`)
	if err != nil {
		return nil, srcerrors.New(srcerrors.KindIOError, "all_paths", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, srcerrors.New(srcerrors.KindIOError, "all_paths_scan", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SearchPaths returns every path whose normalized form contains substr,
// case-insensitively, sorted lexicographically. It queries paths_fts, the
// FTS5 virtual table built with the trigram tokenizer and kept in sync with
// files.path by the files_ai/files_ad/files_au triggers, rather than
// scanning files.path directly, so a path search costs a trigram lookup
// instead of a table scan. The trigram tokenizer matches no rows for a
// phrase shorter than three characters, so such substrings fall back to a
// LIKE scan of files.path.
func (s *Store) SearchPaths(substr string) ([]string, error) {
	var rows *sql.Rows
	var err error
	if len([]rune(substr)) < 3 {
		pattern := "%" + strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(substr) + "%"
		rows, err = s.db.Query(`SELECT path FROM files WHERE path LIKE ? ESCAPE '\'`, pattern)
	} else {
		rows, err = s.db.Query(`SELECT path FROM paths_fts WHERE paths_fts MATCH ?`, ftsPhrase(substr))
	}
	if err != nil {
		return nil, srcerrors.New(srcerrors.KindIOError, "search_paths", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, srcerrors.New(srcerrors.KindIOError, "search_paths_scan", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, srcerrors.New(srcerrors.KindIOError, "search_paths_rows", err)
	}

	sort.Strings(out)
	return out, nil
}

// ftsPhrase quotes substr as a single FTS5 phrase so the trigram tokenizer
// matches it literally rather than parsing it as an FTS5 query expression;
// embedded double quotes are doubled per FTS5's phrase-escaping rule.
func ftsPhrase(substr string) string {
	escaped := strings.ReplaceAll(substr, `"`, `""`)
	return `"` + escaped + `"`
}

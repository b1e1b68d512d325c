package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"

	"github.com/RoaringBitmap/roaring/v2"

	srcerrors "github.com/standardbeagle/source-fast/internal/errors"
)

// postingDelta batches the bit-sets and bit-clears a single transaction
// makes to one trigram's bitmap, so each trigram sees a single
// read-modify-write at commit time no matter how many files touched it.
type postingDelta struct {
	adds    []uint32
	removes []uint32
}

// Txn is a single-writer transaction over the store. It holds the exclusive
// file lock for its entire lifetime; Commit or Abort must always be called
// to release it.
type Txn struct {
	store   *Store
	tx      *sql.Tx
	deltas  map[uint32]*postingDelta
	aborted bool
	done    bool
}

// Begin acquires exclusive write access, waiting up to the store's lock
// timeout, then opens a database transaction.
func (s *Store) Begin(ctx context.Context) (*Txn, error) {
	if err := s.acquireLock(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		_ = s.releaseLock()
		return nil, srcerrors.New(srcerrors.KindIOError, "begin", err)
	}

	return &Txn{store: s, tx: tx, deltas: make(map[uint32]*postingDelta)}, nil
}

func (t *Txn) delta(trigram uint32) *postingDelta {
	d, ok := t.deltas[trigram]
	if !ok {
		d = &postingDelta{}
		t.deltas[trigram] = d
	}
	return d
}

// UpsertFile inserts or updates a file's record. For an update, the file's
// previous trigram set (the reverse mapping materialized on the files row)
// is diffed against the new set so only the actual delta is applied to the
// postings; the unabridged old set is not re-read from disk.
func (t *Txn) UpsertFile(path string, mtime, size int64, hash uint64, trigrams []uint32) (uint32, error) {
	existing, found, err := t.fileByPath(path)
	if err != nil {
		return 0, err
	}

	newSet := make(map[uint32]struct{}, len(trigrams))
	for _, tg := range trigrams {
		newSet[tg] = struct{}{}
	}

	var fileID uint32
	if found {
		fileID = existing.ID
		oldSet := make(map[uint32]struct{}, len(existing.TrigramSet))
		for _, tg := range existing.TrigramSet {
			oldSet[tg] = struct{}{}
		}
		for tg := range oldSet {
			if _, stillPresent := newSet[tg]; !stillPresent {
				t.delta(tg).removes = append(t.delta(tg).removes, fileID)
			}
		}
		for tg := range newSet {
			if _, wasPresent := oldSet[tg]; !wasPresent {
				t.delta(tg).adds = append(t.delta(tg).adds, fileID)
			}
		}

		hashBytes := encodeHash(hash)
		setBytes, err := encodeTrigramSet(trigrams)
		if err != nil {
			return 0, srcerrors.New(srcerrors.KindIOError, "encode_trigram_set", err)
		}
		if _, err := t.tx.Exec(
			`UPDATE files SET mtime = ?, size = ?, content_hash = ?, trigram_set = ? WHERE id = ?`,
			mtime, size, hashBytes, setBytes, fileID,
		); err != nil {
			return 0, srcerrors.New(srcerrors.KindIOError, "update_file", err).WithPath(path)
		}
		return fileID, nil
	}

	hashBytes := encodeHash(hash)
	setBytes, err := encodeTrigramSet(trigrams)
	if err != nil {
		return 0, srcerrors.New(srcerrors.KindIOError, "encode_trigram_set", err)
	}
	res, err := t.tx.Exec(
		`INSERT INTO files(path, mtime, size, content_hash, trigram_set) VALUES (?, ?, ?, ?, ?)`,
		path, mtime, size, hashBytes, setBytes,
	)
	if err != nil {
		return 0, srcerrors.New(srcerrors.KindIOError, "insert_file", err).WithPath(path)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, srcerrors.New(srcerrors.KindIOError, "insert_file_id", err).WithPath(path)
	}
	fileID = uint32(id)

	for tg := range newSet {
		t.delta(tg).adds = append(t.delta(tg).adds, fileID)
	}

	return fileID, nil
}

// DeleteFile removes a file's record and clears its bit from every posting
// it contributed to. It is a no-op if the path is not currently indexed.
func (t *Txn) DeleteFile(path string) error {
	existing, found, err := t.fileByPath(path)
	if !found {
		return err
	}
	if err != nil {
		return err
	}

	for _, tg := range existing.TrigramSet {
		t.delta(tg).removes = append(t.delta(tg).removes, existing.ID)
	}

	if _, err := t.tx.Exec(`DELETE FROM files WHERE id = ?`, existing.ID); err != nil {
		return srcerrors.New(srcerrors.KindIOError, "delete_file", err).WithPath(path)
	}
	return nil
}

func (t *Txn) fileByPath(path string) (FileRecord, bool, error) {
	var rec FileRecord
	var hashBytes, setBytes []byte
	row := t.tx.QueryRow(
		`SELECT id, path, mtime, size, content_hash, trigram_set FROM files WHERE path = ?`, path,
	)
	if err := row.Scan(&rec.ID, &rec.Path, &rec.Mtime, &rec.Size, &hashBytes, &setBytes); err != nil {
		if err == sql.ErrNoRows {
			return FileRecord{}, false, nil
		}
		return FileRecord{}, false, srcerrors.New(srcerrors.KindIOError, "lookup_file", err).WithPath(path)
	}
	rec.ContentHash = decodeHash(hashBytes)
	set, err := decodeTrigramSet(setBytes)
	if err != nil {
		return FileRecord{}, false, srcerrors.New(srcerrors.KindCorrupt, "decode_trigram_set", err).WithPath(path)
	}
	rec.TrigramSet = set
	return rec, true, nil
}

// SetMeta writes a metadata key as part of this transaction.
func (t *Txn) SetMeta(key, value string) error {
	if _, err := t.tx.Exec(
		`INSERT INTO meta(key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	); err != nil {
		return srcerrors.New(srcerrors.KindIOError, "set_meta", err)
	}
	return nil
}

// Commit flushes the batched per-trigram posting deltas, then commits the
// underlying database transaction and releases the writer lock.
func (t *Txn) Commit() error {
	if t.done {
		return nil
	}
	defer func() {
		t.done = true
		_ = t.store.releaseLock()
	}()

	for trigram, d := range t.deltas {
		if err := t.applyDelta(trigram, d); err != nil {
			_ = t.tx.Rollback()
			return err
		}
	}

	if err := t.tx.Commit(); err != nil {
		return srcerrors.New(srcerrors.KindIOError, "commit", err)
	}
	return nil
}

// Abort rolls back the underlying transaction, discarding every pending
// change, and releases the writer lock. The store is left exactly as it was
// before Begin.
func (t *Txn) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	t.aborted = true
	defer func() { _ = t.store.releaseLock() }()
	if err := t.tx.Rollback(); err != nil {
		return srcerrors.New(srcerrors.KindIOError, "abort", err)
	}
	return nil
}

func (t *Txn) applyDelta(trigram uint32, d *postingDelta) error {
	bm, _, err := t.lookupTrigramLocked(trigram)
	if err != nil {
		return err
	}
	if bm == nil {
		bm = roaring.New()
	}
	for _, id := range d.adds {
		bm.Add(id)
	}
	for _, id := range d.removes {
		bm.Remove(id)
	}

	if bm.IsEmpty() {
		if _, err := t.tx.Exec(`DELETE FROM postings WHERE trigram = ?`, trigram); err != nil {
			return srcerrors.New(srcerrors.KindIOError, "delete_posting", err)
		}
		return nil
	}

	var out bytes.Buffer
	if _, err := bm.WriteTo(&out); err != nil {
		return srcerrors.New(srcerrors.KindIOError, "encode_posting", err)
	}
	buf := out.Bytes()
	if _, err := t.tx.Exec(
		`INSERT INTO postings(trigram, bitmap) VALUES (?, ?) ON CONFLICT(trigram) DO UPDATE SET bitmap = excluded.bitmap`,
		trigram, buf,
	); err != nil {
		return srcerrors.New(srcerrors.KindIOError, "write_posting", err)
	}
	return nil
}

func (t *Txn) lookupTrigramLocked(trigram uint32) (*roaring.Bitmap, bool, error) {
	var buf []byte
	err := t.tx.QueryRow(`SELECT bitmap FROM postings WHERE trigram = ?`, trigram).Scan(&buf)
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

func encodeHash(h uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, h)
	return buf
}

func decodeHash(buf []byte) uint64 {
	if len(buf) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(buf)
}

func encodeTrigramSet(trigrams []uint32) ([]byte, error) {
	bm := roaring.New()
	for _, tg := range trigrams {
		bm.Add(tg)
	}
	var out bytes.Buffer
	if _, err := bm.WriteTo(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func decodeTrigramSet(buf []byte) ([]uint32, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	bm := roaring.New()
	if _, err := bm.ReadFrom(bytes.NewReader(buf)); err != nil {
		return nil, err
	}
	out := make([]uint32, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, it.Next())
	}
	return out, nil
}

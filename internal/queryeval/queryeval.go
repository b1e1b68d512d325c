// Package queryeval resolves a query string into a verified match set by
// intersecting trigram posting lists and then scanning each surviving
// candidate file for the literal query, since trigram co-occurrence is
// necessary but not sufficient for a substring match.
package queryeval

import (
	"bytes"
	"context"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	srcerrors "github.com/standardbeagle/source-fast/internal/errors"
	"github.com/standardbeagle/source-fast/internal/store"
	"github.com/standardbeagle/source-fast/internal/trigram"
	"github.com/standardbeagle/source-fast/pkg/pathutil"
)

// Match is one verified occurrence of a query in a file.
type Match struct {
	Path    string
	LineNo  int
	Offset  int
	Snippet string
}

// Evaluator answers content and path queries against a store rooted at Root.
type Evaluator struct {
	store   *store.Store
	root    string
	fileSem *semaphore.Weighted
	logger  *zap.Logger
}

// New builds an Evaluator. maxOpenFiles bounds how many candidate files are
// read concurrently during the verification phase; the semaphore belongs to
// this Evaluator and is not shared with the indexer. logger may be nil, in
// which case verification IoErrors go unlogged.
func New(st *store.Store, root string, maxOpenFiles int, logger *zap.Logger) *Evaluator {
	if maxOpenFiles <= 0 {
		maxOpenFiles = 128
	}
	return &Evaluator{store: st, root: root, fileSem: semaphore.NewWeighted(int64(maxOpenFiles)), logger: logger}
}

// SearchContent resolves query against the trigram index, optionally
// restricting candidates to paths matching fileRegex, then verifies every
// candidate by literal substring scan.
func (e *Evaluator) SearchContent(ctx context.Context, query, fileRegex string) ([]Match, error) {
	qBytes := []byte(query)
	if trigram.TooShort(qBytes) {
		return nil, srcerrors.QueryTooShort
	}

	var pathFilter *regexp.Regexp
	if fileRegex != "" {
		re, err := regexp.Compile(fileRegex)
		if err != nil {
			return nil, srcerrors.New(srcerrors.KindInvalidRegex, "compile_regex", err)
		}
		pathFilter = re
	}

	queryTrigrams := trigram.Extract(qBytes)
	bitmaps := make([]*roaring.Bitmap, 0, len(queryTrigrams))
	for t := range queryTrigrams {
		bm, ok, err := e.store.LookupTrigram(t)
		if err != nil {
			return nil, err
		}
		if !ok {
			// A missing posting for any required trigram means the query
			// cannot match anything; short-circuit.
			return nil, nil
		}
		bitmaps = append(bitmaps, bm)
	}

	sort.Slice(bitmaps, func(i, j int) bool {
		return bitmaps[i].GetCardinality() < bitmaps[j].GetCardinality()
	})

	result := bitmaps[0].Clone()
	for _, bm := range bitmaps[1:] {
		result.And(bm)
		if result.IsEmpty() {
			return nil, nil
		}
	}

	ids := result.ToArray()
	records, err := e.store.FilesFor(ids)
	if err != nil {
		return nil, err
	}

	var candidates []store.FileRecord
	for _, rec := range records {
		if pathFilter != nil && !pathFilter.MatchString(rec.Path) {
			continue
		}
		candidates = append(candidates, rec)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Path < candidates[j].Path })

	return e.verify(ctx, candidates, qBytes)
}

// verify reads every candidate file and linearly scans it for query,
// bounding concurrent reads with fileSem. A file that cannot be read is
// skipped; the caller continues with whatever candidates did succeed.
func (e *Evaluator) verify(ctx context.Context, candidates []store.FileRecord, query []byte) ([]Match, error) {
	results := make([][]Match, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, rec := range candidates {
		i, rec := i, rec
		g.Go(func() error {
			if err := e.fileSem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer e.fileSem.Release(1)

			matches, err := verifyFile(e.root, rec.Path, query)
			if err != nil {
				if e.logger != nil {
					e.logger.Warn("skipping candidate during verification", zap.String("path", rec.Path), zap.Error(err))
				}
				return nil
			}
			results[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Match
	for _, m := range results {
		out = append(out, m...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Offset < out[j].Offset
	})
	return out, nil
}

func verifyFile(root, relPath string, query []byte) ([]Match, error) {
	abs := pathutil.ToAbsolute(relPath, root)
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, srcerrors.New(srcerrors.KindIOError, "read_candidate", err).WithPath(relPath)
	}

	var offsets []int
	for searchFrom := 0; ; {
		idx := bytes.Index(data[searchFrom:], query)
		if idx < 0 {
			break
		}
		offsets = append(offsets, searchFrom+idx)
		searchFrom += idx + 1
	}
	if len(offsets) == 0 {
		return nil, nil
	}

	lineStarts := computeLineStarts(data)
	windows := mergeSnippetWindows(offsets, lineStarts, len(data))

	matches := make([]Match, 0, len(windows))
	for _, w := range windows {
		matches = append(matches, Match{
			Path:    relPath,
			LineNo:  w.matchLine + 1,
			Offset:  w.offset,
			Snippet: renderSnippet(data, lineStarts, w),
		})
	}
	return matches, nil
}

// computeLineStarts returns the byte offset each line begins at, 0-indexed.
func computeLineStarts(data []byte) []int {
	starts := []int{0}
	for i, b := range data {
		if b == '\n' && i+1 < len(data) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func lineForOffset(lineStarts []int, offset int) int {
	i := sort.Search(len(lineStarts), func(i int) bool { return lineStarts[i] > offset })
	return i - 1
}

type snippetWindow struct {
	offset     int
	matchLine  int
	firstLine  int
	lastLine   int
}

// mergeSnippetWindows groups matches into snippet windows of matched-line ±2
// lines, merging windows that overlap so the same lines are never emitted
// twice for a cluster of nearby matches.
func mergeSnippetWindows(offsets []int, lineStarts []int, dataLen int) []snippetWindow {
	lastLineIdx := len(lineStarts) - 1

	var windows []snippetWindow
	for _, off := range offsets {
		line := lineForOffset(lineStarts, off)
		first := line - 2
		if first < 0 {
			first = 0
		}
		last := line + 2
		if last > lastLineIdx {
			last = lastLineIdx
		}

		if n := len(windows); n > 0 && first <= windows[n-1].lastLine {
			if last > windows[n-1].lastLine {
				windows[n-1].lastLine = last
			}
			continue
		}
		windows = append(windows, snippetWindow{offset: off, matchLine: line, firstLine: first, lastLine: last})
	}
	return windows
}

func renderSnippet(data []byte, lineStarts []int, w snippetWindow) string {
	var b strings.Builder
	for ln := w.firstLine; ln <= w.lastLine; ln++ {
		start := lineStarts[ln]
		end := len(data)
		if ln+1 < len(lineStarts) {
			end = lineStarts[ln+1] - 1
		}
		if end > len(data) {
			end = len(data)
		}
		if end < start {
			end = start
		}
		line := strings.TrimRight(string(data[start:end]), "\r")

		marker := "  "
		if ln == w.matchLine {
			marker = "->"
		}
		b.WriteString(marker)
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(ln + 1))
		b.WriteString(": ")
		b.WriteString(line)
		if ln != w.lastLine {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// SearchPaths returns every indexed path whose normalized form contains
// substr, case-insensitively, sorted lexicographically.
func (e *Evaluator) SearchPaths(substr string) ([]string, error) {
	return e.store.SearchPaths(substr)
}

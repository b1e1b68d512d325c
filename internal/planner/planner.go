// Package planner decides what has to change in the index to bring it up to
// date with the working tree: either a VCS-diff-driven incremental plan, or,
// when that fast path isn't available, a full-tree rescan.
package planner

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/standardbeagle/source-fast/internal/config"
	srcerrors "github.com/standardbeagle/source-fast/internal/errors"
	"github.com/standardbeagle/source-fast/internal/store"
	"github.com/standardbeagle/source-fast/internal/vcs"
	"github.com/standardbeagle/source-fast/pkg/pathutil"
)

// ActionKind is what the indexer should do with one path.
type ActionKind int

const (
	ActionReIndex ActionKind = iota
	ActionDelete
)

func (k ActionKind) String() string {
	if k == ActionDelete {
		return "delete"
	}
	return "reindex"
}

// Action is one unit of work the indexer must apply.
type Action struct {
	Kind ActionKind
	Path string // canonical, repository-relative
}

// Mode records which strategy produced a Plan, for logging and progress
// reporting.
type Mode int

const (
	ModeIncremental Mode = iota
	ModeFullScan
)

func (m Mode) String() string {
	if m == ModeIncremental {
		return "incremental"
	}
	return "full_scan"
}

// Plan is the result of planning: an ordered list of actions (every delete
// precedes every reindex, so a rename's old name is gone before its new name
// is indexed) plus the VCS head the plan was computed against, if any.
type Plan struct {
	Mode    Mode
	Actions []Action
	NewHead string // empty when the repository has no VCS head (e.g. not a git repo)
}

// Planner computes a Plan for one project root.
type Planner struct {
	root   string
	cfg    *config.Config
	store  *store.Store
	logger *zap.Logger
}

// New builds a Planner for root, using cfg's include/exclude rules and st to
// discover the previously recorded VCS head and the currently indexed
// paths. logger may be nil, in which case the fallback reason for leaving
// the incremental fast path is never logged.
func New(cfg *config.Config, st *store.Store, root string, logger *zap.Logger) *Planner {
	return &Planner{root: root, cfg: cfg, store: st, logger: logger}
}

// fallback logs why the incremental fast path wasn't taken. err may be nil
// when the reason isn't itself an error (e.g. no stored head yet).
func (p *Planner) fallback(reason string, err error) {
	if p.logger == nil {
		return
	}
	if err != nil {
		p.logger.Info("falling back to full scan", zap.String("reason", reason), zap.Error(err))
		return
	}
	p.logger.Info("falling back to full scan", zap.String("reason", reason))
}

// Plan computes the set of actions needed to bring the index up to date.
// It prefers the incremental path: if the store recorded a VCS head, that
// head is still resolvable, and it is an ancestor of the current head, the
// plan is built from the git diff between the two. Any failure of that
// fast path — no git repository, unborn HEAD, a stored head VCS can no
// longer resolve, or a stored head that is not an ancestor of HEAD (e.g.
// after a rebase) — falls back to a full scan rather than propagating the
// error, since the fallback is always correct, just slower.
func (p *Planner) Plan(ctx context.Context) (*Plan, error) {
	repo, err := vcs.Open(p.root)
	if err != nil {
		p.fallback("not a git repository", err)
		return p.planFullScan(ctx, "", nil)
	}

	newHead, err := repo.Head()
	if err != nil {
		p.fallback("HEAD does not resolve (unborn branch)", err)
		return p.planFullScan(ctx, "", repo)
	}

	storedHead, ok, err := p.store.GetMeta(store.MetaVCSHead)
	if err != nil {
		return nil, err
	}
	if !ok || storedHead == "" {
		p.fallback("no VCS head recorded from a previous pass", nil)
		return p.planFullScan(ctx, newHead, repo)
	}

	isAncestor, err := repo.IsAncestor(storedHead, newHead)
	if err != nil || !isAncestor {
		p.fallback("stored head is not an ancestor of HEAD", err)
		return p.planFullScan(ctx, newHead, repo)
	}

	return p.planIncremental(ctx, repo, storedHead, newHead)
}

func (p *Planner) planIncremental(ctx context.Context, repo *vcs.Repo, storedHead, newHead string) (*Plan, error) {
	changes, err := repo.Diff(storedHead, newHead)
	if err != nil {
		p.fallback("git diff against stored head failed", err)
		return p.planFullScan(ctx, newHead, repo)
	}

	dirty, err := repo.Status()
	if err != nil {
		p.fallback("working tree status failed", err)
		return p.planFullScan(ctx, newHead, repo)
	}
	changes = append(changes, dirty...)

	actions := make([]Action, 0, len(changes)*2)
	for _, c := range changes {
		canonical := p.canonicalize(c.Path)
		if !p.included(canonical, repo) {
			continue
		}
		switch c.Kind {
		case vcs.Deleted:
			actions = append(actions, Action{Kind: ActionDelete, Path: canonical})
		case vcs.Renamed:
			oldCanonical := p.canonicalize(c.OldPath)
			actions = append(actions, Action{Kind: ActionDelete, Path: oldCanonical})
			actions = append(actions, Action{Kind: ActionReIndex, Path: canonical})
		default: // Added, Modified
			actions = append(actions, Action{Kind: ActionReIndex, Path: canonical})
		}
	}

	return &Plan{Mode: ModeIncremental, Actions: orderActions(actions), NewHead: newHead}, nil
}

// planFullScan walks the entire working tree, skipping anything excluded or
// classified as a directory, and reconciles it against the index's full
// path list: any indexed path with no corresponding file on disk becomes a
// Delete, and every surviving path is reindexed unconditionally — content
// hash comparison (and therefore the decision to skip unchanged files) is
// the indexer's job, not the planner's. repo is the already-opened VCS
// handle (nil when the root isn't a git repository at all), reused here
// only to honor gitignore rules, not for diffing.
func (p *Planner) planFullScan(ctx context.Context, newHead string, repo *vcs.Repo) (*Plan, error) {
	seen := make(map[string]struct{})
	var actions []Action

	err := filepath.Walk(p.root, func(walkPath string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			if shouldSkipDir(walkPath, p.root) {
				return filepath.SkipDir
			}
			return nil
		}

		canonical := pathutil.ToCanonical(walkPath, p.root)
		if !p.included(canonical, repo) {
			return nil
		}
		seen[canonical] = struct{}{}
		actions = append(actions, Action{Kind: ActionReIndex, Path: canonical})
		return nil
	})
	if err != nil {
		return nil, srcerrors.New(srcerrors.KindIOError, "full_scan_walk", err).WithPath(p.root)
	}

	existing, err := p.store.AllPaths()
	if err != nil {
		return nil, err
	}
	for _, path := range existing {
		if _, ok := seen[path]; !ok {
			actions = append(actions, Action{Kind: ActionDelete, Path: path})
		}
	}

	return &Plan{Mode: ModeFullScan, Actions: orderActions(actions), NewHead: newHead}, nil
}

func shouldSkipDir(walkPath, root string) bool {
	base := filepath.Base(walkPath)
	if walkPath != root && (base == store.DirName || base == ".git") {
		return true
	}
	return false
}

// orderActions moves every Delete ahead of every ReIndex and otherwise
// preserves discovery order, satisfying the Delete-before-ReIndex ordering
// a rename relies on.
func orderActions(actions []Action) []Action {
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Kind == ActionDelete && actions[j].Kind == ActionReIndex
	})
	return actions
}

func (p *Planner) canonicalize(relPath string) string {
	abs := pathutil.ToAbsolute(relPath, p.root)
	return pathutil.ToCanonical(abs, p.root)
}

// included reports whether a canonical path should be indexed, applying the
// deny list first (never overridable), then the VCS's own gitignore rules
// (when cfg.Index.RespectGitignore is set and repo is non-nil), then the
// project's exclude patterns, then its include patterns (if any are
// configured, the path must match at least one).
func (p *Planner) included(canonical string, repo *vcs.Repo) bool {
	for _, pattern := range config.DenyList {
		if matched, _ := doublestar.Match(pattern, canonical); matched {
			return false
		}
	}
	if p.cfg.Index.RespectGitignore && repo != nil && repo.IsIgnored(canonical) {
		return false
	}
	for _, pattern := range p.cfg.Exclude {
		if matched, _ := doublestar.Match(pattern, canonical); matched {
			return false
		}
	}
	if len(p.cfg.Include) == 0 {
		return true
	}
	for _, pattern := range p.cfg.Include {
		if matched, _ := doublestar.Match(pattern, canonical); matched {
			return true
		}
	}
	return false
}

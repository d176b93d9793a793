// Package gitdiff implements the git diff engine (C8): clone-or-pull
// maintenance of a repo's local working copy and change-set discovery
// between commits, grounded on the teacher's internal/gitutil/cloner.go and
// internal/repomanager/{manager,sync,scan}.go, generalized from
// GitHub-token-authenticated HTTPS clones onto the fleet's optional-token,
// local-path-first model (spec.md §4.5).
package gitdiff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/sevigo/audit-scanner/internal/core"
)

// bootstrapDepth is how far back HEAD~N..HEAD reaches for the first-scan and
// diff-fallback bootstraps (spec.md §4.5).
const bootstrapDepth = 5

// Engine resolves repo paths, keeps local clones current, and computes
// change sets.
//
//go:generate mockgen -destination=../../mocks/mock_gitengine.go -package=mocks github.com/sevigo/audit-scanner/internal/core GitEngine
type Engine struct {
	logger *slog.Logger
}

var _ core.GitEngine = (*Engine)(nil)

// New returns a git diff engine.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// ResolvePath implements spec.md §4.5's "resolve the repo path (primary then
// fallback repos_dir/name)": prefer the repository's persisted path; if that
// directory has no .git, fall back to reposDir/name.
func ResolvePath(repoPath, reposDir, name string) string {
	if repoPath != "" && hasGitDir(repoPath) {
		return repoPath
	}
	return filepath.Join(reposDir, name)
}

func hasGitDir(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil && (info.IsDir() || info.Mode().IsRegular())
}

// HasLocalClone reports whether path already holds a git working copy, so
// callers can distinguish an initial clone from a pull for event logging.
func HasLocalClone(path string) bool {
	return hasGitDir(path)
}

// EnsureLocal implements "clone-or-pull": clones into path if missing or not
// a git repo; otherwise fetches+fast-forwards. Pull failures are non-fatal —
// the caller continues with the current working tree (spec.md §4.5).
func (e *Engine) EnsureLocal(ctx context.Context, gitURL, path, token string) error {
	if !hasGitDir(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create parent dir for %s: %w", path, err)
		}
		_ = os.RemoveAll(path)

		cloneURL, err := authenticatedURL(gitURL, token)
		if err != nil {
			return fmt.Errorf("invalid clone url %s: %w", gitURL, err)
		}
		e.logger.InfoContext(ctx, "cloning repository", "url", gitURL, "path", path)
		if _, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{URL: cloneURL}); err != nil {
			return fmt.Errorf("clone %s into %s: %w", gitURL, path, err)
		}
		return nil
	}

	repo, err := git.PlainOpen(path)
	if err != nil {
		return fmt.Errorf("open repository at %s: %w", path, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree at %s: %w", path, err)
	}

	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: "origin", Auth: basicAuth(token), Force: true})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		e.logger.WarnContext(ctx, "git pull failed, continuing with existing working tree", "path", path, "error", err)
	}
	return nil
}

// HeadSHA returns the current HEAD commit hash.
func (e *Engine) HeadSHA(path string) (string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return "", fmt.Errorf("open repository at %s: %w", path, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD at %s: %w", path, err)
	}
	return head.Hash().String(), nil
}

// ChangedFiles implements C8's change-discovery rules exactly (spec.md
// §4.5): commit-range diff when both hashes are known, HEAD~5..HEAD
// bootstrap on first scan or when the ranged diff fails, always union
// working-tree changes, and drop paths no longer present on disk.
func (e *Engine) ChangedFiles(path string, lastCommitHash *string) (core.ChangeSet, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return core.ChangeSet{}, fmt.Errorf("open repository at %s: %w", path, err)
	}

	head, err := repo.Head()
	if err != nil {
		return core.ChangeSet{}, fmt.Errorf("resolve HEAD at %s: %w", path, err)
	}
	headSHA := head.Hash().String()

	var files []string
	isFirstScan := lastCommitHash == nil

	switch {
	case !isFirstScan && *lastCommitHash != headSHA:
		diffFiles, err := e.diffRange(repo, *lastCommitHash, headSHA)
		if err != nil {
			e.logger.Warn("ranged diff failed, falling back to HEAD~5..HEAD", "path", path, "error", err)
			diffFiles, err = e.diffBootstrap(repo, head.Hash())
			if err != nil {
				// Shallow history or single-commit repo: treated as no changes.
				diffFiles = nil
			}
		}
		files = append(files, diffFiles...)
	case !isFirstScan && *lastCommitHash == headSHA:
		// No commit movement; only working-tree changes matter.
	default:
		bootstrapFiles, err := e.diffBootstrap(repo, head.Hash())
		if err != nil {
			bootstrapFiles = nil
		}
		files = append(files, bootstrapFiles...)
	}

	wtFiles, err := e.workingTreeChanges(repo)
	if err != nil {
		e.logger.Warn("working tree status failed", "path", path, "error", err)
	} else {
		files = append(files, wtFiles...)
	}

	files = dedupeExisting(path, files)

	return core.ChangeSet{Files: files, HeadSHA: headSHA, IsFirstScan: isFirstScan}, nil
}

// diffRange is the go-git equivalent of `git diff --name-status old..new`,
// collecting files with status != D and taking the new path on rename.
func (e *Engine) diffRange(repo *git.Repository, oldSHA, newSHA string) ([]string, error) {
	oldCommit, err := repo.CommitObject(plumbing.NewHash(oldSHA))
	if err != nil {
		return nil, fmt.Errorf("resolve old commit %s: %w", oldSHA, err)
	}
	newCommit, err := repo.CommitObject(plumbing.NewHash(newSHA))
	if err != nil {
		return nil, fmt.Errorf("resolve new commit %s: %w", newSHA, err)
	}

	oldTree, err := oldCommit.Tree()
	if err != nil {
		return nil, err
	}
	newTree, err := newCommit.Tree()
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTree(oldTree, newTree)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			continue
		}
		switch action {
		case merkletrie.Insert, merkletrie.Modify:
			files = append(files, change.To.Name)
		case merkletrie.Delete:
			// status == D, excluded per spec.md §4.5.
		}
	}
	return files, nil
}

// diffBootstrap implements the HEAD~5..HEAD fallback by walking up to
// bootstrapDepth parents (or as many as exist) and diffing against HEAD.
func (e *Engine) diffBootstrap(repo *git.Repository, head plumbing.Hash) ([]string, error) {
	commit, err := repo.CommitObject(head)
	if err != nil {
		return nil, err
	}

	ancestor := commit
	for i := 0; i < bootstrapDepth; i++ {
		parents := ancestor.Parents()
		parent, err := parents.Next()
		if err != nil {
			// Fewer than bootstrapDepth ancestors: shallow history, treat as
			// no changes rather than an error (spec.md §9 Open Question).
			break
		}
		ancestor = parent
	}

	if ancestor.Hash == commit.Hash {
		return nil, nil
	}
	return e.diffRange(repo, ancestor.Hash.String(), commit.Hash.String())
}

// workingTreeChanges is the go-git equivalent of `git status --porcelain`,
// skipping deletions.
func (e *Engine) workingTreeChanges(repo *git.Repository) ([]string, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	status, err := wt.Status()
	if err != nil {
		return nil, err
	}

	var files []string
	for file, fileStatus := range status {
		if fileStatus.Worktree == git.Deleted || fileStatus.Staging == git.Deleted {
			continue
		}
		files = append(files, file)
	}
	return files, nil
}

// dedupeExisting deduplicates the union of changed paths and drops any path
// that no longer exists on disk — races with later deletions are expected
// (spec.md §4.5).
func dedupeExisting(repoPath string, files []string) []string {
	seen := make(map[string]struct{}, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		if _, err := os.Stat(filepath.Join(repoPath, f)); err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

func authenticatedURL(repoURL, token string) (string, error) {
	if token == "" {
		return repoURL, nil
	}
	if !strings.HasPrefix(repoURL, "https://") && !strings.HasPrefix(repoURL, "http://") {
		return repoURL, nil
	}
	parsed, err := url.Parse(repoURL)
	if err != nil {
		return "", err
	}
	parsed.User = url.UserPassword("x-access-token", token)
	return parsed.String(), nil
}

func basicAuth(token string) *githttp.BasicAuth {
	if token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: token}
}

// RemoteHeadSHA shells out to `git ls-remote` to discover a branch's head
// SHA without a local clone, matching the teacher's gitutil.GetRemoteHeadSHA.
func RemoteHeadSHA(ctx context.Context, repoURL, branch, token string) (string, error) {
	authURL, err := authenticatedURL(repoURL, token)
	if err != nil {
		return "", err
	}
	ref := fmt.Sprintf("refs/heads/%s", branch)
	out, err := exec.CommandContext(ctx, "git", "ls-remote", authURL, ref).Output()
	if err != nil {
		return "", fmt.Errorf("git ls-remote %s %s: %w", repoURL, ref, err)
	}
	output := strings.TrimSpace(string(out))
	if output == "" {
		return "", fmt.Errorf("branch %q not found or repository is empty", branch)
	}
	return strings.Fields(output)[0], nil
}

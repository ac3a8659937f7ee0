package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

const (
	DefaultBranch = "main"
	DefaultAuthor = "memassist"
	DefaultEmail  = "memassist@local"
)

type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Parents   []string  `json:"parents,omitempty"`
}

// Journal versions the memory documents of a data directory in a local git
// repository, one commit per sync that changed them.
type Journal struct {
	repo     *git.Repository
	worktree *git.Worktree
	root     string
}

// OpenJournal opens the repository in root/.git, creating it when absent.
func OpenJournal(root string) (*Journal, error) {
	gitPath := filepath.Join(root, git.GitDirName)

	fs := osfs.New(gitPath)
	storage := filesystem.NewStorage(fs, cache.NewObjectLRUDefault())
	wt := osfs.New(root)

	var repo *git.Repository
	if _, err := os.Stat(gitPath); os.IsNotExist(err) {
		if err := os.MkdirAll(gitPath, 0755); err != nil {
			return nil, fmt.Errorf("create .git directory: %w", err)
		}
		repo, err = git.Init(storage, wt)
		if err != nil {
			return nil, fmt.Errorf("init journal: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("get config: %w", err)
		}
		cfg.Init.DefaultBranch = DefaultBranch
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("set config: %w", err)
		}
	} else {
		repo, err = git.Open(storage, wt)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}

	return &Journal{repo: repo, worktree: worktree, root: root}, nil
}

// Record stages paths and commits them with message. It returns nil, nil
// when none of the paths changed since the last commit.
func (j *Journal) Record(ctx context.Context, message string, paths ...string) (*Commit, error) {
	var staged []string
	for _, p := range paths {
		rel, err := filepath.Rel(j.root, p)
		if err != nil {
			return nil, fmt.Errorf("get relative path: %w", err)
		}
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if _, err := j.worktree.Add(filepath.ToSlash(rel)); err != nil {
			return nil, fmt.Errorf("stage %s: %w", rel, err)
		}
		staged = append(staged, filepath.ToSlash(rel))
	}

	status, err := j.worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}

	changed := false
	for _, rel := range staged {
		fs, ok := status[rel]
		if ok && fs.Staging != git.Unmodified && fs.Staging != git.Untracked {
			changed = true
			break
		}
	}
	if !changed {
		return nil, nil
	}

	hash, err := j.worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  DefaultAuthor,
			Email: DefaultEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	commit, err := j.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("get commit: %w", err)
	}

	return toCommit(commit), nil
}

// Log lists commits newest first. An empty journal has no commits.
func (j *Journal) Log(ctx context.Context, limit int) ([]*Commit, error) {
	if _, err := j.repo.Head(); errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}

	iter, err := j.repo.Log(&git.LogOptions{})
	if err != nil {
		return nil, fmt.Errorf("get log: %w", err)
	}
	defer iter.Close()

	var commits []*Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(commits) >= limit {
			return io.EOF
		}
		commits = append(commits, toCommit(c))
		return nil
	})
	if err != nil && err != io.EOF {
		return nil, err
	}

	return commits, nil
}

// Patch renders the changes introduced by ref relative to its first parent.
func (j *Journal) Patch(ctx context.Context, ref string) (string, error) {
	resolved, err := j.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return "", fmt.Errorf("resolve ref: %w", err)
	}

	commit, err := j.repo.CommitObject(*resolved)
	if err != nil {
		return "", fmt.Errorf("get commit: %w", err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return "", fmt.Errorf("get tree: %w", err)
	}

	parentTree := &object.Tree{}
	if commit.NumParents() > 0 {
		parent, err := commit.Parent(0)
		if err != nil {
			return "", fmt.Errorf("get parent: %w", err)
		}
		if parentTree, err = parent.Tree(); err != nil {
			return "", fmt.Errorf("get parent tree: %w", err)
		}
	}

	changes, err := parentTree.Diff(tree)
	if err != nil {
		return "", fmt.Errorf("diff trees: %w", err)
	}

	patch, err := changes.Patch()
	if err != nil {
		return "", fmt.Errorf("get patch: %w", err)
	}

	return patch.String(), nil
}

func toCommit(c *object.Commit) *Commit {
	var parents []string
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}

	return &Commit{
		Hash:      c.Hash.String(),
		Message:   strings.TrimSpace(c.Message),
		Author:    c.Author.Name,
		Timestamp: c.Author.When,
		Parents:   parents,
	}
}

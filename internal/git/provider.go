// Package git wraps the system git binary for the scanner and worktree
// bootstrap. No pure-Go git implementation in the retrieved pack understands
// worktrees and shallow history the way the real CLI does, so both callers
// shell out instead.
package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Provider wraps git commands rooted at a discovered repository.
type Provider struct {
	repoRoot string
}

// Open locates the git repository containing root. ok is false (with a nil
// error) when root is not inside a git working tree at all.
func Open(root string) (p *Provider, ok bool, err error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, false, fmt.Errorf("git: invalid root: %w", err)
	}

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = absRoot
	out, err := cmd.Output()
	if err != nil {
		return nil, false, nil
	}

	return &Provider{repoRoot: strings.TrimSpace(string(out))}, true, nil
}

// Root returns the repository's top-level working directory.
func (p *Provider) Root() string {
	return p.repoRoot
}

func (p *Provider) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = p.repoRoot
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Head returns the current HEAD commit hash.
func (p *Provider) Head(ctx context.Context) (string, error) {
	out, err := p.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// CommitExists reports whether ref resolves to an object still present in
// this repository's history (false after a rewrite or a shallow prune).
func (p *Provider) CommitExists(ctx context.Context, ref string) bool {
	cmd := exec.CommandContext(ctx, "git", "cat-file", "-e", ref+"^{commit}")
	cmd.Dir = p.repoRoot
	return cmd.Run() == nil
}

// LsFiles lists every path tracked by git, relative to the repository root.
func (p *Provider) LsFiles(ctx context.Context) ([]string, error) {
	out, err := p.run(ctx, "ls-files")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// StatusChanges reports the working-tree status: modified/untracked files as
// Added/Modified changes, deleted files as Deleted, and renames as a single
// Renamed change carrying both paths. Paths are repository-relative.
func (p *Provider) StatusChanges(ctx context.Context) ([]Change, error) {
	out, err := p.run(ctx, "status", "--porcelain", "-uall")
	if err != nil {
		return nil, err
	}

	var changes []Change
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		rest := line[3:]

		if idx := strings.Index(rest, " -> "); idx >= 0 {
			changes = append(changes, Change{OldPath: rest[:idx], Path: rest[idx+4:], Kind: ChangeRenamed})
			continue
		}

		switch {
		case strings.Contains(code, "D"):
			changes = append(changes, Change{Path: rest, Kind: ChangeDeleted})
		case code == "??":
			changes = append(changes, Change{Path: rest, Kind: ChangeAdded})
		default:
			changes = append(changes, Change{Path: rest, Kind: ChangeModified})
		}
	}
	return changes, scanner.Err()
}

// DiffNameStatus computes the tree diff between two commits, detecting
// renames. Paths are repository-relative.
func (p *Provider) DiffNameStatus(ctx context.Context, oldRef, newRef string) ([]Change, error) {
	out, err := p.run(ctx, "diff", "--name-status", "-M", oldRef, newRef)
	if err != nil {
		return nil, err
	}

	var changes []Change
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		status := fields[0]

		switch status[0] {
		case 'A':
			changes = append(changes, Change{Path: fields[1], Kind: ChangeAdded})
		case 'D':
			changes = append(changes, Change{Path: fields[1], Kind: ChangeDeleted})
		case 'R':
			if len(fields) >= 3 {
				changes = append(changes, Change{OldPath: fields[1], Path: fields[2], Kind: ChangeRenamed})
			}
		default:
			changes = append(changes, Change{Path: fields[1], Kind: ChangeModified})
		}
	}
	return changes, scanner.Err()
}

// PrimaryWorktree returns the path of the first (primary) worktree listed for
// this repository, which may be the same as p.Root() if there is only one.
func (p *Provider) PrimaryWorktree(ctx context.Context) (string, error) {
	out, err := p.run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return "", err
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if rest, ok := strings.CutPrefix(line, "worktree "); ok {
			return rest, nil
		}
	}
	return "", fmt.Errorf("git worktree list: no worktree entries")
}

func splitLines(out []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// IsRepo reports whether dir itself contains a .git entry (file or
// directory; the former covers submodules and linked worktrees).
func IsRepo(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

package gitservice

import (
	"context"
	"errors"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	gogithttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Remote는 실제 git 전송을 담당합니다. 두 메서드 모두 완료 후 HEAD 커밋 해시를 반환합니다.
type Remote interface {
	Clone(ctx context.Context, dir, url, branch string) (string, error)
	Pull(ctx context.Context, dir, token string) (string, error)
}

// GoGitRemote는 go-git으로 clone/pull 합니다. 외부 git 바이너리가 필요 없습니다.
type GoGitRemote struct{}

func (GoGitRemote) Clone(ctx context.Context, dir, url, branch string) (string, error) {
	opts := &gogit.CloneOptions{
		URL:          url,
		SingleBranch: true,
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}

	repo, err := gogit.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		return "", err
	}
	return headCommit(repo)
}

// Pull은 clone 당시의 origin URL을 사용합니다. token이 있으면 BasicAuth로 덧붙입니다.
func (GoGitRemote) Pull(ctx context.Context, dir, token string) (string, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("failed to open repo: %w", err)
	}
	w, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}

	opts := &gogit.PullOptions{
		RemoteName:   "origin",
		SingleBranch: true,
	}
	if head, err := repo.Head(); err == nil && head.Name().IsBranch() {
		opts.ReferenceName = head.Name()
	}
	if token != "" {
		opts.Auth = &gogithttp.BasicAuth{
			Username: "x-access-token",
			Password: token,
		}
	}

	err = w.PullContext(ctx, opts)
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return "", err
	}
	return headCommit(repo)
}

func headCommit(repo *gogit.Repository) (string, error) {
	ref, err := repo.Head()
	if err != nil {
		return "", err
	}
	return ref.Hash().String(), nil
}

// HeadCommit은 이미 clone된 dir의 HEAD 커밋을 읽습니다.
func HeadCommit(dir string) (string, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return "", err
	}
	return headCommit(repo)
}

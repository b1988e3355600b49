// Package gitservice는 사용자 저장소를 base_dir/owner/repo 에 clone/pull 합니다.
package gitservice

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"deploy-controller/internal/errs"
	"deploy-controller/internal/fsutil"
	"deploy-controller/internal/logging"
	"deploy-controller/internal/models"
)

// WorkingDirectory는 clone된 저장소 루트와 HEAD 커밋입니다.
type WorkingDirectory struct {
	Path   string
	Commit string
}

// ShortCommit은 이미지 태그로 쓰는 12자리 커밋 해시입니다.
func (w WorkingDirectory) ShortCommit() string {
	if len(w.Commit) > 12 {
		return w.Commit[:12]
	}
	return w.Commit
}

type GitService struct {
	baseDir  string
	remote   Remote
	cloneURL func(owner, repo, token string) string
}

func NewGitService(baseDir string, remote Remote) *GitService {
	return &GitService{
		baseDir:  baseDir,
		remote:   remote,
		cloneURL: githubURL,
	}
}

// githubURL은 토큰을 URL에 포함시킵니다. 이후 webhook pull은 토큰 없이도 origin으로 인증됩니다.
func githubURL(owner, repo, token string) string {
	u := url.URL{Scheme: "https", Host: "github.com", Path: fmt.Sprintf("/%s/%s.git", owner, repo)}
	if token != "" {
		u.User = url.UserPassword("x-access-token", token)
	}
	return u.String()
}

// Dir은 (owner, repo)의 clone 경로입니다. 호출 전 식별자 검증이 끝나 있어야 합니다.
func (s *GitService) Dir(owner, repo string) string {
	return filepath.Join(s.baseDir, owner, repo)
}

// Clone은 디렉토리가 이미 있으면 다시 받지 않고 기존 경로를 반환합니다.
func (s *GitService) Clone(ctx context.Context, owner, repo, branch, token string) (*WorkingDirectory, error) {
	const op = "git.clone"
	if err := validatePair(owner, repo); err != nil {
		return nil, err
	}
	dir := s.Dir(owner, repo)
	log := logging.Ctx(ctx).With().Str("dir", dir).Logger()

	exists, err := fsutil.Exists(dir)
	if err != nil {
		return nil, errs.E(errs.KindAcquisition, op, err)
	}
	if exists {
		commit, err := HeadCommit(dir)
		if err != nil {
			log.Warn().Err(err).Msg("existing clone has no readable HEAD")
		}
		log.Info().Msg("저장소가 이미 존재합니다. clone 생략")
		return &WorkingDirectory{Path: dir, Commit: commit}, nil
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, errs.E(errs.KindAcquisition, op, err)
	}

	log.Info().Str("branch", branch).Msg("git clone 시작")
	commit, err := s.remote.Clone(ctx, dir, s.cloneURL(owner, repo, token), branch)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, errs.Errorf(errs.KindAcquisition, op, "git clone failed for %s/%s: %s", owner, repo, redact(err.Error(), token))
	}

	// 빌드 프로세스가 읽을 수 있도록 umask와 무관하게 0755
	if err := os.Chmod(dir, 0o755); err != nil {
		return nil, errs.E(errs.KindAcquisition, op, err)
	}
	return &WorkingDirectory{Path: dir, Commit: commit}, nil
}

// Pull은 기존 clone을 갱신합니다. 디렉토리가 없으면 errs.ErrNotCloned.
func (s *GitService) Pull(ctx context.Context, owner, repo, token string) (*WorkingDirectory, error) {
	const op = "git.pull"
	if err := validatePair(owner, repo); err != nil {
		return nil, err
	}
	dir := s.Dir(owner, repo)

	exists, err := fsutil.Exists(dir)
	if err != nil {
		return nil, errs.E(errs.KindAcquisition, op, err)
	}
	if !exists {
		return nil, errs.E(errs.KindAcquisition, op, errs.ErrNotCloned)
	}

	logging.Ctx(ctx).Info().Str("dir", dir).Msg("git pull")
	commit, err := s.remote.Pull(ctx, dir, token)
	if err != nil {
		return nil, errs.Errorf(errs.KindAcquisition, op, "git pull failed for %s/%s: %s", owner, repo, redact(err.Error(), token))
	}
	return &WorkingDirectory{Path: dir, Commit: commit}, nil
}

func validatePair(owner, repo string) error {
	if err := models.ValidateIdentifier("owner", owner); err != nil {
		return err
	}
	return models.ValidateIdentifier("repo_name", repo)
}

func redact(msg, token string) string {
	if token == "" {
		return msg
	}
	return strings.ReplaceAll(msg, token, "***")
}

// Package githubservice는 사용자 토큰으로 GitHub REST API를 호출합니다.
package githubservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"deploy-controller/internal/errs"
	"deploy-controller/internal/logging"
)

var (
	ErrUnauthorized = errors.New("github: bad credentials")
	ErrForbidden    = errors.New("github: forbidden")
	ErrNotFound     = errors.New("github: not found")
)

// StatusError는 401/403/404 이외의 실패 응답입니다. 본문을 그대로 담습니다.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github: unexpected status %d: %s", e.Code, e.Body)
}

type Repository struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Private       bool      `json:"private"`
	HTMLURL       string    `json:"html_url"`
	Description   string    `json:"description"`
	Language      string    `json:"language"`
	DefaultBranch string    `json:"default_branch"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Commit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

type TreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"` // tree / blob
	SHA  string `json:"sha"`
}

// HookConfig는 push webhook 등록 정보입니다.
type HookConfig struct {
	URL    string
	Secret string
}

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// 초당 요청 수. 0이면 10
	RateLimit float64
}

type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*response]
}

type response struct {
	status int
	body   []byte
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.github.com"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}

	log := logging.WithComponent("github")
	settings := gobreaker.Settings{
		Name:        "github-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    opts.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), int(opts.RateLimit)+1),
		breaker: gobreaker.NewCircuitBreaker[*response](settings),
	}
}

// ListRepositories: GET /users/{owner}/repos
func (c *Client) ListRepositories(ctx context.Context, token, owner string) ([]Repository, error) {
	var out []Repository
	err := c.do(ctx, "github.list_repositories", http.MethodGet, token, "/users/"+url.PathEscape(owner)+"/repos", nil, &out)
	return out, err
}

// GetRepository: GET /repos/{owner}/{repo}
func (c *Client) GetRepository(ctx context.Context, token, owner, repo string) (*Repository, error) {
	var out Repository
	if err := c.do(ctx, "github.get_repository", http.MethodGet, token, repoPath(owner, repo), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Languages: GET /repos/{owner}/{repo}/languages (언어 → 바이트 수)
func (c *Client) Languages(ctx context.Context, token, owner, repo string) (map[string]int64, error) {
	out := map[string]int64{}
	err := c.do(ctx, "github.languages", http.MethodGet, token, repoPath(owner, repo)+"/languages", nil, &out)
	return out, err
}

// LatestCommit: GET /repos/{owner}/{repo}/commits/{branch}
func (c *Client) LatestCommit(ctx context.Context, token, owner, repo, branch string) (*Commit, error) {
	var out Commit
	if err := c.do(ctx, "github.latest_commit", http.MethodGet, token, repoPath(owner, repo)+"/commits/"+url.PathEscape(branch), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DirectoryTree는 sha(비어 있으면 branch의 최신 커밋) 트리에서 디렉토리 항목만 반환합니다.
func (c *Client) DirectoryTree(ctx context.Context, token, owner, repo, branch, sha string) ([]TreeEntry, error) {
	if sha == "" {
		commit, err := c.LatestCommit(ctx, token, owner, repo, branch)
		if err != nil {
			return nil, err
		}
		sha = commit.SHA
	}

	var out struct {
		Tree []TreeEntry `json:"tree"`
	}
	if err := c.do(ctx, "github.tree", http.MethodGet, token, repoPath(owner, repo)+"/git/trees/"+url.PathEscape(sha), nil, &out); err != nil {
		return nil, err
	}

	dirs := make([]TreeEntry, 0, len(out.Tree))
	for _, e := range out.Tree {
		if e.Type == "tree" {
			dirs = append(dirs, e)
		}
	}
	return dirs, nil
}

// CreateHook은 push 이벤트 webhook을 등록하고 hook id를 반환합니다.
func (c *Client) CreateHook(ctx context.Context, token, owner, repo string, hook HookConfig) (int64, error) {
	payload := map[string]any{
		"name":   "web",
		"active": true,
		"events": []string{"push"},
		"config": map[string]string{
			"url":          hook.URL,
			"content_type": "json",
			"secret":       hook.Secret,
			"insecure_ssl": "0",
		},
	}
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, "github.create_hook", http.MethodPost, token, repoPath(owner, repo)+"/hooks", payload, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

func repoPath(owner, repo string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
}

func (c *Client) do(ctx context.Context, op, method, token, path string, body, out any) error {
	if token == "" {
		return errs.E(errs.KindUnauthorized, op, ErrUnauthorized)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return errs.E(errs.KindInternal, op, err)
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errs.E(errs.KindInternal, op, err)
		}
		payload = b
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		res, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		data, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
		if err != nil {
			return nil, err
		}
		r := &response{status: res.StatusCode, body: data}
		// 5xx만 breaker 실패로 집계
		if res.StatusCode >= 500 {
			return r, &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		return r, nil
	})
	if err != nil {
		return errs.E(errs.KindInternal, op, err)
	}

	switch {
	case resp.status == http.StatusUnauthorized:
		return errs.E(errs.KindUnauthorized, op, ErrUnauthorized)
	case resp.status == http.StatusForbidden:
		return errs.E(errs.KindUnauthorized, op, ErrForbidden)
	case resp.status == http.StatusNotFound:
		return errs.E(errs.KindNotFound, op, ErrNotFound)
	case resp.status < 200 || resp.status >= 300:
		return errs.E(errs.KindInternal, op, &StatusError{Code: resp.status, Body: strings.TrimSpace(string(resp.body))})
	}

	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return errs.E(errs.KindInternal, op, fmt.Errorf("decode %s response: %w", path, err))
	}
	return nil
}

package terraformservice

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/hashicorp/terraform-exec/tfexec"
)

// Vars는 -var 로 전달할 terraform 변수입니다.
type Vars map[string]string

// Compact는 값이 빈 변수를 제거한 복사본을 반환합니다.
// 빈 문자열을 넘기면 모듈의 기본값을 덮어쓰므로 아예 전달하지 않습니다.
func (v Vars) Compact() Vars {
	out := Vars{}
	for k, val := range v {
		if strings.TrimSpace(val) != "" {
			out[k] = val
		}
	}
	return out
}

// Keys는 정렬된 변수 이름 목록입니다.
func (v Vars) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OutputValue는 `terraform output -json`의 값 하나입니다.
type OutputValue struct {
	Value     json.RawMessage `json:"value"`
	Sensitive bool            `json:"sensitive"`
}

// String은 문자열 출력 값을 반환합니다. 문자열이 아니거나 비어 있으면 ok=false.
func (o OutputValue) String() (string, bool) {
	if len(o.Value) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(o.Value, &s); err != nil {
		return "", false
	}
	return s, strings.TrimSpace(s) != ""
}

type Outputs map[string]OutputValue

// RequireStrings는 keys의 문자열 값을 모두 꺼냅니다. 빠진 키 목록도 함께 반환합니다.
func (o Outputs) RequireStrings(keys ...string) (map[string]string, []string) {
	values := map[string]string{}
	var missing []string
	for _, k := range keys {
		v, ok := o[k].String()
		if !ok {
			missing = append(missing, k)
			continue
		}
		values[k] = v
	}
	return values, missing
}

// Runner는 IaC CLI 호출을 추상화합니다. 모든 호출은 ctx가 끝나면 프로세스를 종료합니다.
type Runner interface {
	Init(ctx context.Context, dir string) error
	Apply(ctx context.Context, dir string, vars Vars) error
	Output(ctx context.Context, dir string) (Outputs, error)
	Destroy(ctx context.Context, dir string, vars Vars) error
}

// ExecRunner는 terraform-exec으로 terraform 바이너리를 실행합니다.
type ExecRunner struct {
	binPath string
}

func NewExecRunner(binPath string) *ExecRunner {
	return &ExecRunner{binPath: binPath}
}

type captured struct {
	tf     *tfexec.Terraform
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func (r *ExecRunner) open(dir string) (*captured, error) {
	tf, err := tfexec.NewTerraform(dir, r.binPath)
	if err != nil {
		return nil, fmt.Errorf("terraform in %s: %w", dir, err)
	}
	c := &captured{tf: tf, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	tf.SetStdout(c.stdout)
	tf.SetStderr(c.stderr)
	return c, nil
}

// wrap은 실패 시 stdout/stderr 끝부분을 에러에 붙입니다.
func (c *captured) wrap(step string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("terraform %s failed: %w\nstdout:\n%s\nstderr:\n%s",
		step, err, tail(c.stdout.String(), 4000), tail(c.stderr.String(), 4000))
}

func (r *ExecRunner) Init(ctx context.Context, dir string) error {
	c, err := r.open(dir)
	if err != nil {
		return err
	}
	return c.wrap("init", c.tf.Init(ctx, tfexec.Upgrade(false)))
}

func (r *ExecRunner) Apply(ctx context.Context, dir string, vars Vars) error {
	c, err := r.open(dir)
	if err != nil {
		return err
	}
	// tfexec.Apply는 -auto-approve -input=false 로 실행되며 별도 plan 단계가 없음
	return c.wrap("apply", c.tf.Apply(ctx, varOptions[tfexec.ApplyOption](vars)...))
}

func (r *ExecRunner) Destroy(ctx context.Context, dir string, vars Vars) error {
	c, err := r.open(dir)
	if err != nil {
		return err
	}
	return c.wrap("destroy", c.tf.Destroy(ctx, varOptions[tfexec.DestroyOption](vars)...))
}

func (r *ExecRunner) Output(ctx context.Context, dir string) (Outputs, error) {
	c, err := r.open(dir)
	if err != nil {
		return nil, err
	}
	meta, err := c.tf.Output(ctx)
	if err != nil {
		return nil, c.wrap("output", err)
	}
	out := Outputs{}
	for k, m := range meta {
		out[k] = OutputValue{Value: json.RawMessage(m.Value), Sensitive: m.Sensitive}
	}
	return out, nil
}

func varOptions[T any](vars Vars) []T {
	opts := make([]T, 0, len(vars))
	for _, k := range vars.Keys() {
		var opt any = tfexec.Var(fmt.Sprintf("%s=%s", k, vars[k]))
		opts = append(opts, opt.(T))
	}
	return opts
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

package credentialservice

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy-controller/internal/errs"
	"deploy-controller/internal/models"
	tf "deploy-controller/internal/services/terraform_service"
)

type memStore struct {
	mu   sync.Mutex
	rows map[string]models.TenantIdentity
}

func newMemStore() *memStore { return &memStore{rows: map[string]models.TenantIdentity{}} }

func (m *memStore) FindByOwner(ctx context.Context, ownerID string) (*models.TenantIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[ownerID]
	if !ok {
		return nil, nil
	}
	// DB에서 읽은 것처럼 평문 비밀 키는 비워서 반환
	row.CloudSecretKey = ""
	row.SealedSecretKey = append([]byte(nil), row.SealedSecretKey...)
	return &row, nil
}

func (m *memStore) Insert(ctx context.Context, id *models.TenantIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id.OwnerID]; ok {
		return errs.Errorf(errs.KindConflict, "insert", "duplicate")
	}
	m.rows[id.OwnerID] = *id
	return nil
}

type iamRunner struct {
	applies atomic.Int32
	dirs    chan string
	delay   time.Duration
	outputs tf.Outputs
}

func (r *iamRunner) Init(ctx context.Context, dir string) error { return nil }

func (r *iamRunner) Apply(ctx context.Context, dir string, vars tf.Vars) error {
	r.applies.Add(1)
	if r.dirs != nil {
		r.dirs <- dir
	}
	time.Sleep(r.delay)
	return nil
}

func (r *iamRunner) Output(ctx context.Context, dir string) (tf.Outputs, error) {
	return r.outputs, nil
}

func (r *iamRunner) Destroy(ctx context.Context, dir string, vars tf.Vars) error { return nil }

func out(v string) tf.OutputValue {
	b, _ := json.Marshal(v)
	return tf.OutputValue{Value: b}
}

func fullOutputs() tf.Outputs {
	return tf.Outputs{
		OutputAccessKey: out("AKIAEXAMPLE"),
		OutputSecretKey: out("wJalrXUtnFEMI/K7MDENG"),
		OutputAccountID: out("123456789012"),
		OutputRoleARN:   out("arn:aws:iam::123456789012:role/paas-1001"),
	}
}

func newService(t *testing.T, store IdentityStore, runner tf.Runner) (*CredentialService, string) {
	t.Helper()
	moduleDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(moduleDir, "main.tf"), []byte("# iam"), 0o644))
	stateDir := t.TempDir()

	var key [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")
	return NewCredentialService(store, runner, NewSealer(key), moduleDir, stateDir), stateDir
}

func TestGetOrCreate_ProvisionsOnce(t *testing.T) {
	store := newMemStore()
	runner := &iamRunner{outputs: fullOutputs()}
	svc, stateDir := newService(t, store, runner)
	ctx := context.Background()

	first, err := svc.GetOrCreate(ctx, "1001")
	require.NoError(t, err)
	second, err := svc.GetOrCreate(ctx, "1001")
	require.NoError(t, err)

	assert.EqualValues(t, 1, runner.applies.Load())
	assert.Equal(t, "AKIAEXAMPLE", second.CloudAccessKey)
	assert.Equal(t, "wJalrXUtnFEMI/K7MDENG", second.CloudSecretKey)
	assert.Equal(t, first.CloudAccessKey, second.CloudAccessKey)
	assert.Equal(t, first.CloudSecretKey, second.CloudSecretKey)
	assert.Equal(t, first.RoleARN, second.RoleARN)
	assert.Equal(t, first.CloudAccountID, second.CloudAccountID)
	assert.Equal(t, models.DefaultIdentityGroup, second.Group)

	// 모듈은 사용자별 디렉토리로 복사됨
	_, err = os.Stat(filepath.Join(stateDir, "1001", "main.tf"))
	assert.NoError(t, err)

	// 저장소에는 평문이 남지 않음
	stored := store.rows["1001"]
	assert.NotContains(t, string(stored.SealedSecretKey), "wJalrXUtnFEMI")
}

func TestGetOrCreate_ConcurrentCallsShareProvisioning(t *testing.T) {
	runner := &iamRunner{outputs: fullOutputs(), delay: 50 * time.Millisecond}
	svc, _ := newService(t, newMemStore(), runner)

	var wg sync.WaitGroup
	results := make([]*models.TenantIdentity, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := svc.GetOrCreate(context.Background(), "1001")
			assert.NoError(t, err)
			results[i] = id
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, runner.applies.Load())
	for _, id := range results {
		require.NotNil(t, id)
		assert.Equal(t, "AKIAEXAMPLE", id.CloudAccessKey)
	}
}

func TestGetOrCreate_DifferentOwnersAreIsolated(t *testing.T) {
	runner := &iamRunner{outputs: fullOutputs(), dirs: make(chan string, 2)}
	svc, stateDir := newService(t, newMemStore(), runner)

	_, err := svc.GetOrCreate(context.Background(), "1001")
	require.NoError(t, err)
	_, err = svc.GetOrCreate(context.Background(), "2002")
	require.NoError(t, err)

	assert.EqualValues(t, 2, runner.applies.Load())
	assert.Equal(t, filepath.Join(stateDir, "1001"), <-runner.dirs)
	assert.Equal(t, filepath.Join(stateDir, "2002"), <-runner.dirs)
}

func TestGetOrCreate_MissingOutputPersistsNothing(t *testing.T) {
	outputs := fullOutputs()
	delete(outputs, OutputRoleARN)
	store := newMemStore()
	svc, _ := newService(t, store, &iamRunner{outputs: outputs})

	_, err := svc.GetOrCreate(context.Background(), "1001")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindProvisioning))
	assert.Contains(t, err.Error(), OutputRoleARN)
	assert.Empty(t, store.rows)
}

func TestGetOrCreate_RejectsBadOwnerID(t *testing.T) {
	runner := &iamRunner{outputs: fullOutputs()}
	svc, _ := newService(t, newMemStore(), runner)

	_, err := svc.GetOrCreate(context.Background(), "")
	assert.True(t, errs.Is(err, errs.KindValidation))

	_, err = svc.GetOrCreate(context.Background(), "../etc")
	assert.True(t, errs.Is(err, errs.KindValidation))
	assert.Zero(t, runner.applies.Load())
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newService(t, newMemStore(), &iamRunner{})
	_, err := svc.Get(context.Background(), "404")
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestSealer_RoundTrip(t *testing.T) {
	var key [32]byte
	s := NewSealer(key)

	a, err := s.Seal("secret")
	require.NoError(t, err)
	b, err := s.Seal("secret")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonce must differ")

	plain, err := s.Open(a)
	require.NoError(t, err)
	assert.Equal(t, "secret", plain)

	a[len(a)-1] ^= 0xff
	_, err = s.Open(a)
	assert.Error(t, err)

	_, err = s.Open([]byte("short"))
	assert.Error(t, err)

	var other [32]byte
	other[0] = 1
	_, err = NewSealer(other).Open(b)
	assert.Error(t, err)
}

// gatedRunner는 release가 닫힐 때까지 apply를 붙잡고, 그 시점의 ctx 상태를 기록합니다.
type gatedRunner struct {
	iamRunner
	started     chan struct{}
	release     chan struct{}
	applyCtxErr atomic.Value
}

func (r *gatedRunner) Apply(ctx context.Context, dir string, vars tf.Vars) error {
	r.applies.Add(1)
	close(r.started)
	<-r.release
	if err := ctx.Err(); err != nil {
		r.applyCtxErr.Store(err)
		return err
	}
	return nil
}

func TestGetOrCreate_FirstCallerCancelDoesNotFailOthers(t *testing.T) {
	store := newMemStore()
	runner := &gatedRunner{
		iamRunner: iamRunner{outputs: fullOutputs()},
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	svc, _ := newService(t, store, runner)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GetOrCreate(firstCtx, "1001")
		firstErr <- err
	}()
	<-runner.started

	second := make(chan *models.TenantIdentity, 1)
	secondErr := make(chan error, 1)
	go func() {
		id, err := svc.GetOrCreate(context.Background(), "1001")
		second <- id
		secondErr <- err
	}()

	// 첫 호출자는 포기하지만 발급은 계속됨
	cancelFirst()
	err := <-firstErr
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	close(runner.release)
	require.NoError(t, <-secondErr)
	id := <-second
	require.NotNil(t, id)
	assert.Equal(t, "AKIAEXAMPLE", id.CloudAccessKey)

	assert.Nil(t, runner.applyCtxErr.Load())
	assert.EqualValues(t, 1, runner.applies.Load())
}

// Package credentialservice는 GitHub 사용자별 AWS IAM 자격 증명을 최초 배포 시 발급하고 재사용합니다.
package credentialservice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"deploy-controller/internal/errs"
	"deploy-controller/internal/fsutil"
	"deploy-controller/internal/logging"
	"deploy-controller/internal/models"
	tf "deploy-controller/internal/services/terraform_service"
)

// IAM 모듈 출력 키
const (
	OutputAccessKey = "aws_access_key"
	OutputSecretKey = "aws_secret_access_key"
	OutputAccountID = "aws_account_id"
	OutputRoleARN   = "iam_role_arn"
)

// IdentityStore는 TenantIdentity 영속화 계층입니다.
// FindByOwner는 없으면 (nil, nil), Insert는 owner 중복 시 KindConflict를 반환해야 합니다.
type IdentityStore interface {
	FindByOwner(ctx context.Context, ownerID string) (*models.TenantIdentity, error)
	Insert(ctx context.Context, id *models.TenantIdentity) error
}

type CredentialService struct {
	store     IdentityStore
	runner    tf.Runner
	sealer    *Sealer
	moduleDir string // IAM 모듈 원본
	stateDir  string // 사용자별 복사본 + tfstate
	group     singleflight.Group
	now       func() time.Time

	// 공유 발급 한 번의 최대 시간. 첫 호출자의 취소와 무관하게 적용
	provisionTimeout time.Duration
}

const defaultProvisionTimeout = 15 * time.Minute

func NewCredentialService(store IdentityStore, runner tf.Runner, sealer *Sealer, moduleDir, stateDir string) *CredentialService {
	return &CredentialService{
		store:     store,
		runner:    runner,
		sealer:    sealer,
		moduleDir: moduleDir,
		stateDir:  stateDir,
		now:       time.Now,

		provisionTimeout: defaultProvisionTimeout,
	}
}

// Get은 저장된 자격 증명을 반환합니다. 없으면 KindNotFound.
func (s *CredentialService) Get(ctx context.Context, ownerID string) (*models.TenantIdentity, error) {
	const op = "credential.get"
	id, err := s.lookup(ctx, ownerID)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, err)
	}
	if id == nil {
		return nil, errs.Errorf(errs.KindNotFound, op, "no identity for owner %s", ownerID)
	}
	return id, nil
}

// GetOrCreate는 기존 자격 증명을 그대로 반환하고, 없으면 IAM 모듈을 적용해 새로 발급합니다.
// 같은 ownerID에 대한 동시 호출은 한 번의 발급으로 합쳐집니다.
func (s *CredentialService) GetOrCreate(ctx context.Context, ownerID string) (*models.TenantIdentity, error) {
	const op = "credential.get_or_create"
	if ownerID == "" {
		return nil, errs.Errorf(errs.KindValidation, op, "owner id is required")
	}

	if id, err := s.lookup(ctx, ownerID); err != nil {
		return nil, errs.E(errs.KindInternal, op, err)
	} else if id != nil {
		return id, nil
	}

	ch := s.group.DoChan(ownerID, func() (any, error) {
		// 대기 중인 다른 호출자가 있으므로 첫 호출자의 취소를 전파하지 않음
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.provisionTimeout)
		defer cancel()

		// 앞선 호출이 방금 끝났을 수 있음
		if id, err := s.lookup(pctx, ownerID); err != nil || id != nil {
			return id, err
		}
		return s.provision(pctx, ownerID)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, errs.E(errs.KindProvisioning, op, ctx.Err())
	}
	v, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		var typed *errs.Error
		if errors.As(err, &typed) {
			return nil, err
		}
		return nil, errs.E(errs.KindInternal, op, err)
	}
	if shared {
		logging.Ctx(ctx).Debug().Str("owner_id", ownerID).Msg("identity creation shared with in-flight call")
	}

	// 호출자끼리 같은 포인터를 공유하지 않도록 복사
	id := *v.(*models.TenantIdentity)
	return &id, nil
}

func (s *CredentialService) provision(ctx context.Context, ownerID string) (*models.TenantIdentity, error) {
	const op = "credential.provision"
	log := logging.Ctx(ctx).With().Str("owner_id", ownerID).Logger()

	if err := models.ValidatePathSegment("owner_id", ownerID); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.stateDir, ownerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.E(errs.KindProvisioning, op, err)
	}
	// 기존 tfstate 보존을 위해 이미 있는 파일은 덮어쓰지 않음
	if err := fsutil.CopyTree(s.moduleDir, dir, true); err != nil {
		return nil, errs.E(errs.KindProvisioning, op, err)
	}

	log.Info().Str("dir", dir).Msg("IAM 자격 증명 발급 시작")
	if err := s.runner.Init(ctx, dir); err != nil {
		return nil, errs.E(errs.KindProvisioning, op, err)
	}
	if err := s.runner.Apply(ctx, dir, tf.Vars{"user_github_id": ownerID}); err != nil {
		return nil, errs.E(errs.KindProvisioning, op, err)
	}
	outputs, err := s.runner.Output(ctx, dir)
	if err != nil {
		return nil, errs.E(errs.KindProvisioning, op, err)
	}
	values, missing := outputs.RequireStrings(OutputAccessKey, OutputSecretKey, OutputAccountID, OutputRoleARN)
	if len(missing) > 0 {
		return nil, errs.E(errs.KindProvisioning, op, errs.NewMissingOutputError(missing))
	}

	sealed, err := s.sealer.Seal(values[OutputSecretKey])
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, err)
	}
	id := &models.TenantIdentity{
		OwnerID:         ownerID,
		CloudAccessKey:  values[OutputAccessKey],
		CloudSecretKey:  values[OutputSecretKey],
		SealedSecretKey: sealed,
		CloudAccountID:  values[OutputAccountID],
		RoleARN:         values[OutputRoleARN],
		Group:           models.DefaultIdentityGroup,
		CreatedAt:       s.now().UTC(),
	}

	if err := s.store.Insert(ctx, id); err != nil {
		if errs.Is(err, errs.KindConflict) {
			// 다른 프로세스가 먼저 저장함. 저장된 쪽이 정본
			log.Warn().Msg("identity already stored by another writer, rereading")
			existing, rerr := s.lookup(ctx, ownerID)
			if rerr != nil {
				return nil, errs.E(errs.KindInternal, op, rerr)
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, errs.E(errs.KindInternal, op, err)
	}

	log.Info().Str("role_arn", id.RoleARN).Msg("IAM 자격 증명 발급 완료")
	return id, nil
}

func (s *CredentialService) lookup(ctx context.Context, ownerID string) (*models.TenantIdentity, error) {
	id, err := s.store.FindByOwner(ctx, ownerID)
	if err != nil || id == nil {
		return nil, err
	}
	secret, err := s.sealer.Open(id.SealedSecretKey)
	if err != nil {
		return nil, err
	}
	id.CloudSecretKey = secret
	return id, nil
}


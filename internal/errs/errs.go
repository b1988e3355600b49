// Package errs는 배포 파이프라인 전체에서 사용하는 에러 분류(Kind)를 정의합니다.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind string

const (
	KindValidation      Kind = "validation"
	KindProvisioning    Kind = "provisioning"
	KindAcquisition     Kind = "acquisition"
	KindMaterialization Kind = "materialization"
	KindBuildTrigger    Kind = "build_trigger"
	KindNotFound        Kind = "not_found"
	KindUnauthorized    Kind = "unauthorized"
	KindConflict        Kind = "conflict"
	KindInternal        Kind = "internal"
)

var (
	// ErrNotCloned: pull 대상 디렉토리가 없음. 호출자는 clone을 먼저 수행해야 합니다.
	ErrNotCloned = errors.New("repository is not cloned yet")

	ErrInvalidFrameworkName = errors.New("invalid framework name")
)

// Error는 어떤 단계(Op)에서 어떤 종류(Kind)의 실패가 일어났는지 담습니다.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E는 err를 kind/op로 감쌉니다. err가 nil이면 nil을 반환합니다.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf는 포맷 문자열로 새 에러를 만들어 감쌉니다.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf는 체인에서 가장 바깥의 *Error Kind를 반환합니다. 없으면 KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MissingOutputError는 IaC 출력에서 필수 키가 빠졌을 때 반환됩니다.
type MissingOutputError struct {
	Keys []string
}

func NewMissingOutputError(keys []string) *MissingOutputError {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return &MissingOutputError{Keys: sorted}
}

func (e *MissingOutputError) Error() string {
	return "missing required outputs: " + strings.Join(e.Keys, ", ")
}

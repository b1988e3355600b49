package models

import "strings"

// PushEvent는 GitHub push 이벤트 페이로드 중 필요한 필드만 담습니다.
type PushEvent struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
			Name  string `json:"name"`
		} `json:"owner"`
	} `json:"repository"`
}

// OwnerLogin은 owner.login이 없을 때 owner.name으로 대체합니다.
func (e *PushEvent) OwnerLogin() string {
	if e.Repository.Owner.Login != "" {
		return e.Repository.Owner.Login
	}
	return e.Repository.Owner.Name
}

// Branch는 refs/heads/ 접두사를 제거한 브랜치 이름입니다. 태그 push면 빈 문자열.
func (e *PushEvent) Branch() string {
	if !strings.HasPrefix(e.Ref, "refs/heads/") {
		return ""
	}
	return strings.TrimPrefix(e.Ref, "refs/heads/")
}

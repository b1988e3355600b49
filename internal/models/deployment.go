package models

import "gorm.io/gorm"

type EnumDeploymentStatus string

const (
	DeploymentStatusPending EnumDeploymentStatus = "pending"
	DeploymentStatusSuccess EnumDeploymentStatus = "success"
	DeploymentStatusFailed  EnumDeploymentStatus = "failed"
)

// DeployStage는 오케스트레이터 상태 머신의 상태입니다.
// received → identity_ready → cloned → materialized → provisioned → build_started → recorded
// 어느 단계에서든 failed 로 갈 수 있습니다.
type DeployStage string

const (
	StageReceived      DeployStage = "received"
	StageIdentityReady DeployStage = "identity_ready"
	StageCloned        DeployStage = "cloned"
	StageMaterialized  DeployStage = "materialized"
	StageProvisioned   DeployStage = "provisioned"
	StageBuildStarted  DeployStage = "build_started"
	StageRecorded      DeployStage = "recorded"
	StageFailed        DeployStage = "failed"
)

var stageOrder = map[DeployStage]int{
	StageReceived:      0,
	StageIdentityReady: 1,
	StageCloned:        2,
	StageMaterialized:  3,
	StageProvisioned:   4,
	StageBuildStarted:  5,
	StageRecorded:      6,
}

// CanAdvance는 from → to 전이가 허용되는지 반환합니다. 전이는 한 단계씩만 진행됩니다.
// 빌드 제출 실패는 치명적이지 않으므로 provisioned → recorded 는 허용합니다.
func CanAdvance(from, to DeployStage) bool {
	if from == StageFailed || from == StageRecorded {
		return false
	}
	if to == StageFailed {
		return true
	}
	if from == StageProvisioned && to == StageRecorded {
		return true
	}
	f, ok1 := stageOrder[from]
	t, ok2 := stageOrder[to]
	return ok1 && ok2 && t == f+1
}

// Deployment 구조체는 (owner, repo_name) 한 쌍에 대한 배포 시도 한 번을 기록합니다.
// 같은 쌍에 여러 레코드가 쌓일 수 있으며 가장 최근 레코드가 기준입니다.
type Deployment struct {
	gorm.Model
	OwnerID  string `gorm:"column:owner_id;index;not null" json:"owner_id"` // TenantIdentity.OwnerID
	Owner    string `gorm:"column:owner;index:idx_owner_repo;not null" json:"owner"`
	RepoName string `gorm:"column:repo_name;index:idx_owner_repo;not null" json:"repo_name"`
	Branch   string `gorm:"column:branch;not null" json:"branch"`

	Framework      string `gorm:"column:framework;not null" json:"framework"`
	RootFolderPath string `gorm:"column:root_folder_path" json:"root_folder_path"`
	BuildCommand   string `gorm:"column:build_command" json:"build_command"`
	RunCommand     string `gorm:"column:run_command" json:"run_command"`
	Port           int    `gorm:"column:port" json:"port"`
	EntryPoint     string `gorm:"column:entry_point" json:"entry_point"`

	EnvironmentVariables EnvVars `gorm:"column:environment_variables;type:text" json:"environment_variables"`

	AbsolutePath     string  `gorm:"column:absolute_path" json:"absolute_path"`
	PipelinePath     string  `gorm:"column:pipeline_path" json:"pipeline_path"`
	EcrRepoURL       string  `gorm:"column:ecr_repo_url" json:"ecr_repo_url"`
	LoadBalancerURL  string  `gorm:"column:load_balancer_url" json:"load_balancer_url"`
	CodeBuildBuildID *string `gorm:"column:codebuild_build_id" json:"codebuild_build_id"`
	ImageTag         string  `gorm:"column:image_tag" json:"image_tag"`
	WebhookID        string  `gorm:"column:webhook_id" json:"webhook_id"`

	Status        EnumDeploymentStatus `gorm:"column:status;not null" json:"status"`
	Stage         DeployStage          `gorm:"column:stage" json:"stage"` // 마지막으로 도달한 상태
	FailureReason string               `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
}

func (Deployment) TableName() string { return "deployments" }

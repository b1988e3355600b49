package models

// FrameworkCategory는 파이프라인 템플릿의 상위 디렉토리 구분입니다.
type FrameworkCategory string

const (
	CategoryBackend  FrameworkCategory = "backend"
	CategoryFrontend FrameworkCategory = "frontend"
)

// FrameworkDescriptor는 프레임워크별 기본 빌드/실행 설정입니다. 로드 이후 변경되지 않습니다.
type FrameworkDescriptor struct {
	Name         string            `json:"name"`
	DisplayName  string            `json:"display_name"` // 템플릿 디렉토리 이름 (예: FastAPI)
	Category     FrameworkCategory `json:"category"`
	BuildCommand string            `json:"build_command"`
	RunCommand   string            `json:"run_command"`
	EntryPoint   string            `json:"entry_point"`
	DefaultPort  int               `json:"default_port"`
}

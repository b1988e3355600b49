// Package frameworkservice는 프레임워크 카탈로그(이름 → 빌드/실행 기본값)를 제공합니다.
// 카탈로그는 프로세스 시작 시 한 번 로드되며 이후 읽기 전용입니다.
package frameworkservice

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"deploy-controller/internal/errs"
	"deploy-controller/internal/models"

	"k8s.io/apimachinery/pkg/util/yaml"
)

var frameworkNameRegex = regexp.MustCompile(`^[A-Za-z0-9]+$`)

type catalogEntry struct {
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	BuildCommand string `json:"build_command"`
	RunCommand   string `json:"run_command"`
	EntryPoint   string `json:"entry_point"`
	DefaultPort  int    `json:"default_port"`
}

type catalogFile struct {
	Backend  []catalogEntry `json:"backend"`
	Frontend []catalogEntry `json:"frontend"`
}

type Catalog struct {
	byName map[string]models.FrameworkDescriptor
}

// Load는 path의 YAML(또는 JSON) 카탈로그를 읽습니다. 실패는 시작 단계의 치명적 오류입니다.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("framework catalog %s: %w", path, err)
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("framework catalog %s: %w", path, err)
	}
	return c, nil
}

func Parse(r io.Reader) (*Catalog, error) {
	var file catalogFile
	if err := yaml.NewYAMLOrJSONDecoder(r, 4096).Decode(&file); err != nil {
		return nil, fmt.Errorf("malformed catalog: %w", err)
	}

	c := &Catalog{byName: map[string]models.FrameworkDescriptor{}}
	add := func(category models.FrameworkCategory, entries []catalogEntry) error {
		for _, e := range entries {
			d, err := toDescriptor(category, e)
			if err != nil {
				return err
			}
			if _, dup := c.byName[d.Name]; dup {
				return fmt.Errorf("duplicate framework %q", d.Name)
			}
			c.byName[d.Name] = d
		}
		return nil
	}
	if err := add(models.CategoryBackend, file.Backend); err != nil {
		return nil, err
	}
	if err := add(models.CategoryFrontend, file.Frontend); err != nil {
		return nil, err
	}
	if len(c.byName) == 0 {
		return nil, fmt.Errorf("catalog has no frameworks")
	}
	return c, nil
}

func toDescriptor(category models.FrameworkCategory, e catalogEntry) (models.FrameworkDescriptor, error) {
	if !frameworkNameRegex.MatchString(e.Name) {
		return models.FrameworkDescriptor{}, fmt.Errorf("framework name %q must be alphanumeric", e.Name)
	}
	d := models.FrameworkDescriptor{
		Name:         strings.ToLower(e.Name),
		DisplayName:  e.DisplayName,
		Category:     category,
		BuildCommand: e.BuildCommand,
		RunCommand:   e.RunCommand,
		EntryPoint:   e.EntryPoint,
		DefaultPort:  e.DefaultPort,
	}
	if d.DisplayName == "" {
		d.DisplayName = e.Name
	}
	if err := models.ValidatePathSegment("framework", d.DisplayName); err != nil {
		return d, fmt.Errorf("framework %s: %w", d.Name, err)
	}
	for field, v := range map[string]string{"build_command": d.BuildCommand, "run_command": d.RunCommand, "entry_point": d.EntryPoint} {
		if err := models.ValidateCommand(field, v); err != nil {
			return d, fmt.Errorf("framework %s: %w", d.Name, err)
		}
	}
	if d.DefaultPort < 1 || d.DefaultPort > 65535 {
		return d, fmt.Errorf("framework %s: invalid default_port %d", d.Name, d.DefaultPort)
	}
	return d, nil
}

// Resolve는 대소문자 구분 없이 프레임워크를 찾습니다.
func (c *Catalog) Resolve(name string) (models.FrameworkDescriptor, error) {
	if !frameworkNameRegex.MatchString(name) {
		return models.FrameworkDescriptor{}, errs.E(errs.KindValidation, "frameworks.resolve", fmt.Errorf("%w: %q", errs.ErrInvalidFrameworkName, name))
	}
	d, ok := c.byName[strings.ToLower(name)]
	if !ok {
		return models.FrameworkDescriptor{}, errs.Errorf(errs.KindNotFound, "frameworks.resolve", "unsupported framework %q (supported: %s)", name, strings.Join(c.Names(), ", "))
	}
	return d, nil
}

func (c *Catalog) CategoryOf(name string) (models.FrameworkCategory, error) {
	d, err := c.Resolve(name)
	if err != nil {
		return "", err
	}
	return d.Category, nil
}

// Names는 정렬된 프레임워크 이름 목록입니다.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for n := range c.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ByCategory는 카테고리별 프레임워크 목록을 반환합니다.
func (c *Catalog) ByCategory() map[models.FrameworkCategory][]models.FrameworkDescriptor {
	out := map[models.FrameworkCategory][]models.FrameworkDescriptor{}
	for _, n := range c.Names() {
		d := c.byName[n]
		out[d.Category] = append(out[d.Category], d)
	}
	return out
}

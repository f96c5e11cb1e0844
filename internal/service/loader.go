package service

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

/**
 * Runner 服务声明的一个独立runner组件
 * @property {string} name - runner名，服务内唯一，用作socket身份和CLI参数
 * @property {float64} cpu - 声明的CPU配额，worker数按其向上取整
 * @property {int} workers - 显式worker数，优先于cpu推导
 */
type Runner struct {
	Name    string  `mapstructure:"name"`
	CPU     float64 `mapstructure:"cpu"`
	Workers int     `mapstructure:"workers"`
}

// ScheduledWorkerCount derives the desired process count for this runner.
func (r Runner) ScheduledWorkerCount() int {
	if r.Workers > 0 {
		return r.Workers
	}
	if n := int(math.Ceil(r.CPU)); n > 0 {
		return n
	}
	return 1
}

/**
 * Descriptor 已加载服务的不可变视图
 * @property {string} Name - 服务名，临时服务可为空
 * @property {string} Version - 服务版本
 * @property {[]Runner} Runners - 有序的runner列表，可以为空
 * @description
 * - 由加载器持有，编排层只读
 */
type Descriptor struct {
	Name    string   `mapstructure:"name"`
	Version string   `mapstructure:"version"`
	Runners []Runner `mapstructure:"runners"`
}

// RunnerNames returns the declared runner names in declaration order.
func (d *Descriptor) RunnerNames() []string {
	names := make([]string, len(d.Runners))
	for i, r := range d.Runners {
		names[i] = r.Name
	}
	return names
}

/**
 * Load 加载服务描述
 * @param {string} identifier - 服务标识: 目录、service.yaml路径或"."
 * @param {string} workingDir - 工作目录
 * @param {bool} standalone - 独立加载，不校验工作目录存在性
 * @returns {Descriptor} 服务描述
 * @returns {error} 加载失败或声明不合法时返回错误
 * @description
 * - 从identifier解析出service.yaml并用viper读取
 * - runner名不得为空、不得以下划线开头、不得重复
 */
func Load(identifier, workingDir string, standalone bool) (*Descriptor, error) {
	if !standalone {
		if _, err := os.Stat(workingDir); err != nil {
			return nil, fmt.Errorf("working directory %q is not accessible: %w", workingDir, err)
		}
	}

	v := viper.New()
	v.SetConfigType("yaml")
	switch {
	case strings.HasSuffix(identifier, ".yaml") || strings.HasSuffix(identifier, ".yml"):
		v.SetConfigFile(resolvePath(identifier, workingDir))
	default:
		v.SetConfigName("service")
		v.AddConfigPath(resolvePath(identifier, workingDir))
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to load service %q: %w", identifier, err)
	}

	var d Descriptor
	if err := v.Unmarshal(&d); err != nil {
		return nil, fmt.Errorf("failed to parse service %q: %w", identifier, err)
	}
	if err := validate(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

func resolvePath(p, workingDir string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workingDir, p)
}

func validate(d *Descriptor) error {
	seen := make(map[string]bool, len(d.Runners))
	for _, r := range d.Runners {
		if r.Name == "" {
			return fmt.Errorf("service declares a runner with an empty name")
		}
		if strings.HasPrefix(r.Name, "_") {
			return fmt.Errorf("runner name %q is reserved (leading underscore)", r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate runner name %q", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

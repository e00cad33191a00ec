package analyzer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TestItem maps one fitness-test item onto a weakness dimension.
type TestItem struct {
	Name      string `yaml:"name"`
	Dimension string `yaml:"dimension"`
}

// RulesConfig drives the rule-based analysis: which sheet columns are test
// items, which dimension each item belongs to, and how grade codes map to
// grade numbers.
type RulesConfig struct {
	GradeMapping      map[int]string `yaml:"grade_mapping"`
	AllowedWeaknesses []string       `yaml:"allowed_weaknesses"`
	TestItems         []TestItem     `yaml:"test_items"`
	TopWeaknesses     int            `yaml:"top_weaknesses"`
}

// DefaultRules returns the compiled-in analysis rules. They match the
// national fitness-test sheet layout for grades 1 through 9.
func DefaultRules() RulesConfig {
	return RulesConfig{
		GradeMapping: map[int]string{
			14: "1", 15: "2", 16: "3", 17: "4", 18: "5",
			19: "6", 20: "7", 21: "8", 22: "9",
		},
		AllowedWeaknesses: []string{"形态", "耐力", "力量", "柔韧", "速度", "机能"},
		TestItems: []TestItem{
			{Name: "50米跑", Dimension: "速度"},
			{Name: "一分钟仰卧起坐", Dimension: "力量"},
			{Name: "坐位体前屈", Dimension: "柔韧"},
			{Name: "一分钟跳绳", Dimension: "速度"},
			{Name: "立定跳远", Dimension: "力量"},
			{Name: "800米跑", Dimension: "耐力"},
			{Name: "1000米跑", Dimension: "耐力"},
			{Name: "肺活量", Dimension: "机能"},
			{Name: "身高", Dimension: "形态"},
			{Name: "体重", Dimension: "形态"},
		},
		TopWeaknesses: 2,
	}
}

// LoadRules reads the rules from a YAML file, or returns the defaults when
// path is empty.
func LoadRules(path string) (RulesConfig, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RulesConfig{}, fmt.Errorf("read analysis rules %s: %w", path, err)
	}
	var cfg RulesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RulesConfig{}, fmt.Errorf("parse analysis rules: %w", err)
	}
	if cfg.TopWeaknesses <= 0 {
		cfg.TopWeaknesses = 2
	}
	if err := validateRules(&cfg); err != nil {
		return RulesConfig{}, fmt.Errorf("invalid analysis rules: %w", err)
	}
	return cfg, nil
}

func validateRules(cfg *RulesConfig) error {
	if len(cfg.TestItems) == 0 {
		return fmt.Errorf("test_items 不能为空")
	}
	if len(cfg.AllowedWeaknesses) == 0 {
		return fmt.Errorf("allowed_weaknesses 不能为空")
	}
	allowed := map[string]bool{}
	for _, w := range cfg.AllowedWeaknesses {
		allowed[w] = true
	}
	for i, item := range cfg.TestItems {
		if item.Name == "" {
			return fmt.Errorf("test_items[%d] 缺少 name", i)
		}
		if !allowed[item.Dimension] {
			return fmt.Errorf("test_items[%d] (%s) 的维度 %q 不在 allowed_weaknesses 中", i, item.Name, item.Dimension)
		}
	}
	if len(cfg.GradeMapping) == 0 {
		return fmt.Errorf("grade_mapping 不能为空")
	}
	return nil
}

// Allowed reports whether the dimension is one of the permitted weakness
// dimensions.
func (c RulesConfig) Allowed(dimension string) bool {
	for _, w := range c.AllowedWeaknesses {
		if w == dimension {
			return true
		}
	}
	return false
}

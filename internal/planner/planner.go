package planner

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Allan-at-NTU/udemy-recs/internal/engine"
	"github.com/Allan-at-NTU/udemy-recs/internal/model"

	"gopkg.in/yaml.v3"
)

// 技能等级阶梯，做序数比较用
var levelOrder = []string{"none", "basic", "intermediate", "advanced"}

// Retriever 检索引擎的窄接口，便于测试时注入假实现
type Retriever interface {
	Retrieve(ctx context.Context, req engine.Request) ([]model.Recommendation, error)
}

// RoleProfile 一个目标岗位要求的技能及等级
type RoleProfile struct {
	Required map[string]string `yaml:"required"`
}

type rolesConfig struct {
	Roles map[string]RoleProfile `yaml:"roles"`
}

// Gap 当前水平与岗位要求之间的一个技能差距
type Gap struct {
	Skill   string `json:"skill"`
	Current string `json:"current"`
	Target  string `json:"target"`
}

// SkillQuery 一条按技能发起的检索请求
type SkillQuery struct {
	Skill string `json:"skill"`
	Level string `json:"level,omitempty"`
	Query string `json:"query"`
}

// PlanStep 学习计划中的一步：一个技能及为其检索到的课程
type PlanStep struct {
	Skill   string                 `json:"skill"`
	Level   string                 `json:"level,omitempty"`
	Query   string                 `json:"query"`
	Courses []model.Recommendation `json:"courses"`
}

// Planner 基于岗位技能差距构建学习计划
type Planner struct {
	roles     map[string]RoleProfile
	retriever Retriever
}

// New 从 roles.yaml 加载岗位画像
func New(configPath string, retriever Retriever) (*Planner, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles config: %w", err)
	}

	var cfg rolesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse roles config: %w", err)
	}

	return &Planner{
		roles:     cfg.Roles,
		retriever: retriever,
	}, nil
}

// RoleProfile 按岗位名做双向子串匹配，找不到时返回空画像
func (p *Planner) RoleProfile(goalRole string) RoleProfile {
	key := strings.ToLower(strings.TrimSpace(goalRole))
	for name, profile := range p.roles {
		if strings.Contains(key, name) || strings.Contains(name, key) {
			return profile
		}
	}
	return RoleProfile{Required: map[string]string{}}
}

// ComputeGaps 找出当前水平低于岗位要求的技能
// 按技能名排序输出，保证同一输入下计划可复现
func ComputeGaps(current map[string]string, target map[string]string) []Gap {
	var gaps []Gap
	for skill, targetLevel := range target {
		currentLevel := current[skill]
		if currentLevel == "" {
			currentLevel = "none"
		}
		if levelIndex(currentLevel) < levelIndex(targetLevel) {
			gaps = append(gaps, Gap{Skill: skill, Current: currentLevel, Target: targetLevel})
		}
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i].Skill < gaps[j].Skill })
	return gaps
}

// levelIndex 等级在阶梯上的序数，未知等级按 none 处理
func levelIndex(level string) int {
	level = strings.ToLower(strings.TrimSpace(level))
	for i, l := range levelOrder {
		if l == level {
			return i
		}
	}
	return 0
}

// levelHint 根据等级跨度生成查询里的难度提示词
func levelHint(current, target string) string {
	i1, i2 := levelIndex(current), levelIndex(target)
	switch {
	case i1 <= 0 && i2 <= 1:
		return "beginner"
	case i2-i1 >= 2:
		return "from basics to advanced"
	case i2 <= 2:
		return "intermediate"
	default:
		return "advanced"
	}
}

// BuildPlanFromQueries 逐条技能查询调用检索引擎拼出学习计划
// 预算和时长约束作为咨询性文本下传，不做硬过滤
func (p *Planner) BuildPlanFromQueries(ctx context.Context, queries []SkillQuery, budgetUSD, maxHours float64, resultCount int) ([]PlanStep, error) {
	plan := make([]PlanStep, 0, len(queries))
	for _, sq := range queries {
		courses, err := p.retriever.Retrieve(ctx, engine.Request{
			Query:       sq.Query,
			ResultCount: resultCount,
			BudgetUSD:   budgetUSD,
			MaxHours:    maxHours,
		})
		if err != nil {
			return nil, fmt.Errorf("retrieve failed for skill '%s': %w", sq.Skill, err)
		}
		plan = append(plan, PlanStep{
			Skill:   sq.Skill,
			Level:   sq.Level,
			Query:   sq.Query,
			Courses: courses,
		})
	}
	return plan, nil
}

// BuildPlanFromProfile 从当前技能画像和目标岗位推导差距并构建计划
func (p *Planner) BuildPlanFromProfile(ctx context.Context, currentSkills map[string]string, goalRole string, budgetUSD, maxHours float64, resultCount int) ([]PlanStep, error) {
	profile := p.RoleProfile(goalRole)
	gaps := ComputeGaps(currentSkills, profile.Required)

	queries := make([]SkillQuery, 0, len(gaps))
	for _, gap := range gaps {
		queries = append(queries, SkillQuery{
			Skill: gap.Skill,
			Level: gap.Target,
			Query: fmt.Sprintf("%s %s course", levelHint(gap.Current, gap.Target), gap.Skill),
		})
	}
	return p.BuildPlanFromQueries(ctx, queries, budgetUSD, maxHours, resultCount)
}

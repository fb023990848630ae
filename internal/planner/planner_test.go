package planner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Allan-at-NTU/udemy-recs/internal/engine"
	"github.com/Allan-at-NTU/udemy-recs/internal/model"
)

const testRoles = `roles:
  "data analyst":
    required:
      excel: "intermediate"
      sql: "intermediate"
      statistics: "basic"
  "web developer":
    required:
      javascript: "advanced"
      html: "intermediate"
`

// fakeRetriever 记录收到的请求并返回固定课程
type fakeRetriever struct {
	requests []engine.Request
	err      error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, req engine.Request) ([]model.Recommendation, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return []model.Recommendation{
		{Item: model.Item{CourseID: 1, Title: "Course for " + req.Query}, BlendedScore: 0.9},
	}, nil
}

func newTestPlanner(t *testing.T, retriever Retriever) *Planner {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roles.yaml")
	if err := os.WriteFile(path, []byte(testRoles), 0644); err != nil {
		t.Fatalf("failed to write roles config: %v", err)
	}
	p, err := New(path, retriever)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestComputeGaps(t *testing.T) {
	current := map[string]string{
		"excel": "advanced", // 已达标
		"sql":   "basic",    // 低于要求
		// statistics 完全缺失
	}
	target := map[string]string{
		"excel":      "intermediate",
		"sql":        "intermediate",
		"statistics": "basic",
	}

	gaps := ComputeGaps(current, target)
	if len(gaps) != 2 {
		t.Fatalf("expected 2 gaps, got %d", len(gaps))
	}

	// 按技能名排序输出
	if gaps[0].Skill != "sql" || gaps[1].Skill != "statistics" {
		t.Errorf("unexpected gap order: %v", gaps)
	}
	if gaps[0].Current != "basic" || gaps[0].Target != "intermediate" {
		t.Errorf("unexpected sql gap: %+v", gaps[0])
	}
	// 缺失技能按 none 处理
	if gaps[1].Current != "none" {
		t.Errorf("expected current 'none' for missing skill, got '%s'", gaps[1].Current)
	}
}

func TestComputeGapsNoGaps(t *testing.T) {
	current := map[string]string{"sql": "advanced"}
	target := map[string]string{"sql": "basic"}
	if gaps := ComputeGaps(current, target); len(gaps) != 0 {
		t.Errorf("expected no gaps, got %v", gaps)
	}
}

func TestLevelHint(t *testing.T) {
	cases := []struct {
		current, target, want string
	}{
		{"none", "basic", "beginner"},
		{"", "basic", "beginner"},
		{"none", "intermediate", "from basics to advanced"},
		{"none", "advanced", "from basics to advanced"},
		{"basic", "intermediate", "intermediate"},
		{"intermediate", "advanced", "advanced"},
		{"basic", "advanced", "from basics to advanced"},
	}
	for _, tc := range cases {
		if got := levelHint(tc.current, tc.target); got != tc.want {
			t.Errorf("levelHint(%q, %q) = %q, want %q", tc.current, tc.target, got, tc.want)
		}
	}
}

func TestRoleProfileMatching(t *testing.T) {
	p := newTestPlanner(t, &fakeRetriever{})

	// 精确命中
	profile := p.RoleProfile("data analyst")
	if len(profile.Required) != 3 {
		t.Errorf("expected 3 required skills, got %d", len(profile.Required))
	}

	// 子串匹配："senior data analyst" 包含 "data analyst"
	profile = p.RoleProfile("Senior Data Analyst")
	if len(profile.Required) != 3 {
		t.Errorf("expected substring match for senior title, got %d skills", len(profile.Required))
	}

	// 未知岗位返回空画像
	profile = p.RoleProfile("astronaut")
	if len(profile.Required) != 0 {
		t.Errorf("expected empty profile for unknown role, got %v", profile.Required)
	}
}

func TestBuildPlanFromProfile(t *testing.T) {
	retriever := &fakeRetriever{}
	p := newTestPlanner(t, retriever)

	current := map[string]string{"excel": "intermediate"}
	plan, err := p.BuildPlanFromProfile(context.Background(), current, "data analyst", 50, 0, 2)
	if err != nil {
		t.Fatalf("BuildPlanFromProfile failed: %v", err)
	}

	// excel 已达标，剩 sql 和 statistics 两个差距，按技能名排序
	if len(plan) != 2 {
		t.Fatalf("expected 2 plan steps, got %d", len(plan))
	}
	if plan[0].Skill != "sql" || plan[1].Skill != "statistics" {
		t.Errorf("unexpected step order: %s, %s", plan[0].Skill, plan[1].Skill)
	}
	for _, step := range plan {
		if len(step.Courses) == 0 {
			t.Errorf("step %s has no courses", step.Skill)
		}
		if step.Query == "" {
			t.Errorf("step %s has empty query", step.Skill)
		}
	}

	// 预算约束透传给检索引擎
	for _, req := range retriever.requests {
		if req.BudgetUSD != 50 {
			t.Errorf("expected budget 50 passed through, got %f", req.BudgetUSD)
		}
		if req.ResultCount != 2 {
			t.Errorf("expected result count 2, got %d", req.ResultCount)
		}
	}
}

func TestBuildPlanFromQueries(t *testing.T) {
	retriever := &fakeRetriever{}
	p := newTestPlanner(t, retriever)

	queries := []SkillQuery{
		{Skill: "docker", Query: "docker fundamentals course"},
		{Skill: "kubernetes", Level: "basic", Query: "beginner kubernetes course"},
	}
	plan, err := p.BuildPlanFromQueries(context.Background(), queries, 0, 10, 3)
	if err != nil {
		t.Fatalf("BuildPlanFromQueries failed: %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("expected 2 plan steps, got %d", len(plan))
	}
	if plan[0].Query != "docker fundamentals course" {
		t.Errorf("unexpected query: %s", plan[0].Query)
	}
}

func TestBuildPlanRetrieverError(t *testing.T) {
	wantErr := errors.New("backend down")
	p := newTestPlanner(t, &fakeRetriever{err: wantErr})

	_, err := p.BuildPlanFromQueries(context.Background(),
		[]SkillQuery{{Skill: "sql", Query: "sql course"}}, 0, 0, 3)
	if !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped retriever error, got %v", err)
	}
}

func TestNewMissingConfig(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing.yaml"), &fakeRetriever{}); err == nil {
		t.Error("expected error for missing roles config")
	}
}

package catalog

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Allan-at-NTU/udemy-recs/internal/corpus"
	"github.com/Allan-at-NTU/udemy-recs/internal/model"
	"github.com/Allan-at-NTU/udemy-recs/internal/vecindex"
)

// unit 返回一个 4 维单位向量，主分量由 axis 决定
func unit(axis int, tilt float32) []float32 {
	vec := make([]float32, 4)
	vec[axis] = 1
	vec[(axis+1)%4] = tilt
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// writeArtifacts 在临时目录生成一套对齐的语料产物
func writeArtifacts(t *testing.T, dir string, items []model.Item, scores []model.ScoreEntry, vectors [][]float32) {
	t.Helper()

	if err := corpus.WriteJSONL(filepath.Join(dir, DetailsFile), items); err != nil {
		t.Fatalf("failed to write details: %v", err)
	}
	if err := corpus.WriteJSONL(filepath.Join(dir, ScoresFile), scores); err != nil {
		t.Fatalf("failed to write scores: %v", err)
	}

	index := vecindex.New(4, vecindex.Options{Seed: 1})
	for _, vec := range vectors {
		if _, err := index.Add(vec); err != nil {
			t.Fatalf("failed to add vector: %v", err)
		}
	}
	if err := index.Save(filepath.Join(dir, IndexFile)); err != nil {
		t.Fatalf("failed to save index: %v", err)
	}
}

func defaultFixture() ([]model.Item, []model.ScoreEntry, [][]float32) {
	items := []model.Item{
		{CourseID: 100, Title: "Guitar for Beginners", Subject: "Musical Instruments", Level: "Beginner"},
		{CourseID: 200, Title: "Advanced Piano", Subject: "Musical Instruments", Level: "Advanced"},
		{CourseID: 300, Title: "Web Development Bootcamp", Subject: "Web Development", Level: "All"},
	}
	scores := []model.ScoreEntry{
		{CourseID: 100, Popularity: 0.8, Recency: 0.2},
		{CourseID: 200, Popularity: 0.5, Recency: 0.9},
		{CourseID: 300, Popularity: 0.3, Recency: 0.5},
	}
	vectors := [][]float32{unit(0, 0.1), unit(1, 0.1), unit(2, 0.1)}
	return items, scores, vectors
}

func TestLoadAndLookup(t *testing.T) {
	dir := t.TempDir()
	items, scores, vectors := defaultFixture()
	writeArtifacts(t, dir, items, scores, vectors)

	cat, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer cat.Close()

	if cat.Size() != 3 {
		t.Errorf("expected size 3, got %d", cat.Size())
	}

	item, ok := cat.Item(200)
	if !ok {
		t.Fatal("expected item 200 to exist")
	}
	if item.Title != "Advanced Piano" {
		t.Errorf("expected 'Advanced Piano', got '%s'", item.Title)
	}

	entry, ok := cat.Scores(100)
	if !ok {
		t.Fatal("expected scores for course 100")
	}
	if entry.Popularity != 0.8 || entry.Recency != 0.2 {
		t.Errorf("unexpected scores for course 100: %+v", entry)
	}

	// 位置翻译跟随 scores 行序
	for pos, wantID := range []int64{100, 200, 300} {
		id, ok := cat.CourseID(pos)
		if !ok || id != wantID {
			t.Errorf("position %d: expected course %d, got %d (ok=%v)", pos, wantID, id, ok)
		}
	}
	if _, ok := cat.CourseID(99); ok {
		t.Error("expected out-of-range position to fail")
	}

	// 索引可用：查第一个向量命中第一个位置
	hits, err := cat.Index().Search(vectors[0], 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Position != 0 {
		t.Errorf("expected position 0 as top hit, got %+v", hits)
	}
}

func TestLoadMissingArtifact(t *testing.T) {
	items, scores, vectors := defaultFixture()

	for _, name := range []string{DetailsFile, ScoresFile, IndexFile} {
		partial := t.TempDir()
		writeArtifacts(t, partial, items, scores, vectors)

		// 删掉一个产物文件，加载必须失败
		if err := os.Remove(filepath.Join(partial, name)); err != nil {
			t.Fatalf("failed to remove %s: %v", name, err)
		}
		if _, err := Load(partial); err == nil {
			t.Errorf("expected error when %s is missing", name)
		}
	}
}

func TestLoadMisaligned(t *testing.T) {
	dir := t.TempDir()
	items, scores, vectors := defaultFixture()
	// 多出一行分数，和索引向量数对不上
	scores = append(scores, model.ScoreEntry{CourseID: 400, Popularity: 0.1, Recency: 0.1})
	writeArtifacts(t, dir, items, scores, vectors)

	if _, err := Load(dir); err == nil {
		t.Error("expected error for misaligned score table")
	}
}

func TestLoadScoreOutOfRange(t *testing.T) {
	dir := t.TempDir()
	items, scores, vectors := defaultFixture()
	scores[1].Popularity = 1.5
	writeArtifacts(t, dir, items, scores, vectors)

	if _, err := Load(dir); err == nil {
		t.Error("expected error for out-of-range popularity")
	}
}

func TestLoadDuplicateCourse(t *testing.T) {
	dir := t.TempDir()
	items, scores, vectors := defaultFixture()
	items[2].CourseID = 100
	writeArtifacts(t, dir, items, scores, vectors)

	if _, err := Load(dir); err == nil {
		t.Error("expected error for duplicate course_id in details")
	}
}

func TestLoadEmptyDetails(t *testing.T) {
	dir := t.TempDir()
	_, scores, vectors := defaultFixture()
	writeArtifacts(t, dir, []model.Item{}, scores, vectors)

	if _, err := Load(dir); err == nil {
		t.Error("expected error for empty details")
	}
}

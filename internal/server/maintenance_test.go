package server

import (
	"testing"
	"time"

	"github.com/Allan-at-NTU/udemy-recs/internal/history"
	"github.com/Allan-at-NTU/udemy-recs/internal/task"
)

// fakeHistoryStore 记录 Cleanup 的调用参数
type fakeHistoryStore struct {
	cleanups []int
}

func (f *fakeHistoryStore) GetRecent(clientID string, days int) ([]history.Record, error) {
	return nil, nil
}

func (f *fakeHistoryStore) SaveServed(clientID string, query string, courseIDs []int64) error {
	return nil
}

func (f *fakeHistoryStore) Cleanup(retentionDays int) error {
	f.cleanups = append(f.cleanups, retentionDays)
	return nil
}

func TestSweepMaintenance(t *testing.T) {
	hs := &fakeHistoryStore{}
	s := &Server{
		historyStore: hs,
		tasks:        task.NewManager(),
		maint: MaintenanceOptions{
			Interval:             time.Hour,
			HistoryRetentionDays: 7,
			TaskMaxAge:           time.Hour,
		},
	}

	// 一个超龄的已完成任务和一个新任务
	old := s.tasks.NewTask()
	if err := s.tasks.SetResult(old.ID, "done"); err != nil {
		t.Fatalf("SetResult failed: %v", err)
	}
	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	fresh := s.tasks.NewTask()

	s.sweepMaintenance()

	// 历史清理按配置的保留期触发
	if len(hs.cleanups) != 1 || hs.cleanups[0] != 7 {
		t.Errorf("expected one cleanup with retention 7, got %v", hs.cleanups)
	}
	// 超龄的已完成任务被回收，新任务保留
	if _, err := s.tasks.GetTask(old.ID); err == nil {
		t.Error("expected old finished task to be pruned")
	}
	if _, err := s.tasks.GetTask(fresh.ID); err != nil {
		t.Error("fresh task should survive the sweep")
	}
}

func TestSweepMaintenanceDisabled(t *testing.T) {
	hs := &fakeHistoryStore{}
	s := &Server{
		historyStore: hs,
		tasks:        task.NewManager(),
		maint:        MaintenanceOptions{},
	}

	s.sweepMaintenance()
	if len(hs.cleanups) != 0 {
		t.Errorf("expected no cleanup with zero retention, got %v", hs.cleanups)
	}
}

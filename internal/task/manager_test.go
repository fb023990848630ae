package task

import (
	"errors"
	"testing"
	"time"
)

func TestTaskLifecycle(t *testing.T) {
	m := NewManager()

	task := m.NewTask()
	if task.ID == "" {
		t.Fatal("expected non-empty task id")
	}
	if task.Status != StatusPending {
		t.Errorf("expected pending status, got %s", task.Status)
	}

	if err := m.UpdateStatus(task.ID, StatusProcessing); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if err := m.SetResult(task.ID, []string{"step1", "step2"}); err != nil {
		t.Fatalf("SetResult failed: %v", err)
	}

	got, err := m.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("expected completed status, got %s", got.Status)
	}
	if got.Result == nil {
		t.Error("expected result to be set")
	}
	if got.Error != "" {
		t.Errorf("expected empty error, got %s", got.Error)
	}
}

func TestTaskFailure(t *testing.T) {
	m := NewManager()

	task := m.NewTask()
	if err := m.SetError(task.ID, errors.New("plan build failed")); err != nil {
		t.Fatalf("SetError failed: %v", err)
	}

	got, _ := m.GetTask(task.ID)
	if got.Status != StatusFailed {
		t.Errorf("expected failed status, got %s", got.Status)
	}
	if got.Error != "plan build failed" {
		t.Errorf("unexpected error message: %s", got.Error)
	}
}

func TestGetTaskReturnsSnapshot(t *testing.T) {
	m := NewManager()
	created := m.NewTask()

	got, err := m.GetTask(created.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}

	// 修改返回的快照不影响管理器内部状态
	got.Status = StatusFailed
	got.Error = "tampered"

	again, err := m.GetTask(created.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if again.Status != StatusPending || again.Error != "" {
		t.Errorf("snapshot mutation leaked into manager: status=%s error=%s", again.Status, again.Error)
	}
}

// 读取方轮询任务状态，构建方并发推进生命周期，快照语义下两者不共享可变内存
func TestGetTaskConcurrentWithUpdates(t *testing.T) {
	m := NewManager()
	created := m.NewTask()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			_ = m.UpdateStatus(created.ID, StatusProcessing)
			_ = m.SetResult(created.ID, i)
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		got, err := m.GetTask(created.ID)
		if err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
		// 完成态的快照必须带着结果，不允许读到撕裂的中间状态
		if got.Status == StatusCompleted && got.Result == nil {
			t.Fatal("completed snapshot missing result")
		}
	}
}

func TestTaskNotFound(t *testing.T) {
	m := NewManager()
	if _, err := m.GetTask("no-such-id"); err == nil {
		t.Error("expected error for unknown task id")
	}
	if err := m.UpdateStatus("no-such-id", StatusProcessing); err == nil {
		t.Error("expected error updating unknown task")
	}
}

func TestPrune(t *testing.T) {
	m := NewManager()

	finished := m.NewTask()
	m.SetResult(finished.ID, "done")
	finished.CreatedAt = time.Now().Add(-2 * time.Hour)

	pending := m.NewTask()
	pending.CreatedAt = time.Now().Add(-2 * time.Hour)

	fresh := m.NewTask()
	m.SetResult(fresh.ID, "done")

	removed := m.Prune(time.Hour)
	if removed != 1 {
		t.Errorf("expected 1 pruned task, got %d", removed)
	}

	// 进行中的任务即使超龄也不清理
	if _, err := m.GetTask(pending.ID); err != nil {
		t.Error("pending task should survive prune")
	}
	if _, err := m.GetTask(fresh.ID); err != nil {
		t.Error("fresh finished task should survive prune")
	}
	if _, err := m.GetTask(finished.ID); err == nil {
		t.Error("old finished task should be pruned")
	}
}

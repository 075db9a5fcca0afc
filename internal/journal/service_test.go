package journal

import (
	"context"
	"testing"

	"multitrader/internal/config"
	"multitrader/internal/dispatch"
	"multitrader/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	svc, err := NewService(st, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestRecordJobPersistsSummaryAndItems(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	summary := dispatch.Summary{
		Total:   2,
		Success: 1,
		Error:   1,
		Results: map[string]dispatch.Result{
			"alpha": {Status: dispatch.StatusSuccess, Message: "订单已成交: 1", OrderID: "1", Account: "alpha"},
			"bravo": {Status: dispatch.StatusError, Message: "连接失败: refused", Account: "bravo"},
		},
	}
	svc.RecordJob(ctx, dispatch.KindDispatch, "BTCUSDT", summary)

	jobs, err := svc.ListJobs(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	job := jobs[0]
	if job.Kind != dispatch.KindDispatch || job.Symbol != "BTCUSDT" {
		t.Errorf("unexpected job record: %+v", job)
	}
	if job.Total != 2 || job.Success != 1 || job.Error != 1 {
		t.Errorf("counters not persisted: %+v", job)
	}
	if job.CreatedAt.IsZero() {
		t.Errorf("created_at not persisted")
	}

	items, err := svc.ListItems(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	byItem := make(map[string]ItemRecord, len(items))
	for _, it := range items {
		byItem[it.Item] = it
	}
	if byItem["alpha"].Status != dispatch.StatusSuccess || byItem["alpha"].OrderID != "1" {
		t.Errorf("unexpected alpha item: %+v", byItem["alpha"])
	}
	if byItem["bravo"].Status != dispatch.StatusError || byItem["bravo"].Message != "连接失败: refused" {
		t.Errorf("unexpected bravo item: %+v", byItem["bravo"])
	}
}

func TestListJobsFiltersByKind(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordJob(ctx, dispatch.KindDispatch, "ETHUSDT", dispatch.Summary{Total: 1, Results: map[string]dispatch.Result{}})
	svc.RecordJob(ctx, dispatch.KindCancel, "", dispatch.Summary{Total: 1, Results: map[string]dispatch.Result{}})
	svc.RecordJob(ctx, dispatch.KindCancel, "", dispatch.Summary{Total: 2, Results: map[string]dispatch.Result{}})

	cancels, err := svc.ListJobs(ctx, dispatch.KindCancel, 10)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(cancels) != 2 {
		t.Fatalf("expected 2 cancel jobs, got %d", len(cancels))
	}
	// Newest first.
	if cancels[0].Total != 2 || cancels[1].Total != 1 {
		t.Errorf("jobs out of order: %+v", cancels)
	}

	all, err := svc.ListJobs(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(all))
	}
}

package reports

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	domainerrors "cprqa/internal/core/errors"
	"cprqa/internal/engine/ingest"
	"cprqa/internal/engine/scoring"
	"cprqa/internal/engine/wizard"
)

// steppingClock advances one second per call so ordering is deterministic.
func steppingClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func openStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	opts = append([]Option{WithClock(steppingClock(base))}, opts...)
	store, err := Open(filepath.Join(t.TempDir(), "data", "reports.db"), opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRejectsBadPaths(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("expected error for directory path")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	if err := first.Save(context.Background(), &Report{ID: "r1", Kind: KindSimulated, Status: StatusComplete}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if second.Path() != path {
		t.Fatalf("expected path %q, got %q", path, second.Path())
	}
	if _, err := second.Get(context.Background(), "r1"); err != nil {
		t.Fatalf("expected report to survive reopen: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected database file: %v", err)
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	shocks := 2
	depth := 5.4
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	report := &Report{
		ID:              "5f0c7a52-aaaa-bbbb-cccc-000000000001",
		Kind:            KindRealCall,
		Status:          StatusComplete,
		EventDate:       "2026-02-14",
		ShocksDelivered: &shocks,
		ArtifactPath:    "/artifacts/case.zip",
		ArtifactHash:    "abc123",
		Metrics: &ingest.NormalizedMetrics{
			Summary: ingest.SummaryMetrics{
				CompressionRate: ingest.Number(112.3),
				Tags:            ingest.Text("5 to 6"),
			},
			Minutes:      []ingest.MinuteSlot{{Minute: 1, Present: true, CompressionDepth: &depth}},
			SegmentCount: 1,
		},
		Payload: ingest.Payload{"cr_cmprt1": ingest.Number(110), "cr_ecstrttm1": ingest.Text("00:01:10")},
		Score:   &scoring.Result{Score: 83, ColorBand: scoring.BandGreen, RawScore: 83, AvailablePoints: 100},
	}
	report.SetWizard(&wizard.State{
		ReportID:     report.ID,
		TemplateID:   "pco",
		TotalPages:   3,
		Status:       wizard.StatusInProgress,
		PageStatuses: map[int]wizard.PageStatus{1: wizard.PagePartial},
		StartedAt:    &started,
		FieldValues: map[string]wizard.FieldValue{
			"cr_cmprt1": {FieldID: "cr_cmprt1", Value: "110", Provenance: wizard.ProvenanceAutofill, State: wizard.StateFilled},
		},
		MissingRequired: []string{},
	})

	if err := store.Save(ctx, report); err != nil {
		t.Fatalf("save: %v", err)
	}
	if report.Tenant != DefaultTenant {
		t.Fatalf("expected default tenant, got %q", report.Tenant)
	}

	got, err := store.Get(ctx, report.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Kind != KindRealCall || got.Status != StatusComplete || got.EventDate != "2026-02-14" {
		t.Fatalf("unexpected header fields: %+v", got)
	}
	if got.ShocksDelivered == nil || *got.ShocksDelivered != 2 {
		t.Fatalf("expected shocks_delivered=2, got %v", got.ShocksDelivered)
	}
	if v, ok := got.Metrics.Summary.CompressionRate.Float(); !ok || v != 112.3 {
		t.Fatalf("expected compression rate 112.3, got %v", got.Metrics.Summary.CompressionRate)
	}
	if v, ok := got.Metrics.Summary.Tags.Text(); !ok || v != "5 to 6" {
		t.Fatalf("expected tags text, got %v", got.Metrics.Summary.Tags)
	}
	if !got.Metrics.Summary.Duration.IsAbsent() {
		t.Fatalf("expected absent duration, got %v", got.Metrics.Summary.Duration)
	}
	if len(got.Metrics.Minutes) != 1 || *got.Metrics.Minutes[0].CompressionDepth != 5.4 {
		t.Fatalf("unexpected minutes: %+v", got.Metrics.Minutes)
	}
	if got.Payload["cr_ecstrttm1"].String() != "00:01:10" || got.Payload["cr_cmprt1"].String() != "110" {
		t.Fatalf("unexpected payload: %v", got.Payload)
	}
	if got.Score == nil || got.Score.Score != 83 || got.Score.ColorBand != scoring.BandGreen {
		t.Fatalf("unexpected score: %+v", got.Score)
	}

	st := got.Wizard("pco")
	if st == nil {
		t.Fatal("expected pco wizard state")
	}
	if st.PageStatuses[1] != wizard.PagePartial || st.FieldValues["cr_cmprt1"].Value != "110" {
		t.Fatalf("unexpected wizard state: %+v", st)
	}
	if st.StartedAt == nil || !st.StartedAt.Equal(started) {
		t.Fatalf("expected started_at to roundtrip, got %v", st.StartedAt)
	}
	if got.Wizard("master") != nil {
		t.Fatal("expected no master wizard")
	}
}

func TestSaveKeepsProviderAndNotes(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	report := &Report{ID: "sim-1", Kind: KindSimulated, Status: StatusComplete, Provider: "J. Park", Notes: "mask seal lost twice"}
	if err := store.Save(ctx, report); err != nil {
		t.Fatalf("save: %v", err)
	}
	report.Notes = ""
	if err := store.Save(ctx, report); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, err := store.Get(ctx, "sim-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Provider != "J. Park" || got.Notes != "" {
		t.Fatalf("unexpected provider/notes: %q %q", got.Provider, got.Notes)
	}
}

func TestSaveKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	report := &Report{ID: "r1", Kind: KindSimulated, Status: StatusImporting}
	if err := store.Save(ctx, report); err != nil {
		t.Fatalf("first save: %v", err)
	}
	created := report.CreatedAt

	report.Status = StatusFailed
	report.Error = "Invalid ZIP file format"
	if err := store.Save(ctx, report); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("expected created_at %v, got %v", created, got.CreatedAt)
	}
	if !got.UpdatedAt.After(created) {
		t.Fatalf("expected updated_at after created_at, got %v", got.UpdatedAt)
	}
	if got.Status != StatusFailed || got.Error != "Invalid ZIP file format" {
		t.Fatalf("expected failed status with message, got %+v", got)
	}
	if got.Metrics != nil || got.Score != nil || got.Wizards != nil {
		t.Fatalf("expected empty json columns, got %+v", got)
	}
}

func TestSaveRequiresID(t *testing.T) {
	store := openStore(t)
	err := store.Save(context.Background(), &Report{})
	if !domainerrors.IsCode(err, domainerrors.CodeValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	seed := []Report{
		{ID: "a", Kind: KindRealCall, Status: StatusComplete},
		{ID: "b", Kind: KindSimulated, Status: StatusComplete},
		{ID: "c", Kind: KindRealCall, Status: StatusFailed},
		{ID: "d", Tenant: "north", Kind: KindRealCall, Status: StatusComplete},
	}
	for i := range seed {
		if err := store.Save(ctx, &seed[i]); err != nil {
			t.Fatalf("save %s: %v", seed[i].ID, err)
		}
	}

	all, err := store.List(ctx, "", Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if ids := reportIDs(all); !equal(ids, []string{"c", "b", "a"}) {
		t.Fatalf("expected newest first [c b a], got %v", ids)
	}

	realCalls, err := store.List(ctx, DefaultTenant, Filter{Kind: KindRealCall})
	if err != nil {
		t.Fatalf("list real calls: %v", err)
	}
	if ids := reportIDs(realCalls); !equal(ids, []string{"c", "a"}) {
		t.Fatalf("expected [c a], got %v", ids)
	}

	complete, err := store.List(ctx, DefaultTenant, Filter{Status: StatusComplete, Limit: 1})
	if err != nil {
		t.Fatalf("list complete: %v", err)
	}
	if ids := reportIDs(complete); !equal(ids, []string{"b"}) {
		t.Fatalf("expected [b], got %v", ids)
	}

	north, err := store.List(ctx, "north", Filter{})
	if err != nil {
		t.Fatalf("list north: %v", err)
	}
	if ids := reportIDs(north); !equal(ids, []string{"d"}) {
		t.Fatalf("expected tenant isolation, got %v", ids)
	}
}

func TestFindByHash(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if err := store.Save(ctx, &Report{ID: "old", Kind: KindRealCall, Status: StatusFailed, ArtifactHash: "h1"}); err != nil {
		t.Fatalf("save old: %v", err)
	}
	if err := store.Save(ctx, &Report{ID: "new", Kind: KindRealCall, Status: StatusComplete, ArtifactHash: "h1"}); err != nil {
		t.Fatalf("save new: %v", err)
	}

	got, err := store.FindByHash(ctx, "", "h1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil || got.ID != "new" {
		t.Fatalf("expected newest match, got %+v", got)
	}

	none, err := store.FindByHash(ctx, "", "missing")
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil for unknown hash, got %+v", none)
	}

	other, err := store.FindByHash(ctx, "north", "h1")
	if err != nil {
		t.Fatalf("find other tenant: %v", err)
	}
	if other != nil {
		t.Fatalf("expected tenant isolation, got %+v", other)
	}
}

func TestGetAndDeleteNotFound(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if _, err := store.Get(ctx, "nope"); !domainerrors.IsCode(err, domainerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Delete(ctx, "nope"); !domainerrors.IsCode(err, domainerrors.CodeNotFound) {
		t.Fatalf("expected not found on delete, got %v", err)
	}

	if err := store.Save(ctx, &Report{ID: "r1", Kind: KindSimulated, Status: StatusComplete}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(ctx, "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err := store.Get(ctx, "r1")
	if !domainerrors.IsCode(err, domainerrors.CodeNotFound) {
		t.Fatalf("expected deleted report to be gone, got %v", err)
	}
	if got := domainerrors.Message(err); got != "Report not found: r1" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestActivityPruneAndFilter(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, WithMaxActivity(3))

	events := []string{"login", "import", "import", "wizard_save", "export"}
	for i, typ := range events {
		if err := store.AppendActivity(ctx, "", typ, map[string]any{"seq": i}); err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
	}
	if err := store.AppendActivity(ctx, "north", "login", nil); err != nil {
		t.Fatalf("append north: %v", err)
	}

	entries, err := store.ListActivity(ctx, "", 0, "")
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected prune to 3 entries, got %d", len(entries))
	}
	if entries[0].Type != "export" || entries[2].Type != "import" {
		t.Fatalf("expected newest first, got %v", activityTypes(entries))
	}
	if seq, ok := entries[0].Detail["seq"].(float64); !ok || seq != 4 {
		t.Fatalf("expected detail seq=4, got %v", entries[0].Detail)
	}

	imports, err := store.ListActivity(ctx, "", 10, "import")
	if err != nil {
		t.Fatalf("list imports: %v", err)
	}
	if len(imports) != 1 {
		t.Fatalf("expected one retained import, got %d", len(imports))
	}

	limited, err := store.ListActivity(ctx, "", 1, "")
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].Type != "export" {
		t.Fatalf("expected newest entry only, got %v", activityTypes(limited))
	}

	north, err := store.ListActivity(ctx, "north", 0, "")
	if err != nil {
		t.Fatalf("list north: %v", err)
	}
	if len(north) != 1 || north[0].Detail != nil {
		t.Fatalf("expected one north entry without detail, got %+v", north)
	}

	if err := store.AppendActivity(ctx, "", " ", nil); err == nil {
		t.Fatal("expected error for empty activity type")
	}
}

func TestLastActive(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	last, err := store.LastActive(ctx, "")
	if err != nil {
		t.Fatalf("last active on empty log: %v", err)
	}
	if !last.IsZero() {
		t.Fatalf("expected zero time, got %v", last)
	}

	if err := store.AppendActivity(ctx, "", "login", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendActivity(ctx, "", "import", nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	last, err = store.LastActive(ctx, "")
	if err != nil {
		t.Fatalf("last active: %v", err)
	}
	entries, err := store.ListActivity(ctx, "", 1, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !last.Equal(entries[0].Timestamp) {
		t.Fatalf("expected last active %v, got %v", entries[0].Timestamp, last)
	}
}

func reportIDs(reports []*Report) []string {
	out := make([]string, 0, len(reports))
	for _, r := range reports {
		out = append(out, r.ID)
	}
	return out
}

func activityTypes(entries []Activity) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Type)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

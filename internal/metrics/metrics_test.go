package metrics

import "testing"

func TestRecordCounters(t *testing.T) {
	m := New(nil)
	m.RecordClaimed()
	m.RecordClaimed()
	m.RecordCompleted()
	m.RecordFailed()
	m.RecordSkipped()
	m.RecordBytesFetched(1024)
	m.RecordBytesUploaded(512)

	r := m.GenerateReport()
	if r.TilesClaimed != 2 {
		t.Errorf("got claimed %d, want 2", r.TilesClaimed)
	}
	if r.TilesCompleted != 1 {
		t.Errorf("got completed %d, want 1", r.TilesCompleted)
	}
	if r.TilesFailed != 1 {
		t.Errorf("got failed %d, want 1", r.TilesFailed)
	}
	if r.TilesSkipped != 1 {
		t.Errorf("got skipped %d, want 1", r.TilesSkipped)
	}
	if r.BytesFetched != 1024 {
		t.Errorf("got bytes fetched %d, want 1024", r.BytesFetched)
	}
	if r.BytesUploaded != 512 {
		t.Errorf("got bytes uploaded %d, want 512", r.BytesUploaded)
	}
}

func TestReportString(t *testing.T) {
	m := New(nil)
	m.RecordClaimed()
	s := m.GenerateReport().String()
	if s == "" {
		t.Fatal("expected non-empty report string")
	}
}

func TestReportMarshalJSON(t *testing.T) {
	m := New(nil)
	m.RecordCompleted()
	b, err := m.GenerateReport().MarshalJSON()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("expected non-empty json")
	}
}

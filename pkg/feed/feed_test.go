package feed

import (
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
)

func TestFeed_SequentialRows(t *testing.T) {
	f := New()

	f.OnRecord(Record{Name: "Milk", MRP: "60"})
	f.OnRecord(Record{Name: "Bread"})

	rows := f.Rows()
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}

	want := [][]string{
		{"1", "Milk", "60", "", "", "", "", ""},
		{"2", "Bread", "", "", "", "", "", ""},
	}
	for i, row := range rows {
		if got := row.Cells(); !reflect.DeepEqual(got, want[i]) {
			t.Errorf("row %d = %q, want %q", i, got, want[i])
		}
	}
}

func TestFeed_EmptyRecordStillAppends(t *testing.T) {
	f := New()
	f.OnRecord(Record{Name: "Milk"})
	row := f.OnRecord(Record{})

	if row.Seq != 2 {
		t.Errorf("Seq = %d, want 2", row.Seq)
	}
	if got := row.Cells(); !reflect.DeepEqual(got, []string{"2", "", "", "", "", "", "", ""}) {
		t.Errorf("cells = %q", got)
	}
}

func TestFeed_DuplicatesNotCollapsed(t *testing.T) {
	f := New()
	rec := Record{Name: "Milk", MRP: "60"}
	f.OnRecord(rec)
	f.OnRecord(rec)

	if f.Len() != 2 {
		t.Errorf("Len = %d, want 2", f.Len())
	}
}

func TestFeed_OnAppendInOrder(t *testing.T) {
	f := New()
	var seqs []int
	f.OnAppend(func(r Row) { seqs = append(seqs, r.Seq) })

	for i := 0; i < 5; i++ {
		f.OnRecord(Record{})
	}
	if !reflect.DeepEqual(seqs, []int{1, 2, 3, 4, 5}) {
		t.Errorf("appended seqs = %v", seqs)
	}
}

func TestFeed_Since(t *testing.T) {
	f := New()
	for _, name := range []Field{"a", "b", "c"} {
		f.OnRecord(Record{Name: name})
	}

	if got := f.Since(1); len(got) != 2 || got[0].Seq != 2 || got[1].Name != "c" {
		t.Errorf("Since(1) = %+v", got)
	}
	if got := f.Since(3); got != nil {
		t.Errorf("Since(3) = %+v, want nil", got)
	}
	if got := f.Since(-4); len(got) != 3 {
		t.Errorf("Since(-4) returned %d rows, want 3", len(got))
	}
}

// Concurrent appends still yield 1..n without gaps or reuse.
func TestFeed_ConcurrentAppends(t *testing.T) {
	f := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.OnRecord(Record{Name: "x"})
		}()
	}
	wg.Wait()

	for i, row := range f.Rows() {
		if row.Seq != i+1 {
			t.Fatalf("row %d has Seq %d", i, row.Seq)
		}
	}
}

func TestField_Unmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want Field
	}{
		{`"Milk"`, "Milk"},
		{`null`, ""},
		{`60`, "60"},
		{`12.5`, "12.5"},
		{`true`, "true"},
		{`0`, "0"},
		{`false`, "false"},
		{`""`, ""},
	}

	for _, tt := range tests {
		var f Field
		if err := json.Unmarshal([]byte(tt.in), &f); err != nil {
			t.Errorf("Unmarshal(%s) error: %v", tt.in, err)
			continue
		}
		if f != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.in, f, tt.want)
		}
	}
}

func TestDecodeObjects(t *testing.T) {
	recs, err := DecodeObjects(json.RawMessage(`{"name":"Milk","mrp":60,"exp_date":null,"extra":"ignored"}`))
	if err != nil {
		t.Fatal(err)
	}
	want := Record{Name: "Milk", MRP: "60"}
	if len(recs) != 1 || recs[0] != want {
		t.Errorf("records = %+v, want [%+v]", recs, want)
	}

	recs, err = DecodeObjects(json.RawMessage(`[{"name":"Milk"},{"name":"Bread"}]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Name != "Milk" || recs[1].Name != "Bread" {
		t.Errorf("records = %+v", recs)
	}

	for _, raw := range []string{"", "null", " "} {
		if _, err := DecodeObjects(json.RawMessage(raw)); !errors.Is(err, ErrNoObjects) {
			t.Errorf("DecodeObjects(%q) err = %v, want ErrNoObjects", raw, err)
		}
	}

	if _, err := DecodeObjects(json.RawMessage(`"Milk"`)); err == nil {
		t.Error("expected error for a bare string")
	}
}

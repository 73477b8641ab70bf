package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-05-10")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.String() != "2024-05-10" {
		t.Fatalf("unexpected date %s", d)
	}
	if _, err := ParseDate("10/05/2024"); err == nil {
		t.Fatalf("expected error for non ISO date")
	}
	if _, err := ParseDate("2024-02-30"); err == nil {
		t.Fatalf("expected error for impossible date")
	}
}

func TestDateOfDropsClock(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	ts := time.Date(2024, 3, 1, 23, 30, 0, 0, loc)
	if got := DateOf(ts).String(); got != "2024-03-01" {
		t.Fatalf("expected calendar date in the source location, got %s", got)
	}
}

func TestDateScan(t *testing.T) {
	var d Date
	for _, v := range []interface{}{"2024-01-01", []byte("2024-01-01"), "2024-01-01 00:00:00+00:00", time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)} {
		if err := d.Scan(v); err != nil {
			t.Fatalf("scan %v: %v", v, err)
		}
		if d.String() != "2024-01-01" {
			t.Fatalf("scan %v gave %s", v, d)
		}
	}
	if err := d.Scan(42); err == nil {
		t.Fatalf("expected error for int")
	}
}

func TestDateJSON(t *testing.T) {
	d, _ := ParseDate("2024-05-10")
	task := Task{Title: "x", DueDate: &d}
	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out struct {
		DueDate string `json:"due_date"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.DueDate != "2024-05-10" {
		t.Fatalf("unexpected due_date %q", out.DueDate)
	}

	data, _ = json.Marshal(Task{Title: "y"})
	var raw map[string]interface{}
	_ = json.Unmarshal(data, &raw)
	if raw["due_date"] != nil {
		t.Fatalf("expected null due_date, got %v", raw["due_date"])
	}
}

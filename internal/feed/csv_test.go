package feed

import (
	"testing"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []map[string]string
	}{
		{
			name: "basic rows",
			data: "Subject,Start,End\nStandup,2025-07-28 09:00:00,2025-07-28 09:15:00\n",
			want: []map[string]string{
				{"subject": "Standup", "start": "2025-07-28 09:00:00", "end": "2025-07-28 09:15:00"},
			},
		},
		{
			name: "quoted field with embedded comma",
			data: "subject,start,end\n\"Planning, Q3\",2025-07-28 10:00:00,2025-07-28 11:00:00\n",
			want: []map[string]string{
				{"subject": "Planning, Q3", "start": "2025-07-28 10:00:00", "end": "2025-07-28 11:00:00"},
			},
		},
		{
			name: "quoted field with embedded newline",
			data: "subject,start,end,description\nSync,2025-07-28 10:00:00,2025-07-28 11:00:00,\"line one\nline two\"\n",
			want: []map[string]string{
				{"subject": "Sync", "start": "2025-07-28 10:00:00", "end": "2025-07-28 11:00:00", "description": "line one\nline two"},
			},
		},
		{
			name: "escaped double quotes",
			data: "subject,start,end\n\"The \"\"big\"\" one\",2025-07-28 10:00:00,2025-07-28 11:00:00\n",
			want: []map[string]string{
				{"subject": `The "big" one`, "start": "2025-07-28 10:00:00", "end": "2025-07-28 11:00:00"},
			},
		},
		{
			name: "short row leaves trailing fields absent",
			data: "subject,start,end,rsvp\nHalf row,2025-07-28 10:00:00\n",
			want: []map[string]string{
				{"subject": "Half row", "start": "2025-07-28 10:00:00"},
			},
		},
		{
			name: "extra cells beyond the header are ignored",
			data: "subject,start\nWide,2025-07-28 10:00:00,surplus,more\n",
			want: []map[string]string{
				{"subject": "Wide", "start": "2025-07-28 10:00:00"},
			},
		},
		{
			name: "headers are case folded and trimmed",
			data: " Subject , START ,End\nMixed,2025-07-28 10:00:00,2025-07-28 11:00:00\n",
			want: []map[string]string{
				{"subject": "Mixed", "start": "2025-07-28 10:00:00", "end": "2025-07-28 11:00:00"},
			},
		},
		{
			name: "unknown columns carried through",
			data: "subject,start,room\nOnsite,2025-07-28 10:00:00,4A\n",
			want: []map[string]string{
				{"subject": "Onsite", "start": "2025-07-28 10:00:00", "room": "4A"},
			},
		},
		{
			name: "blank lines skipped",
			data: "subject,start\nOne,2025-07-28 10:00:00\n\nTwo,2025-07-28 11:00:00\n",
			want: []map[string]string{
				{"subject": "One", "start": "2025-07-28 10:00:00"},
				{"subject": "Two", "start": "2025-07-28 11:00:00"},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCSV([]byte(tc.data))
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("rows = %d, want %d: %v", len(got), len(tc.want), got)
			}
			for i := range tc.want {
				for k, wantV := range tc.want[i] {
					if got[i][k] != wantV {
						t.Errorf("row %d %q = %q, want %q", i, k, got[i][k], wantV)
					}
				}
				for k := range got[i] {
					if _, ok := tc.want[i][k]; !ok {
						t.Errorf("row %d has unexpected key %q", i, k)
					}
				}
			}
		})
	}
}

func TestParseCSVEmptyPayload(t *testing.T) {
	if _, err := ParseCSV(nil); err == nil {
		t.Fatal("empty payload must error")
	}
}

func TestParseCSVBOMHeader(t *testing.T) {
	got, err := ParseCSV([]byte("\ufeffsubject,start\nBOM,2025-07-28 10:00:00\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got[0]["subject"] != "BOM" {
		t.Errorf("BOM header not stripped: %v", got[0])
	}
}

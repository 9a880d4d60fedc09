package main

import (
	"encoding/json"
	"testing"

	"github.com/itchyny/gojq"
	"github.com/kasralabs/kasra/service/thread"
)

func TestThreadJQFilters(t *testing.T) {
	th := thread.NewThread("Budget talk")
	th.Append(thread.NewMessage(thread.RoleUser, "transfer 50rb buat makan"))
	th.Append(thread.NewMessage(thread.RoleAgent, "Rincian Transaksi: [Ke: Warung | Nominal: 50rb | Kategori: Makanan]"))

	data, err := json.Marshal(th)
	if err != nil {
		t.Fatalf("failed to marshal thread: %v", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("failed to decode thread JSON: %v", err)
	}

	tests := []struct {
		name     string
		jqFilter string
		want     any
	}{
		{
			name:     "message count",
			jqFilter: `.messages | length`,
			want:     2,
		},
		{
			name:     "agent messages only",
			jqFilter: `[.messages[] | select(.role == "agent")] | length`,
			want:     1,
		},
		{
			name:     "title match",
			jqFilter: `.title == "Budget talk"`,
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, err := gojq.Parse(tt.jqFilter)
			if err != nil {
				t.Fatalf("failed to parse jq filter: %v", err)
			}
			code, err := gojq.Compile(query)
			if err != nil {
				t.Fatalf("failed to compile jq filter: %v", err)
			}

			iter := code.Run(generic)
			v, ok := iter.Next()
			if !ok {
				t.Fatal("jq filter returned no result")
			}
			if err, isErr := v.(error); isErr {
				t.Fatalf("jq filter error: %v", err)
			}

			// gojq returns ints for length
			switch want := tt.want.(type) {
			case int:
				got, ok := v.(int)
				if !ok || got != want {
					t.Fatalf("got %v, want %v", v, want)
				}
			case bool:
				got, ok := v.(bool)
				if !ok || got != want {
					t.Fatalf("got %v, want %v", v, want)
				}
			}
		})
	}
}

func TestPrintFilteredRejectsBadFilter(t *testing.T) {
	th := thread.NewThread("t")
	if err := printFiltered(th, "not a ( valid filter"); err == nil {
		t.Fatal("expected parse error for invalid jq filter")
	}
}

package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"fintrack/internal/core"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    core.Category
		wantErr error
	}{
		{
			name: "defaults",
			args: []string{"Pets"},
			want: core.Category{Name: "Pets", Icon: "tag", Color: "#808080", Kind: core.KindExpense},
		},
		{
			name: "flags and multi-word name",
			args: []string{"-icon", "cash", "-color", "#0a0", "-t", "income", "Side", "jobs"},
			want: core.Category{Name: "Side jobs", Icon: "cash", Color: "#0A0", Kind: core.KindIncome},
		},
		{name: "missing name", args: []string{"-icon", "cash"}, wantErr: core.ErrEmptyCategory},
		{name: "bad color", args: []string{"-color", "red", "Pets"}, wantErr: core.ErrInvalidColor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCategory(tt.args)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("parseCategory() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCategory() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("parseCategory() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPrintCategories(t *testing.T) {
	var buf bytes.Buffer
	printCategories(&buf, []core.Category{
		{ID: "c1", Name: "Pets", Icon: "paw", Color: "#FF8800", Kind: core.KindExpense},
	})
	out := buf.String()
	for _, want := range []string{"ID", "NAME", "c1", "Pets", "expense", "paw", "#FF8800"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

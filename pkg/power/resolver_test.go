package power

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/supporttools/host-rescue/pkg/types"
)

// fakeTable returns a fixed outlet-name table and counts reads.
type fakeTable struct {
	names []string
	err   error
	reads int
}

func (f *fakeTable) OutletNames(ctx context.Context) ([]string, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	return f.names, nil
}

func TestResolveIndex(t *testing.T) {
	table := []string{`"Switch Mgmt"`, `"WEB01"`, ` web02 `, `'db01'`, "WEB01"}

	tests := []struct {
		name      string
		label     string
		wantIndex int
		wantErr   error
	}{
		{name: "exact match", label: "Switch Mgmt", wantIndex: 1},
		{name: "case folded", label: "web01", wantIndex: 2},
		{name: "stored name padded", label: "WEB02", wantIndex: 3},
		{name: "label quoted", label: `"db01"`, wantIndex: 4},
		{name: "label single quoted and cased", label: `'DB01'`, wantIndex: 4},
		{name: "duplicate resolves to lowest index", label: "WEB01", wantIndex: 2},
		{name: "unknown label", label: "web99", wantErr: types.ErrOutletNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&fakeTable{names: table})
			index, err := r.ResolveIndex(context.Background(), tt.label)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if index != tt.wantIndex {
				t.Errorf("ResolveIndex(%q) = %d, want %d", tt.label, index, tt.wantIndex)
			}
		})
	}
}

func TestResolveIndexCachesPerRun(t *testing.T) {
	table := &fakeTable{names: []string{"web01"}}
	r := NewResolver(table)

	for i := 0; i < 3; i++ {
		index, err := r.ResolveIndex(context.Background(), "WEB01")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if index != 1 {
			t.Fatalf("expected index 1, got %d", index)
		}
	}
	if table.reads != 1 {
		t.Errorf("expected a single table read, got %d", table.reads)
	}
}

func TestResolveIndexReadError(t *testing.T) {
	r := NewResolver(&fakeTable{err: fmt.Errorf("unit unreachable")})
	if _, err := r.ResolveIndex(context.Background(), "web01"); err == nil {
		t.Error("expected error when the table cannot be read")
	}
}

func TestNormalizeOutletName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"WEB01"`, "web01"},
		{`  'Web01'  `, "web01"},
		{`" web01 "`, "web01"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := normalizeOutletName(tt.in); got != tt.want {
			t.Errorf("normalizeOutletName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

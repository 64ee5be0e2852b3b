package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/richinex/musicbi/internal/apperror"
)

func TestHashingBatchMatchesSingle(t *testing.T) {
	ctx := context.Background()
	h := NewHashing(128)
	texts := []string{
		"<document>find the agent module</document>",
		"database connection guide",
		"",
	}

	batch, err := h.EmbedMany(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedMany: %v", err)
	}
	for i, text := range texts {
		one, err := EmbedOne(ctx, h, text)
		if err != nil {
			t.Fatalf("EmbedOne(%q): %v", text, err)
		}
		if len(one) != len(batch[i]) {
			t.Fatalf("length mismatch for %q", text)
		}
		for j := range one {
			if one[j] != batch[i][j] {
				t.Fatalf("text %d component %d: single %v != batch %v", i, j, one[j], batch[i][j])
			}
		}
	}
}

func TestHashingDimensionAndNorm(t *testing.T) {
	tests := []struct {
		name string
		dim  int
		want int
	}{
		{"explicit", 64, 64},
		{"default", 0, DefaultHashingDim},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHashing(tt.dim)
			if h.Dimension() != tt.want {
				t.Fatalf("Dimension() = %d, want %d", h.Dimension(), tt.want)
			}
			vecs, err := h.EmbedMany(context.Background(), []string{"Which artist has the highest sales?"})
			if err != nil {
				t.Fatal(err)
			}
			if len(vecs[0]) != tt.want {
				t.Fatalf("vector length = %d", len(vecs[0]))
			}
			var norm float64
			for _, v := range vecs[0] {
				norm += float64(v) * float64(v)
			}
			if math.Abs(norm-1) > 1e-5 {
				t.Errorf("squared norm = %v, want 1", norm)
			}
		})
	}
}

func TestHashingEmptyTextIsZeroVector(t *testing.T) {
	vecs, err := NewHashing(16).EmbedMany(context.Background(), []string{"  !! "})
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range vecs[0] {
		if v != 0 {
			t.Fatalf("expected zero vector, got %v", vecs[0])
		}
	}
}

type shortEmbedder struct{ dim, got int }

func (s shortEmbedder) Dimension() int { return s.dim }

func (s shortEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, s.got)
	}
	return out, nil
}

func TestCheckedRejectsWrongDimension(t *testing.T) {
	c := NewChecked(shortEmbedder{dim: 8, got: 4})
	_, err := c.EmbedMany(context.Background(), []string{"a"})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
	if !apperror.HasCode(err, apperror.CodeNotFound) {
		t.Errorf("code = %q, want NOT_FOUND", apperror.CodeOf(err))
	}
}

func TestCheckedPassesThrough(t *testing.T) {
	c := NewChecked(NewHashing(32))
	if NewChecked(c) != c {
		t.Error("NewChecked should not double-wrap")
	}
	out, err := c.EmbedMany(context.Background(), nil)
	if err != nil || len(out) != 0 {
		t.Fatalf("empty batch = %v, %v", out, err)
	}
	if err := Close(c); err != nil {
		t.Errorf("Close: %v", err)
	}
}

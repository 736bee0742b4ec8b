package safemath

import (
	"errors"
	"math"
	"testing"
)

func TestAdd64(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want uint64
		ok   bool
	}{
		{"zero plus zero", 0, 0, 0, true},
		{"small values", 1, 2, 3, true},
		{"at boundary", math.MaxUint64 - 1, 1, math.MaxUint64, true},
		{"overflow by one", math.MaxUint64, 1, 0, false},
		{"overflow large", math.MaxUint64, math.MaxUint64, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Add64(tt.a, tt.b)
			if ok != tt.ok {
				t.Fatalf("Add64(%d, %d) ok = %v, want %v", tt.a, tt.b, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("Add64(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSub64(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want uint64
		ok   bool
	}{
		{"zero minus zero", 0, 0, 0, true},
		{"simple difference", 10, 3, 7, true},
		{"to zero", 5, 5, 0, true},
		{"underflow by one", 0, 1, 0, false},
		{"underflow large", 1, math.MaxUint64, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Sub64(tt.a, tt.b)
			if ok != tt.ok {
				t.Fatalf("Sub64(%d, %d) ok = %v, want %v", tt.a, tt.b, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("Sub64(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMul64(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want uint64
		ok   bool
	}{
		{"zero times zero", 0, 0, 0, true},
		{"zero times max", 0, math.MaxUint64, 0, true},
		{"small values", 6, 7, 42, true},
		{"at boundary", math.MaxUint64, 1, math.MaxUint64, true},
		{"overflow", math.MaxUint64, 2, 0, false},
		{"overflow square", 1 << 32, 1 << 32, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Mul64(tt.a, tt.b)
			if ok != tt.ok {
				t.Fatalf("Mul64(%d, %d) ok = %v, want %v", tt.a, tt.b, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("Mul64(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMulDiv64(t *testing.T) {
	tests := []struct {
		name    string
		a, b, d uint64
		want    uint64
		wantErr error
	}{
		{"simple proportion", 800000, 1, 2, 400000, nil},
		{"truncating", 7, 3, 2, 10, nil},
		{"fee split", 1000000, 2000, 10000, 200000, nil},
		{"juror share", 200000, 9500, 10000, 190000, nil},
		{"intermediate exceeds 64 bits", math.MaxUint64, 10000, 10000, math.MaxUint64, nil},
		{"divide by zero", 1, 1, 0, 0, ErrDivideByZero},
		{"quotient overflow", math.MaxUint64, 2, 1, 0, ErrOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulDiv64(tt.a, tt.b, tt.d)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("MulDiv64(%d, %d, %d) err = %v, want %v", tt.a, tt.b, tt.d, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("MulDiv64(%d, %d, %d) = %d, want %d", tt.a, tt.b, tt.d, got, tt.want)
			}
		})
	}
}

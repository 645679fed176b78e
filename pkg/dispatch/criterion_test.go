package dispatch

import (
	"reflect"
	"testing"
)

func TestNullAndNeverAbsorption(t *testing.T) {
	truth := NewTruth(true)

	and, err := And(Null, truth)
	if err != nil {
		t.Fatalf("And(Null, truth): %v", err)
	}
	if !and.Equal(truth) {
		t.Errorf("And(Null, x) should collapse to x, got %v", and)
	}

	or, err := Or(Null, truth)
	if err != nil {
		t.Fatalf("Or(Null, truth): %v", err)
	}
	if !or.Equal(Null) {
		t.Errorf("Or(Null, x) should collapse to Null, got %v", or)
	}
}

func TestDoubleNegation(t *testing.T) {
	truth := NewTruth(true)
	twice := truth.Invert().Invert()
	if !twice.Equal(truth) {
		t.Errorf("double negation should round-trip, got %v", twice)
	}

	cls := NewClass(reflect.TypeOf(0))
	if !cls.Invert().Invert().Equal(cls) {
		t.Errorf("double negation on ClassCriterion should round-trip")
	}
}

func TestAndOrFamilyMismatch(t *testing.T) {
	truth := NewTruth(true)
	ineq, err := NewInequality(OpLT, 10)
	if err != nil {
		t.Fatalf("NewInequality: %v", err)
	}
	if _, err := And(truth, ineq); err == nil {
		t.Fatal("expected ErrCriterionFamilyMismatch for And across families")
	} else if !ErrCriterionFamilyMismatch.Is(err) {
		t.Errorf("expected ErrCriterionFamilyMismatch, got %v", err)
	}
}

func TestDeMorgan(t *testing.T) {
	lt5, err := NewInequality(OpLT, 5)
	if err != nil {
		t.Fatalf("NewInequality: %v", err)
	}
	ge10, err := NewInequality(OpGE, 10)
	if err != nil {
		t.Fatalf("NewInequality: %v", err)
	}

	and, err := And(lt5, ge10)
	if err != nil {
		t.Fatalf("And: %v", err)
	}
	inverted := and.Invert()

	for _, v := range []float64{-1, 3, 7, 12} {
		seed := rangeKey{Lo: v, Hi: v}
		want := !and.Contains(seed)
		got := inverted.Contains(seed)
		if got != want {
			t.Errorf("De Morgan failed at %v: and=%v inverted=%v", v, !want, got)
		}
	}
}

func TestAndOrIdentityAndAbsorber(t *testing.T) {
	truth := NewTruth(true)

	and, err := And(Never, truth)
	if err != nil {
		t.Fatalf("And: %v", err)
	}
	if !and.Equal(Never) {
		t.Errorf("And(Never, x) should collapse to Never, got %v", and)
	}

	or, err := Or(Never, truth)
	if err != nil {
		t.Fatalf("Or: %v", err)
	}
	if !or.Equal(truth) {
		t.Errorf("Or(Never, x) should collapse to x, got %v", or)
	}
}

func TestImpliesReflexive(t *testing.T) {
	truth := NewTruth(true)
	if !truth.Implies(truth) {
		t.Error("a criterion must imply itself")
	}
	ineq, _ := NewInequality(OpLT, 10)
	if !ineq.Implies(ineq) {
		t.Error("Inequality must imply itself")
	}
}

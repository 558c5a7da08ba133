package fixedpoint

import "testing"

func TestDivByZeroIsChecked(t *testing.T) {
	t.Parallel()
	a := NewFromInt(10)
	b := Zero

	_, ok := a.Div(b)
	if ok {
		t.Fatal("Div by zero should return ok=false")
	}
}

func TestDivRounds(t *testing.T) {
	t.Parallel()
	a := NewFromInt(10)
	b := NewFromInt(3)

	got, ok := a.Div(b)
	if !ok {
		t.Fatal("Div should succeed for non-zero divisor")
	}
	want := MustParse("3.3333333333333333333333333333")
	if !got.Equal(want) {
		t.Errorf("10/3 = %s, want %s", got, want)
	}
}

func TestAddSubMulExact(t *testing.T) {
	t.Parallel()
	a := MustParse("50000.1")
	b := MustParse("0.1")

	sum := a.Add(b)
	if !sum.Equal(MustParse("50000.2")) {
		t.Errorf("Add = %s, want 50000.2", sum)
	}

	diff := a.Sub(b)
	if !diff.Equal(MustParse("50000.0")) {
		t.Errorf("Sub = %s, want 50000.0", diff)
	}

	prod := a.Mul(b)
	if !prod.Equal(MustParse("5000.01")) {
		t.Errorf("Mul = %s, want 5000.01", prod)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()
	a := MustParse("0.123456789012345678901234567")

	data, err := a.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}

	var b Decimal
	if err := b.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if !a.Equal(b) {
		t.Errorf("round-trip mismatch: %s != %s", a, b)
	}
}

package correlation

import "testing"

func TestPearsonIdenticalSeries(t *testing.T) {
	a := []float64{-60, -62, -65, -61, -59}
	rho, zeroVar := Pearson(a, a)
	if zeroVar {
		t.Fatalf("expected non-zero variance for %v", a)
	}
	if rho < 0.999 {
		t.Fatalf("expected rho ~= 1 for identical series, got %v", rho)
	}
}

func TestPearsonOppositeSeries(t *testing.T) {
	a := []float64{-60, -62, -65, -61, -59}
	b := []float64{-62, -60, -57, -61, -63}
	rho, zeroVar := Pearson(a, b)
	if zeroVar {
		t.Fatalf("unexpected zero variance")
	}
	if rho > -0.9 {
		t.Fatalf("expected strongly negative rho, got %v", rho)
	}
}

func TestPearsonZeroVariance(t *testing.T) {
	a := []float64{-60, -60, -60, -60}
	b := []float64{-60, -61, -62, -63}
	rho, zeroVar := Pearson(a, b)
	if !zeroVar {
		t.Fatalf("expected zero-variance flag for constant series")
	}
	if rho != 0 {
		t.Fatalf("expected rho=0 on zero variance, got %v", rho)
	}
}

func TestPearsonBounded(t *testing.T) {
	a := []float64{-70, -50, -65, -55, -60, -58}
	b := []float64{-55, -68, -50, -72, -61, -59}
	rho, zeroVar := Pearson(a, b)
	if zeroVar {
		t.Fatalf("unexpected zero variance")
	}
	if rho < -1.0001 || rho > 1.0001 {
		t.Fatalf("rho out of [-1,1] range: %v", rho)
	}
}

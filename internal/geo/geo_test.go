package geo

import "testing"

func TestHaversineZero(t *testing.T) {
	if d := Haversine(24.7136, 46.6753, 24.7136, 46.6753); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Riyadh city centre to King Khalid airport, roughly 31 km.
	d := Haversine(24.7136, 46.6753, 24.9576, 46.6988)
	if d < 25000 || d > 35000 {
		t.Fatalf("distance out of expected band: %f", d)
	}
}

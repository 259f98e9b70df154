package geocode

import "testing"

func TestLoadGazetteer(t *testing.T) {
	g, err := LoadGazetteer()
	if err != nil {
		t.Fatalf("LoadGazetteer: %v", err)
	}
	if len(g.places) == 0 {
		t.Fatalf("expected at least one gazetteer entry")
	}
}

func TestGazetteer_LookupNearestCity(t *testing.T) {
	g, err := LoadGazetteer()
	if err != nil {
		t.Fatalf("LoadGazetteer: %v", err)
	}

	country, admin1, ok := g.Lookup(-33.87, 151.21) // near Sydney
	if !ok {
		t.Fatalf("expected a lookup result")
	}
	if country != "Australia" || admin1 != "New South Wales" {
		t.Fatalf("got %q, %q", country, admin1)
	}
}

func TestGazetteer_EmptyGazetteerMisses(t *testing.T) {
	g := &Gazetteer{}
	if _, _, ok := g.Lookup(0, 0); ok {
		t.Fatalf("expected empty gazetteer to miss")
	}
}

func TestGazetteer_NilReceiverMisses(t *testing.T) {
	var g *Gazetteer
	if _, _, ok := g.Lookup(0, 0); ok {
		t.Fatalf("expected nil gazetteer to miss")
	}
}

package util

import "testing"

func TestBrandToken(t *testing.T) {
	cases := []struct {
		designation string
		want        string
	}{
		{designation: "IKO Shield Membrane", want: "IKO"},
		{designation: "Membrane Siplast Paradiene 20", want: "SIPLAST"},
		{designation: "  rouleau  axter  hyrene ", want: "AXTER"},
		{designation: "40 x 12", want: ""},
		{designation: "", want: ""},
	}
	for _, tc := range cases {
		if got := BrandToken(tc.designation); got != tc.want {
			t.Fatalf("BrandToken(%q) = %q want %q", tc.designation, got, tc.want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName(`  Dupont   "SARL" `); got != "DUPONT SARL" {
		t.Fatalf("got %q", got)
	}
	if NormalizeName("dupont sarl") != NormalizeName("DUPONT  SARL") {
		t.Fatal("expected case and space folding")
	}
}

func TestContainsFold(t *testing.T) {
	if !ContainsFold("IKO Shield Membrane", "iko") {
		t.Fatal("expected match")
	}
	if ContainsFold("IKO Shield", "  ") {
		t.Fatal("blank needle must not match")
	}
}

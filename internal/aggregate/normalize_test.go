package aggregate

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"123 Main St, Anytown, FL 12345", "123 MAIN STREET ANYTOWN FL 12345"},
		{"123 MAIN STREET ANYTOWN FL 12345", "123 MAIN STREET ANYTOWN FL 12345"},
		{"456 n oak ave", "456 NORTH OAK AVENUE"},
		{"  789 Elm Dr.  ", "789 ELM DRIVE"},
		{"100 SW Pine Blvd", "100 SOUTHWEST PINE BOULEVARD"},
		{"55 Harbor Pkwy, Unit 2", "55 HARBOR PARKWAY UNIT 2"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdentity(t *testing.T) {
	// Same property, different upstream formatting.
	pairs := [][2]string{
		{"123 Main St", "123 MAIN STREET."},
		{"456 N Oak Ave, Springfield, FL 33101", "456 north oak avenue springfield fl 33101"},
		{"789 elm dr", " 789  Elm   Dr "},
	}
	for _, p := range pairs {
		a, b := Normalize(p[0]), Normalize(p[1])
		if a != b {
			t.Errorf("Normalize(%q) = %q but Normalize(%q) = %q; want equal", p[0], a, p[1], b)
		}
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want ParsedAddress
	}{
		{
			in: "123 Main St, Anytown, FL 12345",
			want: ParsedAddress{
				Normalized:   "123 MAIN STREET ANYTOWN FL 12345",
				StreetNumber: "123",
				StreetName:   "MAIN",
				StreetSuffix: "STREET",
				City:         "ANYTOWN",
				State:        "FL",
				ZipCode:      "12345",
			},
		},
		{
			in: "456 N Oak Ave",
			want: ParsedAddress{
				Normalized:   "456 NORTH OAK AVENUE",
				StreetNumber: "456",
				StreetName:   "NORTH OAK",
				StreetSuffix: "AVENUE",
			},
		},
		{
			in: "123 Main St Apt 4B",
			want: ParsedAddress{
				Normalized:   "123 MAIN STREET APT 4B",
				StreetNumber: "123",
				StreetName:   "MAIN",
				StreetSuffix: "STREET",
				UnitNumber:   "4B",
			},
		},
		{
			// FL reads as a floor marker only when no state and zip follow.
			in: "55 Pine St Fl 3",
			want: ParsedAddress{
				Normalized:   "55 PINE STREET FL 3",
				StreetNumber: "55",
				StreetName:   "PINE",
				StreetSuffix: "STREET",
				UnitNumber:   "3",
			},
		},
		{
			in: "100 Ocean Dr, Miami, FL 33139",
			want: ParsedAddress{
				Normalized:   "100 OCEAN DRIVE MIAMI FL 33139",
				StreetNumber: "100",
				StreetName:   "OCEAN",
				StreetSuffix: "DRIVE",
				City:         "MIAMI",
				State:        "FL",
				ZipCode:      "33139",
			},
		},
		{
			in:   "",
			want: ParsedAddress{},
		},
	}
	for _, tc := range cases {
		got := Parse(tc.in)
		if got != tc.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

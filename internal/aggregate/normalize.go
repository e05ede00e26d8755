package aggregate

import (
	"regexp"
	"strings"
)

// Street suffix abbreviations expanded during normalization.
var streetSuffixes = map[string]string{
	"ST":   "STREET",
	"AVE":  "AVENUE",
	"BLVD": "BOULEVARD",
	"RD":   "ROAD",
	"DR":   "DRIVE",
	"LN":   "LANE",
	"CT":   "COURT",
	"CIR":  "CIRCLE",
	"PL":   "PLACE",
	"TER":  "TERRACE",
	"WAY":  "WAY",
	"PKWY": "PARKWAY",
	"HWY":  "HIGHWAY",
	"SQ":   "SQUARE",
	"TR":   "TRAIL",
	"TPKE": "TURNPIKE",
	"LOOP": "LOOP",
	"PATH": "PATH",
	"ALY":  "ALLEY",
	"XING": "CROSSING",
	"PASS": "PASS",
	"RUN":  "RUN",
	"ROW":  "ROW",
}

var directionals = map[string]string{
	"N":  "NORTH",
	"S":  "SOUTH",
	"E":  "EAST",
	"W":  "WEST",
	"NE": "NORTHEAST",
	"NW": "NORTHWEST",
	"SE": "SOUTHEAST",
	"SW": "SOUTHWEST",
}

var unitIndicators = map[string]bool{
	"APT": true, "APARTMENT": true, "UNIT": true, "STE": true, "SUITE": true,
	"#": true, "BLDG": true, "BUILDING": true, "FL": true, "FLOOR": true,
}

var expandedSuffixes = func() map[string]bool {
	out := make(map[string]bool, len(streetSuffixes))
	for _, v := range streetSuffixes {
		out[v] = true
	}
	return out
}()

var punct = strings.NewReplacer(",", " ", ".", " ")

// Normalize folds a raw address into the canonical form used as the
// property identity key. Pure: Normalize(a) == Normalize(b) is exactly
// the "same property" test, regardless of upstream formatting.
//
//	Normalize("123 Main St, Anytown, FL 12345") == "123 MAIN STREET ANYTOWN FL 12345"
func Normalize(address string) string {
	if strings.TrimSpace(address) == "" {
		return ""
	}

	s := strings.ToUpper(strings.TrimSpace(address))
	s = punct.Replace(s)

	fields := strings.Fields(s)
	for i, f := range fields {
		if full, ok := streetSuffixes[f]; ok {
			fields[i] = full
			continue
		}
		if full, ok := directionals[f]; ok {
			fields[i] = full
		}
	}
	return strings.Join(fields, " ")
}

// ParsedAddress carries best-effort address components alongside the
// normalized key. Component extraction is lossy; only Normalized is
// authoritative for identity.
type ParsedAddress struct {
	Normalized   string
	StreetNumber string
	StreetName   string
	StreetSuffix string
	UnitNumber   string
	City         string
	State        string
	ZipCode      string
}

var (
	streetNumberRe = regexp.MustCompile(`^(\d+[A-Z]?)`)
	zipRe          = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	alphaRe        = regexp.MustCompile(`^[A-Z]+$`)
)

// Parse normalizes the address and pulls out components.
func Parse(address string) ParsedAddress {
	out := ParsedAddress{Normalized: Normalize(address)}
	if out.Normalized == "" {
		return out
	}

	parts := strings.Fields(out.Normalized)

	if m := streetNumberRe.FindString(parts[0]); m != "" {
		out.StreetNumber = m
		parts = parts[1:]
	}

	// A trailing state-and-zip pair is never a unit designation, even
	// when the state abbreviation doubles as a floor marker ("FL").
	end := len(parts)
	if end >= 2 && zipRe.MatchString(parts[end-1]) &&
		len(parts[end-2]) == 2 && alphaRe.MatchString(parts[end-2]) {
		end -= 2
	}

	// Peel a trailing unit designation off what remains.
	for i := 0; i < end; i++ {
		if unitIndicators[parts[i]] || strings.HasPrefix(parts[i], "#") {
			if i+1 < end {
				out.UnitNumber = strings.Join(parts[i+1:end], " ")
			}
			parts = append(parts[:i], parts[end:]...)
			break
		}
	}

	stateIdx, zipIdx := -1, -1
	for i, p := range parts {
		if stateIdx < 0 && len(p) == 2 && alphaRe.MatchString(p) {
			stateIdx = i
			out.State = p
		}
		if zipIdx < 0 && zipRe.MatchString(p) {
			zipIdx = i
			out.ZipCode = p
		}
	}

	// City sits between the street suffix and the state/zip.
	if stateIdx >= 0 || zipIdx >= 0 {
		cityStart := -1
		for i, p := range parts {
			if expandedSuffixes[p] {
				cityStart = i + 1
				break
			}
		}
		cityEnd := stateIdx
		if cityEnd < 0 {
			cityEnd = zipIdx
		}
		if cityStart >= 0 && cityStart < cityEnd {
			out.City = strings.Join(parts[cityStart:cityEnd], " ")
		}
	}

	streetEnd := len(parts)
	for i, p := range parts {
		if (stateIdx >= 0 && i >= stateIdx) || (zipIdx >= 0 && i >= zipIdx) {
			streetEnd = i
			break
		}
		if expandedSuffixes[p] {
			streetEnd = i + 1
			break
		}
	}
	street := parts[:streetEnd]
	if len(street) > 0 {
		if expandedSuffixes[street[len(street)-1]] {
			out.StreetSuffix = street[len(street)-1]
			out.StreetName = strings.Join(street[:len(street)-1], " ")
		} else {
			out.StreetName = strings.Join(street, " ")
		}
	}
	return out
}

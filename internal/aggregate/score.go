package aggregate

import (
	"fmt"
	"time"

	"permitpulse-engine/internal/domain"
)

// QualificationAge is the minimum system age, in whole years, for a
// property to count as a qualified lead.
const QualificationAge = 5

// AgeYears returns the system age in whole calendar years as of now,
// with the usual anniversary adjustment: no birthday yet this year means
// one year less. Never negative.
func AgeYears(installed time.Time, now time.Time) int {
	years := now.Year() - installed.Year()
	if now.Month() < installed.Month() ||
		(now.Month() == installed.Month() && now.Day() < installed.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// Score maps system age to a 0-100 lead score in four fixed bands.
// The integer truncation per band is load-bearing: downstream routing
// keys off exact threshold values.
//
//	>= 20y: 100
//	15-20y: 80 + (age-15)*3  -> 80..95
//	10-15y: 60 + (age-10)*3  -> 60..72
//	 5-10y: 40 + (age-5)*3   -> 40..52
//	  < 5y: age*7            ->  0..28
func Score(ageYears int) int {
	switch {
	case ageYears >= 20:
		return 100
	case ageYears >= 15:
		return 80 + (ageYears-15)*3
	case ageYears >= 10:
		return 60 + (ageYears-10)*3
	case ageYears >= QualificationAge:
		return 40 + (ageYears-QualificationAge)*3
	default:
		return ageYears * 7
	}
}

// Tier partitions age into the four lead tiers.
func Tier(ageYears int) string {
	switch {
	case ageYears >= 15:
		return domain.TierHot
	case ageYears >= 10:
		return domain.TierWarm
	case ageYears >= QualificationAge:
		return domain.TierCool
	default:
		return domain.TierCold
	}
}

func Qualified(ageYears int) bool {
	return ageYears >= QualificationAge
}

// ContactCompleteness buckets owner contact data.
func ContactCompleteness(phone, email string) string {
	switch {
	case phone != "" && email != "":
		return domain.ContactComplete
	case phone != "" || email != "":
		return domain.ContactPartial
	default:
		return domain.ContactMinimal
	}
}

// ValueTier buckets the assessed property value. Zero/unknown is standard.
func ValueTier(propertyValue float64) string {
	switch {
	case propertyValue >= 500000:
		return domain.ValueUltraHigh
	case propertyValue >= 350000:
		return domain.ValueHigh
	case propertyValue >= 200000:
		return domain.ValueMedium
	default:
		return domain.ValueStandard
	}
}

// QualificationReason renders the operator-facing reason line.
func QualificationReason(ageYears int, propertyValue float64) string {
	reason := fmt.Sprintf("HVAC %d years old", ageYears)
	if propertyValue > 0 {
		reason += fmt.Sprintf(", property value $%s", thousands(int64(propertyValue)))
	}
	return reason
}

func thousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}

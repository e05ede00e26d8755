package accela

import (
	"encoding/json"
	"time"

	"permitpulse-engine/internal/domain"
)

// Record wraps one loosely-typed upstream payload. The upstream schema
// drifts across agency versions (field aliases, nested enrichment
// shapes), so every field is read through a fallible, priority-ordered
// extractor instead of a rigid struct.
type Record struct {
	payload map[string]any
}

func NewRecord(payload map[string]any) Record {
	return Record{payload: payload}
}

func (r Record) Raw() map[string]any { return r.payload }

func (r Record) RawJSON() string {
	b, err := json.Marshal(r.payload)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (r Record) ID() string {
	return str(r.payload, "id", "customId", "recordId")
}

var dateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// OpenedDate tries the known aliases and layouts for the record's open
// date. ok=false when nothing parses.
func (r Record) OpenedDate() (time.Time, bool) {
	raw := str(r.payload, "openedDate", "openDate", "dateOpened", "fileDate")
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func (r Record) TypeText() string {
	return textOf(r.payload, "type", "recordType")
}

func (r Record) StatusText() string {
	return textOf(r.payload, "status")
}

func (r Record) Description() string {
	return str(r.payload, "description", "shortNotes")
}

func (r Record) JobValue() float64 {
	v, _ := num(r.payload, "estimatedCostOfConstruction", "jobValue", "estimatedValue")
	return v
}

// Addresses returns the expanded address sub-resources, if the listing
// call carried them.
func (r Record) Addresses() []map[string]any {
	return list(r.payload, "addresses")
}

func (r Record) Owners() []map[string]any {
	return list(r.payload, "owners", "professionals")
}

func (r Record) Parcels() []map[string]any {
	return list(r.payload, "parcels")
}

// Permit flattens the record plus enrichment into the stored shape.
// Enrichment lists may be the expanded ones or ones fetched separately.
func (r Record) Permit(tenantID string, addresses, owners, parcels []map[string]any) domain.Permit {
	p := domain.Permit{
		TenantID:    tenantID,
		ExternalID:  r.ID(),
		PermitType:  r.TypeText(),
		Description: r.Description(),
		Status:      r.StatusText(),
		JobValue:    r.JobValue(),
		RawJSON:     r.RawJSON(),
	}
	if t, ok := r.OpenedDate(); ok {
		p.OpenedDate = &t
	}

	if addr := primary(addresses); addr != nil {
		p.PropertyAddress = str(addr, "fullAddress", "addressLine1", "displayAddress")
	}
	if owner := primary(owners); owner != nil {
		p.OwnerName = str(owner, "fullName", "name", "businessName")
		p.OwnerPhone = str(owner, "phone1", "phone", "phoneNumber")
		p.OwnerEmail = str(owner, "email", "emailAddress")
	}
	if len(parcels) > 0 {
		parcel := parcels[0]
		if v, ok := num(parcel, "yearBuilt"); ok {
			p.YearBuilt = int(v)
		}
		if v, ok := num(parcel, "buildingSquareFeet", "squareFeet"); ok {
			p.SquareFootage = int(v)
		}
		if v, ok := num(parcel, "landValue", "parcelValue", "assessedValue"); ok {
			p.PropertyValue = v
		}
		if v, ok := num(parcel, "lotAreaSquareFeet", "lotSize"); ok {
			p.LotSize = v
		}
	}
	return p
}

// primary picks the entry flagged primary, else the first one.
func primary(items []map[string]any) map[string]any {
	for _, it := range items {
		switch v := it["isPrimary"].(type) {
		case bool:
			if v {
				return it
			}
		case string:
			if v == "Y" || v == "true" {
				return it
			}
		}
	}
	if len(items) > 0 {
		return items[0]
	}
	return nil
}

// str returns the first non-empty string among the aliased keys.
func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// textOf reads Accela's {text, value} wrapper with a plain-string
// fallback, trying each aliased key in order.
func textOf(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case map[string]any:
			if s := str(v, "text", "value"); s != "" {
				return s
			}
		case string:
			if v != "" {
				return v
			}
		}
	}
	return ""
}

// num accepts JSON numbers or numeric strings under any aliased key.
func num(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		case string:
			if v == "" {
				continue
			}
			var f float64
			if err := json.Unmarshal([]byte(v), &f); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func list(m map[string]any, keys ...string) []map[string]any {
	for _, k := range keys {
		raw, ok := m[k].([]any)
		if !ok {
			continue
		}
		out := make([]map[string]any, 0, len(raw))
		for _, it := range raw {
			if mm, ok := it.(map[string]any); ok {
				out = append(out, mm)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

package document

import "time"

// Measurement is a payload field holding a current value, its unit, and an
// append-only history of provenance-tagged entries.
type Measurement struct {
	Current interface{}    `json:"current"`
	Unit    string         `json:"unit"`
	History []HistoryEntry `json:"history"`
}

// HistoryEntry is one immutable measurement record. Entries are never edited
// or removed once appended.
type HistoryEntry struct {
	Value     interface{} `json:"value"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	Notes     string      `json:"notes,omitempty"`
}

// AddEntry returns a new Measurement with the entry appended and Current set
// to the entry's value. The input measurement is not mutated; history length
// grows by exactly one per call.
//
// Entries are kept in call order, not re-sorted by timestamp: a backfill with
// out-of-order timestamps leaves Current at the last-arrived value, not the
// chronologically latest one.
func AddEntry(m Measurement, value interface{}, timestamp time.Time, source, notes string) Measurement {
	history := make([]HistoryEntry, len(m.History), len(m.History)+1)
	copy(history, m.History)
	history = append(history, HistoryEntry{
		Value:     value,
		Timestamp: timestamp,
		Source:    source,
		Notes:     notes,
	})
	return Measurement{
		Current: value,
		Unit:    m.Unit,
		History: history,
	}
}

// MeasurementFromMap reads a measurement out of its raw payload form.
// Missing or malformed fields degrade to zero values rather than erroring:
// templates instantiate measurements with nil current and an empty history.
func MeasurementFromMap(raw map[string]interface{}) Measurement {
	m := Measurement{Current: raw["current"]}
	if unit, ok := raw["unit"].(string); ok {
		m.Unit = unit
	}
	rawHistory, ok := raw["history"].([]interface{})
	if !ok {
		return m
	}
	m.History = make([]HistoryEntry, 0, len(rawHistory))
	for _, re := range rawHistory {
		entry, ok := re.(map[string]interface{})
		if !ok {
			continue
		}
		he := HistoryEntry{Value: entry["value"]}
		if ts, ok := entry["timestamp"].(string); ok {
			if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				he.Timestamp = parsed
			}
		}
		if src, ok := entry["source"].(string); ok {
			he.Source = src
		}
		if notes, ok := entry["notes"].(string); ok {
			he.Notes = notes
		}
		m.History = append(m.History, he)
	}
	return m
}

// ToMap converts a measurement back to its raw payload form. Timestamps are
// rendered as RFC 3339 UTC strings so the payload stays JSON-shaped.
func (m Measurement) ToMap() map[string]interface{} {
	history := make([]interface{}, 0, len(m.History))
	for _, e := range m.History {
		entry := map[string]interface{}{
			"value":     e.Value,
			"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
			"source":    e.Source,
		}
		if e.Notes != "" {
			entry["notes"] = e.Notes
		}
		history = append(history, entry)
	}
	return map[string]interface{}{
		"current": m.Current,
		"unit":    m.Unit,
		"history": history,
	}
}

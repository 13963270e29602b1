package openchargemap

import (
	"strconv"
	"strings"

	"github.com/autoplaza/autoplaza/internal/station"
)

// record is one raw POI. The upstream API answers in PascalCase while the
// marketplace proxy re-serializes in camelCase; lookups ignore key case so both
// shapes normalize the same way.
type record map[string]any

func (r record) get(key string) (any, bool) {
	if v, ok := r[key]; ok {
		return v, true
	}
	for k, v := range r {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func (r record) object(key string) record {
	v, ok := r.get(key)
	if !ok {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

func (r record) list(key string) []any {
	v, ok := r.get(key)
	if !ok {
		return nil
	}
	l, _ := v.([]any)
	return l
}

func (r record) str(key string) string {
	v, ok := r.get(key)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func (r record) number(key string) (float64, bool) {
	v, ok := r.get(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// title reads the Title of a nested object, e.g. OperatorInfo.Title.
func (r record) title(key string) string {
	return r.object(key).str("Title")
}

// normalize converts one raw POI into a feature. It returns false for records
// that cannot be placed on a map.
func normalize(r record) (station.Feature, bool) {
	addr := r.object("AddressInfo")
	lat, okLat := addr.number("Latitude")
	lon, okLon := addr.number("Longitude")
	if !okLat || !okLon {
		return station.Feature{}, false
	}

	id, _ := r.number("ID")

	props := station.Properties{
		Title:           addr.str("Title"),
		AddressLine:     addr.str("AddressLine1"),
		Town:            addr.str("Town"),
		StateOrProvince: addr.str("StateOrProvince"),
		Postcode:        addr.str("Postcode"),
		Country:         addr.title("Country"),
		Operator:        r.title("OperatorInfo"),
		Status:          r.title("StatusType"),
		UsageCost:       r.str("UsageCost"),
		Connections:     normalizeConnections(r.list("Connections")),
	}

	return station.Feature{
		ID:         int64(id),
		Lat:        lat,
		Lon:        lon,
		Properties: props,
	}, true
}

func normalizeConnections(raw []any) []station.Connector {
	out := make([]station.Connector, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		c := record(m)

		conn := station.Connector{
			Type:     c.title("ConnectionType"),
			Quantity: 1,
		}
		if conn.Type == "" {
			conn.Type = c.str("ConnectionType")
		}
		if p, ok := c.number("PowerKW"); ok {
			conn.PowerKW = &p
		}
		if q, ok := c.number("Quantity"); ok && q > 0 {
			conn.Quantity = int(q)
		}
		out = append(out, conn)
	}
	return out
}

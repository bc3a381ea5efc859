// Package telemetry converts heterogeneous live position payloads into
// canonical NormalizedPosition records.
package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jengzang/fleet-tracking-go/internal/models"
)

// Reject reasons. Normalize and DecodeRawEvents wrap one of these; test
// with errors.Is.
var (
	ErrMissingEntityID    = errors.New("missing entity id")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrMalformedEvent     = errors.New("malformed event")
)

// Unix timestamps above this are taken to be milliseconds
const millisThreshold = 1e12

// Normalizer resolves entity id, coordinates and optional fields from a
// RawEvent through ordered alias tables. It holds no state.
type Normalizer struct{}

// NewNormalizer creates a normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize converts raw into a NormalizedPosition. Events without an
// entity id or with unusable coordinates are rejected with an error
// wrapping ErrMissingEntityID or ErrInvalidCoordinates. Timestamp is left
// zero when the event carries none usable; the caller stamps arrival time.
func (n *Normalizer) Normalize(raw models.RawEvent) (models.NormalizedPosition, error) {
	entityID, ok := resolveEntityID(raw)
	if !ok {
		return models.NormalizedPosition{}, ErrMissingEntityID
	}

	lat, lng, err := resolveCoordinates(raw)
	if err != nil {
		return models.NormalizedPosition{}, fmt.Errorf("entity %s: %w", entityID, err)
	}

	pos := models.NormalizedPosition{
		EntityID:  entityID,
		Timestamp: resolveTimestamp(raw),
		Lat:       lat,
		Lng:       lng,
		Speed:     optionalFloat(raw, speedAliases),
		Heading:   optionalFloat(raw, headingAliases),
		Altitude:  optionalFloat(raw, altitudeAliases),
		Battery:   optionalFloat(raw, batteryAliases),
	}

	if sats := optionalFloat(raw, satelliteAliases); sats != nil && *sats >= 0 && *sats == math.Trunc(*sats) {
		v := int(*sats)
		pos.Satellites = &v
	}

	return pos, nil
}

// ValidCoordinates reports whether lat/lng are finite and within range
func ValidCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func resolveEntityID(raw models.RawEvent) (string, bool) {
	for _, alias := range entityIDAliases {
		v, ok := lookup(raw, alias)
		if !ok {
			continue
		}
		if id, ok := toID(v); ok {
			return id, true
		}
	}
	return "", false
}

func resolveCoordinates(raw models.RawEvent) (float64, float64, error) {
	lat, latOK := firstFloat(raw, latitudeAliases)
	lng, lngOK := firstFloat(raw, longitudeAliases)

	if !latOK || !lngOK {
		// Fall back to GeoJSON [lng, lat] arrays only when scalars are absent
		for _, alias := range coordinateArrayAliases {
			v, ok := lookup(raw, alias)
			if !ok {
				continue
			}
			arr, ok := v.([]any)
			if !ok || len(arr) < 2 {
				continue
			}
			x, xOK := toFloat(arr[0])
			y, yOK := toFloat(arr[1])
			if xOK && yOK {
				lat, lng, latOK, lngOK = y, x, true, true
				break
			}
		}
	}

	if !latOK || !lngOK {
		return 0, 0, fmt.Errorf("%w: latitude or longitude missing or non-numeric", ErrInvalidCoordinates)
	}
	if !ValidCoordinates(lat, lng) {
		return 0, 0, fmt.Errorf("%w: (%v, %v) out of range", ErrInvalidCoordinates, lat, lng)
	}
	return lat, lng, nil
}

func resolveTimestamp(raw models.RawEvent) time.Time {
	for _, alias := range timestampAliases {
		v, ok := lookup(raw, alias)
		if !ok {
			continue
		}
		if ts, ok := toTime(v); ok {
			return ts.UTC()
		}
	}
	return time.Time{}
}

func optionalFloat(raw models.RawEvent, aliases []string) *float64 {
	v, ok := firstFloat(raw, aliases)
	if !ok {
		return nil
	}
	return &v
}

func firstFloat(raw models.RawEvent, aliases []string) (float64, bool) {
	for _, alias := range aliases {
		v, ok := lookup(raw, alias)
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// lookup walks a dotted path through nested objects
func lookup(raw models.RawEvent, path string) (any, bool) {
	var current any = map[string]any(raw)
	for _, key := range strings.Split(path, ".") {
		var obj map[string]any
		switch m := current.(type) {
		case map[string]any:
			obj = m
		case models.RawEvent:
			obj = m
		default:
			return nil, false
		}
		next, ok := obj[key]
		if !ok || next == nil {
			return nil, false
		}
		current = next
	}
	return current, true
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toID(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		id := strings.TrimSpace(x)
		return id, id != ""
	case json.Number:
		return x.String(), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", false
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	default:
		return "", false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05.000",
}

func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f)
		}
		return time.Time{}, false
	default:
		f, ok := toFloat(v)
		if !ok {
			return time.Time{}, false
		}
		return fromEpoch(f)
	}
}

func fromEpoch(f float64) (time.Time, bool) {
	if f <= 0 {
		return time.Time{}, false
	}
	if f > millisThreshold {
		return time.UnixMilli(int64(f)), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)), true
}

// DecodeRawEvents decodes a JSON object or an array of objects. Numbers
// are kept as json.Number so integer ids survive unchanged. Array
// elements are decoded one by one: an element that is not an object
// leaves a nil event and an error wrapping ErrMalformedEvent at the same
// index of errs. err is set only when the payload as a whole is unusable.
func DecodeRawEvents(data []byte) (events []models.RawEvent, errs []error, err error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil, errors.New("empty payload")
	}

	if trimmed[0] != '[' {
		event, err := decodeEvent(trimmed)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode event: %w", err)
		}
		return []models.RawEvent{event}, []error{nil}, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, nil, fmt.Errorf("failed to decode event batch: %w", err)
	}

	events = make([]models.RawEvent, len(elems))
	errs = make([]error, len(elems))
	for i, elem := range elems {
		events[i], errs[i] = decodeEvent(elem)
	}
	return events, errs, nil
}

func decodeEvent(data []byte) (models.RawEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var event models.RawEvent
	if err := dec.Decode(&event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event == nil {
		return nil, fmt.Errorf("%w: null", ErrMalformedEvent)
	}
	return event, nil
}

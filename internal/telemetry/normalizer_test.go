package telemetry

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer()
}

func TestNormalize_AliasVariants(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name    string
		raw     models.RawEvent
		wantID  string
		wantLat float64
		wantLng float64
	}{
		{
			name:    "flat camelCase",
			raw:     models.RawEvent{"deviceId": "v1", "latitude": 10.5, "longitude": 20.25},
			wantID:  "v1",
			wantLat: 10.5,
			wantLng: 20.25,
		},
		{
			name:    "snake_case with string numbers",
			raw:     models.RawEvent{"device_id": "truck-7", "lat": "-33.9", "lon": "151.2"},
			wantID:  "truck-7",
			wantLat: -33.9,
			wantLng: 151.2,
		},
		{
			name: "nested position object",
			raw: models.RawEvent{
				"vehicle":  map[string]any{"id": "bus-12"},
				"position": map[string]any{"latitude": 1.0, "longitude": 2.0},
			},
			wantID:  "bus-12",
			wantLat: 1,
			wantLng: 2,
		},
		{
			name:    "geojson coordinates array",
			raw:     models.RawEvent{"imei": "356938035643809", "location": map[string]any{"coordinates": []any{13.4, 52.5}}},
			wantID:  "356938035643809",
			wantLat: 52.5,
			wantLng: 13.4,
		},
		{
			name:    "numeric id",
			raw:     models.RawEvent{"id": json.Number("42"), "lat": json.Number("0"), "lng": json.Number("0")},
			wantID:  "42",
			wantLat: 0,
			wantLng: 0,
		},
		{
			name:    "earlier alias wins",
			raw:     models.RawEvent{"deviceId": "primary", "id": "fallback", "lat": 5, "lng": 6},
			wantID:  "primary",
			wantLat: 5,
			wantLng: 6,
		},
		{
			name:    "boundary coordinates",
			raw:     models.RawEvent{"deviceId": "pole", "lat": 90, "lng": -180},
			wantID:  "pole",
			wantLat: 90,
			wantLng: -180,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, err := n.Normalize(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, pos.EntityID)
			assert.Equal(t, tt.wantLat, pos.Lat)
			assert.Equal(t, tt.wantLng, pos.Lng)
		})
	}
}

func TestNormalize_Rejects(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name    string
		raw     models.RawEvent
		wantErr error
	}{
		{"nil event", nil, ErrMissingEntityID},
		{"no id", models.RawEvent{"lat": 1, "lng": 2}, ErrMissingEntityID},
		{"blank id", models.RawEvent{"deviceId": "   ", "lat": 1, "lng": 2}, ErrMissingEntityID},
		{"boolean id", models.RawEvent{"deviceId": true, "lat": 1, "lng": 2}, ErrMissingEntityID},
		{"missing lat", models.RawEvent{"deviceId": "v1", "lng": 2}, ErrInvalidCoordinates},
		{"missing lng", models.RawEvent{"deviceId": "v1", "lat": 2}, ErrInvalidCoordinates},
		{"non-numeric lat", models.RawEvent{"deviceId": "v1", "lat": "north", "lng": 2}, ErrInvalidCoordinates},
		{"NaN lat", models.RawEvent{"deviceId": "v1", "lat": math.NaN(), "lng": 2}, ErrInvalidCoordinates},
		{"NaN string", models.RawEvent{"deviceId": "v1", "lat": "NaN", "lng": 2}, ErrInvalidCoordinates},
		{"infinite lng", models.RawEvent{"deviceId": "v1", "lat": 1, "lng": math.Inf(1)}, ErrInvalidCoordinates},
		{"lat too large", models.RawEvent{"deviceId": "v1", "lat": 90.0001, "lng": 2}, ErrInvalidCoordinates},
		{"lat too small", models.RawEvent{"deviceId": "v1", "lat": -91, "lng": 2}, ErrInvalidCoordinates},
		{"lng too large", models.RawEvent{"deviceId": "v1", "lat": 1, "lng": 180.5}, ErrInvalidCoordinates},
		{"lng too small", models.RawEvent{"deviceId": "v1", "lat": 1, "lng": -181}, ErrInvalidCoordinates},
		{"short coordinates array", models.RawEvent{"deviceId": "v1", "coordinates": []any{1.0}}, ErrInvalidCoordinates},
		{"null coordinates", models.RawEvent{"deviceId": "v1", "lat": nil, "lng": nil}, ErrInvalidCoordinates},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, err := n.Normalize(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, models.NormalizedPosition{}, pos)
		})
	}
}

func TestNormalize_OptionalFields(t *testing.T) {
	n := newTestNormalizer()

	pos, err := n.Normalize(models.RawEvent{
		"deviceId":   "v1",
		"lat":        1,
		"lng":        2,
		"spd":        "45.5",
		"course":     270,
		"alt":        json.Number("120.5"),
		"attributes": map[string]any{"batteryLevel": 87.0, "sat": 9.0},
	})
	require.NoError(t, err)

	require.NotNil(t, pos.Speed)
	assert.Equal(t, 45.5, *pos.Speed)
	require.NotNil(t, pos.Heading)
	assert.Equal(t, 270.0, *pos.Heading)
	require.NotNil(t, pos.Altitude)
	assert.Equal(t, 120.5, *pos.Altitude)
	require.NotNil(t, pos.Battery)
	assert.Equal(t, 87.0, *pos.Battery)
	require.NotNil(t, pos.Satellites)
	assert.Equal(t, 9, *pos.Satellites)

	t.Run("absent and malformed optionals stay unset", func(t *testing.T) {
		pos, err := n.Normalize(models.RawEvent{"deviceId": "v1", "lat": 1, "lng": 2, "speed": "fast", "sats": 2.5})
		require.NoError(t, err)
		assert.Nil(t, pos.Speed)
		assert.Nil(t, pos.Heading)
		assert.Nil(t, pos.Altitude)
		assert.Nil(t, pos.Battery)
		assert.Nil(t, pos.Satellites)
	})
}

func TestNormalize_Timestamps(t *testing.T) {
	n := newTestNormalizer()
	want := time.Date(2024, 4, 30, 8, 15, 30, 0, time.UTC)

	tests := []struct {
		name string
		ts   any
		want time.Time
	}{
		{"rfc3339", "2024-04-30T08:15:30Z", want},
		{"rfc3339 offset", "2024-04-30T10:15:30+02:00", want},
		{"unix seconds", float64(want.Unix()), want},
		{"unix millis", json.Number("1714464930000"), want},
		{"unix seconds string", "1714464930", want},
		{"unparseable left zero", "yesterday", time.Time{}},
		{"missing left zero", nil, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := models.RawEvent{"deviceId": "v1", "lat": 1, "lng": 2}
			if tt.ts != nil {
				raw["timestamp"] = tt.ts
			}
			pos, err := n.Normalize(raw)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(pos.Timestamp), "got %v want %v", pos.Timestamp, tt.want)
			if !tt.want.IsZero() {
				assert.Equal(t, time.UTC, pos.Timestamp.Location())
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := newTestNormalizer()
	raw := models.RawEvent{
		"device_id": "v9",
		"ts":        "2024-04-30T08:15:30.250Z",
		"location":  map[string]any{"lat": 48.1, "lng": 11.5, "speed": 12.0},
		"battery":   "55",
	}

	first, err := n.Normalize(raw)
	require.NoError(t, err)
	second, err := n.Normalize(raw)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("normalize not idempotent (-first +second):\n%s", diff)
	}
}

func TestNormalize_IdempotentWithoutTimestamp(t *testing.T) {
	raw := models.RawEvent{"deviceId": "v1", "lat": 10, "lng": 20}

	first, err := newTestNormalizer().Normalize(raw)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := newTestNormalizer().Normalize(raw)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("normalize depends on wall time (-first +second):\n%s", diff)
	}
	assert.True(t, first.Timestamp.IsZero())
}

func TestDecodeRawEvents(t *testing.T) {
	t.Run("single object", func(t *testing.T) {
		events, errs, err := DecodeRawEvents([]byte(`{"deviceId":"v1","lat":10,"lng":20}`))
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.NoError(t, errs[0])
		assert.Equal(t, json.Number("10"), events[0]["lat"])
	})

	t.Run("array", func(t *testing.T) {
		events, errs, err := DecodeRawEvents([]byte(` [{"id":1},{"id":2}] `))
		require.NoError(t, err)
		assert.Len(t, events, 2)
		assert.Equal(t, []error{nil, nil}, errs)
	})

	t.Run("bad elements stay isolated", func(t *testing.T) {
		events, errs, err := DecodeRawEvents([]byte(`[{"deviceId":"a","lat":1,"lng":1},"garbage",7,[1,2],null,{"deviceId":"b","lat":2,"lng":2}]`))
		require.NoError(t, err)
		require.Len(t, events, 6)
		require.Len(t, errs, 6)
		assert.NoError(t, errs[0])
		assert.NoError(t, errs[5])
		for i := 1; i <= 4; i++ {
			assert.ErrorIs(t, errs[i], ErrMalformedEvent, "element %d", i)
			assert.Nil(t, events[i])
		}
		assert.Equal(t, "b", events[5]["deviceId"])
	})

	t.Run("malformed", func(t *testing.T) {
		_, _, err := DecodeRawEvents([]byte(`{"id":`))
		assert.Error(t, err)
		_, _, err = DecodeRawEvents([]byte(`[{"id":1},`))
		assert.Error(t, err)
		_, _, err = DecodeRawEvents(nil)
		assert.Error(t, err)
	})

	t.Run("decoded payload normalizes", func(t *testing.T) {
		events, _, err := DecodeRawEvents([]byte(`{"dev_id":"k-1","lat":"12.5","lon":"-3.25","ts":"1714464930000","sats":"7"}`))
		require.NoError(t, err)
		pos, err := newTestNormalizer().Normalize(events[0])
		require.NoError(t, err)
		assert.Equal(t, "k-1", pos.EntityID)
		assert.Equal(t, 12.5, pos.Lat)
		assert.Equal(t, -3.25, pos.Lng)
		require.NotNil(t, pos.Satellites)
		assert.Equal(t, 7, *pos.Satellites)
	})
}

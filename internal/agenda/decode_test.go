package agenda

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietDecoder() *Decoder {
	return NewDecoder(testLoc, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDecodeTakesFirstKeyInDocumentOrder(t *testing.T) {
	payload := []byte(`{
		"120": [
			{"key": "a1", "day": "2024-07-23", "start": "09:30", "end": "11:30", "title": "TLS", "type": "Session", "group": "tls", "area": "sec", "location": "Room 1", "url": "https://x/a1"},
			{"key": 42, "day": "2024-07-23", "start": "1300", "end": "1400", "title": "Lunch", "type": "Break"}
		],
		"zzz": [{"key": "ignored", "day": "2024-07-23", "start": "09:00", "end": "10:00"}]
	}`)

	events, err := quietDecoder().Decode(payload)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "a1", events[0].Key)
	assert.Equal(t, "tls", events[0].Group)
	assert.Equal(t, "Room 1", events[0].Location)
	assert.Equal(t, "https://x/a1", events[0].DetailURL)
	assert.True(t, events[0].Start.Equal(at(9, 30)))
	assert.True(t, events[0].End.Equal(at(11, 30)))

	assert.Equal(t, "42", events[1].Key)
	assert.True(t, events[1].Start.Equal(at(13, 0)))
}

func TestDecodeSkipsBadAndUnscheduledEntries(t *testing.T) {
	payload := []byte(`{"x": [
		{"key": "ok", "day": "2024-07-23", "start": "09:00", "end": "10:00", "title": "Good"},
		{"key": "later", "day": "", "start": "", "end": "", "status": "notsched"},
		{"key": "unsched", "day": "bad", "start": "xx", "end": "yy", "type": "Unscheduled"},
		{"key": "badtime", "day": "2024-07-23", "start": "nine", "end": "10:00"},
		{"day": "2024-07-23", "start": "09:00", "end": "10:00", "title": "no key"},
		"not an object"
	]}`)

	events, err := quietDecoder().Decode(payload)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Key)
}

func TestDecodeOvernightEnd(t *testing.T) {
	payload := []byte(`{"x": [{"key": "n", "day": "2024-07-23", "start": "22:00", "end": "01:00"}]}`)
	events, err := quietDecoder().Decode(payload)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 3*time.Hour, events[0].End.Sub(events[0].Start))
}

func TestDecodeErrors(t *testing.T) {
	cases := map[string]string{
		"array at top":   `[{"key": "a"}]`,
		"empty object":   `{}`,
		"first not list": `{"a": {"b": 1}, "c": []}`,
		"null list":      `{"a": null}`,
		"garbage":        `<html>`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := quietDecoder().Decode([]byte(payload))
			var decErr *DecodeError
			require.True(t, errors.As(err, &decErr), "got %v", err)
		})
	}
}

func TestDecodeEmptyListIsNotAnError(t *testing.T) {
	events, err := quietDecoder().Decode([]byte(`{"a": []}`))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAvailable(t *testing.T) {
	assert.True(t, Available([]byte(`{"120": [{}]}`)))
	assert.False(t, Available([]byte(`{"120": []}`)))
	assert.False(t, Available([]byte(`{}`)))
	assert.False(t, Available([]byte(`[1]`)))
}

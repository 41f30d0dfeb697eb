package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKeyIsStable(t *testing.T) {
	ev := Event{Subject: "Algo", Type: "TD", Date: "04-03-2024", Time: "10:00:00", Location: "Bat A"}

	key := ev.Key("S6 INFO TD01")
	parsed, err := uuid.Parse(key)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())

	moved := ev
	moved.Location = "Bat B"
	assert.Equal(t, key, moved.Key("S6 INFO TD01"), "location changes keep the identity")
	assert.NotEqual(t, key, ev.Key("S6 INFO TD02"))

	later := ev
	later.Time = "14:00:00"
	assert.NotEqual(t, key, later.Key("S6 INFO TD01"))
}

func TestSortEvents(t *testing.T) {
	events := []Event{
		{Subject: "c", Date: "28-12-2023", Time: "08:00:00"},
		{Subject: "b", Date: "05-01-2024", Time: "14:00:00"},
		{Subject: "a", Date: "05-01-2024", Time: "08:00:00"},
		{Subject: "a2", Date: "05-01-2024", Time: "08:00:00"},
	}
	SortEvents(events)

	got := make([]string, 0, len(events))
	for _, ev := range events {
		got = append(got, ev.Subject)
	}
	assert.Equal(t, []string{"a", "a2", "b", "c"}, got)
}

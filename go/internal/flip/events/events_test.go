package events

import (
	"testing"
	"time"

	"github.com/mcdev12/lastcoin/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TagsEnvelopeFromPayload(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev, err := New("g1", 7, RoundResultPayload{
		Round:      2,
		Target:     models.FaceTails,
		Eliminated: []string{"b"},
		Survivors:  []string{"a"},
		Remaining:  1,
	}, at)
	require.NoError(t, err)

	assert.Equal(t, TypeRoundResult, ev.Type)
	assert.Equal(t, "g1", ev.GameID)
	assert.Equal(t, uint64(7), ev.Seq)
	assert.NotEmpty(t, ev.ID)

	payload, err := Decode(ev)
	require.NoError(t, err)
	result, ok := payload.(*RoundResultPayload)
	require.True(t, ok)
	assert.Equal(t, []string{"b"}, result.Eliminated)
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := Decode(&Event{Type: "mystery", Data: []byte("{}")})
	assert.Error(t, err)
}

func TestAck_CarriesRawResult(t *testing.T) {
	ev, err := New("g1", 0, AckPayload{
		Action:    "stop_power",
		RequestID: "r9",
		Result:    []byte(`{"power":4}`),
	}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, TypeAck, ev.Type)
	assert.Zero(t, ev.Seq)

	payload, err := Decode(ev)
	require.NoError(t, err)
	ack := payload.(*AckPayload)
	assert.Equal(t, "r9", ack.RequestID)
	assert.JSONEq(t, `{"power":4}`, string(ack.Result))
}

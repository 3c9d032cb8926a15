package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manpreetbhatti/tally/backend/internal/apperror"
	"github.com/manpreetbhatti/tally/backend/internal/model"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "join", raw: `{"event":"game join","data":"g1"}`},
		{name: "exit without data", raw: `{"event":"game exit"}`},
		{name: "empty", raw: ``, wantErr: ErrEmptyMessage},
		{name: "unknown event", raw: `{"event":"game explode"}`, wantErr: ErrUnknownEvent},
		{name: "disconnect is not accepted from the wire", raw: `{"event":"disconnect"}`, wantErr: ErrUnknownEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}

	_, err := Decode([]byte(`{not json`))
	require.Error(t, err)
}

func TestBind(t *testing.T) {
	env, err := Decode([]byte(`{"event":"game edit score","data":{"gameId":"g1","playerId":-1,"scoreId":2,"score":5}}`))
	require.NoError(t, err)

	var edit EditScore
	require.NoError(t, env.Bind(&edit))
	assert.Equal(t, EditScore{GameID: "g1", PlayerID: -1, ScoreID: 2, Score: 5}, edit)

	bad := Envelope{Event: EventEditName, Data: json.RawMessage(`[1,2]`)}
	require.ErrorIs(t, bad.Bind(&EditName{}), apperror.ErrValidation)

	missing := Envelope{Event: EventEditName}
	require.ErrorIs(t, missing.Bind(&EditName{}), apperror.ErrValidation)
}

func TestEncode(t *testing.T) {
	game := &model.Game{GameID: "g1", Name: "X", Players: []model.Player{}}

	raw, err := Encode(EventGame, game)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, EventGame, env.Event)

	var decoded model.Game
	require.NoError(t, json.Unmarshal(env.Data, &decoded))
	assert.Equal(t, "X", decoded.Name)
}

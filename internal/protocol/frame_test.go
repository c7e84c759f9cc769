package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	frame, err := Parse([]byte(`{"type":"req","id":"req_1","method":"gateway.ping","params":{"a":1}}`))
	require.NoError(t, err)

	req, ok := frame.(Request)
	require.True(t, ok)
	assert.Equal(t, "req_1", req.ID)
	assert.Equal(t, "gateway.ping", req.Method)
	assert.Equal(t, float64(1), req.Params["a"])
}

func TestParseRequestDefaultsParams(t *testing.T) {
	frame, err := Parse([]byte(`{"type":"req","id":"req_1","method":"gateway.ping"}`))
	require.NoError(t, err)

	req := frame.(Request)
	assert.NotNil(t, req.ParamsOrEmpty())
	assert.Empty(t, req.ParamsOrEmpty())
}

func TestParseRejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not an object", `[1,2,3]`},
		{"empty input", ``},
		{"unknown type", `{"type":"push","id":"x"}`},
		{"missing type", `{"id":"x","method":"m"}`},
		{"unknown top-level key", `{"type":"req","id":"x","method":"m","extra":true}`},
		{"empty id", `{"type":"req","id":"","method":"m"}`},
		{"empty method", `{"type":"req","id":"x","method":""}`},
		{"params not object", `{"type":"req","id":"x","method":"m","params":[1]}`},
		{"negative seq", `{"type":"event","event":"e","seq":-1}`},
		{"empty event name", `{"type":"event","event":""}`},
		{"error missing code", `{"type":"res","id":"x","ok":false,"error":{"code":"","message":"m"}}`},
		{"negative retryAfterMs", `{"type":"res","id":"x","ok":false,"error":{"code":"C","message":"m","retryAfterMs":-5}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)

			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestParseResponseVariants(t *testing.T) {
	frame, err := Parse([]byte(`{"type":"res","id":"r1","ok":true,"payload":{"now":"x"}}`))
	require.NoError(t, err)
	res := frame.(Response)
	assert.True(t, res.OK)
	assert.Nil(t, res.Error)

	frame, err = Parse([]byte(`{"type":"res","id":"r2","ok":false,"error":{"code":"NOT_FOUND","message":"missing","retryable":true,"retryAfterMs":250}}`))
	require.NoError(t, err)
	res = frame.(Response)
	require.NotNil(t, res.Error)
	assert.Equal(t, "NOT_FOUND", res.Error.Code)
	require.NotNil(t, res.Error.Retryable)
	assert.True(t, *res.Error.Retryable)
	require.NotNil(t, res.Error.RetryAfterMs)
	assert.Equal(t, int64(250), *res.Error.RetryAfterMs)
}

func TestRoundTripFieldEqual(t *testing.T) {
	originals := []string{
		`{"type":"req","id":"req_9","method":"trades.place","params":{"intent":{"symbol":"ETHUSDm"}}}`,
		`{"type":"event","event":"event.trade.executed","payload":{"requestId":"req_9"},"seq":3}`,
		`{"type":"res","id":"req_9","ok":false,"error":{"code":"RISK_BLOCKED","message":"blocked","details":{"decision":{"allowed":false}}}}`,
	}

	for _, raw := range originals {
		frame, err := Parse([]byte(raw))
		require.NoError(t, err)

		encoded, err := Marshal(frame)
		require.NoError(t, err)

		var got, want map[string]any
		require.NoError(t, json.Unmarshal(encoded, &got))
		require.NoError(t, json.Unmarshal([]byte(raw), &want))
		assert.Equal(t, want, got)
	}
}

func TestBuilders(t *testing.T) {
	req := NewRequest("r1", "gateway.ping", nil)
	assert.Equal(t, TypeRequest, req.Type)
	assert.NotNil(t, req.Params)

	ok := OKResponse("r1", map[string]any{"x": 1})
	assert.True(t, ok.OK)
	assert.Equal(t, TypeResponse, ok.Type)

	fail := ErrResponse("r1", ErrorShape{Code: "NOT_FOUND", Message: "nope"})
	assert.False(t, fail.OK)
	require.NotNil(t, fail.Error)

	ev := NewEvent("event.risk.alert", nil)
	assert.Equal(t, TypeEvent, ev.Type)
	assert.Equal(t, "event.risk.alert", ev.Event)
}

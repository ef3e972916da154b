package woocommerce

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

func TestDecodeList(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		count  int
		isList bool
	}{
		{"empty body", "", 0, false},
		{"null", "null", 0, false},
		{"array", `[{"id": 1}, {"id": 2}]`, 2, true},
		{"empty array", `[]`, 0, true},
		{"object", `{"id": 1}`, 1, true},
		{"string", `"nope"`, 0, false},
		{"number", `42`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, isList, err := decodeList[wireOrder]([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.isList, isList)
			assert.Len(t, items, tt.count)
		})
	}
}

func TestDecodeList_Invalid(t *testing.T) {
	for _, body := range []string{`[{"id": 1}`, `{"id": }`, `nul`} {
		_, _, err := decodeList[wireOrder]([]byte(body))
		assert.True(t, errors.Is(err, domain.ErrMalformedResponse), "body %q", body)
	}
}

func TestWcTime(t *testing.T) {
	var v struct {
		A wcTime `json:"a"`
		B wcTime `json:"b"`
		C wcTime `json:"c"`
		D wcTime `json:"d"`
	}
	err := json.Unmarshal([]byte(`{"a": "2025-03-02T09:00:00", "b": "2025-03-02T09:00:00+02:00", "c": null, "d": ""}`), &v)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC), v.A.Time)
	assert.Equal(t, time.Date(2025, 3, 2, 7, 0, 0, 0, time.UTC), v.B.Time)
	assert.True(t, v.C.IsZero())
	assert.True(t, v.D.IsZero())

	var bad wcTime
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &bad))
}

func TestMoney(t *testing.T) {
	var v struct {
		A money `json:"a"`
		B money `json:"b"`
		C money `json:"c"`
		D money `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": "12.50", "b": 3.25, "c": "", "d": null}`), &v))

	assert.True(t, decimal.RequireFromString("12.5").Equal(v.A.Decimal))
	assert.True(t, decimal.RequireFromString("3.25").Equal(v.B.Decimal))
	assert.True(t, v.C.IsZero())
	assert.True(t, v.D.IsZero())

	var bad money
	assert.Error(t, json.Unmarshal([]byte(`"twelve"`), &bad))
}

func TestWireOrder_FallsBackToLocalDate(t *testing.T) {
	var o wireOrder
	require.NoError(t, json.Unmarshal([]byte(`{"id": 1, "date_created": "2025-01-05T08:00:00"}`), &o))
	assert.Equal(t, time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC), o.toDomain().DateCreated)
}

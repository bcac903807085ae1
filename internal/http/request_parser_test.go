package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satis/internal/core"
)

func TestParseDraft(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    core.Draft
		wantErr bool
	}{
		{
			name: "string amount",
			body: `{"date":"2024-06-10","category":" Perde ","productName":"Tül\u0007","paymentMethod":"Nakit","amount":" 12,50 "}`,
			want: core.Draft{Date: "2024-06-10", Category: "Perde", ProductName: "Tül", PaymentMethod: "Nakit", Amount: "12,50"},
		},
		{
			name: "number amount",
			body: `{"category":"Tekstil","paymentMethod":"IBAN","amount":7.25}`,
			want: core.Draft{Category: "Tekstil", PaymentMethod: "IBAN", Amount: "7.25"},
		},
		{
			name: "exponent amount",
			body: `{"category":"Tekstil","paymentMethod":"Nakit","amount":1.5e2}`,
			want: core.Draft{Category: "Tekstil", PaymentMethod: "Nakit", Amount: "150"},
		},
		{
			name: "null amount",
			body: `{"category":"Tekstil","paymentMethod":"IBAN","amount":null}`,
			want: core.Draft{Category: "Tekstil", PaymentMethod: "IBAN"},
		},
		{name: "empty body", body: "", wantErr: true},
		{name: "not json", body: "amount=5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/sales", strings.NewReader(tt.body))
			got, err := ParseDraft(httptest.NewRecorder(), req)
			if tt.wantErr {
				require.ErrorIs(t, err, errMalformedBody)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDraftRejectsOversizedBody(t *testing.T) {
	big := `{"productName":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sales", strings.NewReader(big))
	_, err := ParseDraft(httptest.NewRecorder(), req)
	assert.ErrorIs(t, err, errMalformedBody)
}

func TestParseOperationID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	generated := ParseOperationID(req)
	assert.Len(t, generated, 36)

	req.Header.Set(OperationHeader, " client-1 ")
	assert.Equal(t, "client-1", ParseOperationID(req))
}

func TestParsePathDate(t *testing.T) {
	today := core.NewDate(2024, 6, 10)

	d, err := ParsePathDate("today", today)
	require.NoError(t, err)
	assert.Equal(t, today, d)

	d, err = ParsePathDate("2024-02-29", today)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.String())

	_, err = ParsePathDate("29/02/2024", today)
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "date", ve.Field)
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "203.0.113.7:1234", "", "203.0.113.7"},
		{"untrusted peer ignores forwarded", "203.0.113.7:1234", "198.51.100.1", "203.0.113.7"},
		{"trusted proxy forwards", "10.0.0.2:1234", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"trusted proxy with garbage header", "127.0.0.1:1234", "not-an-ip", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, extractClientIP(req))
		})
	}
}

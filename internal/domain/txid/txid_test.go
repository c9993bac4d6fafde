package txid

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc123", "abc123"},
		{"abc123?x=y", "abc123"},
		{"abc123?x=y?z=w", "abc123"},
		{"  abc123 ", "abc123"},
		{"?x=y", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}

	assert.Equal(t, Normalize("abc123?x=y"), Normalize("abc123"))
}

func TestNewCash(t *testing.T) {
	now := time.UnixMilli(1718000000123)
	id := NewCash(now)

	assert.Regexp(t, regexp.MustCompile(`^cash-1718000000123-[0-9a-z]{9}$`), id)
	assert.Equal(t, KindCash, Classify(id))
	assert.True(t, IsCash(id+"?foo=bar"))

	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		id := NewCash(now)
		_, dup := seen[id]
		require.False(t, dup, "duplicate cash id %s", id)
		seen[id] = struct{}{}
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindGateway, Classify(NewGateway()))
	assert.Equal(t, KindTemp, Classify(Temp("t-7")))
	assert.Equal(t, KindUnknown, Classify(""))
	assert.Equal(t, KindUnknown, Classify("not-an-id"))
	assert.Equal(t, "gateway", KindGateway.String())
}

func TestTableFromTemp(t *testing.T) {
	table, ok := TableFromTemp(Temp("a1b2"))
	require.True(t, ok)
	assert.Equal(t, "a1b2", table)

	_, ok = TableFromTemp("ord-1")
	assert.False(t, ok)
}

func TestFromQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantID   string
		wantData string
	}{
		{
			name:   "plain transactionId",
			query:  "transactionId=T1",
			wantID: "T1",
		},
		{
			name:     "gateway parameter names",
			query:    "transaction_uuid=T2&data=eyJzIjoxfQ==",
			wantID:   "T2",
			wantData: "eyJzIjoxfQ==",
		},
		{
			name:   "malformed trailing query",
			query:  "tableUid=9&transaction_uuid=T3?foo=bar",
			wantID: "T3",
		},
		{
			name:     "gateway appended data to existing query",
			query:    "transaction_uuid=T4?data=eyJzIjoxfQ==",
			wantID:   "T4",
			wantData: "eyJzIjoxfQ==",
		},
		{
			name:   "invalid pair elsewhere is ignored",
			query:  "x=%zz&transaction_uuid=T5",
			wantID: "T5",
		},
		{
			name:     "missing id",
			query:    "data=abc",
			wantData: "abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, data := FromQuery(tt.query)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantData, data)
		})
	}
}

func TestFromURL(t *testing.T) {
	id, _ := FromURL("https://shop.example/menu/order-status/temp?tableUid=1&transaction_uuid=T3?foo=bar")
	assert.Equal(t, "T3", id)

	id, _ = FromURL("transaction_uuid=T6")
	assert.Equal(t, "T6", id)
}

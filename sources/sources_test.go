package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uoloki/microsoft-dataextract/domain"
)

func TestDecodeRecordPreservesKeyOrder(t *testing.T) {
	r, err := DecodeRecord([]byte(`{"zeta":1,"alpha":"a","mid":null,"nested":{"b": [1, 2]},"ratio":0.25,"ok":true}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha", "mid", "nested", "ratio", "ok"}, r.Keys)
	assert.Equal(t, int64(1), r.Values["zeta"])
	assert.Equal(t, "a", r.Text("alpha"))
	assert.Nil(t, r.Values["mid"])
	assert.Equal(t, `{"b":[1,2]}`, r.Values["nested"])
	assert.Equal(t, 0.25, r.Values["ratio"])
	assert.Equal(t, true, r.Values["ok"])
}

func TestDecodeRecordWithInvalidJSON(t *testing.T) {
	for _, s := range []string{`[1,2]`, `"text"`, `{"a":`} {
		_, err := DecodeRecord([]byte(s))

		assert.Equalf(t, domain.SourceQueryError, domain.KindOf(err), "%s", s)
	}
}

func TestFromRecords(t *testing.T) {
	records, err := DecodeRecords([]byte(`[{"id":"1","name":"Alice"},{"id":"2","mail":"b@x.com"}]`))
	require.NoError(t, err)

	data := FromRecords(records)

	assert.Equal(t, []string{"id", "name", "mail"}, data.Columns)
	assert.Equal(t, [][]any{{"1", "Alice", nil}, {"2", nil, "b@x.com"}}, data.Rows)
	assert.NoError(t, data.Validate())
}

func TestFromRecordsWithNoRecords(t *testing.T) {
	data := FromRecords(nil)

	assert.Empty(t, data.Columns)
	assert.Empty(t, data.Rows)
}

func TestClassify(t *testing.T) {
	tests := map[int]domain.Kind{
		400: domain.SourceQueryError,
		401: domain.SourceUnavailable,
		403: domain.SourceUnavailable,
		404: domain.SourceQueryError,
		408: domain.SourceUnavailable,
		429: domain.SourceUnavailable,
		500: domain.SourceUnavailable,
		503: domain.SourceUnavailable,
	}

	for status, kind := range tests {
		assert.Equalf(t, kind, Classify(status), "HTTP %d", status)
		assert.Equalf(t, kind, domain.KindOf(StatusError("GET", status, nil)), "HTTP %d", status)
	}
}

func TestDoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"value":[{"id":"1"}]}`))
		case "/throttled":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/garbage":
			w.Write([]byte(`<html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	get := func(path string, reply any) error {
		rq, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+path, nil)
		require.NoError(t, err)

		return DoJSON(srv.Client(), rq, reply)
	}

	var reply struct {
		Value []Record `json:"value"`
	}

	require.NoError(t, get("/ok", &reply))
	require.Len(t, reply.Value, 1)
	assert.Equal(t, "1", reply.Value[0].Text("id"))

	assert.Equal(t, domain.SourceUnavailable, domain.KindOf(get("/throttled", &reply)))
	assert.Equal(t, domain.SourceQueryError, domain.KindOf(get("/missing", &reply)))
	assert.Equal(t, domain.SourceQueryError, domain.KindOf(get("/garbage", &reply)))
}

func TestTransportError(t *testing.T) {
	err := TransportError("GET", errors.New("connection refused"))
	assert.Equal(t, domain.SourceUnavailable, domain.KindOf(err))

	err = TransportError("GET", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.Unknown, domain.KindOf(err))
}

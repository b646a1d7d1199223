package source_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/carbonlake/internal/source"
	"github.com/tigerroll/carbonlake/pkg/batch/core/config"
	"github.com/tigerroll/carbonlake/pkg/batch/engine/step/retry"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/exception"
	"github.com/tigerroll/carbonlake/pkg/lake/frame"
)

const intensityBody = `{"data":[
 {"from":"2018-01-20T12:00Z","to":"2018-01-20T12:30Z","intensity":{"forecast":266,"actual":263,"index":"moderate"}},
 {"from":"2018-01-20T12:30Z","to":"2018-01-20T13:00Z","intensity":{"forecast":270,"actual":null,"index":"high"}}
]}`

const factorsBody = `{"data":[{"Biomass":120,"Coal":937,"Dutch Imports":474,"Wind":0}]}`

func newClient(t *testing.T, handler http.HandlerFunc) *source.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	policy := retry.NewDefaultRetryPolicyFactory().Create(3, 1, nil)
	return source.NewClient(&config.SourceConfig{BaseURL: srv.URL, TimeoutSeconds: 5, UserAgent: "carbonlake-test"}, policy)
}

func TestFetchIntensity_FlattensNestedFields(t *testing.T) {
	var gotPath, gotAgent string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(intensityBody))
	})

	from := time.Date(2018, 1, 20, 12, 0, 0, 0, time.UTC)
	f, err := c.FetchIntensity(context.Background(), from, from.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "/intensity/2018-01-20T12:00Z/2018-01-20T13:00Z", gotPath)
	assert.Equal(t, "carbonlake-test", gotAgent)
	assert.Equal(t, []string{"from", "to", "intensity_forecast", "intensity_actual", "intensity_index"}, f.Columns())
	require.Equal(t, 2, f.Len())
	assert.Equal(t, 263.0, f.Rows[0]["intensity_actual"])
	assert.Nil(t, f.Rows[1]["intensity_actual"])
	assert.Equal(t, "high", f.Rows[1]["intensity_index"])
	fd, _ := f.Field("intensity_forecast")
	assert.Equal(t, frame.KindFloat, fd.Kind)
}

func TestFetchFactors(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/intensity/factors", r.URL.Path)
		w.Write([]byte(factorsBody))
	})
	f, err := c.FetchFactors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Biomass", "Coal", "Dutch Imports", "Wind"}, f.Columns())
	assert.Equal(t, 937.0, f.Rows[0]["Coal"])
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(factorsBody))
	})
	f, err := c.FetchFactors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, f.Len())
}

func TestFetch_ExhaustedRetriesReturnLastError(t *testing.T) {
	var calls int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.FetchFactors(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	be, ok := exception.AsBatchError(err)
	require.True(t, ok)
	assert.True(t, be.IsRetryable())
	assert.Contains(t, err.Error(), "502")
}

func TestFetch_MalformedOrEmptyResponsesDegradeToEmpty(t *testing.T) {
	for name, body := range map[string]string{
		"malformed":  `{"data": [`,
		"no data":    `{"error":"none"}`,
		"empty data": `{"data": []}`,
		"null data":  `{"data": null}`,
		"not json":   `<html>maintenance</html>`,
	} {
		body := body
		t.Run(name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			f, err := c.FetchFactors(context.Background())
			require.NoError(t, err)
			assert.True(t, f.Empty())
		})
	}
}

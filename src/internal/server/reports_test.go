package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admi-n/solidity-scamscan/src/internal/store"
)

const reportedAddress = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"

func submitReport(t *testing.T, s *Server) store.ScamReport {
	t.Helper()
	w := do(t, s, http.MethodPost, "/api/reports", `{"address":"`+reportedAddress+`","chain":"eth","reporter":"alice","description":"cannot sell"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var r store.ScamReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	return r
}

func TestReports_RequireStore(t *testing.T) {
	s := New(Config{})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodPost, "/api/reports", `{"address":"`+reportedAddress+`"}`).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/api/reports", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodPost, "/api/reports/x/confirm", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/api/reports/stats", "").Code)
}

func TestReports_SubmitAndConfirm(t *testing.T) {
	st := &memStore{}
	s := New(Config{}, WithStore(st))

	first := submitReport(t, s)
	assert.Equal(t, store.ReportPending, first.Status)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", first.ContractAddress)
	assert.True(t, first.FirstReport)
	assert.Empty(t, first.Severity)

	second := submitReport(t, s)
	assert.False(t, second.FirstReport)
	assert.NotEqual(t, first.ID, second.ID)

	w := do(t, s, http.MethodPost, "/api/reports/"+first.ID+"/confirm", `{"severity":"high"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var confirmed store.ScamReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &confirmed))
	assert.Equal(t, store.ReportConfirmed, confirmed.Status)
	assert.Equal(t, store.SeverityHigh, confirmed.Severity)
	require.NotNil(t, confirmed.ConfirmedAt)

	// 已确认的举报不能再次确认
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/api/reports/"+first.ID+"/confirm", "").Code)

	// 不带请求体时默认 MEDIUM
	w = do(t, s, http.MethodPost, "/api/reports/"+second.ID+"/confirm", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &confirmed))
	assert.Equal(t, store.SeverityMedium, confirmed.Severity)
}

func TestReports_ConfirmErrors(t *testing.T) {
	s := New(Config{}, WithStore(&memStore{}))
	r := submitReport(t, s)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/api/reports/missing/confirm", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/reports/"+r.ID+"/confirm", `{"severity":"LOW"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/reports/"+r.ID+"/confirm", `{bad`).Code)
}

func TestReports_InvalidSubmit(t *testing.T) {
	s := New(Config{}, WithStore(&memStore{}))

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/reports", `{"address":"0x1234"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/reports", `{"description":"no address"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/reports", "not json").Code)
}

func TestReports_ListAndStats(t *testing.T) {
	s := New(Config{}, WithStore(&memStore{}))
	a := submitReport(t, s)
	submitReport(t, s)
	submitReport(t, s)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/reports/"+a.ID+"/confirm", `{"severity":"CRITICAL"}`).Code)

	var body struct {
		Reports []store.ScamReport `json:"reports"`
	}
	w := do(t, s, http.MethodGet, "/api/reports?status=confirmed", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Reports, 1)
	assert.Equal(t, a.ID, body.Reports[0].ID)

	w = do(t, s, http.MethodGet, "/api/reports?limit=2", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Reports, 2)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/reports?status=rejected", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/reports?limit=0", "").Code)

	w = do(t, s, http.MethodGet, "/api/reports/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":3,"pending":2,"confirmed":1}`, w.Body.String())
}

func TestReports_Metrics(t *testing.T) {
	s := New(Config{}, WithStore(&memStore{}))
	submitReport(t, s)

	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `scamscan_reports_total{status="PENDING"}`)
}

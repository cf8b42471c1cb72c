package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"txstatus-backend/internal/config"
	"txstatus-backend/internal/models"
	"txstatus-backend/internal/services"
	"txstatus-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validHash = "0x00000000000000000000000000000000000000000000000000000000000000aa"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTxService struct {
	submitReq    services.SubmitRequest
	submitResult *services.SubmitResult
	submitErr    error
	checkResult  *services.StatusCheckResult
	checkErr     error
	record       *models.TransactionRecord
	recordErr    error
}

func (f *fakeTxService) Submit(ctx context.Context, req services.SubmitRequest) (*services.SubmitResult, error) {
	f.submitReq = req
	return f.submitResult, f.submitErr
}

func (f *fakeTxService) CheckStatus(ctx context.Context, txHash string, networkID int64) (*services.StatusCheckResult, error) {
	return f.checkResult, f.checkErr
}

func (f *fakeTxService) GetRecord(ctx context.Context, txHash string) (*models.TransactionRecord, error) {
	return f.record, f.recordErr
}

func (f *fakeTxService) Networks() []utils.NetworkInfo {
	return utils.DefaultNetworks()
}

type fakeSweeper struct {
	opts   *services.SweepOptions
	report *services.SweepReport
}

func (f *fakeSweeper) SweepStuckTransactions(ctx context.Context, opts services.SweepOptions) (*services.SweepReport, error) {
	f.opts = &opts
	return f.report, nil
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(ctx context.Context) error { return f.err }

func newTestRouter(tx *fakeTxService, sweeper *fakeSweeper, admin config.AdminConfig) *gin.Engine {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return SetupRouter(Deps{
		Transactions: tx,
		Sweeper:      sweeper,
		DB:           fakePinger{},
		Admin:        admin,
		Logger:       logger,
	})
}

func do(r *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestSubmitTransaction(t *testing.T) {
	tx := &fakeTxService{submitResult: &services.SubmitResult{RecordID: "rec-1", ImmediatelyFound: true, Status: models.TransactionStatusPending}}
	r := newTestRouter(tx, &fakeSweeper{}, config.AdminConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions",
		strings.NewReader(`{"userId":"alice","txHash":"`+validHash+`","networkId":11155111,"metadata":{"memo":"x"}}`))
	req.Header.Set("Content-Type", "application/json")
	w, body := do(r, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "rec-1", data["recordId"])
	assert.Equal(t, true, data["immediatelyFound"])
	assert.Equal(t, "alice", tx.submitReq.UserID)
	assert.Equal(t, int64(11155111), tx.submitReq.NetworkID)
	assert.Equal(t, "x", tx.submitReq.Metadata["memo"])
}

func TestSubmitTransaction_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"invalid hash", utils.ErrInvalidTxHash, http.StatusBadRequest, "INVALID_TX_HASH"},
		{"unsupported network", services.ErrUnsupportedNetwork, http.StatusBadRequest, "UNSUPPORTED_NETWORK"},
		{"unknown user", services.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
		{"no wallet", services.ErrMissingWalletAddress, http.StatusUnprocessableEntity, "MISSING_WALLET_ADDRESS"},
		{"network without rpc client", fmt.Errorf("%w: polygon", services.ErrNetworkNotConfigured), http.StatusServiceUnavailable, "NETWORK_NOT_CONFIGURED"},
		{"store down", errors.New("connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&fakeTxService{submitErr: tt.err}, &fakeSweeper{}, config.AdminConfig{})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions",
				strings.NewReader(`{"userId":"alice","txHash":"`+validHash+`","networkId":1}`))
			w, body := do(r, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, body["code"])
		})
	}
}

func TestSubmitTransaction_MissingFields(t *testing.T) {
	r := newTestRouter(&fakeTxService{}, &fakeSweeper{}, config.AdminConfig{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(`{"userId":"alice"}`))
	w, _ := do(r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransactionStatus(t *testing.T) {
	block := uint64(77)
	tx := &fakeTxService{checkResult: &services.StatusCheckResult{TxHash: validHash, IsConfirmed: true, Status: "confirmed", Confirmations: 4, BlockNumber: &block}}
	r := newTestRouter(tx, &fakeSweeper{}, config.AdminConfig{})

	w, body := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+validHash+"/status?networkId=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, true, data["isConfirmed"])
	assert.Equal(t, float64(77), data["blockNumber"])

	w, body = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+validHash+"/status", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_NETWORK_ID", body["code"])

	tx.checkResult, tx.checkErr = nil, fmt.Errorf("%w: polygon", services.ErrNetworkNotConfigured)
	w, body = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+validHash+"/status?networkId=137", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "NETWORK_NOT_CONFIGURED", body["code"])
}

func TestGetTransaction(t *testing.T) {
	tx := &fakeTxService{record: &models.TransactionRecord{ID: "rec-9", TxHash: validHash, Status: models.TransactionStatusCompleted}}
	r := newTestRouter(tx, &fakeSweeper{}, config.AdminConfig{})

	w, body := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+validHash, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", body["data"].(map[string]interface{})["status"])

	r = newTestRouter(&fakeTxService{recordErr: services.ErrRecordNotFound}, &fakeSweeper{}, config.AdminConfig{})
	w, body = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+validHash, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "TRANSACTION_NOT_FOUND", body["code"])
}

func TestListNetworks(t *testing.T) {
	r := newTestRouter(&fakeTxService{}, &fakeSweeper{}, config.AdminConfig{})
	w, body := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/networks", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(len(utils.DefaultNetworks())), body["total"])
}

func TestAdminSweep_Access(t *testing.T) {
	sweeper := &fakeSweeper{report: &services.SweepReport{DryRun: true, Scanned: 2, Skipped: 2}}
	r := newTestRouter(&fakeTxService{}, sweeper, config.AdminConfig{Token: "s3cret"})

	// remote caller
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/sweep", strings.NewReader(`{"dryRun":true}`))
	w, body := do(r, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "IP_NOT_ALLOWED", body["code"])

	// local caller without token
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/sweep", strings.NewReader(`{"dryRun":true}`))
	req.RemoteAddr = "127.0.0.1:40000"
	w, body = do(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", body["code"])
	assert.Nil(t, sweeper.opts)

	// local caller with token
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/sweep", strings.NewReader(`{"dryRun":true,"maxRecords":5}`))
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("Authorization", "Bearer s3cret")
	w, body = do(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, sweeper.opts)
	assert.Equal(t, services.SweepOptions{DryRun: true, MaxRecords: 5}, *sweeper.opts)
	assert.Equal(t, float64(2), body["data"].(map[string]interface{})["scanned"])
}

func TestAdminSweep_WhitelistedCIDRAndEmptyBody(t *testing.T) {
	sweeper := &fakeSweeper{report: &services.SweepReport{}}
	r := newTestRouter(&fakeTxService{}, sweeper, config.AdminConfig{AllowedIPs: []string{"10.1.0.0/16"}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/sweep", strings.NewReader(""))
	req.RemoteAddr = "10.1.4.2:1234"
	w, _ := do(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, services.SweepOptions{}, *sweeper.opts)
}

func TestHealthAndCORS(t *testing.T) {
	r := newTestRouter(&fakeTxService{}, &fakeSweeper{}, config.AdminConfig{})

	w, body := do(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["database"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/transactions", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w, _ = do(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHealth_DatabaseDown(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r := SetupRouter(Deps{
		Transactions: &fakeTxService{},
		Sweeper:      &fakeSweeper{},
		DB:           fakePinger{err: errors.New("down")},
		Logger:       logger,
	})

	w, body := do(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unreachable", body["database"])
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r := SetupRouter(Deps{
		Transactions: &fakeTxService{},
		Sweeper:      &fakeSweeper{},
		CORS:         config.CORSConfig{AllowedOrigins: []string{"https://app.example.com"}, AllowCredentials: true},
		Logger:       logger,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/networks", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w, _ := do(r, req)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/networks", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w, _ = do(r, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

package ops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/example/gl-core/internal/store"
	"github.com/example/gl-core/pkg/audit"
)

type RouterSuite struct {
	suite.Suite
	store     *store.Store
	sink      string
	chain     *audit.ChainLogger
	redisDown atomic.Bool
	srv       *httptest.Server
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.OpenSQLite("", logger)
	s.Require().NoError(err)
	s.T().Cleanup(st.Close)
	s.store = st

	s.sink = filepath.Join(s.T().TempDir(), "audit.jsonl")
	chain, f, err := audit.OpenFile(s.sink)
	s.Require().NoError(err)
	s.T().Cleanup(func() { f.Close() })
	s.chain = chain
	s.redisDown.Store(false)

	s.srv = httptest.NewServer(NewRouter(Dependencies{
		Logger: logger,
		Checks: map[string]Pinger{
			"database": st,
			"redis": PingFunc(func(context.Context) error {
				if s.redisDown.Load() {
					return errors.New("connection refused")
				}
				return nil
			}),
		},
		AuditSink: s.sink,
	}))
	s.T().Cleanup(s.srv.Close)
}

func (s *RouterSuite) get(path string, header ...string) (*http.Response, map[string]any) {
	req, err := http.NewRequest(http.MethodGet, s.srv.URL+path, nil)
	s.Require().NoError(err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var body map[string]any
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	if len(raw) > 0 {
		s.Require().NoError(json.Unmarshal(raw, &body), string(raw))
	}
	return resp, body
}

func (s *RouterSuite) TestHealthz() {
	resp, _ := s.get("/healthz", CorrelationIDHeader, "cid-7")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("cid-7", resp.Header.Get(CorrelationIDHeader))
}

func (s *RouterSuite) TestReadyz() {
	resp, body := s.get("/readyz")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("ok", body["status"])

	s.redisDown.Store(true)
	resp, body = s.get("/readyz")
	s.Equal(http.StatusServiceUnavailable, resp.StatusCode)
	s.Equal(map[string]any{"database": "ok", "redis": "unavailable"}, body["checks"])
}

func (s *RouterSuite) TestAuditVerify() {
	ctx := context.Background()
	_, err := s.chain.Record(ctx, audit.Event{Action: "account.created", TenantID: "acme"})
	s.Require().NoError(err)
	_, err = s.chain.Record(ctx, audit.Event{Action: "ledger.posted", TenantID: "acme"})
	s.Require().NoError(err)

	resp, body := s.get("/audit/verify")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(true, body["valid"])
	s.EqualValues(2, body["entries"])
	s.Equal(s.chain.Head(), body["last_hash"])

	raw, err := os.ReadFile(s.sink)
	s.Require().NoError(err)
	tampered := strings.Replace(string(raw), "ledger.posted", "ledger.voided", 1)
	s.Require().NoError(os.WriteFile(s.sink, []byte(tampered), 0o600))

	resp, body = s.get("/audit/verify")
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.Equal(false, body["valid"])
	s.EqualValues(1, body["broken_at"])

	s.Require().NoError(os.Remove(s.sink))
	resp, body = s.get("/audit/verify")
	s.Equal(http.StatusInternalServerError, resp.StatusCode)
	s.Equal("audit_unreadable", body["error"])
}

func (s *RouterSuite) TestAuditVerifyWithoutSink() {
	srv := httptest.NewServer(NewRouter(Dependencies{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}))
	defer srv.Close()
	res, err := http.Get(srv.URL + "/audit/verify")
	s.Require().NoError(err)
	res.Body.Close()
	s.Equal(http.StatusNotFound, res.StatusCode)
}

func (s *RouterSuite) TestNotFound() {
	resp, body := s.get("/v1/accounts")
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal("not_found", body["error"])
	s.NotEmpty(body["correlation_id"])

	req, err := http.NewRequest(http.MethodPost, s.srv.URL+"/healthz", nil)
	s.Require().NoError(err)
	res, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	res.Body.Close()
	s.Equal(http.StatusMethodNotAllowed, res.StatusCode)
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"socratic-go/internal/auth"
	"socratic-go/internal/ledger"
	"socratic-go/internal/server"
	"socratic-go/internal/testutil"
)

type testServer struct {
	handler http.Handler
	issuer  *auth.TokenIssuer
	svc     *ledger.TokenService
	clock   *testutil.StubClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := testutil.NewTestStore(t)
	clock := testutil.FixedClock()
	svc := ledger.NewTokenService(store, testutil.NewTestRail(), ledger.DefaultFeeSchedule(), "treasury-1", clock, testutil.NewStubIDGenerator(), ledger.NewNopLogger())

	issuer := auth.NewTokenIssuer([]byte("test-secret"), time.Hour)
	srv := server.NewServer(svc, testutil.NewTestContentStore(), testutil.NewTestEncryptor(), issuer, nil, ledger.NewNopLogger())

	return &testServer{handler: srv.Router(), issuer: issuer, svc: svc, clock: clock}
}

func (ts *testServer) token(t *testing.T, identity string) string {
	t.Helper()
	token, err := ts.issuer.Issue(identity)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	return token
}

// do runs an authenticated JSON request against the router.
func (ts *testServer) do(t *testing.T, method, path, identity string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if identity != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token(t, identity))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v (body: %s)", err, rec.Body.String())
	}
}

// initAndFund creates an account over the API and buys currency tokens.
func (ts *testServer) initAndFund(t *testing.T, identity string, currency uint64) {
	t.Helper()

	if rec := ts.do(t, http.MethodPost, "/api/users/init", identity, nil); rec.Code != http.StatusOK {
		t.Fatalf("init status = %d: %s", rec.Code, rec.Body.String())
	}
	rec := ts.do(t, http.MethodPost, "/api/wallet/purchase", identity, map[string]uint64{"amount": currency})
	if rec.Code != http.StatusOK {
		t.Fatalf("purchase status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestServer_NilCollaboratorDefaults(t *testing.T) {
	store := testutil.NewTestStore(t)
	svc := ledger.NewTokenService(store, testutil.NewTestRail(), ledger.DefaultFeeSchedule(), "treasury-1", testutil.FixedClock(), testutil.NewStubIDGenerator(), ledger.NewNopLogger())
	issuer := auth.NewTokenIssuer([]byte("test-secret"), time.Hour)

	// nil logger and nil origins fall back to defaults.
	srv := server.NewServer(svc, testutil.NewTestContentStore(), testutil.NewTestEncryptor(), issuer, nil, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestServer_IssueToken(t *testing.T) {
	ts := newTestServer(t)

	t.Run("issues a usable token", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/auth/token", "", map[string]string{"identity": "alice"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}

		var resp struct {
			AccessToken string `json:"access_token"`
			TokenType   string `json:"token_type"`
		}
		decodeJSON(t, rec, &resp)
		if resp.TokenType != "bearer" || resp.AccessToken == "" {
			t.Errorf("response = %+v", resp)
		}

		req := httptest.NewRequest(http.MethodPost, "/api/users/init", nil)
		req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
		rec2 := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec2, req)
		if rec2.Code != http.StatusOK {
			t.Errorf("init with issued token: status = %d", rec2.Code)
		}
	})

	t.Run("missing identity is rejected", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/auth/token", "", map[string]string{})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestServer_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	paths := []struct {
		method, path string
	}{
		{http.MethodPost, "/api/users/init"},
		{http.MethodGet, "/api/wallet"},
		{http.MethodPost, "/api/documents"},
		{http.MethodGet, "/api/activity"},
	}

	for _, p := range paths {
		rec := ts.do(t, p.method, p.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status = %d, want %d", p.method, p.path, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestServer_WalletFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.initAndFund(t, "alice", 2)

	rec := ts.do(t, http.MethodGet, "/api/wallet", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var wallet struct {
		Owner        string `json:"owner"`
		TokenBalance uint64 `json:"token_balance"`
	}
	decodeJSON(t, rec, &wallet)
	if wallet.Owner != "alice" || wallet.TokenBalance != 2000 {
		t.Errorf("wallet = %+v, want alice with 2000", wallet)
	}
}

func TestServer_WalletMissingAccount(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/wallet", "ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func uploadDocument(t *testing.T, ts *testServer, identity string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "notes.pdf")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &body)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, identity))
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_DocumentUploadAndDownload(t *testing.T) {
	ts := newTestServer(t)
	ts.initAndFund(t, "alice", 1)

	content := []byte("the document body")
	rec := uploadDocument(t, ts, "alice", content)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Account struct {
			TokenBalance uint64 `json:"token_balance"`
		} `json:"account"`
		Document struct {
			Index       uint64 `json:"index"`
			ContentHash string `json:"content_hash"`
		} `json:"document"`
	}
	decodeJSON(t, rec, &resp)

	if resp.Account.TokenBalance != 990 {
		t.Errorf("balance = %d, want 990", resp.Account.TokenBalance)
	}
	if resp.Document.Index != 0 {
		t.Errorf("index = %d, want 0", resp.Document.Index)
	}
	if resp.Document.ContentHash != testutil.SHA256Hex(content) {
		t.Errorf("content hash = %q, want sha256 of plaintext", resp.Document.ContentHash)
	}

	// Download decrypts back to the original content.
	req := httptest.NewRequest(http.MethodGet, "/api/documents/alice/0/content", nil)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, "alice"))
	req.Header.Set("X-Passphrase", "any")
	dlRec := httptest.NewRecorder()
	ts.handler.ServeHTTP(dlRec, req)

	if dlRec.Code != http.StatusOK {
		t.Fatalf("download status = %d: %s", dlRec.Code, dlRec.Body.String())
	}
	if !bytes.Equal(dlRec.Body.Bytes(), content) {
		t.Errorf("downloaded content = %q, want %q", dlRec.Body.Bytes(), content)
	}
}

func TestServer_DownloadRequiresOwnership(t *testing.T) {
	ts := newTestServer(t)
	ts.initAndFund(t, "alice", 1)
	if rec := uploadDocument(t, ts, "alice", []byte("private notes")); rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d", rec.Code)
	}
	ts.initAndFund(t, "bob", 1)

	req := httptest.NewRequest(http.MethodGet, "/api/documents/alice/0/content", nil)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, "bob"))
	req.Header.Set("X-Passphrase", "any")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("private notes")) {
		t.Error("response leaked document content to a non-owner")
	}
}

func TestServer_DocumentUploadInsufficientFunds(t *testing.T) {
	ts := newTestServer(t)
	if rec := ts.do(t, http.MethodPost, "/api/users/init", "alice", nil); rec.Code != http.StatusOK {
		t.Fatalf("init status = %d", rec.Code)
	}

	rec := uploadDocument(t, ts, "alice", []byte("data"))
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusPaymentRequired)
	}
}

func TestServer_ShareDocument(t *testing.T) {
	ts := newTestServer(t)
	ts.initAndFund(t, "alice", 1)
	if rec := uploadDocument(t, ts, "alice", []byte("data")); rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d", rec.Code)
	}

	t.Run("owner can share", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/documents/alice/0/share", "alice", map[string]uint8{"access_level": 2})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}

		var resp struct {
			Document struct {
				AccessLevel uint8 `json:"access_level"`
			} `json:"document"`
		}
		decodeJSON(t, rec, &resp)
		if resp.Document.AccessLevel != 2 {
			t.Errorf("access level = %d, want 2", resp.Document.AccessLevel)
		}
	})

	t.Run("non-owner is forbidden", func(t *testing.T) {
		ts.initAndFund(t, "bob", 1)
		rec := ts.do(t, http.MethodPost, "/api/documents/alice/0/share", "bob", map[string]uint8{"access_level": 3})
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("missing document is not found", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/documents/alice/9/share", "alice", map[string]uint8{"access_level": 1})
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})
}

func TestServer_ChatQuery(t *testing.T) {
	ts := newTestServer(t)
	ts.initAndFund(t, "alice", 1)

	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodPost, "/api/chat/query", "alice", map[string]string{"query": "why is the sky blue"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("query %d status = %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	rec := ts.do(t, http.MethodGet, "/api/chat", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var queries []struct {
		Index uint64 `json:"index"`
	}
	decodeJSON(t, rec, &queries)
	if len(queries) != 2 {
		t.Fatalf("queries = %d, want 2", len(queries))
	}
	if queries[0].Index != 0 || queries[1].Index != 1 {
		t.Errorf("indexes = %v", queries)
	}
}

func TestServer_StakeFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.initAndFund(t, "alice", 1)

	stakedAt := ts.clock.Now().Add(-8 * 24 * time.Hour).Unix()
	rec := ts.do(t, http.MethodPost, "/api/stake", "alice", map[string]int64{"amount": 500, "timestamp": stakedAt})
	if rec.Code != http.StatusCreated {
		t.Fatalf("stake status = %d: %s", rec.Code, rec.Body.String())
	}

	t.Run("below minimum is payment required", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/stake", "alice", map[string]int64{"amount": 5})
		if rec.Code != http.StatusPaymentRequired {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusPaymentRequired)
		}
	})

	t.Run("unstake after cooldown refunds", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/stake/remove", "alice", map[string]int64{"staked_at": stakedAt})
		if rec.Code != http.StatusOK {
			t.Fatalf("unstake status = %d: %s", rec.Code, rec.Body.String())
		}

		var resp struct {
			Account struct {
				TokenBalance uint64 `json:"token_balance"`
			} `json:"account"`
		}
		decodeJSON(t, rec, &resp)
		if resp.Account.TokenBalance != 1000 {
			t.Errorf("balance = %d, want 1000", resp.Account.TokenBalance)
		}
	})

	t.Run("double unstake conflicts", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/stake/remove", "alice", map[string]int64{"staked_at": stakedAt})
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
		}
	})
}

func TestServer_StakeDefaultTimestampUsesServiceClock(t *testing.T) {
	ts := newTestServer(t)
	ts.initAndFund(t, "alice", 1)

	stakedAt := ts.clock.Now().Unix()
	rec := ts.do(t, http.MethodPost, "/api/stake", "alice", map[string]int64{"amount": 200})
	if rec.Code != http.StatusCreated {
		t.Fatalf("stake status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Stake struct {
			StakedAt int64 `json:"staked_at"`
		} `json:"stake"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Stake.StakedAt != stakedAt {
		t.Errorf("staked_at = %d, want the service clock's %d", resp.Stake.StakedAt, stakedAt)
	}

	// Once the cooldown elapses on the same clock, the stake is removable.
	ts.clock.Advance(ledger.DefaultFeeSchedule().StakeCooldown + time.Second)
	rec = ts.do(t, http.MethodPost, "/api/stake/remove", "alice", map[string]int64{"staked_at": stakedAt})
	if rec.Code != http.StatusOK {
		t.Errorf("unstake status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_Activity(t *testing.T) {
	ts := newTestServer(t)
	ts.initAndFund(t, "alice", 1)

	rec := ts.do(t, http.MethodGet, "/api/activity", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var entries []struct {
		Transition string `json:"transition"`
	}
	decodeJSON(t, rec, &entries)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (init + purchase)", len(entries))
	}
}

func TestServer_QuizIdempotency(t *testing.T) {
	ts := newTestServer(t)
	ts.initAndFund(t, "alice", 1)

	hash := fmt.Sprintf("%064d", 7)
	timestamp := time.Now().Unix()
	body := map[string]any{"document_hash": hash, "timestamp": timestamp}

	var balances []uint64
	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodPost, "/api/quiz", "alice", body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("quiz %d status = %d: %s", i, rec.Code, rec.Body.String())
		}
		var resp struct {
			Account struct {
				TokenBalance uint64 `json:"token_balance"`
			} `json:"account"`
		}
		decodeJSON(t, rec, &resp)
		balances = append(balances, resp.Account.TokenBalance)
	}

	if balances[0] != 995 || balances[1] != 995 {
		t.Errorf("balances = %v, want [995 995] (replay must not charge)", balances)
	}
}

package server

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"socratic-go/internal/auth"
	"socratic-go/internal/ledger"
	"socratic-go/internal/model"
)

// maxUploadSize caps multipart document uploads at 50 MiB.
const maxUploadSize = 50 << 20

func (s *Server) caller(r *http.Request) (string, bool) {
	return auth.CallerFromContext(r.Context())
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity string `json:"identity"`
	}
	if err := decodeBody(r, &req); err != nil || req.Identity == "" {
		http.Error(w, "identity is required", http.StatusBadRequest)
		return
	}

	token, err := s.issuer.Issue(req.Identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

func (s *Server) handleInitUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	acct, err := s.svc.InitializeUser(caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	acct, err := s.svc.GetAccount(caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Amount uint64 `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil || req.Amount == 0 {
		http.Error(w, "amount must be a positive integer", http.StatusBadRequest)
		return
	}

	acct, err := s.svc.PurchaseTokens(r.Context(), caller, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

// handleUploadDocument stores the encrypted document content and commits the
// upload transition. The document index is the caller's current upload
// counter; a concurrent upload by the same caller surfaces as an index
// mismatch and the client retries.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	var accessLevel uint8
	if v := r.FormValue("access_level"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			http.Error(w, "invalid access_level", http.StatusBadRequest)
			return
		}
		accessLevel = uint8(parsed)
	}

	var plaintext bytes.Buffer
	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(&plaintext, hasher), io.LimitReader(file, maxUploadSize)); err != nil {
		writeError(w, fmt.Errorf("reading upload: %w", err))
		return
	}
	contentHash := hex.EncodeToString(hasher.Sum(nil))

	var ciphertext bytes.Buffer
	if err := s.encryptor.Encrypt(&plaintext, &ciphertext); err != nil {
		writeError(w, fmt.Errorf("encrypting content: %w", err))
		return
	}

	// The blob is written before the transition commits. If the transition is
	// rejected the blob stays unreferenced under its content hash, and a retry
	// with the same content overwrites it in place.
	if err := s.content.PutContent(contentHash, &ciphertext, int64(ciphertext.Len())); err != nil {
		writeError(w, fmt.Errorf("storing content: %w", err))
		return
	}

	acct, err := s.svc.GetAccount(caller)
	if err != nil {
		writeError(w, err)
		return
	}

	acct, doc, err := s.svc.UploadDocument(caller, acct.DocumentsUploaded, contentHash, accessLevel)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Account  accountResponse  `json:"account"`
		Document documentResponse `json:"document"`
	}{toAccountResponse(acct), toDocumentResponse(doc)})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	docs, err := s.svc.ListDocuments(caller)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) documentFromURL(r *http.Request) (*model.DocumentRecord, error) {
	owner := chi.URLParam(r, "owner")
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		return nil, ledger.ErrDocumentNotFound
	}
	return s.svc.GetDocument(owner, index)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.caller(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	doc, err := s.documentFromURL(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// handleDownloadDocument streams decrypted document content to the document
// owner. The passphrase unlocking the private key arrives in the X-Passphrase
// header and is used only for the duration of the request.
func (s *Server) handleDownloadDocument(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	doc, err := s.documentFromURL(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if !ledger.IsDocumentOwner(caller, doc) {
		writeError(w, ledger.ErrNotDocumentOwner)
		return
	}

	passphrase := r.Header.Get("X-Passphrase")
	if passphrase == "" {
		http.Error(w, "X-Passphrase header is required", http.StatusBadRequest)
		return
	}

	dctx, err := s.encryptor.Unlock(passphrase)
	if err != nil {
		http.Error(w, "unable to unlock decryption key", http.StatusForbidden)
		return
	}

	var ciphertext bytes.Buffer
	if err := s.content.GetContent(doc.ContentHash, &ciphertext); err != nil {
		writeError(w, fmt.Errorf("fetching content: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if err := dctx.Decrypt(&ciphertext, w); err != nil {
		s.logger.Error("decrypting content", "hash", doc.ContentHash, "error", err)
	}
}

func (s *Server) handleShareDocument(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	owner := chi.URLParam(r, "owner")
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		http.Error(w, "invalid document index", http.StatusBadRequest)
		return
	}

	var req struct {
		AccessLevel uint8 `json:"access_level"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	acct, doc, err := s.svc.ShareDocument(caller, owner, index, req.AccessLevel)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Account  accountResponse  `json:"account"`
		Document documentResponse `json:"document"`
	}{toAccountResponse(acct), toDocumentResponse(doc)})
}

func (s *Server) handleChatQuery(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Query string `json:"query"`
	}
	if err := decodeBody(r, &req); err != nil || req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	acct, err := s.svc.GetAccount(caller)
	if err != nil {
		writeError(w, err)
		return
	}

	acct, query, err := s.svc.ChatQuery(caller, acct.QueriesMade, req.Query)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Account accountResponse `json:"account"`
		Query   queryResponse   `json:"query"`
	}{toAccountResponse(acct), toQueryResponse(query)})
}

func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	queries, err := s.svc.ListQueries(caller)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]queryResponse, 0, len(queries))
	for _, q := range queries {
		out = append(out, toQueryResponse(q))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		DocumentHash string `json:"document_hash"`
		Timestamp    int64  `json:"timestamp,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil || req.DocumentHash == "" {
		http.Error(w, "document_hash is required", http.StatusBadRequest)
		return
	}

	ts := s.svc.Clock().Now()
	if req.Timestamp != 0 {
		ts = time.Unix(req.Timestamp, 0)
	}

	acct, quiz, err := s.svc.GenerateQuiz(caller, req.DocumentHash, ts)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Account accountResponse `json:"account"`
		Quiz    quizResponse    `json:"quiz"`
	}{toAccountResponse(acct), toQuizResponse(quiz)})
}

func (s *Server) handleListQuizzes(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	quizzes, err := s.svc.ListQuizzes(caller)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]quizResponse, 0, len(quizzes))
	for _, q := range quizzes {
		out = append(out, toQuizResponse(q))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Amount    uint64 `json:"amount"`
		Timestamp int64  `json:"timestamp,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil || req.Amount == 0 {
		http.Error(w, "amount must be a positive integer", http.StatusBadRequest)
		return
	}

	ts := s.svc.Clock().Now()
	if req.Timestamp != 0 {
		ts = time.Unix(req.Timestamp, 0)
	}

	acct, stake, err := s.svc.StakeTokens(caller, req.Amount, ts)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Account accountResponse `json:"account"`
		Stake   stakeResponse   `json:"stake"`
	}{toAccountResponse(acct), toStakeResponse(stake)})
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		User     string `json:"user,omitempty"`
		StakedAt int64  `json:"staked_at"`
	}
	if err := decodeBody(r, &req); err != nil || req.StakedAt == 0 {
		http.Error(w, "staked_at is required", http.StatusBadRequest)
		return
	}

	stakeUser := req.User
	if stakeUser == "" {
		stakeUser = caller
	}

	acct, stake, err := s.svc.UnstakeTokens(caller, stakeUser, time.Unix(req.StakedAt, 0))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Account accountResponse `json:"account"`
		Stake   stakeResponse   `json:"stake"`
	}{toAccountResponse(acct), toStakeResponse(stake)})
}

func (s *Server) handleListStakes(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	stakes, err := s.svc.ListStakes(caller)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]stakeResponse, 0, len(stakes))
	for _, st := range stakes {
		out = append(out, toStakeResponse(st))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	entries, err := s.svc.ListActivity(caller)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]activityResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toActivityResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

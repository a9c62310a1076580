package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"socratic-go/internal/ledger"
	"socratic-go/internal/model"
)

type accountResponse struct {
	Owner             string `json:"owner"`
	TokenBalance      uint64 `json:"token_balance"`
	DocumentsUploaded uint64 `json:"documents_uploaded"`
	QueriesMade       uint64 `json:"queries_made"`
	ReputationScore   uint64 `json:"reputation_score"`
	CreatedAt         int64  `json:"created_at"`
}

type documentResponse struct {
	Owner           string `json:"owner"`
	Index           uint64 `json:"index"`
	ContentHash     string `json:"content_hash"`
	UploadTimestamp int64  `json:"upload_timestamp"`
	TokenCost       uint64 `json:"token_cost"`
	AccessLevel     uint8  `json:"access_level"`
	DownloadCount   uint64 `json:"download_count"`
	IsActive        bool   `json:"is_active"`
}

type queryResponse struct {
	User        string `json:"user"`
	Index       uint64 `json:"index"`
	QueryText   string `json:"query_text"`
	Timestamp   int64  `json:"timestamp"`
	TokensSpent uint64 `json:"tokens_spent"`
}

type quizResponse struct {
	Creator      string `json:"creator"`
	DocumentHash string `json:"document_hash"`
	CreatedAt    int64  `json:"created_at"`
	TokensSpent  uint64 `json:"tokens_spent"`
	IsPublic     bool   `json:"is_public"`
}

type stakeResponse struct {
	User     string `json:"user"`
	Amount   uint64 `json:"amount"`
	StakedAt int64  `json:"staked_at"`
	IsActive bool   `json:"is_active"`
}

type activityResponse struct {
	ID         string `json:"id"`
	Owner      string `json:"owner"`
	Transition string `json:"transition"`
	Detail     string `json:"detail"`
	CreatedAt  int64  `json:"created_at"`
}

func toAccountResponse(a *model.Account) accountResponse {
	return accountResponse{
		Owner:             a.Owner,
		TokenBalance:      a.TokenBalance,
		DocumentsUploaded: a.DocumentsUploaded,
		QueriesMade:       a.QueriesMade,
		ReputationScore:   a.ReputationScore,
		CreatedAt:         a.CreatedAt.Unix(),
	}
}

func toDocumentResponse(d *model.DocumentRecord) documentResponse {
	return documentResponse{
		Owner:           d.Owner,
		Index:           d.Index,
		ContentHash:     d.ContentHash,
		UploadTimestamp: d.UploadTimestamp.Unix(),
		TokenCost:       d.TokenCost,
		AccessLevel:     d.AccessLevel,
		DownloadCount:   d.DownloadCount,
		IsActive:        d.IsActive,
	}
}

func toQueryResponse(q *model.QueryRecord) queryResponse {
	return queryResponse{
		User:        q.User,
		Index:       q.Index,
		QueryText:   q.QueryText,
		Timestamp:   q.Timestamp.Unix(),
		TokensSpent: q.TokensSpent,
	}
}

func toQuizResponse(q *model.QuizRecord) quizResponse {
	return quizResponse{
		Creator:      q.Creator,
		DocumentHash: q.DocumentHash,
		CreatedAt:    q.CreatedAt.Unix(),
		TokensSpent:  q.TokensSpent,
		IsPublic:     q.IsPublic,
	}
}

func toStakeResponse(s *model.StakeRecord) stakeResponse {
	return stakeResponse{
		User:     s.User,
		Amount:   s.Amount,
		StakedAt: s.StakedAt.Unix(),
		IsActive: s.IsActive,
	}
}

func toActivityResponse(e *model.ActivityEntry) activityResponse {
	return activityResponse{
		ID:         e.ID,
		Owner:      e.Owner,
		Transition: e.Transition,
		Detail:     e.Detail,
		CreatedAt:  e.CreatedAt.Unix(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps ledger errors onto HTTP status codes. Unknown errors are
// treated as internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInsufficientTokens),
		errors.Is(err, ledger.ErrInsufficientStakeAmount):
		return http.StatusPaymentRequired
	case errors.Is(err, ledger.ErrNotDocumentOwner),
		errors.Is(err, ledger.ErrNotStakeOwner):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrDocumentNotFound),
		errors.Is(err, ledger.ErrStakeNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrRecordExists),
		errors.Is(err, ledger.ErrStakeNotActive),
		errors.Is(err, ledger.ErrStakeCooldownActive):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidDocumentIndex),
		errors.Is(err, ledger.ErrInvalidQueryIndex),
		errors.Is(err, ledger.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

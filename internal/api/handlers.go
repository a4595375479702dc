package api

import (
	"context"
	"net/http"

	"aegis-core/internal/auth"
	"aegis-core/internal/compliance"
	"aegis-core/internal/dispatch"
	"aegis-core/internal/web3"
)

// Response statuses returned to API clients.
const (
	StatusTransactionSent = "Transaction Sent"
	StatusFunded          = "Funded"
	StatusLimitUpdated    = "Limit Updated"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type payRequest struct {
	WalletAddress string  `json:"walletAddress"`
	TargetAddress string  `json:"targetAddress"`
	Amount        string  `json:"amount"`
	TokenAddress  *string `json:"tokenAddress,omitempty"`
}

type fundRequest struct {
	WalletAddress string `json:"walletAddress"`
	AmountEth     string `json:"amountEth"`
}

type limitRequest struct {
	RulesContract string `json:"rulesContract"`
	AgentAddress  string `json:"agentAddress"`
	LimitEth      string `json:"limitEth"`
}

type mintRequest struct {
	WalletAddress string `json:"walletAddress"`
	URI           string `json:"uri"`
}

type txResponse struct {
	TxHash string `json:"txHash"`
	Status string `json:"status"`
}

type balanceResponse struct {
	Address    string `json:"address"`
	BalanceWei string `json:"balanceWei"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{ID: user.ID, Username: user.Username, Role: user.Role})
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	intent, err := dispatch.ParseTransfer(req.WalletAddress, req.TargetAddress, req.Amount, req.TokenAddress)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	outcome, err := s.dispatcher.Transfer(submissionContext(r), intent, initiator(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse{TxHash: outcome.Hash.Hex(), Status: StatusTransactionSent})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	balance, err := s.dispatcher.Balance(r.Context(), address)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: address, BalanceWei: balance.String()})
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	intent, err := dispatch.ParseFund(req.WalletAddress, req.AmountEth)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	outcome, err := s.dispatcher.Fund(submissionContext(r), intent)
	s.respondTx(w, r, outcome, err, StatusFunded)
}

func (s *Server) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	var req limitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	intent, err := dispatch.ParseLimit(req.RulesContract, req.AgentAddress, req.LimitEth)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	outcome, err := s.dispatcher.SetLimit(submissionContext(r), intent)
	s.respondTx(w, r, outcome, err, StatusLimitUpdated)
}

// handleMint 返回值为 JSON 字符串形式的交易哈希。
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	intent, err := dispatch.ParseMint(req.WalletAddress, req.URI)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	outcome, err := s.dispatcher.Mint(submissionContext(r), intent)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome.Hash.Hex())
}

func (s *Server) handleRegisterEntity(w http.ResponseWriter, r *http.Request) {
	var req compliance.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	entity, err := s.compliance.Register(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := s.compliance.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities)
}

// handleHealth 以纯文本返回存储连通性，存储异常时仍返回 200。
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			_, _ = w.Write([]byte("System: Degraded (DB Error: " + err.Error() + ")"))
			return
		}
	}
	_, _ = w.Write([]byte("System: Online (DB Connected)"))
}

func (s *Server) respondTx(w http.ResponseWriter, r *http.Request, outcome web3.Outcome, err error, status string) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse{TxHash: outcome.Hash.Hex(), Status: status})
}

// submissionContext 与客户端连接解耦：交易一旦广播，客户端断开不应中止确认等待。
// 等待时长由会话的 ConfirmTimeout 约束。
func submissionContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func initiator(r *http.Request) string {
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		return p.Subject
	}
	return ""
}

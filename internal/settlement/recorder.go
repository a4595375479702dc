package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"aegis-core/internal/compliance"
	"aegis-core/internal/dispatch"
	"aegis-core/pkg/logger"
)

const publishTimeout = 5 * time.Second

// RecorderConfig controls how advices are rendered.
type RecorderConfig struct {
	// Currency is the ISO code used for native transfers. Token transfers use
	// the token contract address since no symbol is known on this side.
	Currency string
	// DebtorName overrides the debtor name; the wallet address is used when
	// empty.
	DebtorName string
}

// Recorder turns confirmed transfers into pacs.008 advices and publishes them
// to a Sink. Publish failures are logged and never reach the caller.
type Recorder struct {
	sink Sink
	cfg  RecorderConfig
	now  func() time.Time
	log  *slog.Logger
}

var _ dispatch.Recorder = (*Recorder)(nil)

// NewRecorder returns a Recorder that publishes to sink.
func NewRecorder(sink Sink, cfg RecorderConfig) *Recorder {
	if cfg.Currency == "" {
		cfg.Currency = "ETH"
	}
	return &Recorder{sink: sink, cfg: cfg, now: time.Now, log: logger.Named("settlement")}
}

// RecordTransfer implements dispatch.Recorder.
func (r *Recorder) RecordTransfer(ctx context.Context, rec dispatch.TransferRecord) {
	txHash := rec.Outcome.Hash.Hex()
	details := compliance.TransferDetails{TxID: txHash}
	var operation string
	switch in := rec.Intent.(type) {
	case dispatch.NativeTransfer:
		operation = dispatch.OpNativeTransfer
		details.Amount = dispatch.FormatEther(in.Amount)
		details.Currency = r.cfg.Currency
		details.Debtor = in.Wallet.Hex()
		details.Creditor = in.Target.Hex()
	case dispatch.TokenTransfer:
		operation = dispatch.OpTokenTransfer
		details.Amount = in.Amount.String()
		details.Currency = in.Token.Hex()
		details.Debtor = in.Wallet.Hex()
		details.Creditor = in.Target.Hex()
	default:
		r.log.Warn("unsupported transfer record", "tx_hash", txHash)
		return
	}
	if r.cfg.DebtorName != "" {
		details.Debtor = r.cfg.DebtorName
	}

	createdAt := r.now().UTC()
	doc, err := compliance.BuildPacs008(details, createdAt)
	if err != nil {
		r.log.Error("build pacs.008 failed", "tx_hash", txHash, "error", err)
		return
	}
	advice := Advice{
		MessageID: uuid.NewString(),
		TxHash:    txHash,
		Operation: operation,
		Initiator: rec.Initiator,
		Document:  string(doc),
		CreatedAt: createdAt,
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.sink.Publish(publishCtx, advice); err != nil {
		r.log.Error("publish settlement advice failed", "tx_hash", txHash, "message_id", advice.MessageID, "error", err)
		return
	}
	r.log.Info("settlement advice published", "tx_hash", txHash, "message_id", advice.MessageID, "operation", operation)
}

package derive

import (
	"errors"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

var ErrNoBatchInbox = errors.New("rollup config has no batch inbox address")

// InboxReader feeds the pipeline from L1 transactions: it filters the ones
// addressed to the batch inbox and ingests their call-data. L1 fetching stays
// with the caller; the reader only inspects transactions it is handed.
type InboxReader struct {
	pipeline *Pipeline
	log      zerolog.Logger
}

// NewInboxReader wraps a pipeline whose config names a batch inbox address.
func NewInboxReader(pipeline *Pipeline, log zerolog.Logger) (*InboxReader, error) {
	if pipeline.cfg.BatchInboxAddress == "" {
		return nil, ErrNoBatchInbox
	}
	return &InboxReader{
		pipeline: pipeline,
		log:      log.With().Str("component", "inbox-reader").Logger(),
	}, nil
}

// IngestTransactions scans one L1 block's transactions for batch-inbox
// call-data and returns the batches of every channel completed by it.
// Transactions to other addresses are ignored. Call-data that fails to parse
// is skipped and reported in the returned error; the scan continues, since
// the inbox is an open address and junk in it is expected.
func (r *InboxReader) IngestTransactions(txs types.Transactions, l1Height uint64) ([]*BatchData, error) {
	var (
		batches []*BatchData
		errs    *multierror.Error
	)
	for i, tx := range txs {
		if tx.To() == nil || !r.pipeline.cfg.IsBatchInbox(*tx.To()) {
			continue
		}
		decoded, err := r.pipeline.IngestCalldata(tx.Data(), l1Height)
		if err != nil {
			r.log.Warn().
				Err(err).
				Int("tx_index", i).
				Uint64("l1_height", l1Height).
				Msg("Skipping bad batch-inbox call-data")
			errs = multierror.Append(errs, err)
		}
		batches = append(batches, decoded...)
	}
	return batches, errs.ErrorOrNil()
}

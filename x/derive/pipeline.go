package derive

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/compose-network/derivation/x/channel"
	"github.com/compose-network/derivation/x/rollup"
)

// Pipeline drives derivation for one rollup instance: batcher call-data in,
// decoded batches out. It owns the channel bank and is single-writer; call
// IngestCalldata from one goroutine, in L1 order.
type Pipeline struct {
	cfg     *rollup.Config
	log     zerolog.Logger
	metrics *Metrics
	bank    *channel.Bank
}

// NewPipeline validates the configuration and builds a pipeline.
func NewPipeline(cfg *rollup.Config, log zerolog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rollup config: %w", err)
	}
	return &Pipeline{
		cfg:     cfg,
		log:     log.With().Str("component", "derive-pipeline").Logger(),
		metrics: NewMetrics(),
		bank:    channel.NewBank(cfg, log),
	}, nil
}

// Metrics exposes the pipeline metrics.
func (p *Pipeline) Metrics() *Metrics { return p.metrics }

// IngestCalldata feeds one batch-inbox call-data observed at the given L1
// height through the pipeline and returns the batches of every channel it
// completed. Malformed call-data rejects the whole input before any frame is
// ingested. A completed channel that fails to decode is skipped and reported
// in the returned error alongside the batches of channels that did decode;
// halting on it is the caller's choice.
func (p *Pipeline) IngestCalldata(calldata []byte, l1Height uint64) ([]*BatchData, error) {
	frames, err := channel.ParseFrames(calldata, p.cfg.MaxFrameSize)
	if err != nil {
		p.metrics.DecodeErrors.WithLabelValues("frames").Inc()
		return nil, fmt.Errorf("failed to parse call-data frames: %w", err)
	}

	var (
		batches []*BatchData
		errs    *multierror.Error
	)
	for _, frame := range frames {
		update := p.bank.Ingest(frame, l1Height)
		p.metrics.FramesIngested.Inc()
		p.metrics.ChannelsInFlight.Set(float64(p.bank.Len()))

		switch update.Kind {
		case channel.UpdatePending:
			// Waiting on more frames.
		case channel.UpdateDropped:
			p.metrics.ChannelsDropped.WithLabelValues(update.Reason.String()).Inc()
		case channel.UpdateReady:
			p.metrics.ChannelsReady.Inc()
			p.metrics.ChannelBytes.Observe(float64(len(update.Bytes)))

			decoded, err := ReadBatches(update.Bytes, p.cfg)
			if err != nil {
				p.metrics.DecodeErrors.WithLabelValues("channel").Inc()
				p.log.Warn().
					Err(err).
					Str("channel", update.ID.String()).
					Uint64("l1_height", l1Height).
					Msg("Skipping undecodable channel")
				errs = multierror.Append(errs, fmt.Errorf("channel %s: %w", update.ID, err))
				continue
			}
			p.metrics.BatchesPerChannel.Observe(float64(len(decoded)))
			for _, batch := range decoded {
				p.metrics.BatchesDecoded.WithLabelValues(batch.TypeName()).Inc()
			}
			p.log.Debug().
				Str("channel", update.ID.String()).
				Int("batches", len(decoded)).
				Msg("Decoded channel")
			batches = append(batches, decoded...)
		}
	}
	return batches, errs.ErrorOrNil()
}

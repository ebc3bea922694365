package rollup

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Default protocol bounds. These are consensus-relevant: changing any of them
// on a live chain is a breaking change.
const (
	// DefaultMaxFrameSize bounds the data carried by a single channel frame.
	DefaultMaxFrameSize = 1_000_000

	// DefaultMaxChannelSize bounds the total bytes buffered for one channel.
	DefaultMaxChannelSize = 100_000_000

	// DefaultChannelTimeout is the channel inter-frame timeout in L1 blocks.
	DefaultChannelTimeout = 300

	// DefaultMaxRLPBytesPerChannel caps the decompressed size of a channel.
	DefaultMaxRLPBytesPerChannel = 10_000_000

	// DefaultMaxSpanBatchBlocks caps the block count a span batch may claim,
	// and likewise its per-block and total transaction counts. A span cannot
	// outlive its channel: 300 L1 slots of 12s at a 2s block time is 1800 L2
	// blocks, so 4096 leaves ample headroom.
	DefaultMaxSpanBatchBlocks = 4096
)

// Config holds the rollup parameters the derivation codecs depend on.
type Config struct {
	// Chain identity
	L2ChainID   uint64 `mapstructure:"l2_chain_id"   yaml:"l2_chain_id"`
	BlockTime   uint64 `mapstructure:"block_time"    yaml:"block_time"`    // L2 block time in seconds
	GenesisTime uint64 `mapstructure:"genesis_time"  yaml:"genesis_time"`  // L2 genesis timestamp
	GenesisL1   uint64 `mapstructure:"genesis_l1"    yaml:"genesis_l1"`    // L1 block number at L2 genesis

	// L1 addresses (hex strings so they can come straight from YAML/env)
	BatchInboxAddress      string `mapstructure:"batch_inbox_address"      yaml:"batch_inbox_address"`
	DepositContractAddress string `mapstructure:"deposit_contract_address" yaml:"deposit_contract_address"`

	// Derivation bounds
	ChannelTimeout        uint64 `mapstructure:"channel_timeout"           yaml:"channel_timeout"`
	MaxChannelSize        uint64 `mapstructure:"max_channel_size"          yaml:"max_channel_size"`
	MaxFrameSize          uint64 `mapstructure:"max_frame_size"            yaml:"max_frame_size"`
	MaxRLPBytesPerChannel uint64 `mapstructure:"max_rlp_bytes_per_channel" yaml:"max_rlp_bytes_per_channel"`
	MaxSpanBatchBlocks    uint64 `mapstructure:"max_span_batch_blocks"     yaml:"max_span_batch_blocks"`
}

// Default returns a configuration with protocol-default bounds. Chain
// identity fields are zero and must be set by the caller or config file.
func Default() *Config {
	return &Config{
		BlockTime:             2,
		ChannelTimeout:        DefaultChannelTimeout,
		MaxChannelSize:        DefaultMaxChannelSize,
		MaxFrameSize:          DefaultMaxFrameSize,
		MaxRLPBytesPerChannel: DefaultMaxRLPBytesPerChannel,
		MaxSpanBatchBlocks:    DefaultMaxSpanBatchBlocks,
	}
}

// Load loads configuration from a YAML file with environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ROLLUP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("block_time", 2)
	v.SetDefault("channel_timeout", DefaultChannelTimeout)
	v.SetDefault("max_channel_size", DefaultMaxChannelSize)
	v.SetDefault("max_frame_size", DefaultMaxFrameSize)
	v.SetDefault("max_rlp_bytes_per_channel", DefaultMaxRLPBytesPerChannel)
	v.SetDefault("max_span_batch_blocks", DefaultMaxSpanBatchBlocks)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.L2ChainID == 0 {
		return fmt.Errorf("l2_chain_id must be set")
	}
	if c.BlockTime == 0 {
		return fmt.Errorf("block_time must be positive")
	}
	if c.ChannelTimeout == 0 {
		return fmt.Errorf("channel_timeout must be positive")
	}
	if c.MaxFrameSize == 0 {
		return fmt.Errorf("max_frame_size must be positive")
	}
	if c.MaxChannelSize < c.MaxFrameSize {
		return fmt.Errorf("max_channel_size %d must be at least max_frame_size %d",
			c.MaxChannelSize, c.MaxFrameSize)
	}
	if c.MaxRLPBytesPerChannel == 0 {
		return fmt.Errorf("max_rlp_bytes_per_channel must be positive")
	}
	if c.MaxSpanBatchBlocks == 0 {
		return fmt.Errorf("max_span_batch_blocks must be positive")
	}
	if c.BatchInboxAddress != "" && !common.IsHexAddress(c.BatchInboxAddress) {
		return fmt.Errorf("batch_inbox_address %q is not a valid address", c.BatchInboxAddress)
	}
	if c.DepositContractAddress != "" && !common.IsHexAddress(c.DepositContractAddress) {
		return fmt.Errorf("deposit_contract_address %q is not a valid address", c.DepositContractAddress)
	}
	return nil
}

// BatchInbox returns the parsed batch inbox address.
func (c *Config) BatchInbox() common.Address {
	return common.HexToAddress(c.BatchInboxAddress)
}

// DepositContract returns the parsed deposit contract address.
func (c *Config) DepositContract() common.Address {
	return common.HexToAddress(c.DepositContractAddress)
}

// IsBatchInbox reports whether addr is the batch inbox this rollup reads
// frames from.
func (c *Config) IsBatchInbox(addr common.Address) bool {
	return c.BatchInboxAddress != "" && addr == c.BatchInbox()
}

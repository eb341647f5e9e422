package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PolicyConfig carries the marketplace timing and money rules that
// operations teams tune without a redeploy.
type PolicyConfig struct {
	AttendanceWindowOpenDelay time.Duration `mapstructure:"attendanceWindowOpenDelay"`
	AttendanceWindowClose     time.Duration `mapstructure:"attendanceWindowClose"`
	AutoCompleteAfter         time.Duration `mapstructure:"autoCompleteAfter"`
	PayoutHoldback            time.Duration `mapstructure:"payoutHoldback"`

	DisputeWindowOpenDelay time.Duration `mapstructure:"disputeWindowOpenDelay"`
	DisputeWindowClose     time.Duration `mapstructure:"disputeWindowClose"`
	DisputeCommentMaxLen   int           `mapstructure:"disputeCommentMaxLen"`

	RefundMaxAttempts  int           `mapstructure:"refundMaxAttempts"`
	RefundRetryBackoff time.Duration `mapstructure:"refundRetryBackoff"`

	ChatArchiveAfterEnd            time.Duration `mapstructure:"chatArchiveAfterEnd"`
	ChatArchiveAfterDisputeResolve time.Duration `mapstructure:"chatArchiveAfterDisputeResolve"`

	ReminderLead time.Duration `mapstructure:"reminderLead"`

	DepositAmount      int64 `mapstructure:"depositAmount"`
	PlatformFeePercent int64 `mapstructure:"platformFeePercent"`

	NoShowBlockCount  int           `mapstructure:"noShowBlockCount"`
	NoShowBlockWindow time.Duration `mapstructure:"noShowBlockWindow"`
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		AttendanceWindowOpenDelay: 15 * time.Minute,
		AttendanceWindowClose:     48 * time.Hour,
		AutoCompleteAfter:         48 * time.Hour,
		PayoutHoldback:            72 * time.Hour,

		DisputeWindowOpenDelay: 15 * time.Minute,
		DisputeWindowClose:     72 * time.Hour,
		DisputeCommentMaxLen:   300,

		RefundMaxAttempts:  5,
		RefundRetryBackoff: 6 * time.Hour,

		ChatArchiveAfterEnd:            48 * time.Hour,
		ChatArchiveAfterDisputeResolve: 72 * time.Hour,

		ReminderLead: 24 * time.Hour,

		DepositAmount:      500,
		PlatformFeePercent: 10,

		NoShowBlockCount:  2,
		NoShowBlockWindow: 30 * 24 * time.Hour,
	}
}

// PolicyHolder hot-reloads marketplace.yml; readers always see a
// validated snapshot.
type PolicyHolder struct {
	current atomic.Value // holds PolicyConfig
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("marketplace")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/fieldtrip/config")
	v.AddConfigPath("/etc/fieldtrip")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FIELDTRIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultPolicyConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	} else {
		if err := v.UnmarshalKey("marketplace", &cfg); err != nil {
			return nil, err
		}
	}
	cfg = cfg.withDefaults()
	if err := validatePolicyConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultPolicyConfig()
		if err := v.UnmarshalKey("marketplace", &updated); err != nil {
			log.Printf("[marketplace-config] reload failed: %v", err)
			return
		}
		updated = updated.withDefaults()
		if err := validatePolicyConfig(updated); err != nil {
			log.Printf("[marketplace-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[marketplace-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPolicyHolder returns a holder pinned to the given config.
// Used in tests.
func NewStaticPolicyHolder(cfg PolicyConfig) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(cfg.withDefaults())
	return holder
}

func (h *PolicyHolder) Get() PolicyConfig {
	return h.current.Load().(PolicyConfig)
}

func (c PolicyConfig) withDefaults() PolicyConfig {
	defaults := DefaultPolicyConfig()
	if c.AttendanceWindowOpenDelay <= 0 {
		c.AttendanceWindowOpenDelay = defaults.AttendanceWindowOpenDelay
	}
	if c.AttendanceWindowClose <= 0 {
		c.AttendanceWindowClose = defaults.AttendanceWindowClose
	}
	if c.AutoCompleteAfter <= 0 {
		c.AutoCompleteAfter = defaults.AutoCompleteAfter
	}
	if c.PayoutHoldback <= 0 {
		c.PayoutHoldback = defaults.PayoutHoldback
	}
	if c.DisputeWindowOpenDelay <= 0 {
		c.DisputeWindowOpenDelay = defaults.DisputeWindowOpenDelay
	}
	if c.DisputeWindowClose <= 0 {
		c.DisputeWindowClose = defaults.DisputeWindowClose
	}
	if c.DisputeCommentMaxLen <= 0 {
		c.DisputeCommentMaxLen = defaults.DisputeCommentMaxLen
	}
	if c.RefundMaxAttempts <= 0 {
		c.RefundMaxAttempts = defaults.RefundMaxAttempts
	}
	if c.RefundRetryBackoff <= 0 {
		c.RefundRetryBackoff = defaults.RefundRetryBackoff
	}
	if c.ChatArchiveAfterEnd <= 0 {
		c.ChatArchiveAfterEnd = defaults.ChatArchiveAfterEnd
	}
	if c.ChatArchiveAfterDisputeResolve <= 0 {
		c.ChatArchiveAfterDisputeResolve = defaults.ChatArchiveAfterDisputeResolve
	}
	if c.ReminderLead <= 0 {
		c.ReminderLead = defaults.ReminderLead
	}
	if c.DepositAmount <= 0 {
		c.DepositAmount = defaults.DepositAmount
	}
	if c.PlatformFeePercent < 0 {
		c.PlatformFeePercent = defaults.PlatformFeePercent
	}
	if c.NoShowBlockCount <= 0 {
		c.NoShowBlockCount = defaults.NoShowBlockCount
	}
	if c.NoShowBlockWindow <= 0 {
		c.NoShowBlockWindow = defaults.NoShowBlockWindow
	}
	return c
}

func validatePolicyConfig(cfg PolicyConfig) error {
	if cfg.DisputeWindowClose <= cfg.DisputeWindowOpenDelay {
		return errors.New("marketplace.disputeWindowClose must exceed disputeWindowOpenDelay")
	}
	if cfg.PlatformFeePercent > 100 {
		return errors.New("marketplace.platformFeePercent cannot exceed 100")
	}
	return nil
}

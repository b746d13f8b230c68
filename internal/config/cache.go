package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Cache struct {
	Dir           string
	Workers       int
	QueueSize     int
	FetchTimeout  time.Duration
	WaitTimeout   time.Duration
	PollInterval  time.Duration
	Retention     time.Duration
	JanitorPeriod time.Duration
	UserAgent     string
}

func (Cache) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("cache.dir", "cache/segments", "directory where downloaded segments are stored")
	if err := viper.BindPFlag("cache.dir", cmd.PersistentFlags().Lookup("cache.dir")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("cache.workers", 4, "number of concurrent segment downloads")
	if err := viper.BindPFlag("cache.workers", cmd.PersistentFlags().Lookup("cache.workers")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("cache.queue-size", 4096, "how many segment downloads can wait for a worker")
	if err := viper.BindPFlag("cache.queue-size", cmd.PersistentFlags().Lookup("cache.queue-size")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("cache.fetch-timeout", 10*time.Second, "timeout of a single segment download")
	if err := viper.BindPFlag("cache.fetch-timeout", cmd.PersistentFlags().Lookup("cache.fetch-timeout")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("cache.wait-timeout", 45*time.Second, "how long can a segment request wait for its download")
	if err := viper.BindPFlag("cache.wait-timeout", cmd.PersistentFlags().Lookup("cache.wait-timeout")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("cache.poll-interval", 100*time.Millisecond, "how often is a pending segment checked while waiting")
	if err := viper.BindPFlag("cache.poll-interval", cmd.PersistentFlags().Lookup("cache.poll-interval")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("cache.retention", 3*time.Hour, "how long is an untouched segment kept")
	if err := viper.BindPFlag("cache.retention", cmd.PersistentFlags().Lookup("cache.retention")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("cache.janitor-period", 30*time.Minute, "how often are expired segments removed")
	if err := viper.BindPFlag("cache.janitor-period", cmd.PersistentFlags().Lookup("cache.janitor-period")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("cache.user-agent", "", "User-Agent header used for segment downloads")
	if err := viper.BindPFlag("cache.user-agent", cmd.PersistentFlags().Lookup("cache.user-agent")); err != nil {
		return err
	}

	return nil
}

func (c *Cache) Set() {
	c.Dir = viper.GetString("cache.dir")
	c.Workers = viper.GetInt("cache.workers")
	c.QueueSize = viper.GetInt("cache.queue-size")
	c.FetchTimeout = viper.GetDuration("cache.fetch-timeout")
	c.WaitTimeout = viper.GetDuration("cache.wait-timeout")
	c.PollInterval = viper.GetDuration("cache.poll-interval")
	c.Retention = viper.GetDuration("cache.retention")
	c.JanitorPeriod = viper.GetDuration("cache.janitor-period")
	c.UserAgent = viper.GetString("cache.user-agent")
}

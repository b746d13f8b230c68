package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Upstream struct {
	Sources   map[string]string
	Template  string
	Command   string
	Args      []string
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
}

func (Upstream) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("upstream.template", "", "playlist url template, {id} is replaced by the session id")
	if err := viper.BindPFlag("upstream.template", cmd.PersistentFlags().Lookup("upstream.template")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("upstream.command", "", "command printing the playlist url of a session, e.g. yt-dlp")
	if err := viper.BindPFlag("upstream.command", cmd.PersistentFlags().Lookup("upstream.command")); err != nil {
		return err
	}

	cmd.PersistentFlags().StringSlice("upstream.args", []string{}, "arguments of the upstream command, {id} is replaced by the session id")
	if err := viper.BindPFlag("upstream.args", cmd.PersistentFlags().Lookup("upstream.args")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("upstream.timeout", 15*time.Second, "timeout of resolving and downloading a playlist")
	if err := viper.BindPFlag("upstream.timeout", cmd.PersistentFlags().Lookup("upstream.timeout")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("upstream.user-agent", "", "User-Agent header used for playlist downloads")
	if err := viper.BindPFlag("upstream.user-agent", cmd.PersistentFlags().Lookup("upstream.user-agent")); err != nil {
		return err
	}

	return nil
}

func (u *Upstream) Set() {
	// maps are only available in config file
	u.Sources = viper.GetStringMapString("upstream.sources")
	u.Headers = viper.GetStringMapString("upstream.headers")

	u.Template = viper.GetString("upstream.template")
	u.Command = viper.GetString("upstream.command")
	u.Args = viper.GetStringSlice("upstream.args")
	u.Timeout = viper.GetDuration("upstream.timeout")
	u.UserAgent = viper.GetString("upstream.user-agent")
}

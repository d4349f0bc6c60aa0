package config

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/net/http/httpguts"
)

// Stream holds the resolved inputs for one mirroring run. It is populated
// once at startup and read-only afterwards; every concurrent fetch task
// shares the same instance.
type Stream struct {
	URL         string
	Output      string
	Duration    float64
	Count       int
	Concurrency int

	rawHeaders map[string][]string

	// populated by Validate
	Source  *url.URL
	Headers http.Header
}

func (Stream) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("url", "", "URL of the root m3u8 playlist")
	if err := viper.BindPFlag("url", cmd.PersistentFlags().Lookup("url")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("output", "", "output directory for the mirrored tree")
	if err := viper.BindPFlag("output", cmd.PersistentFlags().Lookup("output")); err != nil {
		return err
	}

	cmd.PersistentFlags().Float64("duration", 0, "mirror leading segments up to this many seconds per rendition")
	if err := viper.BindPFlag("duration", cmd.PersistentFlags().Lookup("duration")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("count", 0, "mirror at most this many leading segments per rendition")
	if err := viper.BindPFlag("count", cmd.PersistentFlags().Lookup("count")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("concurrency", 8, "maximum concurrent segment downloads")
	if err := viper.BindPFlag("concurrency", cmd.PersistentFlags().Lookup("concurrency")); err != nil {
		return err
	}

	return nil
}

func (s *Stream) Set() {
	s.URL = viper.GetString("url")
	s.Output = viper.GetString("output")
	s.Duration = viper.GetFloat64("duration")
	s.Count = viper.GetInt("count")
	s.Concurrency = viper.GetInt("concurrency")

	// headers come from the config file only, as a map of header name to
	// one value or a list of values
	s.rawHeaders = viper.GetStringMapStringSlice("headers")
}

// Validate checks the run inputs and resolves them into their typed form.
// Invalid header names or values fail here, not somewhere mid-run.
func (s *Stream) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("url must be set")
	}

	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("url must be an absolute http(s) url, got %q", s.URL)
	}
	s.Source = u

	if s.Output == "" {
		return fmt.Errorf("output directory must be set")
	}
	output, err := filepath.Abs(s.Output)
	if err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}
	s.Output = output

	if s.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	if s.Count < 0 {
		return fmt.Errorf("count must not be negative")
	}
	if s.Duration > 0 && s.Count > 0 {
		return fmt.Errorf("duration and count are mutually exclusive, set only one")
	}

	if s.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}

	if len(s.rawHeaders) > 0 {
		s.Headers = http.Header{}
		for name, values := range s.rawHeaders {
			if !httpguts.ValidHeaderFieldName(name) {
				return fmt.Errorf("invalid header name %q", name)
			}
			for _, value := range values {
				if !httpguts.ValidHeaderFieldValue(value) {
					return fmt.Errorf("invalid value for header %q", name)
				}
				s.Headers.Add(name, value)
			}
		}
	}

	return nil
}

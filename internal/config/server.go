package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Server configures the local playback endpoint.
type Server struct {
	Port int
}

func (Server) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().Int("port", 3030, "port to serve the mirrored tree on")
	if err := viper.BindPFlag("port", cmd.PersistentFlags().Lookup("port")); err != nil {
		return err
	}

	return nil
}

func (s *Server) Set() {
	s.Port = viper.GetInt("port")
}

func (s *Server) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	return nil
}

// Addr returns the bind address for the configured port. The server binds
// to loopback only.
func (s *Server) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", s.Port)
}

package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vizi2000/maicrosoft/pkg/config"
	"github.com/vizi2000/maicrosoft/pkg/publish"
)

// sftpPasswordEnv supplies the SFTP password for password
// authentication. Passwords never live in the config file.
const sftpPasswordEnv = "MAICROSOFT_SFTP_PASSWORD"

func newPublishCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "publish <artifact-file>...",
		Short: "Publish compiled artifacts",
		Long: `Publish compiled workflow artifacts to the configured destination.

The publish section of the config file selects the transport:
  - local: copies artifacts into a directory
  - sftp:  uploads artifacts over SSH

Each publish returns a receipt with the destination, byte count, and
content checksum. For SFTP password authentication the password is
read from the ` + sftpPasswordEnv + ` environment variable.`,
		Example: `  # Publish one artifact to the configured destination
  maicrosoft publish wf-hello.n8n.json

  # Publish under a different name
  maicrosoft publish --name hello.json wf-hello.n8n.json

  # Publish everything the compile step produced
  maicrosoft publish artifacts/*.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name != "" && len(args) > 1 {
				return fmt.Errorf("--name only applies to a single artifact")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			transport, err := openTransport(cfg)
			if err != nil {
				return err
			}
			defer transport.Close()

			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read artifact %s: %w", path, err)
				}

				target := name
				if target == "" {
					target = filepath.Base(path)
				}

				receipt, err := transport.Publish(cmd.Context(), target, content)
				if err != nil {
					return fmt.Errorf("failed to publish %s: %w", path, err)
				}

				fmt.Printf("✓ Published %s -> %s\n", path, receipt.Destination)
				fmt.Printf("  %d bytes, checksum %s (%v)\n",
					receipt.Bytes, receipt.Checksum, receipt.Duration.Round(summaryRounding))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "destination name for a single artifact")

	return cmd
}

// openTransport builds the publish transport the config selects.
func openTransport(cfg *config.Config) (publish.Transport, error) {
	switch cfg.Publish.Transport {
	case "sftp":
		sftpCfg := cfg.PublishSFTPConfig()
		if sftpCfg.AuthMethod == publish.AuthMethodPassword {
			sftpCfg.Password = os.Getenv(sftpPasswordEnv)
			if sftpCfg.Password == "" {
				return nil, fmt.Errorf("password authentication needs %s to be set", sftpPasswordEnv)
			}
		}
		log.Info().
			Str("host", sftpCfg.Host).
			Str("remote_dir", sftpCfg.RemoteDir).
			Msg("Publishing over SFTP")
		return publish.NewSFTPTransport(sftpCfg, log.Logger)
	default:
		log.Info().
			Str("dir", cfg.Publish.Directory).
			Msg("Publishing to local directory")
		return publish.NewLocalTransport(cfg.Publish.Directory, log.Logger)
	}
}

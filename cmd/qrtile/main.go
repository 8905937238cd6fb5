package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/i5heu/qrtile"
	"github.com/i5heu/qrtile/pkg/logging"
)

const (
	logKeyListenAddr  = "listenAddr"
	logKeyConfigPath  = "configPath"
	logKeyLedgerPath  = "ledgerPath"
	logKeyOutput      = "output"
	logKeyInput       = "input"
	logKeyMessageID   = "messageId"
	logKeyTotalChunks = "totalChunks"
	logKeySignal      = "signal"
	logKeyError       = "error"
)

const passphraseEnv = "QRTILE_PASSPHRASE"

// cli holds the state shared by all subcommands.
type cli struct {
	configPath string
	debug      bool
	noColor    bool

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	config qrtile.Config
	logger *slog.Logger
	codec  *qrtile.Codec
}

func main() { // A
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := &cli{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := c.execute(ctx, os.Args[1:]); err != nil {
		c.report(err)
		os.Exit(1)
	}
}

// execute runs one command line and releases the codec afterwards.
func (c *cli) execute(ctx context.Context, args []string) error {
	root := c.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if c.codec != nil {
		err = errors.Join(err, c.codec.Close())
		c.codec = nil
	}
	return err
}

func (c *cli) rootCmd() *cobra.Command { // A
	root := &cobra.Command{
		Use:   "qrtile",
		Short: "Pack text into one image of tiled QR codes and read it back",
		Long: `qrtile splits a text into fragments, renders one QR code per fragment
and tiles them onto a single PNG. Decoding scans every tile, reassembles the
fragments and verifies the SHA-256 of the text. A passphrase encrypts the
payload with XChaCha20-Poly1305.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}
	root.SetIn(c.stdin)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "yaml config file")
	root.PersistentFlags().BoolVar(&c.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "disable colored log output")

	root.AddCommand(
		c.encodeCmd(),
		c.decodeCmd(),
		c.estimateCmd(),
		c.serveCmd(),
		c.historyCmd(),
	)

	return root
}

// setup loads the config and builds the logger.
func (c *cli) setup() error { // A
	conf := qrtile.DefaultConfig()
	if c.configPath != "" {
		loaded, err := qrtile.LoadConfig(c.configPath)
		if err != nil {
			return err
		}
		conf = loaded
	}

	level, err := logging.ParseLevel(conf.LogLevel)
	if err != nil {
		return err
	}
	if c.debug {
		level = slog.LevelDebug
	}
	c.logger = logging.New(logging.Options{
		Level:     level,
		Writer:    c.stderr,
		NoColor:   c.noColor,
		AddSource: c.debug,
	})
	conf.Logger = c.logger
	c.config = conf

	c.logger.Debug("configuration loaded",
		logKeyConfigPath, c.configPath,
		logKeyLedgerPath, conf.LedgerPath)
	return nil
}

// openCodec builds the codec on first use, so commands that do not need it
// do not open the ledger.
func (c *cli) openCodec() (*qrtile.Codec, error) {
	if c.codec != nil {
		return c.codec, nil
	}
	codec, err := qrtile.New(c.config)
	if err != nil {
		return nil, err
	}
	c.codec = codec
	return codec, nil
}

func (c *cli) report(err error) {
	if c.logger != nil {
		c.logger.Error("command failed", logKeyError, err)
		return
	}
	fmt.Fprintln(c.stderr, "error:", err)
}

func (c *cli) passphrase(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(passphraseEnv)
}

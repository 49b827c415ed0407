package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/szibis/sparkplug-edge/internal/logging"
	"github.com/szibis/sparkplug-edge/internal/transport"
)

// version is set at build time via ldflags
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	subcommand := args[0]
	switch subcommand {
	case "publish":
		return runPublish(args[1:])
	case "decode":
		return runDecode(args[1:], os.Stdin, os.Stdout)
	case "watch":
		return runWatch(args[1:])
	case "replay":
		return runReplay(args[1:], os.Stdout)
	case "version":
		fmt.Printf("spbctl %s\n", version)
		return nil
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", subcommand)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: spbctl <subcommand> [flags]

Subcommands:
  publish     Send a rebirth request or a metric write (NCMD/DCMD)
  decode      Decode a Sparkplug B payload to JSON
  watch       Follow a group as a host application, optionally capturing it
  replay      Print or republish the messages of a capture file
  version     Print version information

Run 'spbctl <subcommand> -h' for subcommand flags.
`)
}

// brokerFlags registers the MQTT connection flags shared by the subcommands
// that talk to a broker.
func brokerFlags(fs *flag.FlagSet) *transport.MQTTConfig {
	cfg := transport.DefaultMQTTConfig()
	fs.StringVar(&cfg.Broker, "broker", cfg.Broker, "MQTT broker URL")
	fs.StringVar(&cfg.Username, "username", "", "MQTT username")
	fs.StringVar(&cfg.Password, "password", "", "MQTT password")
	fs.Func("qos", "MQTT QoS (default 1)", func(s string) error {
		q, err := strconv.ParseUint(s, 10, 8)
		if err != nil || q > 2 {
			return fmt.Errorf("qos must be 0, 1 or 2")
		}
		cfg.QoS = byte(q)
		return nil
	})
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "MQTT connect timeout")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca", "", "CA bundle for ssl:// brokers")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert", "", "client certificate")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key", "", "client key")
	fs.BoolVar(&cfg.TLS.InsecureSkipVerify, "tls-insecure-skip-verify", false, "skip broker certificate verification")
	return &cfg
}

func logLevelFlag(fs *flag.FlagSet) {
	fs.Func("log-level", "debug, info, warn, error (default warn)", func(s string) error {
		level, err := logging.ParseLevel(s)
		if err != nil {
			return err
		}
		logging.SetLevel(level)
		return nil
	})
}

func clientID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, os.Getpid(), time.Now().UnixNano()%100000)
}

func init() {
	logging.SetOutput(os.Stderr)
	logging.SetLevel(logging.LevelWarn)
}

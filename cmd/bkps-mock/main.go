package main

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/ruteri/bkps-admin/api/mockservice"
	"github.com/ruteri/bkps-admin/cmd/flags"
	"github.com/ruteri/bkps-admin/cryptoutils"
	"github.com/urfave/cli/v2"
)

var mockFlags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8082",
		Usage: "address to listen on for the service API",
	},
	&cli.PathFlag{
		Name:  "credentials-dir",
		Value: "bkps-mock",
		Usage: "directory for the generated CA, client credentials and runner config",
	},
	&cli.StringFlag{
		Name:  "init-token",
		Value: "",
		Usage: "one-time token accepted by user initial-create",
	},
	&cli.IntFlag{
		Name:  "import-key-bits",
		Value: 3072,
		Usage: "RSA size of the generated import key",
	},
}

func main() {
	app := &cli.App{
		Name:  "bkps-mock",
		Usage: "Serve an in-memory BKPS service for trying out bkps-admin",
		Flags: append(mockFlags, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String("listen-addr")
			dir := cCtx.Path("credentials-dir")

			logger := flags.SetupLogger(cCtx)

			service, err := mockservice.New(mockservice.Config{
				Log:           logger,
				InitToken:     cCtx.String("init-token"),
				ImportKeyBits: cCtx.Int("import-key-bits"),
			})
			if err != nil {
				logger.Error("Failed to create service", "err", err)
				return err
			}

			host, port, err := net.SplitHostPort(listenAddr)
			if err != nil {
				return fmt.Errorf("invalid listen-addr: %w", err)
			}
			certificate, ca, err := writeCredentials(dir, host, port)
			if err != nil {
				logger.Error("Failed to write credentials", "err", err)
				return err
			}
			logger.Info("Credentials written", "dir", dir, "config", filepath.Join(dir, "runner-config.json"))

			server := mockservice.NewServer(&mockservice.HTTPServerConfig{
				ListenAddr:               listenAddr,
				Log:                      logger,
				Certificate:              certificate,
				ClientCAs:                ca.CertPool(),
				GracefulShutdownDuration: 10 * time.Second,
				ReadTimeout:              60 * time.Second,
				WriteTimeout:             30 * time.Second,
			}, service)
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// writeCredentials creates a throwaway CA, issues the server and operator
// certificates and writes a runner config pointing at the server.
func writeCredentials(dir, host, port string) (tls.Certificate, *cryptoutils.CertificateAuthority, error) {
	ca, err := cryptoutils.NewCertificateAuthority("bkps-mock-ca")
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	serverCert, err := ca.IssueServer(host, "localhost")
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	clientCert, err := ca.IssueClient("bkps-admin")
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	keyPair, err := tls.X509KeyPair(serverCert.CertPEM, serverCert.KeyPEM)
	if err != nil {
		return tls.Certificate{}, nil, err
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("invalid port %q: %w", port, err)
	}
	runnerConfig, err := json.MarshalIndent(map[string]any{
		"service_url":     host,
		"service_port":    portNum,
		"certificate":     filepath.Join(dir, "client.pem"),
		"certificate_key": filepath.Join(dir, "client.key"),
		"certificate_ca":  filepath.Join(dir, "ca.pem"),
		"debug":           false,
		"system_proxy":    false,
	}, "", "  ")
	if err != nil {
		return tls.Certificate{}, nil, err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return tls.Certificate{}, nil, err
	}
	files := map[string][]byte{
		"ca.pem":             ca.CertPEM(),
		"client.pem":         clientCert.CertPEM,
		"client.key":         clientCert.KeyPEM,
		"runner-config.json": runnerConfig,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
			return tls.Certificate{}, nil, err
		}
	}
	return keyPair, ca, nil
}

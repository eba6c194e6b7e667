package flags

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/ruteri/bkps-admin/api/clients"
	"github.com/ruteri/bkps-admin/common"
	"github.com/ruteri/bkps-admin/interfaces"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

// DefaultRunnerConfig is read when present; an explicit --config must exist.
const DefaultRunnerConfig = "runner-config.json"

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name) || cCtx.Bool(DebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// LoadRunnerConfig fills runner flags not given on the command line or in
// the environment from the JSON runner config.
func LoadRunnerConfig(cCtx *cli.Context) error {
	path := cCtx.String(ConfigFlag.Name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !cCtx.IsSet(ConfigFlag.Name) {
			return nil
		}
		return &interfaces.PrecursorError{Resource: path, Err: interfaces.ErrFileNotFound}
	}
	return altsrc.InitInputSourceWithContext(RunnerFlags, altsrc.NewJSONSourceFromFlagFunc(ConfigFlag.Name))(cCtx)
}

// RunnerConfig is the resolved connection configuration.
type RunnerConfig struct {
	ServiceURL     string
	ServicePort    int
	Certificate    string
	CertificateKey string
	CertificateCA  string
	Debug          bool
	SystemProxy    bool
}

func ReadRunnerConfig(cCtx *cli.Context) RunnerConfig {
	return RunnerConfig{
		ServiceURL:     cCtx.String(ServiceURLFlag.Name),
		ServicePort:    cCtx.Int(ServicePortFlag.Name),
		Certificate:    cCtx.String(CertificateFlag.Name),
		CertificateKey: cCtx.String(CertificateKeyFlag.Name),
		CertificateCA:  cCtx.String(CertificateCAFlag.Name),
		Debug:          cCtx.Bool(DebugFlag.Name),
		SystemProxy:    cCtx.Bool(SystemProxyFlag.Name),
	}
}

// LogValue lists file paths only, never file contents.
func (c RunnerConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("service_url", c.ServiceURL),
		slog.Int("service_port", c.ServicePort),
		slog.String("certificate", c.Certificate),
		slog.String("certificate_key", c.CertificateKey),
		slog.String("certificate_ca", c.CertificateCA),
		slog.Bool("debug", c.Debug),
		slog.Bool("system_proxy", c.SystemProxy),
	)
}

// BuildTransport creates the service transport for the resolved config.
func BuildTransport(cfg RunnerConfig, mode clients.FailureMode, out io.Writer, log *slog.Logger) *clients.Transport {
	return clients.NewTransport(clients.TransportConfig{
		Host:           cfg.ServiceURL,
		Port:           cfg.ServicePort,
		CertFile:       cfg.Certificate,
		KeyFile:        cfg.CertificateKey,
		CAFile:         cfg.CertificateCA,
		UseSystemProxy: cfg.SystemProxy,
		Debug:          cfg.Debug,
		Mode:           mode,
		Out:            out,
		Log:            log,
	})
}

var ConfigFlag = &cli.PathFlag{
	Name:    "config",
	Value:   DefaultRunnerConfig,
	Usage:   "runner config JSON file",
	EnvVars: []string{"BKPS_CONFIG"},
}

var ServiceURLFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "service_url",
	Usage:   "service host name or address",
	EnvVars: []string{"BKPS_SERVICE_URL"},
})

var ServicePortFlag = altsrc.NewIntFlag(&cli.IntFlag{
	Name:    "service_port",
	Value:   clients.DefaultServicePort,
	Usage:   "service port",
	EnvVars: []string{"BKPS_SERVICE_PORT"},
})

var CertificateFlag = altsrc.NewPathFlag(&cli.PathFlag{
	Name:    "certificate",
	Usage:   "client certificate PEM file",
	EnvVars: []string{"BKPS_CERTIFICATE"},
})

var CertificateKeyFlag = altsrc.NewPathFlag(&cli.PathFlag{
	Name:    "certificate_key",
	Usage:   "client private key PEM file, must not be passphrase protected",
	EnvVars: []string{"BKPS_CERTIFICATE_KEY"},
})

var CertificateCAFlag = altsrc.NewPathFlag(&cli.PathFlag{
	Name:    "certificate_ca",
	Usage:   "CA bundle used to verify the service",
	EnvVars: []string{"BKPS_CERTIFICATE_CA"},
})

var DebugFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
	Name:    "debug",
	Value:   false,
	Usage:   "log requests, responses and assembled configurations",
	EnvVars: []string{"BKPS_DEBUG"},
})

var SystemProxyFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
	Name:    "system_proxy",
	Value:   true,
	Usage:   "use HTTPS_PROXY for authenticated requests",
	EnvVars: []string{"BKPS_SYSTEM_PROXY"},
})

var RunnerFlags = []cli.Flag{
	ServiceURLFlag,
	ServicePortFlag,
	CertificateFlag,
	CertificateKeyFlag,
	CertificateCAFlag,
	DebugFlag,
	SystemProxyFlag,
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "bkps-admin",
	Usage: "add 'service' tag to logs",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

// AllFlags returns the config, runner and logging flags.
func AllFlags() []cli.Flag {
	all := []cli.Flag{ConfigFlag}
	all = append(all, RunnerFlags...)
	return append(all, CommonFlags...)
}

package clients

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ruteri/bkps-admin/cryptoutils"
	"github.com/ruteri/bkps-admin/interfaces"
)

// FailureMode decides what a transport does after a failed request.
type FailureMode int

const (
	// FinishOnError returns the failure so the command exits non-zero.
	FinishOnError FailureMode = iota
	// Recoverable reports the failure to the operator and returns no result,
	// letting an interactive session continue.
	Recoverable
)

func (m FailureMode) String() string {
	if m == Recoverable {
		return "recoverable"
	}
	return "finish-on-error"
}

const (
	DefaultServicePort = 8082
	DefaultTimeout     = 30 * time.Second

	separator = "---------------------"
)

// TransportConfig holds everything needed to reach the service.
type TransportConfig struct {
	Host string
	Port int

	CertFile string
	KeyFile  string
	CAFile   string

	// UseSystemProxy honors HTTPS_PROXY for authenticated requests.
	UseSystemProxy bool
	Debug          bool
	Mode           FailureMode
	Timeout        time.Duration

	// Out receives operator-facing output. Defaults to os.Stdout.
	Out io.Writer
	Log *slog.Logger

	// StateHook, if set, observes every session state transition.
	StateHook func(SessionState)
}

// FormFile is a file streamed as one multipart form field.
type FormFile struct {
	Field    string
	Path     string
	FileName string
}

// Request describes one call to the service.
type Request struct {
	Method string
	Path   string
	Query  url.Values

	// JSON, if set, is sent as an application/json body.
	JSON []byte
	// Files, if set, are streamed as a multipart/form-data body.
	Files []FormFile

	// Unauthenticated requests skip the client certificate.
	Unauthenticated bool
	// Silent suppresses operator output for this request.
	Silent bool
}

// Response is a completed 2xx exchange.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// Transport performs requests against the service over mutually
// authenticated TLS, one fresh session per request.
type Transport struct {
	cfg TransportConfig
	out io.Writer
	log *slog.Logger
}

func NewTransport(cfg TransportConfig) *Transport {
	if cfg.Port == 0 {
		cfg.Port = DefaultServicePort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Transport{cfg: cfg, out: out, log: log}
}

// Mode returns the failure mode fixed at construction.
func (t *Transport) Mode() FailureMode {
	return t.cfg.Mode
}

// Out returns the operator output writer.
func (t *Transport) Out() io.Writer {
	return t.out
}

// BaseURL returns the service origin.
func (t *Transport) BaseURL() string {
	host := strings.TrimPrefix(strings.TrimPrefix(t.cfg.Host, "https://"), "http://")
	host = strings.TrimSuffix(host, "/")
	return "https://" + net.JoinHostPort(host, strconv.Itoa(t.cfg.Port))
}

// Do runs one request. Missing prerequisites always return a
// *interfaces.PrecursorError before any connection is attempted. Other
// failures depend on the failure mode: FinishOnError returns a
// *interfaces.TransportError or *interfaces.ServiceError, Recoverable
// reports the failure and returns (nil, nil).
func (t *Transport) Do(ctx context.Context, req *Request) (*Response, error) {
	s := newSession(t.cfg.StateHook)
	defer s.Close()

	tlsConfig, err := t.prepare(req)
	if err != nil {
		return nil, err
	}

	s.open(tlsConfig, t.proxyFor(req), t.cfg.Timeout)

	resp, err := t.exchange(ctx, s, req)
	if err != nil {
		s.transition(StateFailed)
		return t.fail(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.transition(StateFailed)
		return t.fail(&interfaces.ServiceError{
			StatusCode: resp.StatusCode,
			Status:     serviceStatus(resp.Body),
			Body:       resp.Body,
		})
	}

	s.transition(StateSucceeded)
	return resp, nil
}

// prepare checks every file the request needs and builds the TLS config.
func (t *Transport) prepare(req *Request) (*tls.Config, error) {
	if err := requireFile(t.cfg.CAFile); err != nil {
		return nil, err
	}
	pool, err := cryptoutils.LoadCACertPool(t.cfg.CAFile)
	if err != nil {
		return nil, &interfaces.PrecursorError{Resource: t.cfg.CAFile, Err: err}
	}

	tlsConfig := &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}

	if !req.Unauthenticated {
		if err := requireFile(t.cfg.CertFile); err != nil {
			return nil, err
		}
		if err := requireFile(t.cfg.KeyFile); err != nil {
			return nil, err
		}
		cert, err := cryptoutils.LoadClientCertificate(t.cfg.CertFile, t.cfg.KeyFile)
		if err != nil {
			if errors.Is(err, interfaces.ErrEncryptedPrivateKey) {
				return nil, &interfaces.PrecursorError{Resource: t.cfg.KeyFile, Err: interfaces.ErrEncryptedPrivateKey}
			}
			return nil, &interfaces.PrecursorError{Resource: t.cfg.CertFile, Err: err}
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	for _, f := range req.Files {
		if err := requireFile(f.Path); err != nil {
			return nil, err
		}
	}

	return tlsConfig, nil
}

// proxyFor returns the proxy selector for req, or nil for a direct
// connection. The system proxy only applies to authenticated requests.
func (t *Transport) proxyFor(req *Request) func(*http.Request) (*url.URL, error) {
	if !t.cfg.UseSystemProxy || req.Unauthenticated {
		return nil
	}
	return http.ProxyFromEnvironment
}

func (t *Transport) exchange(ctx context.Context, s *session, req *Request) (*Response, error) {
	op := fmt.Sprintf("%s %s", req.Method, req.Path)

	target := t.BaseURL() + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	body, contentType := t.requestBody(req)

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		if closer, ok := body.(io.Closer); ok {
			closer.Close()
		}
		return nil, &interfaces.TransportError{Op: op, Err: err}
	}
	httpReq.Header.Set("Cache-Control", "no-cache")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	if t.cfg.Debug {
		t.log.Debug("sending request", "method", req.Method, "url", target, "authenticated", !req.Unauthenticated)
	}

	s.transition(StateSent)
	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &interfaces.TransportError{Op: op, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &interfaces.TransportError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if t.cfg.Debug {
		t.log.Debug("received response", "status", httpResp.StatusCode, "bytes", len(data))
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Header:     httpResp.Header,
		Body:       data,
	}
	if !req.Silent {
		t.printResponse(resp)
	}
	return resp, nil
}

// requestBody returns the body reader and its content type. Multipart
// bodies are produced on the fly from disk.
func (t *Transport) requestBody(req *Request) (io.Reader, string) {
	switch {
	case len(req.Files) > 0:
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			err := writeFormFiles(mw, req.Files)
			if err == nil {
				err = mw.Close()
			}
			pw.CloseWithError(err)
		}()
		return pr, mw.FormDataContentType()
	case req.JSON != nil:
		return bytes.NewReader(req.JSON), "application/json"
	default:
		return nil, ""
	}
}

func writeFormFiles(mw *multipart.Writer, files []FormFile) error {
	for _, f := range files {
		name := f.FileName
		if name == "" {
			name = filepath.Base(f.Path)
		}
		part, err := mw.CreateFormFile(f.Field, name)
		if err != nil {
			return err
		}
		if err := copyFile(part, f.Path); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(dst io.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(dst, file)
	return err
}

// fail applies the failure mode to a transport or service error.
func (t *Transport) fail(err error) (*Response, error) {
	if t.cfg.Mode == Recoverable {
		var se *interfaces.ServiceError
		if !errors.As(err, &se) {
			fmt.Fprintf(t.out, "Error occurred: %v\n", err)
		}
		t.log.Debug("request failed, continuing", "err", err)
		return nil, nil
	}
	return nil, err
}

func (t *Transport) printResponse(resp *Response) {
	fmt.Fprintln(t.out, separator)
	fmt.Fprintf(t.out, "Status: %s\n", resp.Status)
	fmt.Fprintln(t.out, separator)

	if total := resp.Header.Get("X-Total-Count"); total != "" {
		fmt.Fprintf(t.out, "Total items count: %s\n", total)
		if link := resp.Header.Get("Link"); link != "" {
			fmt.Fprintf(t.out, "Links: %s\n", link)
		}
		fmt.Fprintln(t.out, separator)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299 && len(resp.Body) > 0:
		ShowOutput(t.out, resp.Body)
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		fmt.Fprintln(t.out, "Command succeeded!")
	default:
		if status := serviceStatus(resp.Body); status != "" {
			fmt.Fprintln(t.out, status)
		} else if len(resp.Body) > 0 {
			fmt.Fprintln(t.out, string(resp.Body))
		}
	}
}

// ShowOutput prints data as indented JSON, or verbatim if it is not JSON.
func ShowOutput(w io.Writer, data []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		fmt.Fprintln(w, string(data))
		return
	}
	fmt.Fprintln(w, buf.String())
}

// serviceStatus extracts the indented "status" member of an error body.
func serviceStatus(body []byte) string {
	var parsed struct {
		Status json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Status) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, parsed.Status, "", "  "); err != nil {
		return string(parsed.Status)
	}
	return buf.String()
}

func requireFile(path string) error {
	if path == "" {
		return &interfaces.PrecursorError{Resource: "<unset path>", Err: interfaces.ErrFileNotFound}
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return &interfaces.PrecursorError{Resource: path, Err: interfaces.ErrFileNotFound}
	}
	return nil
}

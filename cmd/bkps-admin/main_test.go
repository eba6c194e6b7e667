package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/shlex"
	"github.com/ruteri/bkps-admin/api/mockservice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func runCLI(t *testing.T, env *mockservice.TestEnv, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	app := newApp(newRuntime(strings.NewReader(stdin), &out))
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append(envArgs(env), args...))
	return out.String(), err
}

func envArgs(env *mockservice.TestEnv) []string {
	return []string{
		"bkps-admin",
		"--service_url", env.Host,
		"--service_port", strconv.Itoa(env.Port),
		"--certificate", env.CertFile,
		"--certificate_key", env.KeyFile,
		"--certificate_ca", env.CAFile,
		"--system_proxy=false",
	}
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var coder cli.ExitCoder
	require.ErrorAs(t, err, &coder)
	return coder.ExitCode()
}

const configurationJSON = `{
  "name": "cfg-json",
  "pufType": "IID",
  "requireIidUds": false,
  "testModeSecrets": false,
  "corimUrl": "",
  "overbuild": {"max": -1},
  "confidentialData": {
    "importMode": "ENCRYPTED",
    "aesKey": {"value": "%AES%", "testProgram": true}
  },
  "attestationConfig": {
    "efusesPublic": {"value": "%EFUSES%", "mask": "%EFUSES%"},
    "blackList": {"sdmSvns": [], "sdmBuildIdStrings": [], "romVersions": [7]}
  }
}`

func TestHealth(t *testing.T) {
	env := mockservice.StartTestEnv(t, mockservice.Config{})

	out, err := runCLI(t, env, "", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "---------------------\nStatus: 200 OK\n---------------------\n")
	assert.Contains(t, out, `"status": "UP"`)

	out, err = runCLI(t, env, "", "health", "--detailed")
	require.NoError(t, err)
	assert.Contains(t, out, `"requests"`)
}

func TestOneShotFailures(t *testing.T) {
	env := mockservice.StartTestEnv(t, mockservice.Config{})

	t.Run("validation happens before any request", func(t *testing.T) {
		_, err := runCLI(t, env, "", "signing-key", "get", "--id=-1")
		require.Error(t, err)
		assert.Equal(t, 1, exitCode(t, err))
		assert.Contains(t, err.Error(), "Error occurred: id")
		assert.Equal(t, int64(0), env.Service.Served())
	})

	t.Run("service error exits non-zero", func(t *testing.T) {
		env.Service.FailNext(http.MethodGet, "/init/v1/signing-key/list", http.StatusForbidden, "missing role")

		out, err := runCLI(t, env, "", "signing-key", "list")
		require.Error(t, err)
		assert.Equal(t, 1, exitCode(t, err))
		assert.Contains(t, out, "Status: 403 Forbidden")
		assert.Contains(t, out, "missing role")
	})

	t.Run("missing runner config", func(t *testing.T) {
		served := env.Service.Served()
		_, err := runCLI(t, env, "", "--config", filepath.Join(t.TempDir(), "absent.json"), "health")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "file does not exist")
		assert.Equal(t, served, env.Service.Served())
	})

	t.Run("missing input file", func(t *testing.T) {
		_, err := runCLI(t, env, "", "sealing-key", "restore", "-i", filepath.Join(t.TempDir(), "backup.json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "file does not exist")
	})
}

func TestRunnerConfigFile(t *testing.T) {
	env := mockservice.StartTestEnv(t, mockservice.Config{})

	cfg, err := json.Marshal(map[string]any{
		"service_url":     env.Host,
		"service_port":    env.Port,
		"certificate":     env.CertFile,
		"certificate_key": env.KeyFile,
		"certificate_ca":  env.CAFile,
	})
	require.NoError(t, err)
	path := env.WriteFile(t, "runner-config.json", cfg)

	var out bytes.Buffer
	app := newApp(newRuntime(strings.NewReader(""), &out))
	app.ExitErrHandler = func(*cli.Context, error) {}

	require.NoError(t, app.Run([]string{"bkps-admin", "--config", path, "sealing-key", "list"}))
	assert.Contains(t, out.String(), "Status: 200 OK")
}

func TestUserCreateSavesOutput(t *testing.T) {
	env := mockservice.StartTestEnv(t, mockservice.Config{})
	certPath := env.WriteFile(t, "operator.pem", []byte("-----BEGIN CERTIFICATE-----\nb3BlcmF0b3I=\n-----END CERTIFICATE-----\n"))
	outPath := filepath.Join(t.TempDir(), "user.json")

	out, err := runCLI(t, env, "", "user", "create", "-i", certPath, "-o", outPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, rebootNotice+"\n"))
	assert.Contains(t, out, "\nSaved output to file: "+outPath+"\n")

	saved, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(saved), "b3BlcmF0b3I=")
}

func TestConfigurationCreateFromJSON(t *testing.T) {
	env := mockservice.StartTestEnv(t, mockservice.Config{})
	doc := strings.NewReplacer(
		"%AES%", strings.Repeat("AB", 32),
		"%EFUSES%", strings.Repeat("00", 256),
	).Replace(configurationJSON)
	input := env.WriteFile(t, "configuration.json", []byte("\n"+doc+"\n\n"))

	out, err := runCLI(t, env, "", "configuration", "create", "--json", "-i", input)
	require.NoError(t, err)
	assert.Contains(t, out, "Status: 201 Created")

	req, ok := env.Service.LastRequest()
	require.True(t, ok)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/config/v1/configuration", req.Path)

	var body struct {
		ConfidentialData struct {
			ImportMode      string         `json:"importMode"`
			AesKey          map[string]any `json:"aesKey"`
			EncryptedAesKey map[string]any `json:"encryptedAesKey"`
		} `json:"confidentialData"`
		AttestationConfig struct {
			BlackList struct {
				RomVersions []int `json:"romVersions"`
			} `json:"blackList"`
		} `json:"attestationConfig"`
	}
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, "ENCRYPTED", body.ConfidentialData.ImportMode)
	assert.NotContains(t, body.ConfidentialData.AesKey, "value")
	assert.Equal(t, true, body.ConfidentialData.AesKey["testProgram"])
	assert.NotEmpty(t, body.ConfidentialData.EncryptedAesKey["wrappedKey"])
	assert.Equal(t, []int{7}, body.AttestationConfig.BlackList.RomVersions)
	assert.NotContains(t, string(req.Body), strings.Repeat("AB", 32))
}

func TestShell(t *testing.T) {
	env := mockservice.StartTestEnv(t, mockservice.Config{})

	t.Run("errors do not end the session", func(t *testing.T) {
		env.Service.FailNext(http.MethodGet, "/init/v1/sealing-key", http.StatusInternalServerError, "hsm offline")
		stdin := strings.Join([]string{
			"health",
			"signing-key get --id=x",
			"bogus",
			"sealing-key list",
			"",
			"context-key rotate",
			"exit",
			"health",
		}, "\n")

		out, err := runCLI(t, env, stdin)
		require.NoError(t, err)
		assert.Contains(t, out, shellPrompt)
		assert.Contains(t, out, "Status: 200 OK")
		assert.Contains(t, out, "Error occurred: id")
		assert.Contains(t, out, `Error occurred: unknown command "bogus"`)
		assert.Contains(t, out, "hsm offline")
		assert.NotContains(t, out, "Error occurred: service returned")
		assert.Contains(t, out, "Command succeeded!")
		assert.True(t, strings.HasSuffix(out, "Work finished.\n"))
		assert.Equal(t, 1, strings.Count(out, "Work finished."))
	})

	t.Run("end of input finishes the session", func(t *testing.T) {
		out, err := runCLI(t, env, "health\n", "shell")
		require.NoError(t, err)
		assert.Contains(t, out, "Status: 200 OK")
		assert.True(t, strings.HasSuffix(out, "Work finished.\n"))
	})

	t.Run("interactive configuration retries invalid answers", func(t *testing.T) {
		efuses := strings.Repeat("00", 256)
		stdin := strings.Join([]string{
			"configuration create --interactive",
			"BOGUS",
			"plaintext",
			"cfg-shell",
			"iid",
			"N",
			"maybe",
			"N",
			"",
			"",
			"Y",
			"AABB",
			"",
			efuses,
			efuses,
			"",
			"",
			"1, 2",
			"exit",
		}, "\n")

		out, err := runCLI(t, env, stdin)
		require.NoError(t, err)
		assert.Contains(t, out, "Invalid value: unsupported import mode")
		assert.Contains(t, out, "Invalid value: answer Y or N")
		assert.Contains(t, out, "Status: 201 Created")

		req, ok := env.Service.LastRequest()
		require.True(t, ok)
		assert.Equal(t, "/config/v1/configuration", req.Path)

		var body map[string]any
		require.NoError(t, json.Unmarshal(req.Body, &body))
		assert.Equal(t, "cfg-shell", body["name"])
		confidential := body["confidentialData"].(map[string]any)
		assert.Equal(t, "PLAINTEXT", confidential["importMode"])
		assert.Equal(t, "AABB", confidential["aesKey"].(map[string]any)["value"])
		blackList := body["attestationConfig"].(map[string]any)["blackList"].(map[string]any)
		assert.Equal(t, []any{float64(1), float64(2)}, blackList["romVersions"])
		assert.Equal(t, []any{}, blackList["sdmBuildIdStrings"])
	})
}

func TestShellLineSplitting(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		wantErr bool
	}{
		{line: "", want: []string{}},
		{line: "   ", want: []string{}},
		{line: "health --detailed", want: []string{"health", "--detailed"}},
		{line: "  user  list\t", want: []string{"user", "list"}},
		{line: `user create -i "my cert.pem"`, want: []string{"user", "create", "-i", "my cert.pem"}},
		{line: `communication delete --id 'a b'`, want: []string{"communication", "delete", "--id", "a b"}},
		{line: `prefetch --pdi ""`, want: []string{"prefetch", "--pdi", ""}},
		{line: `a\ b c`, want: []string{"a b", "c"}},
		{line: `'a\b'`, want: []string{`a\b`}},
		{line: `"unterminated`, wantErr: true},
		{line: `trailing\`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := shlex.Split(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShellQuotedPath(t *testing.T) {
	env := mockservice.StartTestEnv(t, mockservice.Config{})
	dir := filepath.Join(t.TempDir(), "operator certs")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	certPath := filepath.Join(dir, "operator.pem")
	require.NoError(t, os.WriteFile(certPath, []byte("-----BEGIN CERTIFICATE-----\nb3BlcmF0b3I=\n-----END CERTIFICATE-----\n"), 0o600))

	out, err := runCLI(t, env, `communication import -i "`+certPath+`"`+"\n"+`health "unterminated`+"\nexit\n")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: 200 OK")
	assert.Contains(t, out, "b3BlcmF0b3I=")
	assert.Contains(t, out, "Error occurred: EOF found when expecting closing quote")
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestPrompter_Stop(t *testing.T) {
	t.Run("releases a reader with unread lines", func(t *testing.T) {
		var out bytes.Buffer
		p := newPrompter(strings.NewReader("first\nsecond\nthird\n"), &out)

		line, err := p.ask(context.Background(), "> ")
		require.NoError(t, err)
		assert.Equal(t, "first", line)

		p.stop()
		require.Eventually(t, func() bool { return isClosed(p.finished) }, time.Second, 10*time.Millisecond)

		_, err = p.ask(context.Background(), "> ")
		require.ErrorIs(t, err, io.EOF)
	})

	t.Run("releases a reader waiting for input", func(t *testing.T) {
		pr, pw := io.Pipe()
		defer pr.Close()
		p := newPrompter(pr, io.Discard)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.ask(ctx, "> ")
		require.ErrorIs(t, err, context.Canceled)

		p.stop()
		_, err = pw.Write([]byte("late\n"))
		require.NoError(t, err)
		require.Eventually(t, func() bool { return isClosed(p.finished) }, time.Second, 10*time.Millisecond)
	})

	t.Run("stop without use", func(t *testing.T) {
		p := newPrompter(strings.NewReader("unused\n"), io.Discard)
		p.stop()
		p.stop()
		_, err := p.ask(context.Background(), "> ")
		require.ErrorIs(t, err, io.EOF)
		assert.False(t, isClosed(p.finished))
	})
}

func TestShellExitReleasesInput(t *testing.T) {
	env := mockservice.StartTestEnv(t, mockservice.Config{})

	var out bytes.Buffer
	rt := newRuntime(strings.NewReader("health\nexit\nhealth\nhealth\n"), &out)
	app := newApp(rt)
	app.ExitErrHandler = func(*cli.Context, error) {}

	require.NoError(t, app.Run(envArgs(env)))
	assert.Equal(t, 1, strings.Count(out.String(), "Status: 200 OK"))
	require.Eventually(t, func() bool { return isClosed(rt.prompt.finished) }, time.Second, 10*time.Millisecond)
}

package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/detconsole/internal/api"
	"github.com/rshade/detconsole/internal/cli"
	"github.com/rshade/detconsole/internal/config"
	"github.com/rshade/detconsole/internal/deterr"
)

const validToken = "tok-1"

// fakeMaster answers the endpoints the commands read.
type fakeMaster struct {
	mu          sync.Mutex
	requireAuth bool
	password    string
	loggedOut   bool
	version     string
	failUsers   bool
}

func (m *fakeMaster) lastPassword() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.password
}

func (m *fakeMaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.URL.Path == "/api/v1/auth/login" {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		m.password = body.Password
		if body.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":16,"message":"invalid credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"` + validToken + `","user":{"id":2,"username":"` + body.Username + `"}}`))
		return
	}

	if m.requireAuth && r.Header.Get("Authorization") != "Bearer "+validToken {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":16,"message":"unauthenticated"}`))
		return
	}

	switch r.URL.Path {
	case "/api/v1/auth/logout":
		m.loggedOut = true
		m.requireAuth = true
		_, _ = w.Write([]byte(`{}`))
	case "/api/v1/me":
		if m.loggedOut {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"user":{"id":2,"username":"det","admin":true}}`))
	case "/api/v1/users":
		if m.failUsers {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"code":13,"message":"boom"}`))
			return
		}
		_, _ = w.Write([]byte(`{"users":[{"id":1,"username":"admin","admin":true,"active":true}]}`))
	case "/api/v1/workspaces":
		_, _ = w.Write([]byte(`{"workspaces":[{"id":1,"name":"Uncategorized"},{"id":7,"name":"research","numProjects":3}]}`))
	case "/api/v1/workspaces/7":
		_, _ = w.Write([]byte(`{"workspace":{"id":7,"name":"research","numProjects":3}}`))
	case "/api/v1/resource-pools":
		_, _ = w.Write([]byte(`{"resourcePools":[` +
			`{"name":"default","type":"RESOURCE_POOL_TYPE_STATIC","numAgents":2,"slotsAvailable":8,"slotsUsed":3,"defaultComputePool":true},` +
			`{"name":"aux","numAgents":1}]}`))
	case "/api/v1/master":
		_, _ = w.Write([]byte(`{"version":"` + m.version + `","clusterName":"test-cluster","clusterId":"c-1"}`))
	case "/api/v1/users/setting":
		_, _ = w.Write([]byte(`{"settings":[]}`))
	default:
		http.NotFound(w, r)
	}
}

// isolate points detconsole at a temp home and clears the environment the
// configuration reads.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)
	t.Setenv(config.EnvLogLevel, "error")
	for _, name := range []string{
		config.EnvMaster, config.EnvProxyURL, config.EnvUser, config.EnvTestUser,
		config.EnvDev, config.EnvLogFormat, config.EnvProjectDir, config.EnvCertFile,
		config.EnvTimeoutSecs,
		"DETCONSOLE_STORAGE_TTL_SECONDS", "DETCONSOLE_STORAGE_ENABLED", "DETCONSOLE_STORAGE_DIR",
	} {
		t.Setenv(name, "")
	}
	t.Cleanup(config.ResetGlobalConfigForTest)
	return home
}

func startMaster(t *testing.T, m *fakeMaster) string {
	t.Helper()
	if m.version == "" {
		m.version = "0.26.0"
	}
	srv := httptest.NewServer(m)
	t.Cleanup(srv.Close)
	return srv.URL
}

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := cli.NewRootCmd("test")
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestRootCmd(t *testing.T) {
	isolate(t)

	root := cli.NewRootCmd("1.2.3")
	assert.Equal(t, "detconsole", root.Use)
	assert.Equal(t, "1.2.3", root.Version)

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"login", "logout", "whoami", "users", "workspaces", "pools", "info", "wait", "probe", "console", "config"} {
		assert.Contains(t, names, want)
	}

	_, _, err := runCLI(t, "", "--output", "yaml", "config", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--output must be")
}

func TestLoginWhoamiLogout(t *testing.T) {
	isolate(t)
	m := &fakeMaster{requireAuth: true}
	master := startMaster(t, m)

	out, _, err := runCLI(t, "secret\n", "login", "--master", master, "--user", "det", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in to "+master+" as det")
	assert.Equal(t, "secret", m.lastPassword())

	out, _, err = runCLI(t, "", "whoami", "--master", master)
	require.NoError(t, err, "the saved token authenticates later commands")
	assert.Contains(t, out, "det (id 2, admin: yes)")

	out, _, err = runCLI(t, "", "users", "--master", master)
	require.NoError(t, err)
	assert.Contains(t, out, "admin")

	out, _, err = runCLI(t, "", "logout", "--master", master)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out of")

	_, errOut, err := runCLI(t, "", "whoami", "--master", master)
	require.Error(t, err)
	var de *deterr.DetError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, deterr.TypeAuth, de.Type)
	assert.Contains(t, errOut, "Session expired")
}

func TestLoginFailure(t *testing.T) {
	isolate(t)
	master := startMaster(t, &fakeMaster{requireAuth: true})

	_, errOut, err := runCLI(t, "wrong\n", "login", "--master", master, "--user", "det", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login as det failed")

	var de *deterr.DetError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, deterr.TypeAuth, de.Type)
	assert.True(t, de.Handled())
	assert.NotContains(t, errOut, "Session expired", "no redirect while on the login path")
}

func TestPools(t *testing.T) {
	isolate(t)
	master := startMaster(t, &fakeMaster{})

	out, _, err := runCLI(t, "", "pools", "--master", master)
	require.NoError(t, err)
	assert.Contains(t, out, "default *")
	assert.Contains(t, out, "STATIC")
	assert.Contains(t, out, "3/8")

	out, _, err = runCLI(t, "", "pools", "--master", master, "--name", "aux", "-o", "json")
	require.NoError(t, err)
	var pool api.ResourcePool
	require.NoError(t, json.Unmarshal([]byte(out), &pool))
	assert.Equal(t, "aux", pool.Name)

	_, _, err = runCLI(t, "", "pools", "--master", master, "--name", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no resource pool named "missing"`)
}

func TestWorkspaces(t *testing.T) {
	isolate(t)
	master := startMaster(t, &fakeMaster{})

	out, _, err := runCLI(t, "", "workspaces", "--master", master, "-o", "json")
	require.NoError(t, err)
	var workspaces []api.Workspace
	require.NoError(t, json.Unmarshal([]byte(out), &workspaces))
	require.Len(t, workspaces, 2)
	assert.Equal(t, "research", workspaces[1].Name)

	out, _, err = runCLI(t, "", "workspaces", "--master", master, "--id", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "research")
	assert.NotContains(t, out, "Uncategorized")
}

func TestFetchFailureIsNotified(t *testing.T) {
	isolate(t)
	master := startMaster(t, &fakeMaster{failUsers: true})

	_, errOut, err := runCLI(t, "", "users", "--master", master)
	require.Error(t, err)
	var de *deterr.DetError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, deterr.TypeServer, de.Type)
	assert.True(t, de.Handled())
	assert.Contains(t, errOut, "ERROR: Unable to fetch users")
}

func TestInfoVersionCheck(t *testing.T) {
	isolate(t)
	master := startMaster(t, &fakeMaster{version: "0.26.0"})

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("master:\n  url: "+master+"\n  timeout_seconds: 5\n  min_version: 0.30.0\n"), 0o600))

	out, errOut, err := runCLI(t, "", "info", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, out, "test-cluster", "info is printed before the version verdict")
	assert.Contains(t, errOut, "WARNING: Unsupported master version")

	var de *deterr.DetError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, deterr.LevelWarning, de.Level)

	out, _, err = runCLI(t, "", "info", "--master", master)
	require.NoError(t, err, "no minimum configured")
	assert.Contains(t, out, "0.26.0")
}

func TestWait(t *testing.T) {
	isolate(t)

	var state atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/notebooks/abc/events" {
			http.NotFound(w, r)
			return
		}
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		current, _ := state.Load().(string)
		_ = conn.WriteJSON(map[string]any{"snapshot": map[string]any{"state": current, "is_ready": current == "RUNNING"}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	t.Run("ready", func(t *testing.T) {
		state.Store("RUNNING")
		out, errOut, err := runCLI(t, "", "wait", "notebook", "abc", "--master", srv.URL)
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/proxy/abc/\n", out)
		assert.Contains(t, errOut, "notebook abc: RUNNING (ready: yes)")
	})

	t.Run("terminated", func(t *testing.T) {
		state.Store("TERMINATED")
		_, errOut, err := runCLI(t, "", "wait", "notebook", "abc", "--master", srv.URL, "-q")
		require.Error(t, err)
		assert.Contains(t, errOut, "The notebook terminated before it was ready")
		assert.NotContains(t, errOut, "ready: no")
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, _, err := runCLI(t, "", "wait", "experiment", "1", "--master", srv.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown task kind")
	})
}

func TestProbe(t *testing.T) {
	isolate(t)

	var failAgents atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failAgents.Load() && r.URL.Path == "/api/v1/agents" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	t.Run("pass", func(t *testing.T) {
		out, _, err := runCLI(t, "", "probe", "--master", srv.URL, "--iterations", "2", "--concurrency", "2", "--metrics")
		require.NoError(t, err)
		assert.Contains(t, out, "get resource pools")
		assert.Contains(t, out, "PASS")
		assert.Contains(t, out, "detconsole_probe_request_duration_seconds")
	})

	t.Run("fail", func(t *testing.T) {
		failAgents.Store(true)
		out, _, err := runCLI(t, "", "probe", "--master", srv.URL, "--iterations", "2")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "probe thresholds not met")
		assert.Contains(t, out, "FAIL")
	})
}

func TestConfigCommands(t *testing.T) {
	home := isolate(t)

	out, _, err := runCLI(t, "", "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration initialized successfully")
	assert.FileExists(t, filepath.Join(home, "config.yaml"))

	_, _, err = runCLI(t, "", "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	t.Setenv(config.EnvMaster, "http://from-env:8080")
	_, _, err = runCLI(t, "", "config", "set", "master.url", "https://det.example.com")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(home, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://det.example.com")
	assert.NotContains(t, string(data), "from-env", "environment overrides are not saved")

	out, _, err = runCLI(t, "", "config", "get", "master.url")
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:8080\n", out, "get shows the effective value")

	t.Setenv(config.EnvMaster, "")
	out, _, err = runCLI(t, "", "config", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "master.url=https://det.example.com")

	_, _, err = runCLI(t, "", "config", "set", "probe.iterations", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")

	out, _, err = runCLI(t, "", "config", "validate", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "Master: https://det.example.com")
}

func TestConfigInitProject(t *testing.T) {
	isolate(t)
	projectRoot := t.TempDir()

	out, _, err := runCLI(t, "", "config", "init", "--project-dir", projectRoot)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration initialized at")

	gitignore, err := os.ReadFile(filepath.Join(projectRoot, ".detconsole", ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, config.GitignoreContent(), string(gitignore))

	_, _, err = runCLI(t, "", "config", "set", "console.refresh_seconds", "30", "--project-dir", projectRoot)
	require.NoError(t, err)
	out, _, err = runCLI(t, "", "config", "get", "console.refresh_seconds", "--project-dir", projectRoot)
	require.NoError(t, err)
	assert.Equal(t, "30\n", out)
}

func TestInvalidMasterURL(t *testing.T) {
	isolate(t)

	_, _, err := runCLI(t, "", "pools", "--master", "http://[::1")
	require.Error(t, err)
	var de *deterr.DetError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, deterr.TypeInput, de.Type)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/and161185/userdir/internal/model"
	"github.com/and161185/userdir/internal/repository/memory"
	grpcserver "github.com/and161185/userdir/internal/server/grpc"
	"github.com/and161185/userdir/internal/service"
)

const testKey = "dirctl-test-key"

func startServer(t *testing.T) {
	t.Helper()
	log := zaptest.NewLogger(t)
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcserver.AuthUnary([]byte(testKey))))
	tbl := memory.NewTable(model.AttrUUID)
	grpcserver.RegisterDirectoryServer(gs, grpcserver.New(service.NewDirectoryService(tbl, log)))
	go func() { _ = gs.Serve(lis) }()

	prev := dialFn
	dialFn = func(_ context.Context, _ globalOpts, bearer string) (grpc.ClientConnInterface, io.Closer, error) {
		cc, err := grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithPerRPCCredentials(grpcserver.BearerCreds{Token: bearer, Insecure: true}),
		)
		if err != nil {
			return nil, nil, err
		}
		return cc, cc, nil
	}
	t.Cleanup(func() { dialFn = prev; gs.Stop(); _ = lis.Close() })
}

func runOut(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := run(context.Background(), args, &buf)
	return buf.String(), err
}

func TestToken_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	_, err := loadToken()
	require.Error(t, err)

	require.NoError(t, saveToken("abc", time.Now().Add(time.Hour)))
	tok, err := loadToken()
	require.NoError(t, err)
	require.Equal(t, "abc", tok)

	st, err := os.Stat(filepath.Join(dir, "userdir", "token.json"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	require.NoError(t, saveToken("old", time.Now().Add(-time.Minute)))
	_, err = loadToken()
	require.ErrorContains(t, err, "expired")
}

func TestRun_Usage(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := runOut(t)
	require.ErrorContains(t, err, "missing command")

	_, err = runOut(t, "frobnicate")
	require.ErrorContains(t, err, "unknown command")

	out, err := runOut(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "dirctl dev")

	t.Setenv("JWT_KEY", "")
	_, err = runOut(t, "token")
	require.ErrorContains(t, err, "need -key")

	_, err = runOut(t, "token", "-key", testKey, "-role", "root")
	require.ErrorContains(t, err, "bad role")

	_, err = runOut(t, "get", "-uuid", "a")
	require.ErrorContains(t, err, "no token")
}

func TestRun_AgainstServer(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	startServer(t)

	out, err := runOut(t, "token", "-key", testKey, "-role", "admin")
	require.NoError(t, err)
	require.Contains(t, out, "token saved")

	out, err = runOut(t, "create", "-id", "42", "-username", "ann", "-role", "admin", "-apikey", "K1")
	require.NoError(t, err)
	var created map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	key, _ := created["uuid"].(string)
	require.NotEmpty(t, key)
	require.Equal(t, "K1", created["apiKey"])

	out, err = runOut(t, "lookup", "-id", "42")
	require.NoError(t, err)
	require.Contains(t, out, key)

	out, err = runOut(t, "update", "-uuid", key, "-id", "42", "-username", "anna", "-role", "admin")
	require.NoError(t, err)
	require.Contains(t, out, `"anna"`)
	require.NotContains(t, out, "K1")

	_, err = runOut(t, "update", "-username", "x")
	require.ErrorContains(t, err, "need -uuid")

	out, err = runOut(t, "delete", "-uuid", key)
	require.NoError(t, err)
	require.Equal(t, "deleted\n", out)

	_, err = runOut(t, "get", "-uuid", key)
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestRun_OrdinaryTokenSeesRedactedKey(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	startServer(t)

	_, err := runOut(t, "token", "-key", testKey, "-role", "admin")
	require.NoError(t, err)
	out, err := runOut(t, "create", "-id", "7", "-role", "admin", "-apikey", "SECRET")
	require.NoError(t, err)
	var created map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &created))

	_, err = runOut(t, "token", "-key", testKey, "-role", "user")
	require.NoError(t, err)
	out, err = runOut(t, "get", "-uuid", created["uuid"].(string))
	require.NoError(t, err)
	require.NotContains(t, out, "SECRET")
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, true, got["hasApiKey"])
}

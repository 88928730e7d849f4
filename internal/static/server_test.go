package static

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	localtls "github.com/remo-app/remo-shell/internal/tls"
)

// startTestServer serves root over TLS and returns a client that trusts
// the generated certificate for "localhost".
func startTestServer(t *testing.T, root string) (*Server, *http.Client) {
	t.Helper()
	material, err := localtls.Generate()
	require.NoError(t, err)
	serverTLS, err := material.TLSConfig()
	require.NoError(t, err)

	h, err := NewHandler(root, discardLogger())
	require.NoError(t, err)

	srv := NewServer(Stack(h, discardLogger(), false), serverTLS, discardLogger())
	port, err := srv.Start(context.Background())
	require.NoError(t, err)
	require.NotZero(t, port)
	t.Cleanup(func() { srv.Close() })

	pool := x509.NewCertPool()
	require.True(t, pool.AppendCertsFromPEM(material.CertPEM))
	client := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool, ServerName: "localhost"},
		},
	}
	t.Cleanup(client.CloseIdleConnections)
	return srv, client
}

func get(t *testing.T, client *http.Client, srv *Server, path string) (*http.Response, string) {
	t.Helper()
	resp, err := client.Get(fmt.Sprintf("https://127.0.0.1:%d%s", srv.Port(), path))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServerEndToEnd(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>ok</html>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.js"), []byte("console.log(1)"), 0644))

	srv, client := startTestServer(t, root)
	require.Equal(t, fmt.Sprintf("https://localhost:%d", srv.Port()), srv.URL())

	resp, body := get(t, client, srv, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<html>ok</html>", body)
	require.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	require.Equal(t, ContentSecurityPolicy, resp.Header.Get("Content-Security-Policy"))
	require.EqualValues(t, len("<html>ok</html>"), resp.ContentLength)

	resp, body = get(t, client, srv, "/app.js")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/javascript", resp.Header.Get("Content-Type"))
	require.Equal(t, "console.log(1)", body)

	resp, _ = get(t, client, srv, "/missing.txt")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, client, srv, "/..%2f..%2fsecret")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Still serving after the failures above.
	resp, _ = get(t, client, srv, "/app.js")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerBindsLoopbackOnly(t *testing.T) {
	srv, _ := startTestServer(t, t.TempDir())

	addrs, err := net.InterfaceAddrs()
	require.NoError(t, err)
	var external net.IP
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
			external = ipNet.IP
			break
		}
	}
	if external == nil {
		t.Skip("no non-loopback IPv4 interface available")
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(external.String(), fmt.Sprint(srv.Port())), time.Second)
	if err == nil {
		conn.Close()
		t.Fatalf("connection via %s succeeded, want refusal", external)
	}
}

func TestServerStartTwice(t *testing.T) {
	srv, _ := startTestServer(t, t.TempDir())
	_, err := srv.Start(context.Background())
	require.True(t, errors.Is(err, ErrAlreadyStarted))
}

func TestServerCloseStopsListener(t *testing.T) {
	srv, _ := startTestServer(t, t.TempDir())
	port := srv.Port()

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close(), "second Close is a no-op")

	select {
	case <-srv.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("accept loop did not exit")
	}

	_, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	require.Error(t, err)
}

func TestServerRequiresTLS(t *testing.T) {
	srv := NewServer(http.NotFoundHandler(), nil, discardLogger())
	_, err := srv.Start(context.Background())
	require.Error(t, err)
	require.Zero(t, srv.Port())
	require.Empty(t, srv.URL())
}

func TestServerCloseBeforeStart(t *testing.T) {
	srv := NewServer(http.NotFoundHandler(), &tls.Config{}, discardLogger())
	require.NoError(t, srv.Close())
}

package sftpupload

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/TrackIntake/internal/integrations/transfer"
	"github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

const (
	testUser = "station"
	testPass = "secret"
)

// startServer поднимает in-process SSH сервер с sftp-подсистемой поверх памяти.
func startServer(t *testing.T) (host string, port int, hostKey ssh.PublicKey) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == testUser && string(pass) == testPass {
				return nil, nil
			}
			return nil, io.EOF
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	handlers := sftp.InMemHandler()
	go func() {
		for {
			nConn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(nConn, cfg, handlers)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, signer.PublicKey()
}

func serveConn(nConn net.Conn, cfg *ssh.ServerConfig, handlers sftp.Handlers) {
	_, chans, reqs, err := ssh.NewServerConn(nConn, cfg)
	if err != nil {
		_ = nConn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			return
		}
		go func(in <-chan *ssh.Request) {
			for req := range in {
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
				_ = req.Reply(ok, nil)
			}
		}(requests)

		srv := sftp.NewRequestServer(ch, handlers)
		_ = srv.Serve()
		_ = srv.Close()
	}
}

func rawClient(t *testing.T, host string, port int) *sftp.Client {
	t.Helper()
	conn, err := ssh.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)), &ssh.ClientConfig{
		User:            testUser,
		Auth:            []ssh.AuthMethod{ssh.Password(testPass)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	c, err := sftp.NewClient(conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestUpload_OK(t *testing.T) {
	host, port, hk := startServer(t)
	admin := rawClient(t, host, port)
	require.NoError(t, admin.Mkdir("/in"))

	c := New(Config{
		Host:     host,
		Port:     port,
		Username: testUser,
		Password: testPass,
		HostKey:  string(ssh.MarshalAuthorizedKey(hk)),
	})

	content := []byte("\uFEFFUPOC_ZUP;x")
	err := c.Upload(context.Background(), content, "202501020304_345_Trackingdaten_dvs.csv")
	require.NoError(t, err)

	f, err := admin.Open("/in/202501020304_345_Trackingdaten_dvs.csv")
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestUpload_MissingRemoteDirIsGenericFailure(t *testing.T) {
	host, port, _ := startServer(t)

	c := New(Config{Host: host, Port: port, Username: testUser, Password: testPass, RemoteDir: "/missing"})
	err := c.Upload(context.Background(), []byte("x"), "f.csv")
	require.Error(t, err)
	require.NotErrorIs(t, err, transfer.ErrUnreachable)
	require.Contains(t, err.Error(), "'missing' directory does not exist")
}

func TestUpload_WrongPasswordIsGenericFailure(t *testing.T) {
	host, port, _ := startServer(t)

	c := New(Config{Host: host, Port: port, Username: testUser, Password: "nope"})
	err := c.Upload(context.Background(), []byte("x"), "f.csv")
	require.Error(t, err)
	require.NotErrorIs(t, err, transfer.ErrUnreachable)
}

func TestUpload_RefusedIsUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	c := New(Config{Host: "127.0.0.1", Port: port, Username: testUser, Password: testPass, Timeout: time.Second})
	err = c.Upload(context.Background(), []byte("x"), "f.csv")
	require.ErrorIs(t, err, transfer.ErrUnreachable)
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{Host: "sftp.local"})
	require.Equal(t, "sftp.local:22", c.Addr())
	require.Equal(t, DefaultRemoteDir, c.cfg.RemoteDir)
	require.Equal(t, DefaultTimeout, c.cfg.Timeout)
}

// silentListener принимает TCP и никогда не шлёт SSH-баннер.
func silentListener(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	var mu sync.Mutex
	var conns []net.Conn
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestUpload_SilentServerTimesOutAsUnreachable(t *testing.T) {
	port := silentListener(t)
	c := New(Config{Host: "127.0.0.1", Port: port, Username: testUser, Password: testPass, Timeout: 300 * time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- c.Upload(context.Background(), []byte("x"), "f.csv") }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, transfer.ErrUnreachable)
	case <-time.After(5 * time.Second):
		t.Fatal("upload did not honour the connection timeout")
	}
}

func TestUpload_CancelDuringHandshake(t *testing.T) {
	port := silentListener(t)
	c := New(Config{Host: "127.0.0.1", Port: port, Username: testUser, Password: testPass, Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Upload(ctx, []byte("x"), "f.csv") }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, transfer.ErrUnreachable)
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("upload ignored context cancellation")
	}
}

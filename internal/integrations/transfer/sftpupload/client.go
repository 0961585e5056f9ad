package sftpupload

import (
	"context"
	"log/slog"
	"net"
	"path"
	"strconv"
	"time"

	"github.com/BearBump/TrackIntake/internal/integrations/transfer"
	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const (
	DefaultPort      = 22
	DefaultRemoteDir = "/in"
	DefaultTimeout   = 10 * time.Second
)

type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	RemoteDir string
	// HostKey: публичный ключ сервера в формате authorized_keys. Пусто: ключ не проверяется.
	HostKey string
	Timeout time.Duration
}

type Client struct {
	cfg    Config
	dialer *net.Dialer
}

func New(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.RemoteDir == "" {
		cfg.RemoteDir = DefaultRemoteDir
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg:    cfg,
		dialer: &net.Dialer{Timeout: cfg.Timeout},
	}
}

func (c *Client) Addr() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

func (c *Client) sshConfig() (*ssh.ClientConfig, error) {
	hostKey := ssh.InsecureIgnoreHostKey()
	if c.cfg.HostKey != "" {
		pk, _, _, _, err := ssh.ParseAuthorizedKey([]byte(c.cfg.HostKey))
		if err != nil {
			return nil, errors.Wrap(err, "parse host key")
		}
		hostKey = ssh.FixedHostKey(pk)
	}
	return &ssh.ClientConfig{
		User:            c.cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(c.cfg.Password)},
		HostKeyCallback: hostKey,
		Timeout:         c.cfg.Timeout,
	}, nil
}

// deadline is now+Timeout, or the ctx deadline when that comes first.
func (c *Client) deadline(ctx context.Context) time.Time {
	dl := time.Now().Add(c.cfg.Timeout)
	if ctxDl, ok := ctx.Deadline(); ok && ctxDl.Before(dl) {
		return ctxDl
	}
	return dl
}

// Upload writes content to <remote_dir>/<filename>. Connection failures are reported as transfer.ErrUnreachable.
func (c *Client) Upload(ctx context.Context, content []byte, filename string) error {
	sshCfg, err := c.sshConfig()
	if err != nil {
		return err
	}

	addr := c.Addr()
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return transfer.Unreachable(errors.Wrap(err, "dial sftp"))
	}
	// отмена ctx рвёт соединение на любом шаге
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	// ssh.ClientConfig.Timeout ограничивает только Dial; сервер, который принял TCP и молчит,
	// иначе держал бы рукопожатие бесконечно
	_ = conn.SetDeadline(c.deadline(ctx))
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return transfer.Unreachable(errors.Wrap(ctx.Err(), "ssh handshake"))
		}
		return transfer.Classify(errors.Wrap(err, "ssh handshake"))
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	defer sshClient.Close()

	// новый дедлайн на stat + запись файла
	_ = conn.SetDeadline(c.deadline(ctx))

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return errors.Wrap(err, "open sftp session")
	}
	defer client.Close()

	if _, err := client.Stat(c.cfg.RemoteDir); err != nil {
		return errors.Wrapf(err, "'%s' directory does not exist", path.Base(c.cfg.RemoteDir))
	}

	target := path.Join(c.cfg.RemoteDir, filename)
	f, err := client.Create(target)
	if err != nil {
		return errors.Wrap(err, "create remote file")
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "write remote file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close remote file")
	}

	slog.Info("sftp upload done", "addr", addr, "path", target, "bytes", len(content))
	return nil
}

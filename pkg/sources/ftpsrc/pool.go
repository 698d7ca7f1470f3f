package ftpsrc

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/jlaffaye/ftp"
	"github.com/sirupsen/logrus"
)

// Conn is the subset of an FTP session the source needs
type Conn interface {
	NameList(path string) ([]string, error)
	Retrieve(path string, w io.Writer) error
	Quit() error
}

// Dialer opens and authenticates a new session
type Dialer func(ctx context.Context) (Conn, error)

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retrieve(path string, w io.Writer) error {
	resp, err := c.Retr(path)
	if err != nil {
		return err
	}

	if _, err := io.Copy(w, resp); err != nil {
		_ = resp.Close()
		return err
	}

	return resp.Close()
}

// NewDialer returns a Dialer for the configured server
func NewDialer(cfg Config) Dialer {
	return func(ctx context.Context) (Conn, error) {
		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

		conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(cfg.Timeout))
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}

		if err := conn.Login(cfg.Username, cfg.Password); err != nil {
			_ = conn.Quit()
			return nil, fmt.Errorf("login to %s: %w", addr, err)
		}

		return serverConn{ServerConn: conn}, nil
	}
}

// pool keeps up to size idle sessions so concurrent work units each reuse
// their own connection
type pool struct {
	log  logrus.FieldLogger
	dial Dialer
	idle chan Conn

	mu     sync.Mutex
	closed bool
}

func newPool(log logrus.FieldLogger, dial Dialer, size int) *pool {
	if size < 1 {
		size = 1
	}

	return &pool{
		log:  log,
		dial: dial,
		idle: make(chan Conn, size),
	}
}

func (p *pool) get(ctx context.Context) (Conn, error) {
	select {
	case c := <-p.idle:
		return c, nil
	default:
	}

	return p.dial(ctx)
}

// put returns a healthy session to the pool
func (p *pool) put(c Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		select {
		case p.idle <- c:
			return
		default:
		}
	}

	p.quit(c)
}

// discard drops a session that failed mid-transfer
func (p *pool) discard(c Conn) {
	p.quit(c)
}

func (p *pool) quit(c Conn) {
	if err := c.Quit(); err != nil {
		p.log.WithError(err).Debug("Failed to close FTP session")
	}
}

func (p *pool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	for {
		select {
		case c := <-p.idle:
			p.quit(c)
		default:
			return
		}
	}
}

package micro

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	loggingpkg "github.com/drblury/contractflow/internal/runtime/logging"
)

// EmbeddedConfig holds options for RunEmbedded.
type EmbeddedConfig struct {
	// Port to listen on. Zero picks a random free port; InProcess disables
	// the listener entirely.
	Port      int
	InProcess bool
	// JetStream enables the JetStream subsystem, storing under StoreDir
	// (a temporary directory when empty).
	JetStream bool
	StoreDir  string
	// Logger receives the server log when set.
	Logger       loggingpkg.ServiceLogger
	ReadyTimeout time.Duration
}

// Embedded is a running in-process NATS server and a connection to it.
type Embedded struct {
	Server *server.Server
	Conn   *nats.Conn
}

// RunEmbedded starts a NATS server in this process and connects to it.
func RunEmbedded(cfg EmbeddedConfig) (*Embedded, error) {
	port := cfg.Port
	if port == 0 {
		port = server.RANDOM_PORT
	}
	ns, err := server.NewServer(&server.Options{
		ServerName: "contractflow_embedded",
		Host:       "127.0.0.1",
		Port:       port,
		DontListen: cfg.InProcess,
		NoSigs:     true,
		JetStream:  cfg.JetStream,
		StoreDir:   cfg.StoreDir,
	})
	if err != nil {
		return nil, fmt.Errorf("contractflow: create nats server: %w", err)
	}
	if cfg.Logger != nil {
		ns.SetLogger(loggingpkg.NewNATSServerLogger(cfg.Logger), false, false)
	}

	timeout := cfg.ReadyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	go ns.Start()
	if !ns.ReadyForConnections(timeout) {
		ns.Shutdown()
		return nil, errors.New("contractflow: nats server not ready")
	}

	var opts []nats.Option
	if cfg.InProcess {
		opts = append(opts, nats.InProcessServer(ns))
	}
	nc, err := nats.Connect(ns.ClientURL(), opts...)
	if err != nil {
		ns.Shutdown()
		return nil, err
	}
	return &Embedded{Server: ns, Conn: nc}, nil
}

// Close drains the connection and shuts the server down.
func (e *Embedded) Close() {
	if e.Conn != nil {
		e.Conn.Close()
	}
	if e.Server != nil {
		e.Server.Shutdown()
		e.Server.WaitForShutdown()
	}
}

// Connect dials url with the given client name.
func Connect(url, name string) (*nats.Conn, error) {
	opts := []nats.Option{}
	if name != "" {
		opts = append(opts, nats.Name(name))
	}
	return nats.Connect(url, opts...)
}

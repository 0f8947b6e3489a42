// Command busd runs the message bus server: it accepts TCP connections,
// speaks the framed packet protocol, and drives an App instance.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	bus "github.com/pagebus/busd"
	"github.com/pagebus/busd/internal/logging"
	"github.com/pagebus/busd/internal/packets"
	"github.com/pagebus/busd/internal/persistence"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to a YAML config file (defaults used if empty)")
		development = flag.Bool("dev", false, "use human-readable development logging")
	)
	flag.Parse()

	cfg := bus.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = bus.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "busd:", err)
			os.Exit(1)
		}
	}

	log, err := logging.New(cfg.LogLevel, *development)
	if err != nil {
		fmt.Fprintln(os.Stderr, "busd:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := persistence.Open(ctx, persistence.Config{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		Compress:      cfg.PersistCompress,
		PostgresDSN:   cfg.PostgresDSN,
	})
	if err != nil {
		log.Fatal("open persistence backends", zap.Error(err))
	}
	defer repo.Close()

	metrics := bus.NewMetricsRegistry("busd")
	app := bus.NewApp(cfg, repo, bus.WithLogger(log), bus.WithMetrics(metrics))

	if err := app.Restore(ctx); err != nil {
		log.Fatal("restore persisted topics and queues", zap.Error(err))
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.TCPPort))
	if err != nil {
		log.Fatal("listen", zap.Int("tcp_port", cfg.TCPPort), zap.Error(err))
	}
	log.Info("listening", zap.String("addr", listener.Addr().String()))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.RunBackground(ctx); err != nil {
			log.Error("background loops stopped", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		app.Shutdown()
		listener.Close()
	}()

	acceptLoop(ctx, listener, app, log)
	wg.Wait()
}

func acceptLoop(ctx context.Context, listener net.Listener, app *bus.App, log *zap.Logger) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("accept", zap.Error(err))
			continue
		}
		go handleConn(ctx, conn, app, log)
	}
}

// connWriter adapts net.Conn to the Session.Writer contract.
type connWriter struct {
	conn net.Conn
}

func (w connWriter) WritePacket(p packets.Packet) error {
	_, err := p.(interface {
		WriteTo(io.Writer) (int64, error)
	}).WriteTo(w.conn)
	return err
}

func handleConn(ctx context.Context, conn net.Conn, app *bus.App, log *zap.Logger) {
	defer conn.Close()

	sessionID := uuid.NewString()
	session := bus.NewSession(sessionID, remoteIP(conn), connWriter{conn: conn})
	app.Sessions.Add(session)

	log = log.With(zap.String("session_id", sessionID), zap.String("remote_addr", conn.RemoteAddr().String()))
	log.Info("connection accepted")

	defer func() {
		if r := recover(); r != nil {
			log.Sugar().Errorw("session read loop panicked", "panic", r, "stack", string(debug.Stack()))
		}
		app.Disconnect(session)
		log.Info("connection closed")
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		pkt, err := packets.ReadPacket(conn, session.PacketVersions())
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("read packet failed", zap.Error(err))
			}
			return
		}
		session.Touch()

		if err := dispatch(ctx, app, session, pkt, log); err != nil {
			log.Warn("packet handling failed", zap.Error(err))
			session.Reject(err.Error())
			return
		}
	}
}

func dispatch(ctx context.Context, app *bus.App, session *bus.Session, pkt packets.Packet, log *zap.Logger) error {
	switch p := pkt.(type) {
	case *packets.PingPacket:
		return session.Send(&packets.PongPacket{})

	case *packets.GreetingPacket:
		return session.Greet(p.Name, p.ProtocolVersion)

	case *packets.PacketVersionsPacket:
		return session.NegotiateVersions(p.Versions)

	case *packets.PublishPacket:
		if session.State() != bus.StateReady {
			return fmt.Errorf("publish received outside Ready state")
		}
		entries := make([]bus.Message, len(p.Entries))
		for i, e := range p.Entries {
			entries[i] = bus.Message{Content: e.Content, Headers: e.Headers}
		}
		if err := app.Publish(ctx, p.TopicID, entries, p.PersistImmediately); err != nil {
			return err
		}
		return session.Send(&packets.PublishResponsePacket{RequestID: p.RequestID})

	case *packets.SubscribePacket:
		if session.State() != bus.StateReady {
			return fmt.Errorf("subscribe received outside Ready state")
		}
		subscriberID := uuid.NewString()
		kind := bus.QueueKindFromWire(uint8(p.Kind))
		return app.Subscribe(ctx, p.TopicID, p.QueueID, kind, session, subscriberID)

	case *packets.ConfirmDeliveryPacket:
		if session.State() != bus.StateReady {
			return fmt.Errorf("confirm delivery received outside Ready state")
		}
		positive := expandIntervals(p.Positive)
		negative := expandIntervals(p.Negative)
		return app.Confirm(ctx, session, p.SubscriberID, positive, negative)

	case *packets.RejectPacket:
		// clients don't send this in practice; tolerate it as a no-op.
		return nil

	default:
		return fmt.Errorf("unexpected packet type %d in state %v", pkt.Type(), session.State())
	}
}

func expandIntervals(intervals []packets.Interval) []int64 {
	var ids []int64
	for _, iv := range intervals {
		for id := iv.From; id <= iv.To; id++ {
			ids = append(ids, id)
		}
	}
	return ids
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

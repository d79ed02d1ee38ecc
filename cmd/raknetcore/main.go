// Command raknetcore is a minimal demo server built on this module's
// transport core: it binds a UDP socket, treats every packet whose leading
// byte is a FrameSet/Ack/Nack pack-id as a connected packet for the
// dispatcher, and echoes back whatever application bytes it receives. The
// OPEN_CONNECTION handshake, fragment reassembly, and any real application
// protocol are left to the collaborator interfaces this core defines but
// does not implement.
package main

import (
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	raknetcore "github.com/ventosilenzioso/raknet-core"
	"github.com/ventosilenzioso/raknet-core/pkg/logger"
	"github.com/ventosilenzioso/raknet-core/pkg/raknet"
	"github.com/ventosilenzioso/raknet-core/source/dispatch"
)

const version = "1.0.0"

// demoServerGUID stands in for whatever identity assignment a real
// deployment uses; this demo only ever runs one server instance.
const demoServerGUID uint64 = 1

func main() {
	logger.Banner("RakNet Transport Core", version)

	cfg := raknetcore.NewConfig(
		raknetcore.WithMTU(1200),
		raknetcore.WithSendBufCap(4096),
		raknetcore.WithGUIDs(0, demoServerGUID),
	)
	host := "0.0.0.0"
	port := 19132

	addr := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		logger.Fatal("failed to bind UDP socket: %v", err)
	}
	logger.Success("listening on %s:%d", host, port)

	role := cfg.ServerRoleFor()
	offline := newDemoOffline()
	guids := newGUIDRegistry()

	dsp := dispatch.New(conn, role, cfg, offline, demoEncoder{}, demoDecoder{}, newDemoOnlineFactory())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go readLoop(conn, cfg, dsp, guids)

	sig := <-sigCh
	logger.Warn("received signal: %v", sig)
	logger.Info("shutting down gracefully...")

	conn.Close()
	if err := dsp.Close(); err != nil {
		logger.Error("error during pipeline shutdown: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	logger.Success("server stopped")
}

func readLoop(conn *net.UDPConn, cfg raknetcore.Config, dsp *dispatch.Dispatcher, guids *guidRegistry) {
	buf := make([]byte, 2048)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		data := append([]byte(nil), buf[:n]...)
		if !isConnectedPack(data) {
			logger.Debug("[offline] %d bytes from %s (handshake out of scope for this demo)", n, from)
			continue
		}

		peer := raknetcore.Peer{Addr: from, GUID: guids.forAddr(from), MTU: cfg.MTU}
		if err := dsp.HandlePacket(data, peer); err != nil {
			logger.Warn("dropped packet from %s: %v", from, err)
		}
	}
}

func isConnectedPack(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	switch raknet.PackID(data[0]) {
	case raknet.PackIDFrameSet, raknet.PackIDAck, raknet.PackIDNack:
		return true
	default:
		return false
	}
}

// guidRegistry stands in for the GUID exchange a real OPEN_CONNECTION
// handshake would perform; this demo just mints one per never-seen address.
type guidRegistry struct {
	mu      sync.Mutex
	next    uint64
	guidFor map[string]uint64
}

func newGUIDRegistry() *guidRegistry {
	return &guidRegistry{guidFor: make(map[string]uint64)}
}

func (g *guidRegistry) forAddr(addr *net.UDPAddr) uint64 {
	key := addr.String()
	g.mu.Lock()
	defer g.mu.Unlock()
	if guid, ok := g.guidFor[key]; ok {
		return guid
	}
	g.next++
	g.guidFor[key] = g.next
	return g.next
}

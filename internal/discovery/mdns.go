// ABOUTME: mDNS discovery of audiosock playback endpoints
// ABOUTME: Playback listeners advertise themselves; capture clients browse for them
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Resonate-Protocol/audiosock/pkg/transport"
	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// ServiceType is the DNS-SD service advertised by playback listeners
const ServiceType = "_audiosock._tcp"

const queryTimeout = 3 * time.Second

// Config holds discovery configuration
type Config struct {
	// Name is the instance name to advertise
	Name string
	// Port is the advertised listening port
	Port int
	// Transport is announced in the TXT record so browsers dial correctly
	Transport transport.Kind

	Logger *zap.Logger
}

// Peer describes a discovered playback endpoint
type Peer struct {
	Name      string
	Host      string
	Port      int
	Transport transport.Kind
}

// Addr returns host:port suitable for transport.Dial
func (p Peer) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	peers  chan Peer
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Transport == "" {
		config.Transport = transport.KindTCP
	}

	return &Manager{
		config: config,
		log:    config.Logger.Named("discovery"),
		ctx:    ctx,
		cancel: cancel,
		peers:  make(chan Peer, 10),
	}
}

// Advertise announces this endpoint until Stop
func (m *Manager) Advertise() error {
	ips, err := localIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.Name,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		txtRecords(m.config.Transport),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.Info("advertising",
		zap.String("name", m.config.Name),
		zap.Int("port", m.config.Port),
		zap.Stringer("transport", m.config.Transport))

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse queries for playback endpoints until Stop, delivering them on Peers
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for m.ctx.Err() == nil {
		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				peer, ok := peerFromEntry(entry)
				if !ok {
					continue
				}
				m.log.Info("discovered peer",
					zap.String("name", peer.Name),
					zap.String("addr", peer.Addr()),
					zap.Stringer("transport", peer.Transport))

				select {
				case m.peers <- peer:
				case <-m.ctx.Done():
				}
			}
		}()

		params := &mdns.QueryParam{
			Service:     ServiceType,
			Domain:      "local",
			Timeout:     queryTimeout,
			Entries:     entries,
			DisableIPv6: true,
		}
		if err := mdns.Query(params); err != nil {
			m.log.Warn("mdns query failed", zap.Error(err))
		}
		close(entries)
		<-done

		select {
		case <-m.ctx.Done():
		case <-time.After(time.Second):
		}
	}
}

// Peers returns the channel of discovered endpoints
func (m *Manager) Peers() <-chan Peer {
	return m.peers
}

// Stop ends advertisement and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// Find browses until the first endpoint appears or ctx ends
func Find(ctx context.Context, logger *zap.Logger) (Peer, error) {
	m := NewManager(Config{Logger: logger})
	defer m.Stop()
	m.Browse()

	select {
	case p := <-m.Peers():
		return p, nil
	case <-ctx.Done():
		return Peer{}, fmt.Errorf("no %s service found: %w", ServiceType, ctx.Err())
	}
}

func txtRecords(kind transport.Kind) []string {
	txt := []string{"transport=" + string(kind)}
	if kind == transport.KindWebSocket {
		txt = append(txt, "path="+transport.Path)
	}
	return txt
}

func peerFromEntry(e *mdns.ServiceEntry) (Peer, bool) {
	if e == nil || e.Port <= 0 {
		return Peer{}, false
	}

	var host string
	switch {
	case e.AddrV4 != nil:
		host = e.AddrV4.String()
	case e.AddrV6 != nil:
		host = e.AddrV6.String()
	default:
		return Peer{}, false
	}

	peer := Peer{
		Name:      strings.TrimSuffix(e.Name, "."+ServiceType+".local."),
		Host:      host,
		Port:      e.Port,
		Transport: transport.KindTCP,
	}
	for _, field := range e.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key != "transport" {
			continue
		}
		kind, err := transport.ParseKind(value)
		if err != nil {
			return Peer{}, false
		}
		peer.Transport = kind
	}
	return peer, true
}

// localIPs returns the IPv4 addresses of up, non-loopback interfaces
func localIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	return ips, nil
}

// Package visualiser streams detections to viewers over gRPC.
//
// A Publisher is a pipeline.DetectionSink: the detector hands it every
// frame, it encodes the frame once and fans it out to connected clients.
// Slow clients lose frames; the detector is never blocked.
package visualiser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/irtrack/internal/optical"
	"github.com/banshee-data/irtrack/internal/optical/pipeline"
)

const logs optical.Scope = "visualiser"

// ErrTooManyClients is returned when MaxClients streams are already open.
var ErrTooManyClients = errors.New("too many streaming clients")

// Config holds configuration for the visualiser gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50061")
	ListenAddr string

	// MaxClients is the maximum number of concurrent streaming clients
	MaxClients int

	// QueueSize is the number of encoded frames buffered ahead of the
	// broadcast loop.
	QueueSize int

	// ClientBuffer is the per-client frame buffer.
	ClientBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50061",
		MaxClients:   5,
		QueueSize:    64,
		ClientBuffer: 8,
	}
}

// Publisher manages the gRPC server and frame streaming.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	frameChan chan *structpb.Struct
	clients   map[uint64]*clientStream
	clientsMu sync.RWMutex
	nextID    uint64

	frameCount    atomic.Uint64
	droppedFrames atomic.Uint64
	encodeErrors  atomic.Uint64
	clientCount   atomic.Int32

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type clientStream struct {
	id      uint64
	frameCh chan *structpb.Struct
}

// NewPublisher creates a new Publisher with the given configuration.
func NewPublisher(cfg Config) *Publisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = DefaultConfig().ClientBuffer
	}
	return &Publisher{
		config:    cfg,
		frameChan: make(chan *structpb.Struct, cfg.QueueSize),
		clients:   make(map[uint64]*clientStream),
		stopCh:    make(chan struct{}),
	}
}

// Start binds ListenAddr and serves the streaming service in the background.
func (p *Publisher) Start() error {
	if p.running.Load() {
		return fmt.Errorf("publisher already running")
	}
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	p.listener = lis
	p.server = grpc.NewServer()
	RegisterVisualiserServer(p.server, NewServer(p))

	p.running.Store(true)

	p.wg.Add(1)
	go p.broadcastLoop()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		logs.Diagf("listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			logs.Opsf("gRPC server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (p *Publisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Stop closes every stream and stops the server.
func (p *Publisher) Stop() {
	if !p.running.Load() {
		return
	}
	p.running.Store(false)
	close(p.stopCh)

	if p.server != nil {
		p.server.Stop()
	}
	p.wg.Wait()
	logs.Diagf("stopped")
}

// PublishDetection encodes fr and queues it for every client. It never
// blocks: when the queue is full the frame is dropped and counted.
func (p *Publisher) PublishDetection(_ context.Context, fr *pipeline.FrameResult) error {
	if !p.running.Load() {
		return nil
	}
	msg, err := EncodeFrame(fr)
	if err != nil {
		p.encodeErrors.Add(1)
		return fmt.Errorf("encode frame %d: %w", fr.Index, err)
	}
	select {
	case p.frameChan <- msg:
		p.frameCount.Add(1)
	default:
		dropped := p.droppedFrames.Add(1)
		logs.Framef(fr.Index, "dropped, queue full (total dropped: %d)", dropped)
	}
	return nil
}

// broadcastLoop distributes frames to all connected clients.
func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case frame := <-p.frameChan:
			p.clientsMu.RLock()
			for _, client := range p.clients {
				select {
				case client.frameCh <- frame:
				default:
					// slow client
					p.droppedFrames.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

func (p *Publisher) addClient() (*clientStream, error) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if p.config.MaxClients > 0 && len(p.clients) >= p.config.MaxClients {
		return nil, ErrTooManyClients
	}
	p.nextID++
	client := &clientStream{id: p.nextID, frameCh: make(chan *structpb.Struct, p.config.ClientBuffer)}
	p.clients[client.id] = client
	n := p.clientCount.Add(1)
	logs.Diagf("client %d connected (total: %d)", client.id, n)
	return client, nil
}

func (p *Publisher) removeClient(id uint64) {
	p.clientsMu.Lock()
	_, ok := p.clients[id]
	delete(p.clients, id)
	p.clientsMu.Unlock()
	if ok {
		n := p.clientCount.Add(-1)
		logs.Diagf("client %d disconnected (remaining: %d)", id, n)
	}
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		FrameCount:    p.frameCount.Load(),
		DroppedFrames: p.droppedFrames.Load(),
		EncodeErrors:  p.encodeErrors.Load(),
		ClientCount:   p.clientCount.Load(),
		Running:       p.running.Load(),
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	FrameCount    uint64
	DroppedFrames uint64
	EncodeErrors  uint64
	ClientCount   int32
	Running       bool
}

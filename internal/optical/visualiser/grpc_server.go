package visualiser

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service and method names on the wire.
const (
	ServiceName          = "irtrack.Visualiser"
	streamDetectionsPath = "/" + ServiceName + "/StreamDetections"
)

// VisualiserServer is the server API of the streaming service.
type VisualiserServer interface {
	StreamDetections(*emptypb.Empty, DetectionStream) error
}

// DetectionStream is the server side of one StreamDetections call.
type DetectionStream interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VisualiserServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamDetections",
			Handler:       streamDetectionsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "irtrack/visualiser",
}

func streamDetectionsHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(emptypb.Empty)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(VisualiserServer).StreamDetections(req, &detectionServerStream{stream})
}

type detectionServerStream struct {
	grpc.ServerStream
}

func (s *detectionServerStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

// RegisterVisualiserServer registers srv on s.
func RegisterVisualiserServer(s grpc.ServiceRegistrar, srv VisualiserServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Ensure Server implements the service.
var _ VisualiserServer = (*Server)(nil)

// Server implements VisualiserServer on top of a Publisher.
type Server struct {
	publisher *Publisher
}

// NewServer creates a new gRPC server.
func NewServer(publisher *Publisher) *Server {
	return &Server{publisher: publisher}
}

// StreamDetections sends every frame published after the call starts until
// the client goes away or the publisher stops.
func (s *Server) StreamDetections(_ *emptypb.Empty, stream DetectionStream) error {
	client, err := s.publisher.addClient()
	if errors.Is(err, ErrTooManyClients) {
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	if err != nil {
		return err
	}
	defer s.publisher.removeClient(client.id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.publisher.stopCh:
			return status.Error(codes.Unavailable, "publisher stopped")
		case frame := <-client.frameCh:
			if err := stream.Send(frame); err != nil {
				return err
			}
		}
	}
}

// DetectionClient is the client side of one StreamDetections call.
type DetectionClient interface {
	Recv() (*structpb.Struct, error)
}

type detectionClientStream struct {
	grpc.ClientStream
}

func (c *detectionClientStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// StreamDetections opens a detection stream on conn.
func StreamDetections(ctx context.Context, conn grpc.ClientConnInterface, opts ...grpc.CallOption) (DetectionClient, error) {
	stream, err := conn.NewStream(ctx, &serviceDesc.Streams[0], streamDetectionsPath, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &detectionClientStream{stream}, nil
}

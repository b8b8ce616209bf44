package transport

import (
	"context"

	"go.etcd.io/raft/v3/raftpb"
	"google.golang.org/grpc"
)

const raftTransportService = "spotmatch.RaftTransport"
const postDataMethod = "/spotmatch.RaftTransport/PostData"

// PostDataRequest carries one or more marshaled raft messages bound for this
// node, mirroring the original's PostDataRequest.data: repeated bytes.
type PostDataRequest struct {
	Data [][]byte
}

// PostDataResponse is presently empty; it exists so the RPC has a reply
// envelope to extend later (e.g. an accepted/rejected flag).
type PostDataResponse struct{}

// MessageSink receives a raft message decoded from an inbound PostData call.
// *raftnode.Node satisfies this via its Step method.
type MessageSink interface {
	Step(msg raftpb.Message)
}

// raftTransportServer adapts a MessageSink to the manually-declared gRPC
// service below.
type raftTransportServer struct {
	sink MessageSink
}

// Step forwards msg to the wrapped sink, so that raftTransportServer itself
// satisfies the MessageSink HandlerType grpc.Server checks on registration.
func (s *raftTransportServer) Step(msg raftpb.Message) { s.sink.Step(msg) }

func (s *raftTransportServer) postData(ctx context.Context, req *PostDataRequest) (*PostDataResponse, error) {
	for _, raw := range req.Data {
		var msg raftpb.Message
		if err := msg.Unmarshal(raw); err != nil {
			return nil, err
		}
		s.sink.Step(msg)
	}
	return &PostDataResponse{}, nil
}

func postDataHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(PostDataRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*raftTransportServer).postData(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: postDataMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*raftTransportServer).postData(ctx, req.(*PostDataRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// serviceDesc is the hand-declared equivalent of what protoc-gen-go-grpc
// would emit for a single-method PostData service.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: raftTransportService,
	HandlerType: (*MessageSink)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PostData",
			Handler:    postDataHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "spotmatch/raft_transport.proto",
}

// RegisterRaftTransportServer wires sink into s as the target of every
// inbound PostData call.
func RegisterRaftTransportServer(s *grpc.Server, sink MessageSink) {
	s.RegisterService(&serviceDesc, &raftTransportServer{sink: sink})
}

package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name of the adapter.
const ServiceName = "identity.v1.IdentityAdapter"

// Method names of the adapter service.
const (
	MethodFind              = "Find"
	MethodInsert            = "Insert"
	MethodUpdate            = "Update"
	MethodRemove            = "Remove"
	MethodSerialize         = "Serialize"
	MethodDeserialize       = "Deserialize"
	MethodSendSignInEmail   = "SendSignInEmail"
	MethodRequestSignIn     = "RequestSignIn"
	MethodRedeemSignIn      = "RedeemSignIn"
	MethodIssueSessionToken = "IssueSessionToken"
)

// IdentityAdapterServer is the server API of the adapter. Every message is a
// google.protobuf.Struct carrying a user document or its arguments.
type IdentityAdapterServer interface {
	Find(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Insert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Remove(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Serialize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Deserialize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendSignInEmail(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestSignIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RedeemSignIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IssueSessionToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(IdentityAdapterServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(IdentityAdapterServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(IdentityAdapterServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// FullMethod returns the "/service/method" path of an adapter method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// IdentityAdapterServiceDesc describes the adapter service for grpc.Server.RegisterService.
var IdentityAdapterServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IdentityAdapterServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodFind, IdentityAdapterServer.Find),
		unaryMethod(MethodInsert, IdentityAdapterServer.Insert),
		unaryMethod(MethodUpdate, IdentityAdapterServer.Update),
		unaryMethod(MethodRemove, IdentityAdapterServer.Remove),
		unaryMethod(MethodSerialize, IdentityAdapterServer.Serialize),
		unaryMethod(MethodDeserialize, IdentityAdapterServer.Deserialize),
		unaryMethod(MethodSendSignInEmail, IdentityAdapterServer.SendSignInEmail),
		unaryMethod(MethodRequestSignIn, IdentityAdapterServer.RequestSignIn),
		unaryMethod(MethodRedeemSignIn, IdentityAdapterServer.RedeemSignIn),
		unaryMethod(MethodIssueSessionToken, IdentityAdapterServer.IssueSessionToken),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "identity/v1/identity.proto",
}

// RegisterIdentityAdapterServer registers srv on s.
func RegisterIdentityAdapterServer(s grpc.ServiceRegistrar, srv IdentityAdapterServer) {
	s.RegisterService(&IdentityAdapterServiceDesc, srv)
}

// IdentityAdapterClient calls the adapter over a client connection.
type IdentityAdapterClient struct {
	cc grpc.ClientConnInterface
}

// NewIdentityAdapterClient creates a client on cc.
func NewIdentityAdapterClient(cc grpc.ClientConnInterface) *IdentityAdapterClient {
	return &IdentityAdapterClient{cc: cc}
}

// Call invokes method with in and returns the response document.
func (c *IdentityAdapterClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

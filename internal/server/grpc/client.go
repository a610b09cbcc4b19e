package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/userdir/internal/convert"
)

// Client calls userdir.v1.Directory.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Get(ctx context.Context, key string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, MethodGet, convert.KeyRequest(key), out, opts...)
	return out, err
}

func (c *Client) LookupByExternalID(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, MethodLookupByExternalID, convert.ExternalIDRequest(id), out, opts...)
	return out, err
}

func (c *Client) Create(ctx context.Context, rec *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, MethodCreate, rec, out, opts...)
	return out, err
}

func (c *Client) Update(ctx context.Context, rec *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, MethodUpdate, rec, out, opts...)
	return out, err
}

func (c *Client) Delete(ctx context.Context, key string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, MethodDelete, convert.KeyRequest(key), new(emptypb.Empty), opts...)
}

// BearerCreds attaches "authorization: Bearer <token>" to every call.
type BearerCreds struct {
	Token    string
	Insecure bool // allow plaintext transports (local development)
}

func (b BearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.Token}, nil
}

func (b BearerCreds) RequireTransportSecurity() bool { return !b.Insecure }

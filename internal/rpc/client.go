package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls gl.v1.GeneralLedger on behalf of one tenant and actor.
type Client struct {
	cc       grpc.ClientConnInterface
	tenantID string
	actor    string
}

// NewClient creates a Client over cc.
func NewClient(cc grpc.ClientConnInterface, tenantID, actor string) *Client {
	return &Client{cc: cc, tenantID: tenantID, actor: actor}
}

// Call invokes method with req encoded as a Struct and decodes the response
// into out. req and out may be nil.
func (c *Client) Call(ctx context.Context, method string, req, out any, opts ...grpc.CallOption) error {
	in, err := encode(req)
	if err != nil {
		return err
	}
	ctx = metadata.AppendToOutgoingContext(ctx, TenantHeader, c.tenantID, ActorHeader, c.actor)

	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, resp, opts...); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := protojson.Marshal(resp)
	if err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

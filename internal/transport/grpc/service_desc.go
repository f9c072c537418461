package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const AvailabilityServiceName = "studio.v1.AvailabilityService"

// AvailabilityServiceServer carries JSON-shaped payloads as
// google.protobuf.Struct, matching the HTTP bodies field for field.
type AvailabilityServiceServer interface {
	CheckRepeat(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckAvailability(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BusyBlocks(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReserveRepeated(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var availabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: AvailabilityServiceName,
	HandlerType: (*AvailabilityServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckRepeat", Handler: unaryHandler("CheckRepeat", AvailabilityServiceServer.CheckRepeat)},
		{MethodName: "CheckAvailability", Handler: unaryHandler("CheckAvailability", AvailabilityServiceServer.CheckAvailability)},
		{MethodName: "BusyBlocks", Handler: unaryHandler("BusyBlocks", AvailabilityServiceServer.BusyBlocks)},
		{MethodName: "ReserveRepeated", Handler: unaryHandler("ReserveRepeated", AvailabilityServiceServer.ReserveRepeated)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "studio/v1/availability.proto",
}

func RegisterAvailabilityServiceServer(s grpc.ServiceRegistrar, srv AvailabilityServiceServer) {
	s.RegisterService(&availabilityServiceDesc, srv)
}

func FullMethod(method string) string {
	return "/" + AvailabilityServiceName + "/" + method
}

type unaryCall func(AvailabilityServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	info := &grpc.UnaryServerInfo{FullMethod: FullMethod(method)}
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(AvailabilityServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		withServer := *info
		withServer.Server = srv
		return interceptor(ctx, in, &withServer, func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		})
	}
}

func decodeStruct(in *structpb.Struct, dst any) error {
	if in == nil {
		return fmt.Errorf("request is required")
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("request is not valid JSON: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%s has the wrong type", typeErr.Field)
		}
		return fmt.Errorf("request has an unexpected shape")
	}
	return nil
}

func encodeStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

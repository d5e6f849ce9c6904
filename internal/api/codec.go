package api

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/victornm/quizflash/internal/errors"
)

// Messages travel as google.protobuf.Struct and are mapped onto the JSON
// tagged request and response types of this package.

func decodeStruct(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request: %v", err), errors.WithCause(err))
	}
	return nil
}

func encodeStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}

	s := new(structpb.Struct)
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return s, nil
}

func unary[Req, Resp any](name string, call func(a *API, ctx context.Context, req Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}

			handler := func(ctx context.Context, in any) (any, error) {
				var req Req
				if err := decodeStruct(in.(*structpb.Struct), &req); err != nil {
					return nil, err
				}

				resp, err := call(srv.(*API), ctx, req)
				if err != nil {
					return nil, errors.Convert(err)
				}

				return encodeStruct(resp)
			}

			if interceptor == nil {
				return handler(ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fmt.Sprintf("/%s/%s", ServiceName, name),
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Invoke calls method on a StudyService connection.
func Invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req Req) (*Resp, error) {
	in, err := encodeStruct(req)
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, fmt.Sprintf("/%s/%s", ServiceName, method), in, out); err != nil {
		return nil, err
	}

	b, err := protojson.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal struct: %w", err)
	}

	resp := new(Resp)
	if err := json.Unmarshal(b, resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return resp, nil
}

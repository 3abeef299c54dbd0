package rpc

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	_ "google.golang.org/protobuf/types/known/emptypb"
	_ "google.golang.org/protobuf/types/known/structpb"
)

const (
	protoFile   = "acconnect/v1/device.proto"
	protoPkg    = "acconnect.v1"
	ServiceName = protoPkg + ".DeviceService"

	typeEmpty  = ".google.protobuf.Empty"
	typeStruct = ".google.protobuf.Struct"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterDescriptor adds the DeviceService file descriptor to the global
// registry so server reflection and descriptor-driven clients can see it.
// Requests and responses are well-known types, so no generated code exists.
func RegisterDescriptor() error {
	registerOnce.Do(func() {
		if _, err := protoregistry.GlobalFiles.FindFileByPath(protoFile); err == nil {
			return
		}
		fd, err := protodesc.NewFile(fileDescriptorProto(), protoregistry.GlobalFiles)
		if err != nil {
			registerErr = fmt.Errorf("build descriptor: %w", err)
			return
		}
		if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
			registerErr = fmt.Errorf("register descriptor: %w", err)
		}
	})
	return registerErr
}

// ServiceDescriptor returns the registered DeviceService descriptor.
func ServiceDescriptor() (protoreflect.ServiceDescriptor, error) {
	if err := RegisterDescriptor(); err != nil {
		return nil, err
	}
	desc, err := protoregistry.GlobalFiles.FindDescriptorByName(ServiceName)
	if err != nil {
		return nil, err
	}
	svc, ok := desc.(protoreflect.ServiceDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not a service", ServiceName)
	}
	return svc, nil
}

func fileDescriptorProto() *descriptorpb.FileDescriptorProto {
	method := func(name, in, out string) *descriptorpb.MethodDescriptorProto {
		return &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(name),
			InputType:  proto.String(in),
			OutputType: proto.String(out),
		}
	}
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(protoFile),
		Package: proto.String(protoPkg),
		Syntax:  proto.String("proto3"),
		Dependency: []string{
			"google/protobuf/empty.proto",
			"google/protobuf/struct.proto",
		},
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/joshp123/acconnect/internal/rpc"),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("DeviceService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method(methodListDevices, typeEmpty, typeStruct),
				method(methodGetDevice, typeStruct, typeStruct),
				method(methodSetDevice, typeStruct, typeEmpty),
				method(methodHealth, typeEmpty, typeStruct),
			},
		}},
	}
}

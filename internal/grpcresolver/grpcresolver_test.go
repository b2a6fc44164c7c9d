package grpcresolver

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	executor "github.com/hanpama/gqlcore/internal/executor"
	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
	validator "github.com/hanpama/gqlcore/internal/validator"
)

// users.proto:
//
//	enum Role { ROLE_UNSPECIFIED = 0; ADMIN = 1; }
//	message User { string id = 1; string name = 2; Role role = 3; repeated string tags = 4; }
//	message Pet { string name = 1; }
//	message Node { oneof value { User user = 1; Pet pet = 2; } }
//	message GetUserRequest { string id = 1; int32 limit = 2; }
//	message GetUserResponse { User data = 1; }
//	message ListFriendsRequest { string user_id = 1; int32 first = 2; }
//	message ListFriendsResponse { repeated User data = 1; }
//	service Users {
//	  rpc GetUser(GetUserRequest) returns (GetUserResponse);
//	  rpc ListFriends(ListFriendsRequest) returns (ListFriendsResponse);
//	  rpc LookupUser(GetUserRequest) returns (User);
//	  rpc GetNode(GetUserRequest) returns (Node);
//	}
func usersFile(t *testing.T) protoreflect.FileDescriptor {
	t.Helper()
	optional := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()
	repeated := descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	field := func(name, jsonName string, number int32, label *descriptorpb.FieldDescriptorProto_Label, typ descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
		f := &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(name),
			JsonName: proto.String(jsonName),
			Number:   proto.Int32(number),
			Label:    label,
			Type:     typ.Enum(),
		}
		if typeName != "" {
			f.TypeName = proto.String(typeName)
		}
		return f
	}
	str := descriptorpb.FieldDescriptorProto_TYPE_STRING
	i32 := descriptorpb.FieldDescriptorProto_TYPE_INT32
	msg := descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	enum := descriptorpb.FieldDescriptorProto_TYPE_ENUM
	method := func(name, in, out string) *descriptorpb.MethodDescriptorProto {
		return &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(name),
			InputType:  proto.String(".users." + in),
			OutputType: proto.String(".users." + out),
		}
	}

	userField := field("user", "user", 1, optional, msg, ".users.User")
	userField.OneofIndex = proto.Int32(0)
	petField := field("pet", "pet", 2, optional, msg, ".users.Pet")
	petField.OneofIndex = proto.Int32(0)

	file := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("users.proto"),
		Package: proto.String("users"),
		Syntax:  proto.String("proto3"),
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("Role"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("ROLE_UNSPECIFIED"), Number: proto.Int32(0)},
				{Name: proto.String("ADMIN"), Number: proto.Int32(1)},
			},
		}},
		MessageType: []*descriptorpb.DescriptorProto{
			{Name: proto.String("User"), Field: []*descriptorpb.FieldDescriptorProto{
				field("id", "id", 1, optional, str, ""),
				field("name", "name", 2, optional, str, ""),
				field("role", "role", 3, optional, enum, ".users.Role"),
				field("tags", "tags", 4, repeated, str, ""),
			}},
			{Name: proto.String("Pet"), Field: []*descriptorpb.FieldDescriptorProto{
				field("name", "name", 1, optional, str, ""),
			}},
			{
				Name:      proto.String("Node"),
				Field:     []*descriptorpb.FieldDescriptorProto{userField, petField},
				OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("value")}},
			},
			{Name: proto.String("GetUserRequest"), Field: []*descriptorpb.FieldDescriptorProto{
				field("id", "id", 1, optional, str, ""),
				field("limit", "limit", 2, optional, i32, ""),
			}},
			{Name: proto.String("GetUserResponse"), Field: []*descriptorpb.FieldDescriptorProto{
				field("data", "data", 1, optional, msg, ".users.User"),
			}},
			{Name: proto.String("ListFriendsRequest"), Field: []*descriptorpb.FieldDescriptorProto{
				field("user_id", "userId", 1, optional, str, ""),
				field("first", "first", 2, optional, i32, ""),
			}},
			{Name: proto.String("ListFriendsResponse"), Field: []*descriptorpb.FieldDescriptorProto{
				field("data", "data", 1, repeated, msg, ".users.User"),
			}},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("Users"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("GetUser", "GetUserRequest", "GetUserResponse"),
				method("ListFriends", "ListFriendsRequest", "ListFriendsResponse"),
				method("LookupUser", "GetUserRequest", "User"),
				method("GetNode", "GetUserRequest", "Node"),
			},
		}},
	}
	files, err := protodesc.NewFiles(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{file}})
	require.NoError(t, err)
	fd, err := files.FindFileByPath("users.proto")
	require.NoError(t, err)
	return fd
}

func methodOf(fd protoreflect.FileDescriptor, name string) protoreflect.MethodDescriptor {
	return fd.Services().ByName("Users").Methods().ByName(protoreflect.Name(name))
}

// newMessage builds a message of the named type from field values.
func newMessage(t *testing.T, fd protoreflect.FileDescriptor, name string, values map[string]any) protoreflect.Message {
	t.Helper()
	m := dynamicpb.NewMessage(fd.Messages().ByName(protoreflect.Name(name)))
	require.NoError(t, setFields(m, values))
	return m
}

const testSDL = `
type Query {
  user(id: ID!): User
  lookup(id: ID!): User
}

type User {
  id: ID!
  name: String
  role: Role
  tags: [String!]!
  friends(first: Int): [User!]!
}

enum Role { ADMIN ROLE_UNSPECIFIED }
`

func execute(t *testing.T, sch *schema.Schema, query string) *executor.ExecutionResult {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	plan, errs := validator.Validate(sch, doc, "", nil)
	require.Empty(t, errs)
	return executor.NewExecutor(executor.NewRuntime(sch), sch).Execute(context.Background(), plan, nil)
}

func TestField_ResolvesThroughExecutor(t *testing.T) {
	fd := usersFile(t)
	ann := newMessage(t, fd, "User", map[string]any{"id": "1", "name": "Ann", "role": "ADMIN", "tags": []any{"a", "b"}})
	bob := newMessage(t, fd, "User", map[string]any{"id": "2", "name": "Bob"})
	tr := NewMockTransport(
		newMessage(t, fd, "GetUserResponse", map[string]any{"data": ann}),
		newMessage(t, fd, "ListFriendsResponse", map[string]any{"data": []any{bob}}),
	)

	sch, err := schema.BuildFromSDL(testSDL)
	require.NoError(t, err)
	require.NoError(t, sch.SetResolver("Query", "user", Field(methodOf(fd, "GetUser"), tr)))
	require.NoError(t, sch.SetResolver("User", "friends", Field(methodOf(fd, "ListFriends"), tr, WithSourceField("userId", "id"))))

	got := execute(t, sch, `{ user(id: "1") { name role tags friends(first: 2) { id name role } } }`)
	require.Empty(t, got.Errors)

	want := map[string]any{"user": map[string]any{
		"name": "Ann",
		"role": "ADMIN",
		"tags": []any{"a", "b"},
		"friends": []any{
			map[string]any{"id": "2", "name": "Bob", "role": "ROLE_UNSPECIFIED"},
		},
	}}
	if diff := cmp.Diff(want, got.Data.(executor.Object).Map()); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}

	calls := tr.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, "/users.Users/GetUser", calls[0].FullMethod)
	require.Equal(t, "/users.Users/ListFriends", calls[1].FullMethod)

	wantRequests := []proto.Message{
		newMessage(t, fd, "GetUserRequest", map[string]any{"id": "1"}).Interface(),
		newMessage(t, fd, "ListFriendsRequest", map[string]any{"userId": "1", "first": 2}).Interface(),
	}
	gotRequests := []proto.Message{calls[0].Request, calls[1].Request}
	if diff := cmp.Diff(wantRequests, gotRequests, protocmp.Transform()); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestField_ResponseShapes(t *testing.T) {
	fd := usersFile(t)
	ann := newMessage(t, fd, "User", map[string]any{"name": "Ann"})
	pet := newMessage(t, fd, "Pet", map[string]any{"name": "Rex"})

	tests := []struct {
		name   string
		method string
		resp   protoreflect.Message
		opts   []Option
		want   func(t *testing.T, got any)
	}{
		{
			name:   "Unset data is null",
			method: "GetUser",
			resp:   newMessage(t, fd, "GetUserResponse", nil),
			want:   func(t *testing.T, got any) { require.Nil(t, got) },
		},
		{
			name:   "Message without data field is returned whole",
			method: "LookupUser",
			resp:   ann,
			want: func(t *testing.T, got any) {
				require.Equal(t, "Ann", got.(protoreflect.Message).Get(ann.Descriptor().Fields().ByName("name")).String())
			},
		},
		{
			name:   "Whole response",
			method: "GetUser",
			resp:   newMessage(t, fd, "GetUserResponse", map[string]any{"data": ann}),
			opts:   []Option{WithWholeResponse()},
			want: func(t *testing.T, got any) {
				require.Equal(t, protoreflect.Name("GetUserResponse"), got.(protoreflect.Message).Descriptor().Name())
			},
		},
		{
			name:   "Union envelope is unwrapped",
			method: "GetNode",
			resp:   newMessage(t, fd, "Node", map[string]any{"pet": pet}),
			want: func(t *testing.T, got any) {
				require.Equal(t, protoreflect.Name("Pet"), got.(protoreflect.Message).Descriptor().Name())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolve := Field(methodOf(fd, tt.method), NewMockTransport(tt.resp), tt.opts...)
			got, err := resolve(context.Background(), schema.ResolveParams{Args: map[string]any{"id": "1"}})
			require.NoError(t, err)
			tt.want(t, got)
		})
	}
}

func TestField_SkipNullKeys(t *testing.T) {
	fd := usersFile(t)
	tr := NewMockTransport()
	resolve := Field(methodOf(fd, "ListFriends"), tr, WithSourceField("userId", "id"), WithSkipNullKeys())

	got, err := resolve(context.Background(), schema.ResolveParams{Source: map[string]any{"id": nil}})
	require.NoError(t, err)
	require.Nil(t, got)
	require.Empty(t, tr.Calls())
}

func TestField_InvalidArgument(t *testing.T) {
	fd := usersFile(t)
	tr := NewMockTransport()
	resolve := Field(methodOf(fd, "GetUser"), tr)

	_, err := resolve(context.Background(), schema.ResolveParams{Args: map[string]any{"limit": "ten"}})
	require.ErrorContains(t, err, "/users.Users/GetUser: field limit")
	require.Empty(t, tr.Calls())
}

func TestError_PassesThrough(t *testing.T) {
	plain := errors.New("dial failed")
	located := &gqlerror.Error{Message: "already located"}

	require.NoError(t, Error(nil))
	require.Same(t, plain, Error(plain))
	require.Same(t, located, Error(located))
}

// Pattern: Result comparison
func TestError_StatusCodes(t *testing.T) {
	tests := []struct {
		code codes.Code
		want *gqlerror.Error
	}{
		{
			code: codes.NotFound,
			want: &gqlerror.Error{Message: "failed", Extensions: map[string]any{"code": "NOT_FOUND", "grpcStatus": "NotFound"}},
		},
		{
			code: codes.PermissionDenied,
			want: &gqlerror.Error{Message: "failed", Extensions: map[string]any{"code": "FORBIDDEN", "grpcStatus": "PermissionDenied"}},
		},
		{
			code: codes.InvalidArgument,
			want: &gqlerror.Error{Message: "failed", Extensions: map[string]any{"code": "BAD_USER_INPUT", "grpcStatus": "InvalidArgument"}},
		},
		{
			code: codes.Code(99),
			want: &gqlerror.Error{Message: "failed", Extensions: map[string]any{"code": "INTERNAL_SERVER_ERROR", "grpcStatus": "Code(99)"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			cause := status.Error(tt.code, "failed")
			got := Error(cause)
			require.IsType(t, &gqlerror.Error{}, got)
			if diff := cmp.Diff(tt.want, got.(*gqlerror.Error), cmpopts.IgnoreFields(gqlerror.Error{}, "Err")); diff != "" {
				t.Fatalf("Error mismatch (-want +got):\n%s", diff)
			}
			require.ErrorIs(t, got, cause)
		})
	}
}

func TestField_StatusErrorIsLocated(t *testing.T) {
	fd := usersFile(t)
	tr := NewMockTransportWithErrors(nil, []error{status.Error(codes.Unavailable, "backend down")})

	sch, err := schema.BuildFromSDL(testSDL)
	require.NoError(t, err)
	require.NoError(t, sch.SetResolver("Query", "user", Field(methodOf(fd, "GetUser"), tr)))

	got := execute(t, sch, `{ user(id: "1") { name } }`)
	require.Len(t, got.Errors, 1)
	require.Equal(t, "backend down", got.Errors[0].Message)
	require.Equal(t, "UNAVAILABLE", got.Errors[0].Extensions["code"])
	require.Equal(t, language.Path{language.PathName("user")}, got.Errors[0].Path)
	require.Equal(t, codes.Unavailable, status.Code(got.Errors[0]))
}

func TestReference(t *testing.T) {
	fd := usersFile(t)
	ann := newMessage(t, fd, "User", map[string]any{"id": "1", "name": "Ann"})
	tr := NewMockTransport(newMessage(t, fd, "GetUserResponse", map[string]any{"data": ann}))

	resolve := Reference(methodOf(fd, "GetUser"), tr)
	got, err := resolve(context.Background(), map[string]any{"__typename": "User", "id": "1"})
	require.NoError(t, err)
	require.Equal(t, "Ann", got.(protoreflect.Message).Get(ann.Descriptor().Fields().ByName("name")).String())

	calls := tr.Calls()
	require.Len(t, calls, 1)
	want := newMessage(t, fd, "GetUserRequest", map[string]any{"id": "1"}).Interface()
	if diff := cmp.Diff(want, calls[0].Request, protocmp.Transform()); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestTypeResolver(t *testing.T) {
	fd := usersFile(t)
	resolve := TypeResolver("Source")

	got, err := resolve(context.Background(), newMessage(t, fd, "Pet", nil))
	require.NoError(t, err)
	require.Equal(t, "Pet", got)

	_, err = resolve(context.Background(), map[string]any{})
	require.Error(t, err)
}

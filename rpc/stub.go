package rpc

import (
	"context"
	"encoding/json"
)

// Stub scopes calls to one namespace of the peer, such as "Supervisor".
type Stub struct {
	session   *Session
	namespace string
}

// Namespace returns a Stub for calls to "<name>.<Method>".
func (s *Session) Namespace(name string) Stub {
	return Stub{session: s, namespace: name}
}

// Method is a call bound to one fully qualified method name.
type Method func(ctx context.Context, args Args, opts ...CallOption) (json.RawMessage, error)

func (st Stub) Name() string { return st.namespace }

// MethodName returns the fully qualified name of method in this namespace.
func (st Stub) MethodName(method string) string {
	return st.namespace + "." + method
}

// Method binds a method of this namespace.
func (st Stub) Method(method string) Method {
	name := st.MethodName(method)
	return func(ctx context.Context, args Args, opts ...CallOption) (json.RawMessage, error) {
		return st.session.Call(ctx, name, args, opts...)
	}
}

func (st Stub) Call(ctx context.Context, method string, args Args, opts ...CallOption) (json.RawMessage, error) {
	return st.session.Call(ctx, st.MethodName(method), args, opts...)
}

func (st Stub) CallInto(ctx context.Context, method string, args Args, out any, opts ...CallOption) error {
	return st.session.CallInto(ctx, st.MethodName(method), args, out, opts...)
}

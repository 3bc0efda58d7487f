package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	dbadapter "github.com/tigerroll/weatherflow/pkg/batch/adapter/database"
)

// MockDBConnectionResolver is a mock implementation of the database.DBConnectionResolver interface.
// It uses testify/mock to allow for flexible mocking of method calls.
type MockDBConnectionResolver struct {
	mock.Mock
}

// ResolveDBConnection mocks the ResolveDBConnection method.
// It records the call and returns the predefined values.
func (m *MockDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (dbadapter.DBConnection, error) {
	args := m.Called(ctx, name)
	conn, _ := args.Get(0).(dbadapter.DBConnection)
	return conn, args.Error(1)
}

// testSingleConnectionResolver always returns one predefined DBConnection.
type testSingleConnectionResolver struct {
	conn dbadapter.DBConnection
}

// ResolveDBConnection implements the database.DBConnectionResolver interface.
func (r *testSingleConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (dbadapter.DBConnection, error) {
	return r.conn, nil
}

// NewTestSingleConnectionResolver creates a resolver that returns conn for every name.
func NewTestSingleConnectionResolver(conn dbadapter.DBConnection) dbadapter.DBConnectionResolver {
	return &testSingleConnectionResolver{conn: conn}
}

var (
	_ dbadapter.DBConnectionResolver = (*testSingleConnectionResolver)(nil)
	_ dbadapter.DBConnectionResolver = (*MockDBConnectionResolver)(nil)
)

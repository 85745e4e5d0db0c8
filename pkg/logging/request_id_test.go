package logging

import (
	"context"
	"testing"
)

func TestWithRequestID(t *testing.T) {
	ctx := context.Background()
	requestID := "test-request-id"

	ctxWithID := WithRequestID(ctx, requestID)

	retrievedID := RequestID(ctxWithID)
	if retrievedID != requestID {
		t.Errorf("RequestID() = %v, want %v", retrievedID, requestID)
	}
}

func TestRequestID_NoID(t *testing.T) {
	ctx := context.Background()

	id := RequestID(ctx)
	if id != "" {
		t.Errorf("RequestID() = %v, want empty string", id)
	}
}

func TestNewRequestID(t *testing.T) {
	id1 := NewRequestID()
	id2 := NewRequestID()

	if id1 == "" {
		t.Error("NewRequestID() returned empty string")
	}
	if id2 == "" {
		t.Error("NewRequestID() returned empty string")
	}
	if id1 == id2 {
		t.Error("NewRequestID() should generate unique IDs")
	}
}

func TestWithNewRequestID(t *testing.T) {
	ctx := context.Background()

	ctxWithID := WithNewRequestID(ctx)

	id := RequestID(ctxWithID)
	if id == "" {
		t.Error("WithNewRequestID() should generate a request ID")
	}
}

package domain

import "testing"

func TestDeliveryStatus(t *testing.T) {
	tests := []struct {
		status    DeliveryStatus
		success   bool
		retriable bool
	}{
		{DeliveryStatusPublished, true, false},
		{DeliveryStatusDecodeFailed, false, false},
		{DeliveryStatusInvalidInbound, false, false},
		{DeliveryStatusHandlerFailed, false, false},
		{DeliveryStatusInvalidResponse, false, false},
		{DeliveryStatusPublishFailed, false, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsSuccess(); got != tt.success {
			t.Errorf("%s.IsSuccess() = %v, want %v", tt.status, got, tt.success)
		}
		if got := tt.status.IsRetriable(); got != tt.retriable {
			t.Errorf("%s.IsRetriable() = %v, want %v", tt.status, got, tt.retriable)
		}
	}
}

func TestNewDelivery(t *testing.T) {
	d := NewDelivery("Echo", DeliveryStatusPublished)

	if d.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("ID should be generated")
	}
	if d.Service != "Echo" {
		t.Errorf("expected service Echo, got %q", d.Service)
	}
	if d.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

package discovery

import "testing"

func TestDefaultGRPCAddr(t *testing.T) {
	if got := DefaultGRPCAddr(ServiceDofs); got != "dofs:8095" {
		t.Fatalf("DefaultGRPCAddr(%q) = %q, want dofs:8095", ServiceDofs, got)
	}
	if got := DefaultGRPCAddr(" dofs "); got != "dofs:8095" {
		t.Fatalf("DefaultGRPCAddr with spaces = %q, want dofs:8095", got)
	}
	if got := DefaultGRPCAddr("unknown"); got != "" {
		t.Fatalf("DefaultGRPCAddr(unknown) = %q, want empty", got)
	}
}

func TestDefaultGRPCPort(t *testing.T) {
	if got := DefaultGRPCPort(ServiceDofs); got != 8095 {
		t.Fatalf("DefaultGRPCPort = %d, want 8095", got)
	}
	if got := DefaultGRPCPort("unknown"); got != 0 {
		t.Fatalf("DefaultGRPCPort(unknown) = %d, want 0", got)
	}
}

func TestOrDefaultGRPCAddr(t *testing.T) {
	if got := OrDefaultGRPCAddr("  localhost:9000 ", ServiceDofs); got != "localhost:9000" {
		t.Fatalf("OrDefaultGRPCAddr explicit = %q", got)
	}
	if got := OrDefaultGRPCAddr("", ServiceDofs); got != "dofs:8095" {
		t.Fatalf("OrDefaultGRPCAddr fallback = %q", got)
	}
}

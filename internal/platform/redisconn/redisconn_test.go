package redisconn

import (
	"context"
	"testing"
)

func TestOptions_URL(t *testing.T) {
	o := Options("redis://:pw@cache:6380/2")
	if o.Addr != "cache:6380" || o.DB != 2 || o.Password != "pw" {
		t.Fatalf("unexpected options: addr=%s db=%d", o.Addr, o.DB)
	}
}

func TestOptions_BareAddr(t *testing.T) {
	o := Options("localhost:6379")
	if o.Addr != "localhost:6379" {
		t.Fatalf("unexpected addr %s", o.Addr)
	}
}

func TestOpen_Empty(t *testing.T) {
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

package envutil

import (
	"testing"
	"time"
)

func TestReaders(t *testing.T) {
	t.Setenv("KT_INT", "12")
	t.Setenv("KT_BAD_INT", "x")
	t.Setenv("KT_FLOAT", "0.25")
	t.Setenv("KT_BOOL", "off")
	t.Setenv("KT_SECS", "3")

	if got := Int("KT_INT", 1); got != 12 {
		t.Fatalf("Int: want=12 got=%d", got)
	}
	if got := Int("KT_BAD_INT", 7); got != 7 {
		t.Fatalf("Int fallback: want=7 got=%d", got)
	}
	if got := Float("KT_FLOAT", 1); got != 0.25 {
		t.Fatalf("Float: want=0.25 got=%v", got)
	}
	if got := Bool("KT_BOOL", true); got {
		t.Fatalf("Bool: want=false got=true")
	}
	if got := Bool("KT_MISSING", true); !got {
		t.Fatalf("Bool default: want=true got=false")
	}
	if got := Seconds("KT_SECS", time.Minute); got != 3*time.Second {
		t.Fatalf("Seconds: want=3s got=%v", got)
	}
	if got := String("KT_MISSING", "d"); got != "d" {
		t.Fatalf("String: want=d got=%q", got)
	}
}

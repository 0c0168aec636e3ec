package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeW1Slave(t *testing.T, root, addr, content string) {
	t.Helper()
	dir := filepath.Join(root, addr)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "w1_slave"), []byte(content), 0o644); err != nil {
		t.Fatalf("write w1_slave: %v", err)
	}
}

func TestDS18B20ReadsMilliDegrees(t *testing.T) {
	root := t.TempDir()
	writeW1Slave(t, root, "28-0000089b1ca2",
		"4b 46 7f ff 05 10 e9 : crc=e9 YES\n4b 46 7f ff 05 10 e9 t=23187\n")

	d := NewDS18B20("28-0000089b1ca2")
	d.Root = root

	v, err := d.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v != 23.187 {
		t.Fatalf("value = %v, want 23.187", v)
	}
}

func TestDS18B20NegativeValue(t *testing.T) {
	root := t.TempDir()
	writeW1Slave(t, root, "10-000801dd3c70",
		"aa 00 4b 46 ff ff 0c 10 87 : crc=87 YES\naa 00 4b 46 ff ff 0c 10 87 t=-1250\n")

	d := NewDS18B20("10-000801dd3c70")
	d.Root = root

	v, err := d.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v != -1.25 {
		t.Fatalf("value = %v, want -1.25", v)
	}
}

func TestDS18B20CRCFailure(t *testing.T) {
	root := t.TempDir()
	writeW1Slave(t, root, "28-0000089b1ca2",
		"4b 46 7f ff 05 10 e9 : crc=e9 NO\n4b 46 7f ff 05 10 e9 t=23187\n")

	d := NewDS18B20("28-0000089b1ca2")
	d.Root = root

	if _, err := d.Read(context.Background()); err == nil {
		t.Fatalf("expected CRC error")
	}
}

func TestDS18B20MissingDevice(t *testing.T) {
	d := NewDS18B20("28-dead")
	d.Root = t.TempDir()

	if _, err := d.Read(context.Background()); err == nil {
		t.Fatalf("expected error for missing device")
	}
}

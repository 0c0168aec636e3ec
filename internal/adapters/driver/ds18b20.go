package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/grillbaer/data-logger/internal/ports"
)

// DefaultW1Root is where the Linux w1 bus driver exposes slave devices.
const DefaultW1Root = "/sys/bus/w1/devices"

var w1TempRe = regexp.MustCompile(`t=(-?[0-9]+)`)

// DS18B20 reads one DS18x20 sensor on the 1-wire bus. Many sensors share the
// bus; each is addressed by its stable bus id (e.g. "28-0000089b1ca2").
type DS18B20 struct {
	Addr string
	// Root overrides the sysfs location, for tests.
	Root string
}

func NewDS18B20(addr string) *DS18B20 {
	return &DS18B20{Addr: addr}
}

func (d *DS18B20) Read(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	root := d.Root
	if root == "" {
		root = DefaultW1Root
	}
	raw, err := os.ReadFile(filepath.Join(root, d.Addr, "w1_slave"))
	if err != nil {
		return 0, fmt.Errorf("ds18b20 %s: %w", d.Addr, err)
	}
	return parseW1Slave(d.Addr, string(raw))
}

func (d *DS18B20) Name() string { return "ds18b20 " + d.Addr }

var _ ports.Driver = (*DS18B20)(nil)

// parseW1Slave extracts milli-degrees from the two-line w1_slave format:
//
//	4b 46 7f ff 05 10 e9 : crc=e9 YES
//	4b 46 7f ff 05 10 e9 t=23187
func parseW1Slave(addr, raw string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("ds18b20 %s: short w1_slave output", addr)
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, fmt.Errorf("ds18b20 %s: CRC check failed", addr)
	}
	m := w1TempRe.FindStringSubmatch(lines[1])
	if m == nil {
		return 0, fmt.Errorf("ds18b20 %s: no temperature in w1_slave output", addr)
	}
	milli, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ds18b20 %s: %w", addr, err)
	}
	return float64(milli) / 1000, nil
}

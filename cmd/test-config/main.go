// Command test-config is a manual test for the config service. It
// reads the current configuration, optionally writes new values, and
// reports whether the device accepted or corrected them.
//
// Usage:
//
//	go run ./cmd/test-config                  # read-only
//	go run ./cmd/test-config --rate 50        # set update rate
//	go run ./cmd/test-config --led off
//	go run ./cmd/test-config --set-name my-joy
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"joyhost/internal/ble"
	"joyhost/internal/ble/protocol"
	"joyhost/internal/state"
)

func main() {
	name := flag.String("name", protocol.AdvertisedName, "advertised device name")
	rate := flag.Int("rate", -1, "set update rate in ms (20-2000)")
	led := flag.String("led", "", "set LED display: on or off")
	setName := flag.String("set-name", "", "set the advertised device name (max 20 bytes)")
	flag.Parse()

	mirror := state.NewMirror()
	opts := ble.DefaultSessionOptions()
	opts.DeviceName = *name

	session := ble.NewSession(ble.NewNativeAdapter(), mirror, opts)
	fmt.Printf("Scanning for %q...\n", *name)
	if err := session.Connect(context.Background()); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer session.Disconnect()
	fmt.Println("Connected.")

	fmt.Println("Current config:")
	for _, sig := range []protocol.Signal{protocol.UpdateRateMs, protocol.LedEnabled, protocol.DeviceName} {
		val, err := session.Read(context.Background(), sig)
		if err != nil {
			fmt.Printf("  %-14s read failed: %v\n", sig, err)
			continue
		}
		fmt.Printf("  %-14s %s\n", sig, val)
	}

	if *rate >= 0 {
		val, err := rateValue(*rate)
		if err != nil {
			log.Fatalf("--rate: %v", err)
		}
		writeAndVerify(session, mirror, protocol.UpdateRateMs, val)
	}
	if *led != "" {
		writeAndVerify(session, mirror, protocol.LedEnabled, protocol.Pressed(*led == "on"))
	}
	if *setName != "" {
		writeAndVerify(session, mirror, protocol.DeviceName, protocol.Text(*setName))
	}
}

// rateValue range-checks the rate flag as an int, before the uint16
// conversion could silently wrap a huge value into range.
func rateValue(rate int) (protocol.Value, error) {
	info := protocol.Lookup(protocol.UpdateRateMs)
	if rate < int(info.Min) || rate > int(info.Max) {
		return protocol.Value{}, fmt.Errorf("rate %d out of range %d-%d", rate, info.Min, info.Max)
	}
	return protocol.Uint16(uint16(rate)), nil
}

// writeAndVerify writes a config value and watches for the device's
// notification. An echo confirms the write; a different value means the
// device clamped or rejected it; silence is inconclusive.
func writeAndVerify(session *ble.Session, mirror *state.Mirror, sig protocol.Signal, val protocol.Value) {
	updates, cancel := mirror.Watch(sig, 4)
	defer cancel()

	if err := session.Write(context.Background(), sig, val); err != nil {
		fmt.Printf("  %-14s write %s failed: %v\n", sig, val, err)
		return
	}

	select {
	case u := <-updates:
		if u.Value == val {
			fmt.Printf("  %-14s = %s confirmed\n", sig, val)
		} else {
			fmt.Printf("  %-14s wrote %s, device kept %s\n", sig, val, u.Value)
		}
	case <-time.After(time.Second):
		fmt.Printf("  %-14s wrote %s, no confirmation (assuming accepted)\n", sig, val)
	}
}

// Command test-buttons is a manual test for the input notifications.
// It connects, subscribes, and prints every axis and button change for
// a while. Wiggle the stick and press buttons to see events.
//
// Usage:
//
//	go run ./cmd/test-buttons [--name microbit-joy] [--duration 30s]
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
	duration := flag.Duration("duration", 30*time.Second, "how long to watch for events")
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

	updates, cancel := mirror.WatchAll(64)
	defer cancel()

	fmt.Printf("Connected. Watching for %s. Move the stick, press buttons...\n", *duration)
	deadline := time.After(*duration)
	count := 0
	for {
		select {
		case u := <-updates:
			count++
			switch protocol.Lookup(u.Signal).Encoding {
			case protocol.Button:
				action := "released"
				if u.Value.Bool() {
					action = "pressed"
				}
				fmt.Printf("  %-14s %s\n", u.Signal, action)
			default:
				fmt.Printf("  %-14s %s\n", u.Signal, u.Value)
			}
		case <-deadline:
			fmt.Printf("Done, %d events.\n", count)
			return
		}
	}
}

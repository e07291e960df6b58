// Command test-buzzer is a manual test for the buzzer characteristic.
// It connects to the joystick and plays the tone scale, or a single
// tone with --tone.
//
// Usage:
//
//	go run ./cmd/test-buzzer [--name microbit-joy] [--tone 3]
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

var toneNames = [9]string{"off", "C4", "D4", "E4", "F4", "G4", "A4", "B4", "C5"}

func main() {
	name := flag.String("name", protocol.AdvertisedName, "advertised device name")
	tone := flag.Int("tone", -1, "play a single tone 1-8 instead of the scale")
	flag.Parse()

	opts := ble.DefaultSessionOptions()
	opts.DeviceName = *name
	opts.Subscriptions = nil // write-only diagnostic, no notifications needed

	session := ble.NewSession(ble.NewNativeAdapter(), state.NewMirror(), opts)
	fmt.Printf("Scanning for %q...\n", *name)
	if err := session.Connect(context.Background()); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer session.Disconnect()
	fmt.Println("Connected.")

	play := func(code int) {
		if err := session.Write(context.Background(), protocol.Buzzer, protocol.Uint16(uint16(code))); err != nil {
			log.Fatalf("write buzzer: %v", err)
		}
		fmt.Printf("  buzzer = %d (%s)\n", code, toneNames[code])
	}

	if *tone >= 1 && *tone <= 8 {
		play(*tone)
		time.Sleep(time.Second)
	} else {
		fmt.Println("Playing scale...")
		for code := 1; code <= 8; code++ {
			play(code)
			time.Sleep(400 * time.Millisecond)
		}
	}

	play(0)
	fmt.Println("Done.")
}

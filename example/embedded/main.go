// Embeds the guardian inside a TCP echo service using the in-process
// enforcement backend: instead of tc, throttling retunes a token bucket that
// every accepted connection is wrapped with, and "shutdown" cancels the
// service's root context.
package main

import (
	"context"
	"io"
	"log"
	"net"
	"time"

	"github.com/qqncnc/VPS-Traffic-Guardian/pkg/guardian"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &guardian.Config{
		Interface:     "eth0",
		TickInterval:  guardian.Duration(time.Second),
		SampleTimeout: guardian.Duration(500 * time.Millisecond),
		Thresholds: guardian.ThresholdsConfig{
			MaxPeerIPs:             8,
			SustainedHighLoadBPS:   100e6,
			SustainedHighLoadTicks: 3,
			ThrottleDuration:       guardian.Duration(15 * time.Minute),
			DailyByteCap:           100 << 30,
			ThrottledRateBPS:       60e6,
		},
		Enforcement: guardian.EnforcementConfig{Backend: "inprocess"},
	}
	cfg.ApplyDefaults()

	rt, err := guardian.New(cfg, guardian.WithShutdownHook(func(reason string) error {
		log.Printf("guardian ordered shutdown: %s", reason)
		cancel()
		return nil
	}))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	go func() {
		if err := rt.Run(ctx); err != nil {
			log.Printf("guardian exited: %v", err)
		}
	}()

	ln, err := net.Listen("tcp", ":7777")
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.Printf("echo service on :7777, governed by guardian")
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// All echo traffic counts against the installed cap.
		governed := rt.Shaper.WrapConn(conn)
		go func() {
			defer governed.Close()
			_, _ = io.Copy(governed, governed)
		}()
	}
}

//go:build !windows

package main

import (
	"os"
	"os/signal"

	"github.com/vearne/capsync/capture"
	"github.com/vearne/capsync/config"
	"github.com/vearne/capsync/launcher"
	"github.com/vearne/capsync/protocol"
	slog "github.com/vearne/simplelog"
)

// runWorker is the capture side: it reports on the inherited control pipe
// until the capture ends.
func runWorker(s *config.Settings) int {
	pipe := os.NewFile(uintptr(s.ChildFD), "sync pipe")
	if pipe == nil {
		slog.Error("invalid control descriptor %d", s.ChildFD)
		return 2
	}
	sink := protocol.NewPipeSink(pipe)
	defer sink.Close()

	loop := capture.NewLoop(&s.Options, sink)
	watchStopRequest(loop.Stop)

	res := loop.Run()
	slog.Info("capture %v, packets:%v, bytes:%v, rotations:%v",
		res.Reason, res.Packets, res.Bytes, res.Rotations)
	c := res.Counters
	slog.Info("protocols, tcp:%v, udp:%v, sctp:%v, icmp:%v, ospf:%v, gre:%v, arp:%v, other:%v",
		c.TCP, c.UDP, c.SCTP, c.ICMP, c.OSPF, c.GRE, c.ARP, c.Other)
	if !res.Clean() {
		slog.Error("capture failed: %v", res.Err)
		return 1
	}
	return 0
}

// watchStopRequest calls stop when the parent asks the worker to finish.
// Terminal interrupts are left to the parent.
func watchStopRequest(stop func()) {
	signal.Ignore(os.Interrupt)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, launcher.StopSignal)
	go func() {
		for range ch {
			slog.Info("stop requested")
			stop()
		}
	}()
}

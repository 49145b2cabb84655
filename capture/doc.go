/*
Package capture is the worker side of a capture session. It reads packets from
a live interface (pcap), a FIFO or stdin carrying a pcap stream, writes them to
a capture file or ring of files, and reports progress over the control pipe.

example:

	sink := protocol.NewPipeSink(os.NewFile(3, "sync pipe"))
	loop := capture.NewLoop(opts, sink)
	go func() {
		<-quit
		loop.Stop()
	}()
	res := loop.Run()
	if !res.Clean() {
		// res.Err was already reported on the pipe
	}
*/
package capture

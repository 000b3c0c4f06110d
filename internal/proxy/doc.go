// Package proxy forwards commands to devices owned by another process.
//
// Some peripherals can only be driven by a process with special
// privileges (the pixel strip needs root for DMA). Such a device is
// registered in the daemon as a proxy: it has the same name and
// capability set as the real device, but its Run dials the owner's unix
// socket, writes the command as an Envelope, and returns without waiting
// for the remote side.
//
// The owner side is OwnerServer, which serves exactly one device:
//
//	srv := proxy.NewOwnerServer(strip, catalog, "/srv/tophat/neopixel.socket")
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//	defer srv.Close()
//
// Admission on a proxy also checks that the owner's socket exists, so a
// missing owner is reported to the client even for async commands.
//
// Both sides use the secondary channel framing: a 4-byte length prefix
// and at most protocol.MaxSecondaryMessage bytes of CBOR.
package proxy

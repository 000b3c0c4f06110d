// Package client sends commands to the daemon's control socket.
//
// One connection carries one request. Transport failures are returned as
// errors; a response that cannot be decoded is reported as ERROR_UNKNOWN,
// matching what the daemon would send for an unexpected failure.
//
//	c := client.New("/srv/tophat/tophat.socket")
//	var on bool
//	if err := c.Do(ctx, "relay", &switches.State{}, &on); err != nil {
//	    var se *client.StatusError
//	    if errors.As(err, &se) && se.Status == protocol.StatusInvalidDevice { ... }
//	}
package client

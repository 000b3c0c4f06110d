// tophat-client sends one command to a TopHat daemon and prints the reply.
//
//	tophat-client --device relay --command switch.toggle
//	tophat-client --device neopixel --command pixels.blink \
//	    --args '{"color":[255,0,0],"frequency":4,"duration":10}'
//	tophat-client --device reader --command nfc.read_data --args '{"timeout":5}'
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/tophat-core/internal/client"
	"github.com/nerrad567/tophat-core/internal/device"
	"github.com/nerrad567/tophat-core/internal/devices"
	"github.com/nerrad567/tophat-core/internal/protocol"
	"github.com/nerrad567/tophat-core/internal/server"
)

// Exit codes.
const (
	exitOK     = 0
	exitStatus = 1 // the daemon answered with a non-SUCCESS status
	exitUsage  = 2
	exitError  = 3 // transport failure
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("tophat-client", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	socket := flags.StringP("socket", "s", defaultSocket(), "daemon control socket")
	deviceName := flags.StringP("device", "d", "", "target device name")
	tag := flags.StringP("command", "c", "", "command tag, e.g. switch.toggle")
	argsJSON := flags.StringP("args", "a", "", "command arguments as a JSON object")
	timeout := flags.Duration("timeout", client.DefaultTimeout, "time to wait for the reply")
	list := flags.Bool("list", false, "list known command tags and exit")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	catalog, err := devices.NewCatalog()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	if *list {
		for _, t := range catalog.Tags() {
			kind, _ := catalog.Kind(t)
			fmt.Fprintf(stdout, "%-22s %s\n", t, kind)
		}
		return exitOK
	}

	if *deviceName == "" || *tag == "" {
		fmt.Fprintln(stderr, "Error: --device and --command are required")
		flags.PrintDefaults()
		return exitUsage
	}

	cmd, err := buildCommand(catalog, device.Tag(*tag), *argsJSON)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	c := client.New(*socket)
	c.SetTimeout(*timeout)

	resp, err := c.Send(ctx, *deviceName, cmd)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	fmt.Fprintln(stdout, resp.Status)
	if resp.Status != protocol.StatusSuccess {
		return exitStatus
	}
	if len(resp.Result) > 0 {
		var result any
		if err := resp.Decode(&result); err != nil {
			fmt.Fprintf(stderr, "Error: decoding result: %v\n", err)
			return exitError
		}
		fmt.Fprintln(stdout, formatResult(result))
	}
	return exitOK
}

func defaultSocket() string {
	if path := os.Getenv("TOPHAT_SOCKET"); path != "" {
		return path
	}
	return server.DefaultSocketPath
}

// buildCommand decodes argsJSON into the command registered for tag.
// JSON integers stay integers so they fit integer fields such as colour
// channels.
func buildCommand(catalog *device.Catalog, tag device.Tag, argsJSON string) (device.Command, error) {
	var args map[string]any
	if argsJSON != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(argsJSON)))
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			return nil, fmt.Errorf("parsing --args: %w", err)
		}
		args = normalize(args).(map[string]any)
	}
	return catalog.DecodeMap(tag, args)
}

func normalize(v any) any {
	switch v := v.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64() //nolint:errcheck // json.Number is always a valid float
		return f
	case map[string]any:
		for k, e := range v {
			v[k] = normalize(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = normalize(e)
		}
		return v
	default:
		return v
	}
}

// formatResult renders a decoded result for the terminal. Byte strings,
// such as NFC payloads, print as text.
func formatResult(v any) string {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	}
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}
